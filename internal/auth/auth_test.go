package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/david/quest-radar/internal/logger"
)

func newTestService(t *testing.T, secret string) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	svc, err := NewService("test-signing-key", string(hash), time.Hour, logger.NewNop())
	require.NoError(t, err)
	return svc
}

func TestIssueAndParseToken(t *testing.T) {
	svc := newTestService(t, "s3cret")

	resp, err := svc.IssueToken("s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	sub, err := svc.ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, AdminSubject, sub)
}

func TestIssueToken_Rejections(t *testing.T) {
	svc := newTestService(t, "s3cret")
	_, err := svc.IssueToken("wrong")
	assert.ErrorIs(t, err, ErrInvalidCreds)

	disabled, err := NewService("k", "", time.Hour, logger.NewNop())
	require.NoError(t, err)
	_, err = disabled.IssueToken("anything")
	assert.ErrorIs(t, err, ErrTokenDisabled)
}

func TestParseToken_ExpiredAndForeign(t *testing.T) {
	svc := newTestService(t, "s3cret")
	resp, err := svc.IssueToken("s3cret")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ParseToken(resp.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewService("another-key", "", time.Hour, logger.NewNop())
	require.NoError(t, err)
	svc.now = time.Now
	_, err = other.ParseToken(resp.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewService_EphemeralSecret(t *testing.T) {
	a, err := NewService("", "", 0, logger.NewNop())
	require.NoError(t, err)
	b, err := NewService("", "", 0, logger.NewNop())
	require.NoError(t, err)
	assert.NotEqual(t, a.secret, b.secret)
	assert.Equal(t, 24*time.Hour, a.ttl)
}

func TestHashSecret(t *testing.T) {
	hash, err := HashSecret("pw")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("pw")))
}

func TestMiddleware(t *testing.T) {
	svc := newTestService(t, "s3cret")
	resp, err := svc.IssueToken("s3cret")
	require.NoError(t, err)

	e := echo.New()
	handler := svc.Middleware(func(c echo.Context) error {
		sub, err := SubjectFromContext(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, sub)
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + resp.Token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			err := handler(e.NewContext(req, rec))

			if tt.status == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, AdminSubject, rec.Body.String())
				return
			}
			var he *echo.HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, tt.status, he.Code)
		})
	}
}
