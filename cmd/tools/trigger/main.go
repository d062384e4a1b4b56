// trigger posts a collector batch to a running server's /api/v1/process.
// The admin secret is read from ADMIN_SECRET.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/david/quest-radar/internal/auth"
	"github.com/david/quest-radar/internal/ingest"
)

type triggerFlags struct {
	server  string
	source  string
	minROI  float64
	persist bool
	write   bool
}

type processPayload struct {
	MinROI    *float64             `json:"min_roi,omitempty"`
	Persist   bool                 `json:"persist"`
	WriteFile bool                 `json:"write_file"`
	Sources   []ingest.SourceBatch `json:"sources"`
}

func newTriggerCmd() *cobra.Command {
	var flags triggerFlags
	cmd := &cobra.Command{
		Use:           "trigger <file.json>",
		Short:         "Send a batch file to the server for processing",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
			if secret == "" {
				return fmt.Errorf("missing ADMIN_SECRET environment variable")
			}

			batch, err := ingest.LoadBatchFile(args[0])
			if err != nil {
				return err
			}
			if flags.source != "" {
				batch.Source = flags.source
			}
			if batch.Source == "" {
				return fmt.Errorf("%s names no source; pass --source", args[0])
			}

			payload := processPayload{Persist: flags.persist, WriteFile: flags.write, Sources: []ingest.SourceBatch{batch}}
			if cmd.Flags().Changed("min-roi") {
				payload.MinROI = &flags.minROI
			}

			client := &http.Client{Timeout: 60 * time.Second}
			base := strings.TrimRight(flags.server, "/")
			token, err := fetchToken(client, base, secret)
			if err != nil {
				return err
			}
			return postBatch(cmd.OutOrStdout(), client, base, token, payload)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.server, "server", "http://localhost:8080", "Server base URL")
	f.StringVarP(&flags.source, "source", "s", "", "Source label (overrides the file's)")
	f.Float64Var(&flags.minROI, "min-roi", ingest.DefaultMinROI, "Minimum ROI in USD per minute (server default when unset)")
	f.BoolVar(&flags.persist, "persist", true, "Store the run on the server")
	f.BoolVar(&flags.write, "write-file", false, "Have the server write an output file")
	return cmd
}

func fetchToken(client *http.Client, base, secret string) (string, error) {
	body, _ := json.Marshal(map[string]string{"secret": secret})
	resp, err := client.Post(base+"/api/v1/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("request token: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	var tok auth.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	return tok.Token, nil
}

func postBatch(w io.Writer, client *http.Client, base, token string, payload processPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/process", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	fmt.Fprintf(w, "Response Status: %s\n", resp.Status)
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("process failed: %s", bytes.TrimSpace(msg))
	}

	var result struct {
		Stats ingest.Stats `json:"stats"`
		Run   *struct {
			ID string `json:"id"`
		} `json:"run"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Fprintf(w, "Raw: %d  Unique: %d  Kept: %d  Max ROI: %.2f\n",
		result.Stats.TotalRaw, result.Stats.AfterDeduplication, result.Stats.AfterROIFilter, result.Stats.MaxROI)
	if result.Run != nil {
		fmt.Fprintf(w, "Run: %s\n", result.Run.ID)
	}
	return nil
}

func main() {
	if err := newTriggerCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
