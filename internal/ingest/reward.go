package ingest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// amountPattern matches the first embedded decimal number ("100", "2.5").
var amountPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// RewardDefault is used when a record carries no reward field at all.
type RewardDefault struct {
	Amount   float64 `yaml:"amount"`
	Currency string  `yaml:"currency"`
}

// Extraction is the normalized (amount, currency) pair of a reward.
type Extraction struct {
	Amount   float64
	Currency string
	// Defaulted is set when the reward was absent and RewardDefault applied.
	Defaulted bool
	// Unparsed is set when a reward was present but held no usable amount.
	Unparsed bool
}

// ClassifyReward tags the "reward" field of rec by shape.
func ClassifyReward(rec RawOpportunity) RewardRaw {
	v, ok := rec["reward"]
	if !ok || v == nil {
		return RewardRaw{Kind: RewardAbsent}
	}
	return classifyValue(v)
}

func classifyValue(v any) RewardRaw {
	switch t := v.(type) {
	case string:
		return RewardRaw{Kind: RewardString, Text: t}
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return RewardRaw{Kind: RewardNumber, Number: f}
		}
		return RewardRaw{Kind: RewardString, Text: t.String()}
	case float64:
		return RewardRaw{Kind: RewardNumber, Number: t}
	case float32:
		return RewardRaw{Kind: RewardNumber, Number: float64(t)}
	case int:
		return RewardRaw{Kind: RewardNumber, Number: float64(t)}
	case int64:
		return RewardRaw{Kind: RewardNumber, Number: float64(t)}
	case map[string]any:
		return RewardRaw{Kind: RewardObject, Object: t}
	case RawOpportunity:
		return RewardRaw{Kind: RewardObject, Object: t}
	case []any:
		return RewardRaw{Kind: RewardList, List: t}
	case []map[string]any:
		list := make([]any, len(t))
		for i, m := range t {
			list[i] = m
		}
		return RewardRaw{Kind: RewardList, List: list}
	default:
		return RewardRaw{Kind: RewardString, Text: fmt.Sprint(v)}
	}
}

// ExtractReward resolves a classified reward into an amount and a currency.
// It never fails: anything unreadable degrades to amount 0 in USD.
func ExtractReward(r RewardRaw, def RewardDefault) Extraction {
	switch r.Kind {
	case RewardAbsent:
		return Extraction{Amount: def.Amount, Currency: def.Currency, Defaulted: true}
	case RewardList:
		if len(r.List) == 0 {
			return Extraction{Currency: "USD", Unparsed: true}
		}
		if m, ok := r.List[0].(map[string]any); ok {
			return extractObject(m, []string{"value", "amount"}, []string{"type", "currency"})
		}
		return ExtractReward(classifyValue(r.List[0]), def)
	case RewardObject:
		return extractObject(r.Object, []string{"amount"}, []string{"currency"})
	case RewardNumber:
		return Extraction{Amount: r.Number, Currency: "USD"}
	default:
		return extractText(r.Text)
	}
}

func extractText(text string) Extraction {
	out := Extraction{Currency: detectCurrency(text)}
	if out.Currency == "" {
		out.Currency = "USD"
	}
	amount, ok := firstAmount(text)
	if !ok {
		out.Unparsed = true
		return out
	}
	out.Amount = amount
	return out
}

func extractObject(m map[string]any, amountKeys, currencyKeys []string) Extraction {
	out := Extraction{Currency: "USD", Unparsed: true}
	for _, k := range amountKeys {
		if v, ok := m[k]; ok && v != nil {
			if amount, ok := toFloat(v); ok {
				out.Amount = amount
				out.Unparsed = false
			}
			break
		}
	}
	for _, k := range currencyKeys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			out.Currency = canonicalCurrency(s)
			break
		}
	}
	return out
}

// detectCurrency applies the fixed priority XP, GAL, POINTS, USD to a
// case-insensitive substring search. It returns "" when nothing matches.
func detectCurrency(text string) string {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "XP"):
		return "XP"
	case strings.Contains(upper, "GAL"):
		return "GAL"
	case strings.Contains(upper, "POINT"):
		return "POINTS"
	case strings.Contains(text, "$") || strings.Contains(upper, "USD"):
		return "USD"
	}
	return ""
}

// canonicalCurrency maps an explicit currency tag onto the known codes and
// keeps unknown tags (ETH, OP, ...) upper-cased so they price at the
// unknown rate.
func canonicalCurrency(tag string) string {
	if c := detectCurrency(tag); c != "" {
		return c
	}
	return strings.ToUpper(strings.TrimSpace(tag))
}

func firstAmount(text string) (float64, bool) {
	m := amountPattern.FindString(text)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// toFloat reads a numeric JSON value, or the first number inside a string.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		return firstAmount(t)
	}
	return 0, false
}
