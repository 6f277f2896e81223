// Package resend replays transmission payloads to the configured endpoint and
// classifies the raw responses into semantic outcomes.
package resend

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outcome is the semantic result of a resend attempt.
type Outcome string

const (
	// OutcomeSuccess means the downstream accepted the replayed payload.
	OutcomeSuccess Outcome = "SUCCESS"
	// OutcomeFailed means the attempt failed or the response was ambiguous.
	OutcomeFailed Outcome = "FAILED"
)

// Classification carries the outcome and a human-readable reason.
type Classification struct {
	Outcome Outcome
	Reason  string
}

// successIndicatorKeys are the structured fields downstream systems use to
// signal acceptance. Lowercased for case-insensitive matching.
var successIndicatorKeys = map[string]bool{
	"resultcode":  true,
	"success":     true,
	"is_success":  true,
	"issuccess":   true,
	"successflag": true,
}

var successTokens = map[string]bool{
	"true": true, "1": true, "yes": true, "ok": true,
	"success": true, "berhasil": true, "200": true,
	"completed": true, "done": true,
}

// Classify interprets the raw response text of a resend attempt. It trusts a
// structured success indicator when one parses, but any configured failure
// keyword in the text forces FAILED: downstream systems sometimes echo the
// original payload back, and a naive truthy field must not win over an
// explicit rejection. This is a best-effort heuristic, not a protocol parser.
func Classify(responseText string, failureKeywords []string) Classification {
	text := strings.TrimSpace(responseText)
	if text == "" {
		return Classification{Outcome: OutcomeFailed, Reason: "no response"}
	}

	lowered := strings.ToLower(text)
	for _, kw := range failureKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lowered, kw) {
			return Classification{
				Outcome: OutcomeFailed,
				Reason:  fmt.Sprintf("failure keyword %q present in response", kw),
			}
		}
	}

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		if verdict, ok := evaluateStructured(parsed); ok {
			if verdict {
				return Classification{Outcome: OutcomeSuccess, Reason: "structured success indicator"}
			}
			return Classification{Outcome: OutcomeFailed, Reason: "structured indicator reports failure"}
		}
	}

	if successTokens[lowered] {
		return Classification{Outcome: OutcomeSuccess, Reason: "response text indicates success"}
	}

	return Classification{Outcome: OutcomeFailed, Reason: "unrecognized response"}
}

// evaluateStructured walks a decoded JSON value looking for a success
// indicator field. The second result is false when none was found.
func evaluateStructured(root any) (verdict, found bool) {
	successSeen, failureSeen := false, false

	stack := []any{root}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch v := current.(type) {
		case map[string]any:
			for key, value := range v {
				if successIndicatorKeys[strings.ToLower(key)] {
					switch truthiness(value) {
					case 1:
						successSeen = true
					case -1:
						failureSeen = true
					}
				}
				switch value.(type) {
				case map[string]any, []any:
					stack = append(stack, value)
				}
			}
		case []any:
			stack = append(stack, v...)
		}
	}

	if !successSeen && !failureSeen {
		return false, false
	}
	// A failure flag anywhere vetoes a success flag elsewhere.
	return successSeen && !failureSeen, true
}

// truthiness maps an indicator value to 1 (success), -1 (failure) or
// 0 (unknown).
func truthiness(value any) int {
	switch v := value.(type) {
	case bool:
		if v {
			return 1
		}
		return -1
	case float64:
		if v != 0 {
			return 1
		}
		return -1
	case string:
		lowered := strings.ToLower(strings.TrimSpace(v))
		if successTokens[lowered] {
			return 1
		}
		if lowered == "false" || lowered == "0" || lowered == "no" {
			return -1
		}
	}
	return 0
}
