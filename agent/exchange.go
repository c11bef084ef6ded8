package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tbxark/onboardagent/gateway"
	"github.com/tbxark/onboardagent/types"
)

// Exchange is the durable record of one model call. The log is append-only;
// every attempt of a correction loop is kept so the retry history can be
// reconstructed.
type Exchange struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	PromptType string         `json:"prompt_type"`
	InputParts []string       `json:"input_parts"`
	Raw        string         `json:"raw_response,omitempty"`
	Parsed     map[string]any `json:"parsed_result,omitempty"`
	Status     gateway.Status `json:"status"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func newExchange(userID string, parts []types.Part, result *gateway.Result, now time.Time) *Exchange {
	ex := &Exchange{
		ID:         result.ID,
		UserID:     userID,
		PromptType: result.PromptType,
		InputParts: partRefs(parts),
		Raw:        result.Raw,
		Parsed:     result.Parsed,
		Status:     result.Status,
		CreatedAt:  now,
	}
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if result.Err != nil {
		ex.Error = result.Err.Error()
	}
	return ex
}

// partRefs keeps references, not raw bytes: the adapter or storage owns media.
func partRefs(parts []types.Part) []string {
	refs := make([]string, 0, len(parts))
	for _, p := range parts {
		switch part := p.(type) {
		case types.BinaryPart:
			refs = append(refs, fmt.Sprintf("%s:%dB", part.MIMEType, len(part.Data)))
		case types.TextPart:
			refs = append(refs, "text:"+part.Text)
		default:
			refs = append(refs, fmt.Sprintf("%T", p))
		}
	}
	return refs
}
