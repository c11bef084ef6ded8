package agent

import (
	"time"

	"github.com/tbxark/onboardagent/types"
)

// State is the current step of the onboarding dialogue.
type State string

const (
	StateAwaitingNameInput            State = "awaiting_name_input"
	StateAwaitingNameConfirmation     State = "awaiting_name_confirmation"
	StateAwaitingNameCorrection       State = "awaiting_name_correction"
	StateAwaitingTruthLie             State = "awaiting_truthnlie"
	StateAwaitingTruthLieConfirmation State = "awaiting_truthnlie_confirmation"
	StateProfileReady                 State = "profile_ready"
	StateAbandoned                    State = "abandoned"
)

// Terminal reports whether the state can only be left by an explicit reset.
func (s State) Terminal() bool {
	return s == StateProfileReady || s == StateAbandoned
}

// Collected field keys, one per step.
const (
	FieldName     = "name"
	FieldTruthLie = "truthnlie"
	FieldProfile  = "profile"
)

// PendingPayload is the unconfirmed artifact of the current step: the original
// media plus the model's latest interpretation of it. The session owns it
// exclusively and replaces it wholesale.
type PendingPayload struct {
	Kind     types.EventKind `json:"kind"`
	MIMEType string          `json:"mime_type,omitempty"`
	Data     []byte          `json:"data,omitempty"`
	Parsed   map[string]any  `json:"parsed,omitempty"`
}

// Session is the per-user dialogue record. Only the engine's transition logic
// mutates it.
type Session struct {
	UserID     string          `json:"user_id"`
	State      State           `json:"state"`
	Pending    *PendingPayload `json:"pending,omitempty"`
	Collected  map[string]any  `json:"collected"`
	RetryCount int             `json:"retry_count"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func NewSession(userID string, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		State:     StateAwaitingNameInput,
		Collected: map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Session) reset(now time.Time) {
	s.State = StateAwaitingNameInput
	s.Pending = nil
	s.Collected = map[string]any{}
	s.RetryCount = 0
	s.UpdatedAt = now
}

// enter moves to a new step and resets the per-step retry budget.
func (s *Session) enter(state State, now time.Time) {
	s.State = state
	s.RetryCount = 0
	s.UpdatedAt = now
}

func (s *Session) abandon(now time.Time) {
	s.Pending = nil
	s.State = StateAbandoned
	s.UpdatedAt = now
}
