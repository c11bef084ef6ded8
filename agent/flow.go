// Package agent drives the onboarding dialogue: a per-user state machine that
// sequences name capture, confirmation and correction, the two-truths-and-a-lie
// game, and profile synthesis, invoking the model gateway at each step.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tbxark/onboardagent/command"
	"github.com/tbxark/onboardagent/gateway"
	"github.com/tbxark/onboardagent/types"
)

// Prompt types the engine invokes.
const (
	PromptNameInput          = "name_input"
	PromptTruthLie           = "truthnlie"
	PromptTruthLieCorrection = "truthnlie_correction"
)

const DefaultMaxRetries = 3

// Invoker is the model gateway seam.
type Invoker interface {
	Invoke(ctx context.Context, promptType string, parts []types.Part, vars gateway.Variables, cfg types.GenerationConfig) (*gateway.Result, error)
}

// Synthesizer produces the closing profile summary once the flow completes.
type Synthesizer interface {
	Synthesize(ctx context.Context, userID string, collected map[string]any) (string, error)
}

type Engine struct {
	gateway     Invoker
	sessions    SessionStore
	exchanges   ExchangeLog
	parser      command.Parser
	synthesizer Synthesizer
	genCfg      types.GenerationConfig
	maxRetries  int
	idleTimeout time.Duration
	callTimeout time.Duration
	now         func() time.Time
	locks       *userLocks
}

type EngineOption func(*Engine)

func WithMaxRetries(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

func WithIdleTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.idleTimeout = d }
}

// WithCallTimeout bounds each model call; an overrun surfaces as an upstream
// error and takes the standard re-prompt path.
func WithCallTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.callTimeout = d }
}

func WithSynthesizer(s Synthesizer) EngineOption {
	return func(e *Engine) { e.synthesizer = s }
}

func WithGenerationConfig(cfg types.GenerationConfig) EngineOption {
	return func(e *Engine) { e.genCfg = cfg }
}

func WithParser(p command.Parser) EngineOption {
	return func(e *Engine) { e.parser = p }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(gw Invoker, sessions SessionStore, exchanges ExchangeLog, opts ...EngineOption) *Engine {
	e := &Engine{
		gateway:     gw,
		sessions:    sessions,
		exchanges:   exchanges,
		parser:      command.NewKeywordParser(),
		genCfg:      types.OnboardingGenerationConfig(),
		maxRetries:  DefaultMaxRetries,
		idleTimeout: 30 * time.Minute,
		now:         time.Now,
		locks:       newUserLocks(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Handle feeds one inbound event through the state machine and returns the
// reply for the channel adapter. Events for the same user are processed
// strictly in arrival order; different users run concurrently.
func (e *Engine) Handle(ctx context.Context, ev types.Event) (types.Reply, error) {
	if err := ev.Validate(); err != nil {
		return types.Reply{}, err
	}

	unlock := e.locks.lock(ev.UserID)
	defer unlock()

	now := e.now()
	session, ok, err := e.sessions.Get(ctx, ev.UserID)
	if err != nil {
		return types.Reply{}, fmt.Errorf("load session: %w", err)
	}
	if !ok || session == nil {
		session = NewSession(ev.UserID, now)
	}

	text, err := e.step(ctx, session, ev, now)
	if err != nil {
		return types.Reply{}, err
	}

	session.UpdatedAt = now
	if err := e.sessions.Put(ctx, session); err != nil {
		return types.Reply{}, fmt.Errorf("save session: %w", err)
	}
	return types.Reply{UserID: ev.UserID, Text: text}, nil
}

// step is the transition function: next state and reply depend only on
// (current state, event kind, last exchange outcome).
func (e *Engine) step(ctx context.Context, session *Session, ev types.Event, now time.Time) (string, error) {
	if ev.Kind == types.EventText {
		cmd, err := e.parser.Parse(ctx, ev.Text)
		if err != nil {
			slog.Warn("command parse failed", "user_id", ev.UserID, "error", err)
			cmd = command.None
		}
		switch cmd {
		case command.Stop:
			if session.State.Terminal() {
				return replyNoConversation, nil
			}
			session.abandon(now)
			return replyStopped, nil
		case command.Start, command.Reset:
			session.reset(now)
			return replyWelcome, nil
		}
	}

	switch session.State {
	case StateProfileReady:
		return replyDone, nil
	case StateAbandoned:
		return replyAbandonedHint, nil
	case StateAwaitingNameInput:
		return e.stepNameInput(ctx, session, ev, now)
	case StateAwaitingNameConfirmation:
		return e.stepNameConfirmation(ctx, session, ev, now)
	case StateAwaitingNameCorrection:
		return e.stepNameCorrection(session, ev, now)
	case StateAwaitingTruthLie:
		return e.stepTruthLie(ctx, session, ev, now)
	case StateAwaitingTruthLieConfirmation:
		return e.stepTruthLieConfirmation(ctx, session, ev, now)
	default:
		return "", fmt.Errorf("session %s in unknown state %q", session.UserID, session.State)
	}
}

func (e *Engine) stepNameInput(ctx context.Context, session *Session, ev types.Event, now time.Time) (string, error) {
	if ev.Kind == types.EventText {
		return replyNeedVoiceIntro, nil
	}

	parts := []types.Part{
		types.MustBinaryPart(ev.MIMEType, ev.Payload),
		types.MustTextPart("Analyzing introduction audio"),
	}
	result, err := e.invoke(ctx, session, PromptNameInput, parts, gateway.Variables{}, now)
	if err != nil {
		return "", err
	}
	if result.Status != gateway.StatusOK {
		return e.nameStepFailure(session, now), nil
	}

	session.Pending = &PendingPayload{
		Kind:     ev.Kind,
		MIMEType: ev.MIMEType,
		Data:     ev.Payload,
		Parsed:   result.Parsed,
	}
	session.enter(StateAwaitingNameConfirmation, now)
	return fmt.Sprintf(replyNameConfirm, formatNameResult(result.Parsed)), nil
}

func (e *Engine) stepNameConfirmation(ctx context.Context, session *Session, ev types.Event, now time.Time) (string, error) {
	if ev.Kind != types.EventText {
		return replyYesNo, nil
	}
	cmd, err := e.parser.Parse(ctx, ev.Text)
	if err != nil {
		return replyYesNo, nil
	}

	switch cmd {
	case command.Affirm:
		session.Collected[FieldName] = pendingName(session)
		session.Pending = nil
		session.enter(StateAwaitingTruthLie, now)
		return replyTruthLieIntro, nil
	case command.Deny:
		session.enter(StateAwaitingNameCorrection, now)
		return replyNameCorrection, nil
	default:
		return replyYesNo, nil
	}
}

// stepNameCorrection commits the typed name directly; the model is not
// re-invoked since the user's own text is authoritative.
func (e *Engine) stepNameCorrection(session *Session, ev types.Event, now time.Time) (string, error) {
	if ev.Kind != types.EventText {
		return replyNameFallback, nil
	}
	session.Collected[FieldName] = strings.TrimSpace(ev.Text)
	session.Pending = nil
	session.enter(StateAwaitingTruthLie, now)
	return replyTruthLieCorrected, nil
}

func (e *Engine) stepTruthLie(ctx context.Context, session *Session, ev types.Event, now time.Time) (string, error) {
	if ev.Kind == types.EventText {
		return replyNeedVoiceStatements, nil
	}

	parts := []types.Part{
		types.MustBinaryPart(ev.MIMEType, ev.Payload),
		types.MustTextPart(statementsCaption(session)),
	}
	result, err := e.invoke(ctx, session, PromptTruthLie, parts, e.speakerVars(session), now)
	if err != nil {
		return "", err
	}
	if result.Status != gateway.StatusOK {
		return e.truthLieStepFailure(session, now), nil
	}

	session.Pending = &PendingPayload{
		Kind:     ev.Kind,
		MIMEType: ev.MIMEType,
		Data:     ev.Payload,
		Parsed:   result.Parsed,
	}
	session.enter(StateAwaitingTruthLieConfirmation, now)
	return fmt.Sprintf(replyTruthLieConfirm, formatGuess(result.Parsed)), nil
}

func (e *Engine) stepTruthLieConfirmation(ctx context.Context, session *Session, ev types.Event, now time.Time) (string, error) {
	if ev.Kind != types.EventText {
		return replyYesNo, nil
	}
	cmd, err := e.parser.Parse(ctx, ev.Text)
	if err != nil {
		return replyYesNo, nil
	}

	switch cmd {
	case command.Affirm:
		if session.Pending != nil {
			session.Collected[FieldTruthLie] = session.Pending.Parsed
		}
		session.Pending = nil
		closing := e.synthesizeProfile(ctx, session)
		session.enter(StateProfileReady, now)
		return closing, nil

	case command.Deny:
		session.RetryCount++
		session.UpdatedAt = now
		if session.RetryCount >= e.maxRetries {
			slog.Info("truth/lie retries exhausted, abandoning",
				"user_id", session.UserID, "retries", session.RetryCount)
			session.abandon(now)
			return replyTruthLieGiveUp, nil
		}
		// The denial itself carries nothing to re-derive from, so the
		// refinement call re-sends the original audio with the previous
		// interpretation as context.
		return e.refineTruthLie(ctx, session, now)

	default:
		return replyYesNo, nil
	}
}

func (e *Engine) refineTruthLie(ctx context.Context, session *Session, now time.Time) (string, error) {
	pending := session.Pending
	if pending == nil || len(pending.Data) == 0 {
		// Lost the original audio; ask for a fresh recording.
		session.State = StateAwaitingTruthLie
		return replyNeedVoiceStatements, nil
	}

	parts := []types.Part{
		types.MustBinaryPart(pending.MIMEType, pending.Data),
		types.MustTextPart("Re-analyzing the original statements"),
	}
	vars := e.speakerVars(session)
	vars.PreviousResponse = pending.Parsed

	result, err := e.invoke(ctx, session, PromptTruthLieCorrection, parts, vars, now)
	if err != nil {
		return "", err
	}
	if result.Status != gateway.StatusOK {
		return replyTryAgain, nil
	}

	pending.Parsed = result.Parsed
	return fmt.Sprintf(replyTruthLieConfirm, formatGuess(result.Parsed)), nil
}

// invoke runs one gateway call with the call timeout applied and records the
// exchange whatever the outcome.
func (e *Engine) invoke(ctx context.Context, session *Session, promptType string, parts []types.Part, vars gateway.Variables, now time.Time) (*gateway.Result, error) {
	callCtx := ctx
	if e.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
	}

	result, err := e.gateway.Invoke(callCtx, promptType, parts, vars, e.genCfg)
	if err != nil {
		return nil, err
	}

	if logErr := e.exchanges.Append(ctx, newExchange(session.UserID, parts, result, now)); logErr != nil {
		slog.Error("failed to append exchange", "user_id", session.UserID, "error", logErr)
	}
	return result, nil
}

// nameStepFailure applies the bounded retry policy for the name step; past the
// budget the flow falls back to manual text entry.
func (e *Engine) nameStepFailure(session *Session, now time.Time) string {
	session.RetryCount++
	session.UpdatedAt = now
	if session.RetryCount >= e.maxRetries {
		session.enter(StateAwaitingNameCorrection, now)
		return replyNameFallback
	}
	return replyTryAgain
}

// truthLieStepFailure has no manual substitute, so exhausting the budget
// abandons the session.
func (e *Engine) truthLieStepFailure(session *Session, now time.Time) string {
	session.RetryCount++
	session.UpdatedAt = now
	if session.RetryCount >= e.maxRetries {
		session.abandon(now)
		return replyTruthLieGiveUp
	}
	return replyTryAgain
}

func (e *Engine) synthesizeProfile(ctx context.Context, session *Session) string {
	if e.synthesizer == nil {
		return replyClosingFallback
	}
	summary, err := e.synthesizer.Synthesize(ctx, session.UserID, session.Collected)
	if err != nil {
		slog.Warn("profile synthesis failed, using fallback copy",
			"user_id", session.UserID, "error", err)
		return replyClosingFallback
	}
	session.Collected[FieldProfile] = summary
	return summary
}

// SweepIdle abandons sessions idle longer than the configured window and
// releases their pending payloads. Returns the number of sessions abandoned.
func (e *Engine) SweepIdle(ctx context.Context) (int, error) {
	if e.idleTimeout <= 0 {
		return 0, nil
	}
	cutoff := e.now().Add(-e.idleTimeout)
	stale, err := e.sessions.IdleSince(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list idle sessions: %w", err)
	}

	abandoned := 0
	for _, session := range stale {
		unlock := e.locks.lock(session.UserID)
		current, ok, err := e.sessions.Get(ctx, session.UserID)
		if err != nil || !ok || current.State.Terminal() || current.UpdatedAt.After(cutoff) {
			unlock()
			continue
		}
		current.abandon(e.now())
		if err := e.sessions.Put(ctx, current); err != nil {
			slog.Error("failed to abandon idle session", "user_id", session.UserID, "error", err)
		} else {
			abandoned++
		}
		unlock()
	}
	return abandoned, nil
}

func (e *Engine) speakerVars(session *Session) gateway.Variables {
	vars := gateway.Variables{CallSite: map[string]any{}}
	if name, ok := session.Collected[FieldName].(string); ok && name != "" {
		vars.CallSite["speaker_name"] = name
	}
	return vars
}

func statementsCaption(session *Session) string {
	if name, ok := session.Collected[FieldName].(string); ok && name != "" {
		return fmt.Sprintf("Analyzing statements from %s's session", name)
	}
	return "Analyzing statements"
}

func pendingName(session *Session) string {
	if session.Pending == nil {
		return ""
	}
	if name, ok := session.Pending.Parsed["name"].(string); ok {
		return name
	}
	return ""
}

func formatNameResult(parsed map[string]any) string {
	name, _ := parsed["name"].(string)
	var sb strings.Builder
	sb.WriteString(name)
	if nickname, ok := parsed["nickname"].(string); ok && nickname != "" {
		fmt.Fprintf(&sb, " (goes by %s)", nickname)
	}
	if observation, ok := parsed["observation"].(string); ok && observation != "" {
		sb.WriteString("\n\n")
		sb.WriteString(observation)
	}
	return sb.String()
}

func formatGuess(parsed map[string]any) string {
	guess, _ := parsed["guessed_lie"].(string)
	reasoning, _ := parsed["reasoning"].(string)
	var sb strings.Builder
	fmt.Fprintf(&sb, "I think the lie is: %s", guess)
	if reasoning != "" {
		sb.WriteString("\n")
		sb.WriteString(reasoning)
	}
	return sb.String()
}
