// Package gateway turns a (prompt type, multimodal parts, variables) tuple
// into a structured result, hiding the vendor request and response shape
// behind eino's chat model abstraction.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/tbxark/onboardagent/promptcfg"
	"github.com/tbxark/onboardagent/types"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
)

// Variables are the three template namespaces, merged in fixed precedence:
// CallSite lowest, PreviousResponse in the middle, Step highest.
type Variables struct {
	CallSite         map[string]any
	PreviousResponse map[string]any
	Step             map[string]any
}

// Merge flattens the namespaces. Later sources override earlier ones.
func (v Variables) Merge() map[string]any {
	merged := make(map[string]any, len(v.CallSite)+len(v.PreviousResponse)+len(v.Step))
	for k, val := range v.CallSite {
		merged[k] = val
	}
	for k, val := range v.PreviousResponse {
		merged[k] = val
	}
	for k, val := range v.Step {
		merged[k] = val
	}
	return merged
}

type Gateway struct {
	prompts     *promptcfg.Store
	chatModel   model.BaseChatModel
	maxAttempts int
	backoffBase time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*Gateway)

func WithMaxAttempts(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

func WithBackoffBase(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.backoffBase = d
		}
	}
}

// WithSleep overrides the backoff sleeper. Tests use it to avoid real waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) { g.sleep = sleep }
}

func New(prompts *promptcfg.Store, chatModel model.BaseChatModel, opts ...Option) *Gateway {
	g := &Gateway{
		prompts:     prompts,
		chatModel:   chatModel,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Invoke runs one model call. The returned error is non-nil only for caller
// mistakes (unknown prompt type, missing variables, invalid parts); upstream
// and extraction failures are reported through Result.Status so the dialogue
// engine can apply its own retry policy.
func (g *Gateway) Invoke(
	ctx context.Context,
	promptType string,
	parts []types.Part,
	vars Variables,
	genCfg types.GenerationConfig,
) (*Result, error) {
	prompt, ok := g.prompts.Get(promptType)
	if !ok {
		return nil, &types.ValidationError{Field: "prompt_type", Reason: fmt.Sprintf("unknown prompt type %q", promptType)}
	}
	if len(parts) == 0 {
		return nil, &types.ValidationError{Field: "parts", Reason: "at least one part is required"}
	}

	promptText, err := prompt.Render(vars.Merge())
	if err != nil {
		return nil, err
	}

	messages, err := buildMessages(OrderParts(parts), promptText, prompt.SchemaJSON())
	if err != nil {
		return nil, err
	}

	result := &Result{
		ID:         uuid.NewString(),
		PromptType: promptType,
	}

	response, err := g.generateWithRetry(ctx, messages, genCfg)
	if err != nil {
		slog.Error("model call failed", "prompt_type", promptType, "error", err)
		result.Status = StatusUpstreamError
		result.Err = err
		return result, nil
	}
	result.Raw = response.Content

	parsed, err := ExtractJSON(response.Content)
	if err == nil {
		if verr := prompt.ValidateResult(anyView(parsed)); verr != nil {
			slog.Warn("model response failed schema validation",
				"prompt_type", promptType, "error", verr)
			err = fmt.Errorf("%w: %v", ErrExtraction, verr)
		}
	}
	if err != nil {
		result.Status = StatusExtractionFailed
		result.Err = err
		return result, nil
	}

	slog.Debug("model call succeeded", "prompt_type", promptType, "exchange_id", result.ID)
	result.Status = StatusOK
	result.Parsed = parsed
	return result, nil
}

// OrderParts applies the media-then-caption rule: binary parts first in their
// original relative order, then text parts in theirs, then anything else.
func OrderParts(parts []types.Part) []types.Part {
	var binary, text, other []types.Part
	for _, p := range parts {
		switch p.(type) {
		case types.BinaryPart:
			binary = append(binary, p)
		case types.TextPart:
			text = append(text, p)
		default:
			other = append(other, p)
		}
	}
	out := make([]types.Part, 0, len(parts))
	out = append(out, binary...)
	out = append(out, text...)
	out = append(out, other...)
	return out
}

// buildMessages mirrors the two-message request shape: the media and caption
// parts first, then the prompt with the expected response format.
func buildMessages(parts []types.Part, promptText, schemaJSON string) ([]*schema.Message, error) {
	content := make([]schema.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		switch part := p.(type) {
		case types.TextPart:
			content = append(content, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeText,
				Text: part.Text,
			})
		case types.BinaryPart:
			msgPart, err := binaryMessagePart(part)
			if err != nil {
				return nil, err
			}
			content = append(content, msgPart)
		default:
			return nil, &types.ValidationError{Field: "parts", Reason: fmt.Sprintf("unsupported part %T", p)}
		}
	}

	instruction := fmt.Sprintf("%s\nResponse format: %s", promptText, schemaJSON)
	return []*schema.Message{
		{Role: schema.User, MultiContent: content},
		schema.UserMessage(instruction),
	}, nil
}

func binaryMessagePart(part types.BinaryPart) (schema.ChatMessagePart, error) {
	dataURI := fmt.Sprintf("data:%s;base64,%s",
		part.MIMEType, base64.StdEncoding.EncodeToString(part.Data))

	switch {
	case strings.HasPrefix(part.MIMEType, "audio/"):
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeAudioURL,
			AudioURL: &schema.ChatMessageAudioURL{URL: dataURI, MIMEType: part.MIMEType},
		}, nil
	case strings.HasPrefix(part.MIMEType, "video/"):
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeVideoURL,
			VideoURL: &schema.ChatMessageVideoURL{URL: dataURI, MIMEType: part.MIMEType},
		}, nil
	case strings.HasPrefix(part.MIMEType, "image/"):
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: dataURI, MIMEType: part.MIMEType},
		}, nil
	default:
		return schema.ChatMessagePart{}, &types.ValidationError{
			Field:  "mime_type",
			Reason: fmt.Sprintf("unsupported media type %q", part.MIMEType),
		}
	}
}

func (g *Gateway) generateWithRetry(
	ctx context.Context,
	messages []*schema.Message,
	genCfg types.GenerationConfig,
) (*schema.Message, error) {
	opts := modelOptions(genCfg)

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		response, err := g.chatModel.Generate(ctx, messages, opts...)
		if err == nil {
			return response, nil
		}

		classified := classify(err)
		lastErr = classified
		if !IsTransient(classified) {
			return nil, classified
		}
		if attempt == g.maxAttempts {
			break
		}

		backoff := g.backoffBase << (attempt - 1)
		slog.Warn("transient model failure, backing off",
			"attempt", attempt, "backoff", backoff, "error", err)
		if err := g.sleep(ctx, backoff); err != nil {
			return nil, &Error{Kind: Transient, Err: err}
		}
	}
	return nil, lastErr
}

func modelOptions(cfg types.GenerationConfig) []model.Option {
	var opts []model.Option
	if cfg.ModelName != "" {
		opts = append(opts, model.WithModel(cfg.ModelName))
	}
	if cfg.Temperature > 0 {
		opts = append(opts, model.WithTemperature(cfg.Temperature))
	}
	if cfg.TopP > 0 {
		opts = append(opts, model.WithTopP(cfg.TopP))
	}
	if cfg.MaxOutputTokens > 0 {
		opts = append(opts, model.WithMaxTokens(cfg.MaxOutputTokens))
	}
	// TopK has no generic eino option; providers that honor it read it from
	// their own config.
	return opts
}

func classify(err error) error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: Transient, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: Transient, Err: err}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "429", "timeout", "503", "502", "overloaded", "connection reset"} {
		if strings.Contains(msg, marker) {
			return &Error{Kind: Transient, Err: err}
		}
	}
	return &Error{Kind: Permanent, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// anyView converts for schema validation, which expects plain decoded JSON.
func anyView(m map[string]any) any { return map[string]any(m) }
