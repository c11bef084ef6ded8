package command

import (
	"context"
	"strings"
)

// KeywordParser is the default, model-free classifier. Confirmation gates are
// deliberately strict: anything that is not clearly yes/no falls through to
// None so the engine can re-prompt.
type KeywordParser struct {
	AffirmKeywords []string
	DenyKeywords   []string
	StartKeywords  []string
	StopKeywords   []string
	ResetKeywords  []string
}

func NewKeywordParser() *KeywordParser {
	return &KeywordParser{
		AffirmKeywords: []string{"yes", "y", "yeah", "yep", "correct", "right"},
		DenyKeywords:   []string{"no", "n", "nope", "wrong", "incorrect"},
		StartKeywords:  []string{"/start", "start"},
		StopKeywords:   []string{"/stop", "stop", "quit", "exit"},
		ResetKeywords:  []string{"/reset", "reset", "/clear", "clear"},
	}
}

func (p *KeywordParser) Parse(ctx context.Context, text string) (Command, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, ".!")

	switch {
	case matches(normalized, p.StartKeywords):
		return Start, nil
	case matches(normalized, p.StopKeywords):
		return Stop, nil
	case matches(normalized, p.ResetKeywords):
		return Reset, nil
	case matches(normalized, p.AffirmKeywords):
		return Affirm, nil
	case matches(normalized, p.DenyKeywords):
		return Deny, nil
	}
	return None, nil
}

func matches(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if text == keyword {
			return true
		}
	}
	return false
}

// FailbackParser tries parsers in order until one succeeds.
type FailbackParser struct {
	parsers []Parser
}

func NewFailbackParser(parsers ...Parser) *FailbackParser {
	return &FailbackParser{parsers: parsers}
}

func (p *FailbackParser) Parse(ctx context.Context, text string) (Command, error) {
	var lastErr error
	for _, parser := range p.parsers {
		cmd, err := parser.Parse(ctx, text)
		if err == nil {
			return cmd, nil
		}
		lastErr = err
	}
	return None, lastErr
}
