// Package profile assembles the collected onboarding fields into a profile
// document and asks the model for a closing summary.
package profile

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/tbxark/onboardagent/agent"
	"github.com/tbxark/onboardagent/gateway"
	"github.com/tbxark/onboardagent/types"
)

const promptProfileSynthesis = "profile_synthesis"

// Compose folds each collected step result into one document via RFC 7386
// merge patches, applied in step order so later steps override earlier ones.
func Compose(collected map[string]any, order []string) (map[string]any, error) {
	doc := []byte("{}")
	for _, step := range order {
		value, ok := collected[step]
		if !ok {
			continue
		}
		patch, err := sonic.Marshal(map[string]any{step: value})
		if err != nil {
			return nil, fmt.Errorf("marshal %s patch: %w", step, err)
		}
		doc, err = jsonpatch.MergePatch(doc, patch)
		if err != nil {
			return nil, fmt.Errorf("merge %s into profile: %w", step, err)
		}
	}

	var out map[string]any
	if err := sonic.Unmarshal(doc, &out); err != nil {
		return nil, fmt.Errorf("decode profile document: %w", err)
	}
	return out, nil
}

// Builder implements agent.Synthesizer on top of the model gateway.
type Builder struct {
	gateway agent.Invoker
	genCfg  types.GenerationConfig
}

func NewBuilder(gw agent.Invoker) *Builder {
	return &Builder{
		gateway: gw,
		genCfg:  types.OnboardingGenerationConfig(),
	}
}

// Synthesize builds the profile document and asks the model for the closing
// summary. Errors propagate so the engine can fall back to static copy;
// ProfileReady is never blocked on this call.
func (b *Builder) Synthesize(ctx context.Context, userID string, collected map[string]any) (string, error) {
	doc, err := Compose(collected, []string{agent.FieldName, agent.FieldTruthLie})
	if err != nil {
		return "", err
	}

	docJSON, err := sonic.MarshalString(doc)
	if err != nil {
		return "", fmt.Errorf("encode profile document: %w", err)
	}

	name, _ := collected[agent.FieldName].(string)
	if name == "" {
		name = "the speaker"
	}

	part, err := types.NewTextPart("Profile data: " + docJSON)
	if err != nil {
		return "", err
	}

	result, err := b.gateway.Invoke(ctx, promptProfileSynthesis,
		[]types.Part{part},
		gateway.Variables{CallSite: map[string]any{"speaker_name": name}},
		b.genCfg,
	)
	if err != nil {
		return "", err
	}
	if result.Status != gateway.StatusOK {
		if result.Err != nil {
			return "", result.Err
		}
		return "", fmt.Errorf("profile synthesis ended with status %s", result.Status)
	}

	summary, _ := result.Parsed["summary"].(string)
	if summary == "" {
		return "", fmt.Errorf("profile synthesis returned no summary")
	}
	return summary, nil
}
