// Package promptcfg loads named prompt definitions from a directory of JSON
// files. Each file pairs the prompt text with the JSON schema the model
// response must match. Loading validates everything up front so configuration
// mistakes surface at startup, not mid-conversation.
package promptcfg

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tbxark/onboardagent/types"
)

// ConfigError marks a malformed or missing prompt configuration. It is fatal
// at startup.
type ConfigError struct {
	Name string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("prompt config %q: %v", e.Name, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Prompt is one named, schema-bound template.
type Prompt struct {
	Name           string
	PromptText     string         `json:"prompt_text"`
	ResponseSchema map[string]any `json:"response_schema"`

	compiled  *jsonschema.Schema
	schemaRaw string
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Variables returns the placeholder names referenced by the prompt text,
// sorted and de-duplicated.
func (p *Prompt) Variables() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(p.PromptText, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	sort.Strings(out)
	return out
}

// Render substitutes {name} placeholders from vars. Every placeholder the
// template references must be present; a missing one is a hard error.
func (p *Prompt) Render(vars map[string]any) (string, error) {
	var missing []string
	rendered := placeholderRe.ReplaceAllStringFunc(p.PromptText, func(match string) string {
		name := match[1 : len(match)-1]
		val, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return fmt.Sprint(val)
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &types.ValidationError{
			Field:  "variables",
			Reason: fmt.Sprintf("missing template variables: %s", strings.Join(missing, ", ")),
		}
	}
	return rendered, nil
}

// SchemaJSON returns the response schema exactly as it appeared on disk.
func (p *Prompt) SchemaJSON() string { return p.schemaRaw }

// ValidateResult checks a parsed model response against the response schema.
func (p *Prompt) ValidateResult(value any) error {
	return p.compiled.Validate(value)
}

// Store holds all prompts loaded at startup. It is read-only afterwards and
// safe for concurrent use.
type Store struct {
	prompts map[string]*Prompt
}

// Load reads every *.json file in dir. Any unreadable, malformed, or
// structurally invalid file aborts the whole load.
func Load(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigError{Name: dir, Err: err}
	}

	prompts := map[string]*Prompt{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		prompt, err := loadFile(name, filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		prompts[name] = prompt
	}
	if len(prompts) == 0 {
		return nil, &ConfigError{Name: dir, Err: fmt.Errorf("no prompt configs found")}
	}
	return &Store{prompts: prompts}, nil
}

func loadFile(name, path string) (*Prompt, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Name: name, Err: err}
	}

	var prompt Prompt
	if err := sonic.Unmarshal(raw, &prompt); err != nil {
		return nil, &ConfigError{Name: name, Err: fmt.Errorf("decode: %w", err)}
	}
	prompt.Name = name

	if prompt.PromptText == "" {
		return nil, &ConfigError{Name: name, Err: fmt.Errorf("missing prompt_text")}
	}
	if prompt.ResponseSchema == nil {
		return nil, &ConfigError{Name: name, Err: fmt.Errorf("missing response_schema")}
	}
	if _, ok := prompt.ResponseSchema["type"]; !ok {
		return nil, &ConfigError{Name: name, Err: fmt.Errorf("response_schema missing type")}
	}
	if _, ok := prompt.ResponseSchema["properties"]; !ok {
		return nil, &ConfigError{Name: name, Err: fmt.Errorf("response_schema missing properties")}
	}

	schemaRaw, err := sonic.Marshal(prompt.ResponseSchema)
	if err != nil {
		return nil, &ConfigError{Name: name, Err: fmt.Errorf("encode response_schema: %w", err)}
	}
	prompt.schemaRaw = string(schemaRaw)

	compiled, err := compileSchema(prompt.ResponseSchema)
	if err != nil {
		return nil, &ConfigError{Name: name, Err: fmt.Errorf("compile response_schema: %w", err)}
	}
	prompt.compiled = compiled

	return &prompt, nil
}

func compileSchema(doc map[string]any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile("schema.json")
}

// Get returns the prompt registered under name.
func (s *Store) Get(name string) (*Prompt, bool) {
	p, ok := s.prompts[name]
	return p, ok
}

// Names lists all loaded prompt types, sorted.
func (s *Store) Names() []string {
	out := make([]string, 0, len(s.prompts))
	for name := range s.prompts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
