package detect

import (
	"context"
	"fmt"
	"strings"

	"voiceshield/api/internal/detect/prompt"
)

// Engine is one model provider. Generate returns the model's raw text; the
// caller validates it against the call's schema.
type Engine interface {
	Name() string
	GetModel() string
	Generate(ctx context.Context, call prompt.Call) (string, error)
}

// Engines is the registry of configured providers. A nil field is a provider
// without credentials.
type Engines struct {
	Gemini  Engine
	OpenAI  Engine
	Default string
}

func (e *Engines) GetEngine(llmName string) (Engine, error) {
	name := strings.ToLower(strings.TrimSpace(llmName))
	if name == "" {
		name = e.Default
	}
	var eng Engine
	switch name {
	case "gemini", "google":
		eng = e.Gemini
	case "gpt", "openai":
		eng = e.OpenAI
	default:
		return nil, ValidationError(fmt.Errorf("unknown llm_name %q; use 'gemini' or 'gpt'", llmName))
	}
	if eng == nil {
		return nil, ValidationError(fmt.Errorf("llm %q is not configured", name))
	}
	return eng, nil
}

// Names lists configured engines, default first.
func (e *Engines) Names() []string {
	var out []string
	if e.Gemini != nil {
		out = append(out, "gemini")
	}
	if e.OpenAI != nil {
		out = append(out, "gpt")
	}
	for i, n := range out {
		if n == e.Default && i > 0 {
			out[0], out[i] = out[i], out[0]
		}
	}
	return out
}
