package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"voiceshield/api/internal/detect/prompt"
	"voiceshield/api/internal/util"
)

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Engine struct {
	APIKey string
	Model  string

	// open is swapped in tests.
	open func(ctx context.Context, call prompt.Call) (generator, io.Closer, error)
}

func New(apiKey, model string) *Engine {
	e := &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
	e.open = e.openClient
	return e
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// Generate sends the audio inline with the instruction and returns the model text.
func (e *Engine) Generate(ctx context.Context, call prompt.Call) (string, error) {
	if e.APIKey == "" {
		return "", errors.New("GEMINI_API_KEY is empty")
	}
	m, closer, err := e.open(ctx, call)
	if err != nil {
		return "", err
	}
	defer closer.Close()

	parts := []genai.Part{
		genai.Blob{MIMEType: call.MIME, Data: call.Audio},
		genai.Text(call.User),
	}
	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	txt := firstText(resp)
	if txt == "" {
		return "", fmt.Errorf("gemini %s: %w", call.Kind, prompt.ErrEmptyResponse)
	}
	return strings.TrimSpace(txt), nil
}

func (e *Engine) openClient(ctx context.Context, call prompt.Call) (generator, io.Closer, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return nil, nil, err
	}
	m := cl.GenerativeModel(e.Model)
	if m == nil {
		cl.Close()
		return nil, nil, fmt.Errorf("gemini: model is nil")
	}
	if err := configure(m, call); err != nil {
		cl.Close()
		return nil, nil, err
	}
	return m, cl, nil
}

// configure sets strict JSON output with the call's schema and system text.
func configure(m *genai.GenerativeModel, call prompt.Call) error {
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	if call.Schema != "" {
		raw, err := util.ParseSchema(call.Schema)
		if err != nil {
			return err
		}
		m.ResponseSchema = toSchema(raw)
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(call.System)},
	}
	return nil
}

// toSchema converts a JSON-schema map into the SDK's schema subset.
func toSchema(node map[string]any) *genai.Schema {
	s := &genai.Schema{}
	switch node["type"] {
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	default:
		s.Type = genai.TypeString
	}
	if d, ok := node["description"].(string); ok {
		s.Description = d
	}
	if enum, ok := node["enum"].([]any); ok {
		for _, v := range enum {
			if str, ok := v.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	if props, ok := node["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			if pm, ok := v.(map[string]any); ok {
				s.Properties[k] = toSchema(pm)
			}
		}
	}
	if req, ok := node["required"].([]any); ok {
		for _, v := range req {
			if str, ok := v.(string); ok {
				s.Required = append(s.Required, str)
			}
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	return s
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

func ptrFloat32(f float32) *float32 { return &f }
