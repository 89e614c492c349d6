package gemini

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"voiceshield/api/internal/detect"
	"voiceshield/api/internal/detect/prompt"
)

type fakeModel struct {
	parts []genai.Part
	resp  *genai.GenerateContentResponse
	err   error
}

func (f *fakeModel) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

type nopCloser struct{ closed *bool }

func (n nopCloser) Close() error { *n.closed = true; return nil }

func textResponse(s ...string) *genai.GenerateContentResponse {
	var parts []genai.Part
	for _, p := range s {
		parts = append(parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func newFake(fm *fakeModel, closed *bool) *Engine {
	e := New("key", "gemini-2.5-flash")
	e.open = func(context.Context, prompt.Call) (generator, io.Closer, error) {
		return fm, nopCloser{closed}, nil
	}
	return e
}

func TestGenerateSendsAudioAndText(t *testing.T) {
	fm := &fakeModel{resp: textResponse(`{"prediction":`, `"HUMAN"}`)}
	var closed bool
	call := prompt.Call{Kind: prompt.KindDetect, Audio: []byte{1, 2, 3}, MIME: "audio/wav", User: "Language: te-IN"}

	got, err := newFake(fm, &closed).Generate(context.Background(), call)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != `{"prediction":"HUMAN"}` {
		t.Fatalf("text = %q", got)
	}
	if !closed {
		t.Fatal("client not closed")
	}
	if len(fm.parts) != 2 {
		t.Fatalf("parts = %d", len(fm.parts))
	}
	blob, ok := fm.parts[0].(genai.Blob)
	if !ok || blob.MIMEType != "audio/wav" || !bytes.Equal(blob.Data, []byte{1, 2, 3}) {
		t.Fatalf("unexpected audio part %#v", fm.parts[0])
	}
	if txt, ok := fm.parts[1].(genai.Text); !ok || string(txt) != "Language: te-IN" {
		t.Fatalf("unexpected text part %#v", fm.parts[1])
	}
}

func TestGenerateEmpty(t *testing.T) {
	var closed bool
	_, err := newFake(&fakeModel{resp: &genai.GenerateContentResponse{}}, &closed).Generate(context.Background(), prompt.Call{Kind: prompt.KindDetect})
	if !errors.Is(err, prompt.ErrEmptyResponse) {
		t.Fatalf("err = %v", err)
	}
	if c := detect.Classify(err); c.Kind != detect.KindParse {
		t.Fatalf("classified as %s", c.Kind)
	}
}

func TestGeneratePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	var closed bool
	_, err := newFake(&fakeModel{err: boom}, &closed).Generate(context.Background(), prompt.Call{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerateNeedsKey(t *testing.T) {
	if _, err := New(" ", "m").Generate(context.Background(), prompt.Call{}); err == nil {
		t.Fatal("expected missing key error")
	}
}

func TestConfigureSchema(t *testing.T) {
	m := &genai.GenerativeModel{}
	call := prompt.Call{System: "be strict", Schema: prompt.DetectSchema}
	if err := configure(m, call); err != nil {
		t.Fatal(err)
	}
	if m.ResponseMIMEType != "application/json" || m.Temperature == nil || *m.Temperature != 0 {
		t.Fatalf("unexpected generation config %+v", m.GenerationConfig)
	}
	s := m.ResponseSchema
	if s == nil || s.Type != genai.TypeObject || len(s.Required) != 4 {
		t.Fatalf("unexpected schema %+v", s)
	}
	pred := s.Properties["prediction"]
	if pred == nil || pred.Type != genai.TypeString || len(pred.Enum) != 2 {
		t.Fatalf("prediction schema = %+v", pred)
	}
	if s.Properties["confidence"].Type != genai.TypeNumber {
		t.Fatal("confidence must be a number")
	}
	if m.SystemInstruction == nil || len(m.SystemInstruction.Parts) != 1 {
		t.Fatal("system instruction not set")
	}
}
