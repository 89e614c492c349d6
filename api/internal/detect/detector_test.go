package detect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"voiceshield/api/internal/detect/prompt"
	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/util"
)

type fakeEngine struct {
	mu      sync.Mutex
	replies []reply
	calls   []prompt.Call
}

type reply struct {
	text string
	err  error
}

func (f *fakeEngine) Name() string     { return "fake" }
func (f *fakeEngine) GetModel() string { return "fake-1" }

func (f *fakeEngine) Generate(_ context.Context, call prompt.Call) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if len(f.replies) == 0 {
		return "", errors.New("no reply queued")
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r.text, r.err
}

func noSleep(context.Context, time.Duration) error { return nil }

func newDetector(eng Engine) *Detector {
	return &Detector{
		Engines: &Engines{Gemini: eng, Default: "gemini"},
		Retry:   Retry{MaxAttempts: 3, BaseDelay: time.Millisecond, sleep: noSleep},
	}
}

func validRequest() types.DetectionRequest {
	return types.DetectionRequest{
		Language:    "en-US",
		AudioFormat: types.FormatMP3,
		AudioBase64: util.EncodeBase64([]byte("ID3\x04audio-bytes")),
	}
}

const okVerdict = `{"prediction":"AI_GENERATED","confidence":0.91,"reasoning":"flat prosody","detected_language":"en-US"}`

func TestDetectSuccess(t *testing.T) {
	eng := &fakeEngine{replies: []reply{{text: okVerdict}}}
	resp, err := newDetector(eng).Detect(context.Background(), "", validRequest())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !resp.OK() || resp.Prediction != types.LabelAIGenerated || resp.Confidence != 0.91 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(eng.calls) != 1 || eng.calls[0].Kind != prompt.KindDetect || eng.calls[0].MIME != "audio/mpeg" {
		t.Fatalf("unexpected calls %+v", eng.calls)
	}
}

func TestDetectRetriesRateLimit(t *testing.T) {
	eng := &fakeEngine{replies: []reply{
		{err: &googleapi.Error{Code: 429}},
		{err: &googleapi.Error{Code: 503}},
		{text: okVerdict},
	}}
	resp, err := newDetector(eng).Detect(context.Background(), "gemini", validRequest())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !resp.OK() || len(eng.calls) != 3 {
		t.Fatalf("calls=%d resp=%+v", len(eng.calls), resp)
	}
}

func TestDetectRetryExhausted(t *testing.T) {
	eng := &fakeEngine{replies: []reply{{err: &googleapi.Error{Code: 429}}}}
	resp, err := newDetector(eng).Detect(context.Background(), "gemini", validRequest())
	var de *Error
	if !errors.As(err, &de) || de.Kind != KindRateLimited {
		t.Fatalf("expected rate_limited, got %v", err)
	}
	if len(eng.calls) != 3 {
		t.Fatalf("attempts = %d, want 3", len(eng.calls))
	}
	if resp.Status != types.StatusError || resp.Prediction != types.LabelHuman || resp.Confidence != 0 || resp.Message == "" {
		t.Fatalf("unexpected placeholder %+v", resp)
	}
}

func TestDetectNoRetryOnUnauthorized(t *testing.T) {
	eng := &fakeEngine{replies: []reply{{err: &googleapi.Error{Code: 401}}}}
	_, err := newDetector(eng).Detect(context.Background(), "gemini", validRequest())
	var de *Error
	if !errors.As(err, &de) || de.Kind != KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(eng.calls) != 1 {
		t.Fatalf("attempts = %d, want 1", len(eng.calls))
	}
}

func TestDetectParseFailure(t *testing.T) {
	eng := &fakeEngine{replies: []reply{{text: `{"prediction":"HUMAN","reasoning":"x","detected_language":"en"}`}}}
	resp, err := newDetector(eng).Detect(context.Background(), "gemini", validRequest())
	var de *Error
	if !errors.As(err, &de) || de.Kind != KindParse {
		t.Fatalf("expected parse, got %v", err)
	}
	if resp.OK() || resp.ErrorKind != "parse" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(eng.calls) != 1 {
		t.Fatal("parse failures must not be retried")
	}
}

func TestDetectValidationBeforeCall(t *testing.T) {
	eng := &fakeEngine{replies: []reply{{text: okVerdict}}}
	resp, err := newDetector(eng).Detect(context.Background(), "gemini", types.DetectionRequest{Language: "en-US"})
	var de *Error
	if !errors.As(err, &de) || de.Kind != KindValidation {
		t.Fatalf("expected validation, got %v", err)
	}
	if len(eng.calls) != 0 {
		t.Fatal("engine called for an invalid request")
	}
	if resp.Status != types.StatusError {
		t.Fatalf("status = %s", resp.Status)
	}
}

func TestDetectUnknownEngine(t *testing.T) {
	_, err := newDetector(&fakeEngine{}).Detect(context.Background(), "claude", validRequest())
	var de *Error
	if !errors.As(err, &de) || de.Kind != KindValidation {
		t.Fatalf("expected validation, got %v", err)
	}
	_, err = newDetector(&fakeEngine{}).Detect(context.Background(), "gpt", validRequest())
	if !errors.As(err, &de) || de.Kind != KindValidation {
		t.Fatalf("unconfigured engine: got %v", err)
	}
}

func TestCalibrate(t *testing.T) {
	eng := &fakeEngine{replies: []reply{{text: `{"lesson":"missed the spliced breath"}`}}}
	lesson, err := newDetector(eng).Calibrate(context.Background(), "gemini", types.CalibrationRequest{
		AudioBase64:        validRequest().AudioBase64,
		AudioFormat:        types.FormatMP3,
		OriginalPrediction: types.LabelHuman,
		OriginalReasoning:  "natural",
		ActualLabel:        types.LabelAIGenerated,
	})
	if err != nil {
		t.Fatal(err)
	}
	if lesson != "missed the spliced breath" {
		t.Fatalf("lesson = %q", lesson)
	}
	if eng.calls[0].Kind != prompt.KindCalibrate {
		t.Fatalf("kind = %s", eng.calls[0].Kind)
	}
}

func TestRetryStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry{MaxAttempts: 5, BaseDelay: time.Hour}
	calls := 0
	err := r.Do(ctx, "test", func(context.Context) error {
		calls++
		return &googleapi.Error{Code: 429}
	})
	var de *Error
	if !errors.As(err, &de) || de.Kind != KindNetwork {
		t.Fatalf("expected cancellation as network kind, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestRetryBackoffDoubles(t *testing.T) {
	var delays []time.Duration
	r := Retry{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, sleep: func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}}
	_ = r.Do(context.Background(), "test", func(context.Context) error { return &googleapi.Error{Code: 503} })
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v", delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays = %v, want %v", delays, want)
		}
	}
}

func TestEnginesNames(t *testing.T) {
	e := &Engines{Gemini: &fakeEngine{}, OpenAI: &fakeEngine{}, Default: "gpt"}
	names := e.Names()
	if len(names) != 2 || names[0] != "gpt" {
		t.Fatalf("names = %v", names)
	}
}
