package detect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"

	"google.golang.org/api/googleapi"

	"voiceshield/api/internal/detect/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"googleapi 401", &googleapi.Error{Code: http.StatusUnauthorized}, KindUnauthorized},
		{"googleapi 429", &googleapi.Error{Code: http.StatusTooManyRequests}, KindRateLimited},
		{"googleapi 503", &googleapi.Error{Code: http.StatusServiceUnavailable}, KindUnavailable},
		{"googleapi key text", &googleapi.Error{Code: http.StatusBadRequest, Message: "API key not valid. Please pass a valid API key."}, KindUnauthorized},
		{"resource exhausted text", errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED"), KindRateLimited},
		{"quota text", errors.New("Quota exceeded for metric"), KindRateLimited},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindNetwork},
		{"dns", &net.DNSError{Err: "no such host", Name: "example.invalid"}, KindNetwork},
		{"url", &url.Error{Op: "Post", URL: "https://x", Err: errors.New("connection refused")}, KindNetwork},
		{"field", &types.FieldError{Fields: []string{"language"}, Reason: "missing required fields"}, KindValidation},
		{"other", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.want {
				t.Fatalf("Classify(%v) = %s, want %s", tt.err, got.Kind, tt.want)
			}
			if got.Msg == "" {
				t.Fatal("empty user message")
			}
			if !errors.Is(got, tt.err) && got.Kind != KindValidation {
				t.Fatal("classified error does not wrap the cause")
			}
		})
	}
}

func TestClassifyPassThrough(t *testing.T) {
	orig := ParseError(errors.New("bad"))
	if got := Classify(fmt.Errorf("wrapped: %w", orig)); got != orig {
		t.Fatalf("Classify re-wrapped an *Error: %v", got)
	}
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) must be nil")
	}
}

func TestRetryable(t *testing.T) {
	for k, want := range map[Kind]bool{
		KindRateLimited:  true,
		KindUnavailable:  true,
		KindUnauthorized: false,
		KindParse:        false,
		KindValidation:   false,
		KindNetwork:      false,
	} {
		if got := (&Error{Kind: k}).Retryable(); got != want {
			t.Errorf("%s retryable = %v", k, got)
		}
	}
}
