package detect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	oai "github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"

	"voiceshield/api/internal/detect/prompt"
	"voiceshield/api/internal/detect/types"
)

// Kind is the failure taxonomy surfaced to callers.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindRateLimited  Kind = "rate_limited"
	KindUnavailable  Kind = "unavailable"
	KindNetwork      Kind = "network"
	KindParse        Kind = "parse"
	KindValidation   Kind = "validation"
	KindUnknown      Kind = "unknown"
)

// Error is a classified failure. Msg is safe to show to users.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindUnavailable
}

// HTTPStatus maps the kind onto the status the HTTP layer answers with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable, KindNetwork:
		return http.StatusServiceUnavailable
	case KindParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

const (
	msgUnauthorized = "The model API key is invalid or expired. Check the configured credential."
	msgRateLimited  = "The model quota is exhausted. Wait a minute and retry, or check billing."
	msgUnavailable  = "The model service is temporarily unavailable. Retry shortly."
	msgParse        = "Analysis failed: the model returned an unreadable answer."
	msgUnknown      = "Failed to analyze audio sample."
)

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// ParseError marks model output that did not satisfy the schema.
func ParseError(err error) *Error { return newError(KindParse, msgParse, err) }

// ValidationError wraps a rejected request; the message names the fields.
func ValidationError(err error) *Error {
	return newError(KindValidation, err.Error(), err)
}

// Classify maps any error from an engine or builder onto the taxonomy.
// An *Error passes through untouched.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	var fe *types.FieldError
	if errors.As(err, &fe) {
		return ValidationError(fe)
	}
	if errors.Is(err, prompt.ErrEmptyResponse) {
		return ParseError(err)
	}

	if k, ok := classifyStatus(err); ok {
		return newError(k, messageFor(k, err), err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindNetwork, "Network failure: request timed out.", err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(KindNetwork, "Network failure: request was cancelled.", err)
	}
	var dnsErr *net.DNSError
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &dnsErr) || errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return newError(KindNetwork, "Network failure: "+err.Error(), err)
	}

	s := err.Error()
	switch {
	case strings.Contains(s, "API key not valid"), strings.Contains(s, "API_KEY_INVALID"),
		strings.Contains(s, "401"), strings.Contains(s, "PERMISSION_DENIED"):
		return newError(KindUnauthorized, msgUnauthorized, err)
	case strings.Contains(s, "RESOURCE_EXHAUSTED"), strings.Contains(s, "429"),
		strings.Contains(strings.ToLower(s), "quota"):
		return newError(KindRateLimited, msgRateLimited, err)
	}
	return newError(KindUnknown, msgUnknown, err)
}

// classifyStatus reads HTTP or gRPC codes from the Google and OpenAI SDK errors.
func classifyStatus(err error) (Kind, bool) {
	if ae, ok := apierror.FromError(err); ok {
		if st := ae.GRPCStatus(); st != nil {
			switch st.Code() {
			case codes.Unauthenticated, codes.PermissionDenied:
				return KindUnauthorized, true
			case codes.ResourceExhausted:
				return KindRateLimited, true
			case codes.Unavailable:
				return KindUnavailable, true
			case codes.InvalidArgument:
				if strings.Contains(ae.Error(), "API key") {
					return KindUnauthorized, true
				}
			}
		}
		if k, ok := kindForHTTP(ae.HTTPCode()); ok {
			return k, true
		}
		if ae.Reason() == "API_KEY_INVALID" {
			return KindUnauthorized, true
		}
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		if k, ok := kindForHTTP(ge.Code); ok {
			return k, true
		}
		if strings.Contains(ge.Message, "API key not valid") {
			return KindUnauthorized, true
		}
	}
	var oe *oai.Error
	if errors.As(err, &oe) {
		return kindForHTTP(oe.StatusCode)
	}
	return "", false
}

func kindForHTTP(code int) (Kind, bool) {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindUnauthorized, true
	case code == http.StatusTooManyRequests:
		return KindRateLimited, true
	case code == http.StatusServiceUnavailable, code == http.StatusBadGateway,
		code == http.StatusGatewayTimeout, code == http.StatusInternalServerError:
		return KindUnavailable, true
	}
	return "", false
}

func messageFor(k Kind, err error) string {
	switch k {
	case KindUnauthorized:
		return msgUnauthorized
	case KindRateLimited:
		return msgRateLimited
	case KindUnavailable:
		return msgUnavailable
	case KindNetwork:
		return "Network failure: " + err.Error()
	}
	return msgUnknown
}
