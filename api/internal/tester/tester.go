// Package tester checks that an externally deployed detection endpoint
// answers in the expected shape.
package tester

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/observe"
)

// Request names the endpoint under test and the payload to send it.
type Request struct {
	URL         string `json:"url"`
	APIKey      string `json:"api_key"`
	Language    string `json:"language"`
	AudioFormat string `json:"audio_format"`
	AudioBase64 string `json:"audio_base64"`
}

func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(r.APIKey) == "" {
		missing = append(missing, "api_key")
	}
	if strings.TrimSpace(r.AudioBase64) == "" {
		missing = append(missing, "audio_base64")
	}
	if len(missing) > 0 {
		return &types.FieldError{Fields: missing, Reason: "Please fill in all required fields marked with *"}
	}
	return nil
}

const (
	Passed  = "PASSED"
	Missing = "MISSING"
)

// AuditFields are checked for presence only. A JSON null counts as present.
var AuditFields = []string{"prediction", "confidence"}

type FieldAudit struct {
	Field  string `json:"field"`
	Result string `json:"result"`
}

type Report struct {
	StatusCode int             `json:"status_code"`
	StatusText string          `json:"status_text"`
	Body       json.RawMessage `json:"body"`
	LatencyMS  int64           `json:"latency_ms"`
	Audit      []FieldAudit    `json:"audit"`
}

// Passed reports whether every audited field was present.
func (r Report) Passed() bool {
	for _, a := range r.Audit {
		if a.Result != Passed {
			return false
		}
	}
	return len(r.Audit) > 0
}

// DiagnosticError is the single user-facing string for a failed check.
type DiagnosticError struct {
	Msg string
	Err error
}

func (e *DiagnosticError) Error() string { return e.Msg }
func (e *DiagnosticError) Unwrap() error { return e.Err }

type Checker struct {
	Client  *http.Client
	Metrics *observe.Metrics
}

func New(timeout time.Duration, m *observe.Metrics) *Checker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Checker{Client: &http.Client{Timeout: timeout}, Metrics: m}
}

// Run issues exactly one POST; it never retries.
func (c *Checker) Run(ctx context.Context, in Request) (Report, error) {
	if err := in.Validate(); err != nil {
		return Report{}, err
	}

	payload, err := json.Marshal(map[string]string{
		"language":     in.Language,
		"audio_format": in.AudioFormat,
		"audio_base64": in.AudioBase64,
	})
	if err != nil {
		return Report{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSpace(in.URL), bytes.NewReader(payload))
	if err != nil {
		return Report{}, &DiagnosticError{Msg: "Invalid endpoint URL: " + err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", in.APIKey)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		c.Metrics.RecordTester(ctx, time.Since(start).Seconds(), "network_error")
		return Report{}, &DiagnosticError{
			Msg: fmt.Sprintf("Network failure: %v. Ensure the endpoint is reachable via HTTPS.", err),
			Err: err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Metrics.RecordTester(ctx, time.Since(start).Seconds(), "network_error")
		return Report{}, &DiagnosticError{Msg: fmt.Sprintf("Network failure: reading body: %v", err), Err: err}
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		c.Metrics.RecordTester(ctx, time.Since(start).Seconds(), "malformed")
		return Report{}, &DiagnosticError{
			Msg: fmt.Sprintf("Malformed response: HTTP %d with a non-JSON body.", resp.StatusCode),
			Err: err,
		}
	}
	elapsed := time.Since(start)

	rep := Report{
		StatusCode: resp.StatusCode,
		StatusText: statusText(resp),
		Body:       json.RawMessage(raw),
		LatencyMS:  int64(math.Round(float64(elapsed) / float64(time.Millisecond))),
		Audit:      Audit(parsed),
	}
	c.Metrics.RecordTester(ctx, elapsed.Seconds(), fmt.Sprint(resp.StatusCode))
	log.Printf("tester url=%s status=%d latency_ms=%d passed=%v", in.URL, rep.StatusCode, rep.LatencyMS, rep.Passed())
	return rep, nil
}

// Audit checks the decoded body for each of AuditFields.
func Audit(body any) []FieldAudit {
	obj, _ := body.(map[string]any)
	out := make([]FieldAudit, 0, len(AuditFields))
	for _, f := range AuditFields {
		res := Missing
		if _, ok := obj[f]; ok {
			res = Passed
		}
		out = append(out, FieldAudit{Field: f, Result: res})
	}
	return out
}

// statusText strips the numeric code from "200 OK".
func statusText(resp *http.Response) string {
	if s := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))); s != "" {
		return s
	}
	return http.StatusText(resp.StatusCode)
}
