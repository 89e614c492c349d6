// Package app assembles the detection stack shared by the HTTP service and
// the chat bot.
package app

import (
	"context"
	"log"
	"strings"

	"voiceshield/api/internal/config"
	"voiceshield/api/internal/detect"
	"voiceshield/api/internal/detect/gemini"
	"voiceshield/api/internal/detect/gpt"
	"voiceshield/api/internal/detect/prompt"
	"voiceshield/api/internal/observe"
	"voiceshield/api/internal/session"
)

type Stack struct {
	Engines  *detect.Engines
	Detector *detect.Detector
	Sessions *session.Store
}

// Build wires engines for whichever provider keys are set.
func Build(cfg *config.Config, m *observe.Metrics) *Stack {
	engines := &detect.Engines{Default: canonicalLLM(cfg.DefaultLLM)}
	if cfg.GeminiAPIKey != "" {
		engines.Gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	if cfg.OpenAIAPIKey != "" {
		engines.OpenAI = gpt.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	}
	log.Printf("engines configured=%v default=%s", engines.Names(), engines.Default)

	det := &detect.Detector{
		Engines: engines,
		Builder: prompt.Builder{Dir: cfg.PromptDir},
		Retry:   detect.Retry{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.RetryBaseDelay()},
		Metrics: m,
	}
	sessions := session.NewStore(det, session.Options{
		MaxCorrections: cfg.MaxCorrections,
		TTL:            cfg.SessionTTL(),
		DefaultLLM:     engines.Default,
		Metrics:        m,
	})
	return &Stack{Engines: engines, Detector: det, Sessions: sessions}
}

// SweepSessions adapts the store's sweeper to the server worker signature.
func (s *Stack) SweepSessions(ctx context.Context) error {
	s.Sessions.Run(ctx)
	return nil
}

func canonicalLLM(name string) string {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "google":
		return "gemini"
	case "openai":
		return "gpt"
	default:
		return n
	}
}
