package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"voiceshield/api/internal/app"
	"voiceshield/api/internal/config"
	"voiceshield/api/internal/handle"
	"voiceshield/api/internal/httpserver"
	"voiceshield/api/internal/observe"
	"voiceshield/api/internal/tester"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, "voiceshield", version)
	if err != nil {
		log.Fatalf("metrics provider: %v", err)
	}
	defer observe.Flush(shutdown, 5*time.Second)
	m := observe.DefaultMetrics()

	stack := app.Build(cfg, m)
	if cfg.InternalAPIKey == "" {
		log.Printf("internal_api_key is empty: /detect-voice and /v1/validate-key will reject every call")
	}
	if cfg.Tester.Enabled {
		log.Printf("endpoint tester enabled")
	}

	h := handle.New(stack.Detector, stack.Sessions, tester.New(cfg.TesterTimeout(), m), handle.Options{
		APIKey:         cfg.InternalAPIKey,
		DefaultTimeout: cfg.RequestTimeout(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		TesterEnabled:  cfg.Tester.Enabled,
		OriginPatterns: originPatterns(),
	})
	mux := http.NewServeMux()
	h.Routes(mux, m, observe.Handler())

	addr := ":" + cfg.Port
	log.Printf("voiceshield %s starting on %s", version, addr)
	if err := httpserver.Serve(ctx, addr, mux, stack.SweepSessions); err != nil {
		log.Printf("serve: %v", err)
	}
}

// originPatterns reads CAPTURE_ORIGINS, a comma separated list of hosts
// allowed to open the capture websocket from a browser.
func originPatterns() []string {
	var out []string
	for _, p := range strings.Split(os.Getenv("CAPTURE_ORIGINS"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
