package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"voiceshield/api/internal/app"
	"voiceshield/api/internal/config"
	"voiceshield/api/internal/httpserver"
	"voiceshield/api/internal/observe"
	"voiceshield/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		log.Fatal("telegram_bot_token is empty: set TELEGRAM_BOT_TOKEN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, "voiceshield-bot", "dev")
	if err != nil {
		log.Fatalf("metrics provider: %v", err)
	}
	defer observe.Flush(shutdown, 5*time.Second)
	stack := app.Build(cfg, observe.DefaultMetrics())

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal(err)
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:            bot,
		Sessions:       stack.Sessions,
		LLMs:           stack.Engines.Names(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		Timeout:        cfg.RequestTimeout(),
	}
	handle := func(upd tgbotapi.Update) { go r.HandleUpdate(ctx, upd) }

	mux := httpserver.Mux("ok")
	mux.Handle("/metrics", observe.Handler())
	addr := "0.0.0.0:" + cfg.Port

	workers := []func(context.Context) error{stack.SweepSessions}
	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		path, err := registerWebhook(bot, webhookURL)
		if err != nil {
			log.Fatal(err)
		}
		mux.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
			upd, err := bot.HandleUpdate(req)
			if err != nil {
				log.Printf("webhook: %v", err)
				http.Error(w, "bad update", http.StatusBadRequest)
				return
			}
			handle(*upd)
		})
		log.Printf("webhook listening on %s%s", addr, path)
	} else {
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.Printf("delete webhook: %v", err)
		}
		workers = append(workers, func(ctx context.Context) error {
			telegram.Poll(ctx, bot, handle)
			return nil
		})
	}

	log.Printf("health server listening on %s/healthz", addr)
	if err := httpserver.Serve(ctx, addr, mux, workers...); err != nil {
		log.Printf("serve: %v", err)
	}
}

// registerWebhook points Telegram at a path derived from the token, so the
// URL itself is the shared secret.
func registerWebhook(bot *tgbotapi.BotAPI, baseURL string) (string, error) {
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		return "", err
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return "", err
	}
	return path, nil
}

// shortHash is FNV-1a of s in hex. Stable, not cryptographic.
func shortHash(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}
