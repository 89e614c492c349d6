package telegram

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"voiceshield/api/internal/audio"
	"voiceshield/api/internal/session"
)

// Bot is the part of *tgbotapi.BotAPI the router talks to.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Router struct {
	Bot      Bot
	Sessions *session.Store

	// LLMs lists the configured engine names, default first.
	LLMs           []string
	MaxUploadBytes int
	Timeout        time.Duration
	Client         *http.Client

	langs chatLanguages
}

const defaultLanguage = "en-US"

func sessionKey(chatID int64) string { return fmt.Sprintf("tg:%d", chatID) }

func (r *Router) session(chatID int64) *session.Session {
	return r.Sessions.GetOrCreate(sessionKey(chatID), "")
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	if msg.IsCommand() {
		r.HandleCommand(msg)
		return
	}
	switch {
	case msg.Audio != nil || msg.Document != nil:
		r.acceptAudio(ctx, *msg)
	case msg.Voice != nil:
		r.send(msg.Chat.ID, "Voice notes arrive as OGG. Please send the clip as an MP3 or WAV file.")
	default:
		r.send(msg.Chat.ID, "Send an MP3 or WAV clip and I will tell you whether the voice is human or AI-generated.")
	}
}

func (r *Router) HandleCommand(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		r.send(cid, "Send an MP3 or WAV clip (up to "+fmt.Sprint(r.maxBytes()>>20)+"MB).\n"+
			"After each verdict, tap the correct label so I can learn from my mistakes.\n"+
			"Commands: /lang <code>, /engine <name>, /corrections, /reset, /health")
	case "health":
		r.send(cid, "✅ OK")
	case "lang":
		if len(args) == 0 {
			r.send(cid, "Current language: "+r.langs.get(cid)+"\nUsage: /lang te-IN")
			return
		}
		r.langs.set(cid, args[0])
		r.send(cid, "✅ Language: "+args[0])
	case "engine":
		r.handleEngineCommand(cid, args)
	case "corrections":
		r.send(cid, formatCorrections(r.session(cid).Corrections()))
	case "reset":
		r.Sessions.Delete(sessionKey(cid))
		r.send(cid, "Session cleared. Learned corrections were dropped.")
	default:
		r.send(cid, "Unknown command")
	}
}

func (r *Router) handleEngineCommand(chatID int64, args []string) {
	sess := r.session(chatID)
	if len(args) == 0 {
		r.send(chatID, "Current engine: "+orDefault(sess.LLM(), r.defaultLLM())+"\nAvailable: "+strings.Join(r.LLMs, " | "))
		return
	}
	name := strings.ToLower(args[0])
	if name == "openai" {
		name = "gpt"
	}
	if name == "google" {
		name = "gemini"
	}
	for _, n := range r.LLMs {
		if n == name {
			sess.SetLLM(name)
			r.send(chatID, "✅ Engine: "+name)
			return
		}
	}
	r.send(chatID, "Unknown or unconfigured engine. Available: "+strings.Join(r.LLMs, " | "))
}

func (r *Router) defaultLLM() string {
	if len(r.LLMs) > 0 {
		return r.LLMs[0]
	}
	return ""
}

func (r *Router) maxBytes() int {
	if r.MaxUploadBytes > 0 {
		return r.MaxUploadBytes
	}
	return audio.DefaultMaxBytes
}

func (r *Router) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return 180 * time.Second
}

func (r *Router) send(chatID int64, text string) {
	if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("telegram send chat=%d: %v", chatID, err)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
