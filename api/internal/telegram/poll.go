package telegram

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Updater is the long-polling half of *tgbotapi.BotAPI.
type Updater interface {
	GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

const (
	pollTimeoutSec = 30
	minPollBackoff = time.Second
	maxPollBackoff = 15 * time.Second
	idlePause      = 200 * time.Millisecond
)

// Poll feeds updates to handle until ctx is done. Failures back off and
// never end the loop.
func Poll(ctx context.Context, src Updater, handle func(tgbotapi.Update)) {
	offset := 0
	for ctx.Err() == nil {
		u := tgbotapi.NewUpdate(offset)
		u.Timeout = pollTimeoutSec

		updates, err := src.GetUpdates(u)
		if err != nil {
			d := pollBackoff(err)
			log.Printf("telegram poll error=%v retry_in=%v", err, d)
			if !sleepCtx(ctx, d) {
				break
			}
			continue
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}
		if len(updates) == 0 && !sleepCtx(ctx, idlePause) {
			break
		}
	}
	log.Printf("telegram poll stopped")
}

// pollBackoff honours Telegram's retry_after, then falls back by error type.
func pollBackoff(err error) time.Duration {
	d := time.Second
	var apiErr *tgbotapi.Error
	var ne net.Error
	switch {
	case errors.As(err, &apiErr) && apiErr.RetryAfter > 0:
		d = time.Duration(apiErr.RetryAfter) * time.Second
	case errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests:
		d = 3 * time.Second
	case errors.As(err, &ne) && ne.Timeout():
		d = 2 * time.Second
	}
	return min(max(d, minPollBackoff), maxPollBackoff)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
