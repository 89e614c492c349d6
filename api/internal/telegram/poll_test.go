package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type scriptedUpdater struct {
	mu      sync.Mutex
	batches [][]tgbotapi.Update
	offsets []int
	cancel  context.CancelFunc
}

func (s *scriptedUpdater) GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets = append(s.offsets, cfg.Offset)
	if len(s.batches) == 0 {
		s.cancel()
		return nil, nil
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

func TestPollAdvancesOffset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &scriptedUpdater{
		batches: [][]tgbotapi.Update{{{UpdateID: 10}, {UpdateID: 11}}, {{UpdateID: 12}}},
		cancel:  cancel,
	}
	var got []int
	Poll(ctx, src, func(u tgbotapi.Update) { got = append(got, u.UpdateID) })

	if len(got) != 3 || got[2] != 12 {
		t.Fatalf("handled %v", got)
	}
	if src.offsets[0] != 0 || src.offsets[1] != 12 || src.offsets[2] != 13 {
		t.Fatalf("offsets %v", src.offsets)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestPollBackoff(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want time.Duration
	}{
		{"retry after", &tgbotapi.Error{Code: 429, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7}}, 7 * time.Second},
		{"retry after capped", &tgbotapi.Error{Code: 429, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 60}}, maxPollBackoff},
		{"too many requests", &tgbotapi.Error{Code: 429}, 3 * time.Second},
		{"timeout", timeoutErr{}, 2 * time.Second},
		{"other", errors.New("boom"), time.Second},
	}
	for _, c := range cases {
		if got := pollBackoff(c.err); got != c.want {
			t.Errorf("%s: pollBackoff = %v, want %v", c.name, got, c.want)
		}
	}
}
