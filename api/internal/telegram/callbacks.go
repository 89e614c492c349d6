package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/session"
)

// Callback data is fb:<detection seq>:<label>.
const feedbackPrefix = "fb:"

func feedbackData(seq int, label types.Label) string {
	return feedbackPrefix + strconv.Itoa(seq) + ":" + string(label)
}

func parseFeedbackData(data string) (int, types.Label, error) {
	rest, ok := strings.CutPrefix(data, feedbackPrefix)
	if !ok {
		return 0, "", errors.New("not a feedback callback")
	}
	seqStr, labelStr, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, "", fmt.Errorf("feedback callback %q has no detection id", data)
	}
	seq, err := strconv.Atoi(seqStr)
	if err != nil || seq < 1 {
		return 0, "", fmt.Errorf("feedback callback %q has a bad detection id", data)
	}
	label, err := types.ParseLabel(labelStr)
	if err != nil {
		return 0, "", err
	}
	return seq, label, nil
}

func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack

	if !strings.HasPrefix(cb.Data, feedbackPrefix) {
		return
	}
	seq, label, err := parseFeedbackData(cb.Data)
	if err != nil {
		log.Printf("telegram callback chat=%d data=%q: %v", cid, cb.Data, err)
		r.send(cid, "⚠️ These buttons are outdated. Send the clip again.")
		return
	}
	r.onFeedback(ctx, cid, cb.Message.MessageID, seq, label)
}

func (r *Router) onFeedback(ctx context.Context, chatID int64, msgID, seq int, label types.Label) {
	sess, ok := r.Sessions.Get(sessionKey(chatID))
	if !ok {
		r.SendError(chatID, session.ErrStaleVerdict)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	res, err := sess.FeedbackFor(ctx, seq, label)
	if err != nil {
		if errors.Is(err, session.ErrBusy) || errors.Is(err, session.ErrStaleVerdict) || errors.Is(err, session.ErrNothingToReview) {
			r.SendError(chatID, err)
			return
		}
		r.send(chatID, "⚠️ Could not learn from this correction: "+errorText(err, r.maxBytes())+"\nThe previous verdict stands.")
		return
	}
	// reviewed: take the buttons away
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	if _, err := r.Bot.Request(edit); err != nil {
		log.Printf("telegram clear keyboard chat=%d: %v", chatID, err)
	}

	switch {
	case res.State == session.StateConfirmed:
		r.send(chatID, "👍 Thanks, verdict confirmed.")
	case res.Correction != nil:
		r.send(chatID, "🧠 Correction applied ("+strconv.Itoa(sess.Corrections().Total())+" so far).\n\n"+formatVerdict(res.Response))
	}
}
