package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"voiceshield/api/internal/audio"
	"voiceshield/api/internal/detect"
	"voiceshield/api/internal/session"
)

// attachment is the audio file of a message, from either an audio or a
// document upload.
type attachment struct {
	FileID   string
	FileName string
	MIME     string
	Size     int
}

func attachmentOf(msg tgbotapi.Message) (attachment, bool) {
	switch {
	case msg.Audio != nil:
		a := msg.Audio
		return attachment{FileID: a.FileID, FileName: a.FileName, MIME: a.MimeType, Size: a.FileSize}, true
	case msg.Document != nil:
		d := msg.Document
		return attachment{FileID: d.FileID, FileName: d.FileName, MIME: d.MimeType, Size: d.FileSize}, true
	}
	return attachment{}, false
}

// hint prefers the declared MIME type and falls back to the file name.
func (a attachment) hint() string {
	if a.MIME != "" && a.MIME != "application/octet-stream" {
		return a.MIME
	}
	return a.FileName
}

func (r *Router) acceptAudio(ctx context.Context, msg tgbotapi.Message) {
	cid := msg.Chat.ID
	att, ok := attachmentOf(msg)
	if !ok {
		return
	}
	if att.Size > r.maxBytes() {
		r.send(cid, fmt.Sprintf("File too large. Max %dMB allowed.", r.maxBytes()>>20))
		return
	}

	url, err := r.Bot.GetFileDirectURL(att.FileID)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	data, err := r.download(ctx, url)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	ac, err := audio.FromBytes(data, att.hint())
	if err != nil {
		r.SendError(cid, err)
		return
	}

	r.send(cid, "🎧 Clip received, analysing…")
	sess := r.session(cid)
	resp, seq, err := sess.DetectTracked(ctx, session.Input{
		Language:    r.langs.get(cid),
		AudioFormat: ac.Format,
		AudioBase64: ac.Base64(),
	})
	if err != nil {
		r.SendError(cid, err)
		return
	}
	out := tgbotapi.NewMessage(cid, formatVerdict(resp))
	out.ReplyMarkup = makeFeedbackKeyboard(seq)
	out.ReplyToMessageID = msg.MessageID
	if _, err := r.Bot.Send(out); err != nil {
		log.Printf("telegram send chat=%d: %v", cid, err)
	}
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("download status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	limit := int64(r.maxBytes())
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, audio.ErrTooLarge
	}
	return data, nil
}

func (r *Router) SendError(chatID int64, err error) {
	r.send(chatID, "⚠️ "+errorText(err, r.maxBytes()))
}

func errorText(err error, maxBytes int) string {
	var de *detect.Error
	switch {
	case errors.Is(err, audio.ErrTooLarge):
		return fmt.Sprintf("File too large. Max %dMB allowed.", maxBytes>>20)
	case errors.Is(err, audio.ErrUnknownFormat):
		return "Unsupported file. Send an MP3 or WAV clip."
	case errors.Is(err, audio.ErrMalformed):
		return "That WAV file looks damaged. Re-export it as PCM WAV and try again."
	case errors.Is(err, session.ErrBusy):
		return "Still working on your previous clip, please wait."
	case errors.Is(err, session.ErrNothingToReview):
		return "This verdict was already reviewed. Send a new clip."
	case errors.Is(err, session.ErrStaleVerdict):
		return "These buttons belong to an older clip. Use the ones under the latest verdict."
	case errors.As(err, &de):
		return de.Msg
	}
	return err.Error()
}
