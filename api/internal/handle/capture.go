package handle

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"voiceshield/api/internal/audio"
	"voiceshield/api/internal/session"
)

// captureControl is a text frame on the capture socket. Plain "stop" and
// "cancel" strings are accepted too.
type captureControl struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	LLMName    string `json:"llm_name,omitempty"`
	Language   string `json:"language,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

type captureEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func captureDefaults(r *http.Request) captureControl {
	q := r.URL.Query()
	c := captureControl{
		SessionID:  q.Get("session_id"),
		LLMName:    q.Get("llm_name"),
		Language:   q.Get("language"),
		SampleRate: 16000,
		Channels:   1,
	}
	if v, err := strconv.Atoi(q.Get("sample_rate")); err == nil && v > 0 {
		c.SampleRate = v
	}
	if v, err := strconv.Atoi(q.Get("channels")); err == nil && v > 0 {
		c.Channels = v
	}
	return c
}

func (c *captureControl) merge(o captureControl) {
	if o.SessionID != "" {
		c.SessionID = o.SessionID
	}
	if o.LLMName != "" {
		c.LLMName = o.LLMName
	}
	if o.Language != "" {
		c.Language = o.Language
	}
	if o.SampleRate > 0 {
		c.SampleRate = o.SampleRate
	}
	if o.Channels > 0 {
		c.Channels = o.Channels
	}
}

func parseControl(data []byte) (captureControl, error) {
	s := strings.TrimSpace(string(data))
	switch strings.ToLower(s) {
	case "start", "stop", "cancel":
		return captureControl{Type: strings.ToLower(s)}, nil
	}
	var c captureControl
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return c, err
	}
	c.Type = strings.ToLower(c.Type)
	return c, nil
}

// Capture serves GET /v1/capture. Binary frames carry interleaved PCM16LE;
// "stop" seals the WAV and runs a detection on the session. The socket
// stays open for further recordings until the client closes it.
func (h *Handle) Capture(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns})
	if err != nil {
		log.Printf("capture accept failed: %v", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	ctx := r.Context()
	ctl := captureDefaults(r)
	rec := audio.NewRecorder(h.opts.MaxUploadBytes)
	defer rec.Cancel()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					log.Printf("capture read: %v", err)
				}
			}
			return
		}

		if typ == websocket.MessageBinary {
			if rec.State() == audio.StateIdle {
				if err := rec.Start(ctl.SampleRate, ctl.Channels); err != nil {
					h.captureFail(ctx, conn, ctl.SessionID, err)
					continue
				}
			}
			if err := rec.Write(data); err != nil {
				rec.Cancel()
				h.captureFail(ctx, conn, ctl.SessionID, err)
			}
			continue
		}

		cmd, err := parseControl(data)
		if err != nil {
			h.captureFail(ctx, conn, ctl.SessionID, errors.New("unreadable control message"))
			continue
		}
		switch cmd.Type {
		case "start":
			rec.Cancel()
			ctl.merge(cmd)
			if err := rec.Start(ctl.SampleRate, ctl.Channels); err != nil {
				h.captureFail(ctx, conn, ctl.SessionID, err)
				continue
			}
			_ = wsjson.Write(ctx, conn, captureEvent{Type: "recording", SessionID: ctl.SessionID})
		case "stop":
			ctl.merge(cmd)
			clip, err := rec.Finish()
			if err != nil {
				h.captureFail(ctx, conn, ctl.SessionID, err)
				continue
			}
			ctl.SessionID = h.captureDetect(ctx, conn, ctl, clip)
		case "cancel":
			rec.Cancel()
			_ = wsjson.Write(ctx, conn, captureEvent{Type: "cancelled", SessionID: ctl.SessionID})
		default:
			h.captureFail(ctx, conn, ctl.SessionID, errors.New("unknown control type "+strconv.Quote(cmd.Type)))
		}
	}
}

// captureDetect runs the recorded clip through the session and reports the
// result. It returns the session ID so later recordings reuse it.
func (h *Handle) captureDetect(ctx context.Context, conn *websocket.Conn, ctl captureControl, clip audio.Clip) string {
	sess, ok := h.sessions.Resolve(ctl.SessionID, ctl.LLMName)
	if !ok {
		h.captureFail(ctx, conn, ctl.SessionID, errors.New("unknown session_id"))
		return ctl.SessionID
	}
	dctx, cancel := context.WithTimeout(ctx, h.opts.DefaultTimeout)
	defer cancel()

	resp, err := sess.Detect(dctx, session.Input{
		Language:    ctl.Language,
		AudioFormat: clip.Format,
		AudioBase64: clip.Base64(),
	})
	if errors.Is(err, session.ErrBusy) {
		h.captureFail(ctx, conn, sess.ID, err)
		return sess.ID
	}
	raw, _ := json.Marshal(resp)
	ev := captureEvent{Type: "result", SessionID: sess.ID, Response: raw}
	if err != nil {
		ev.Error = h.messageFor(err)
	}
	if err := wsjson.Write(ctx, conn, ev); err != nil {
		log.Printf("capture write session=%s: %v", sess.ID, err)
	}
	return sess.ID
}

func (h *Handle) captureFail(ctx context.Context, conn *websocket.Conn, sessionID string, err error) {
	if werr := wsjson.Write(ctx, conn, captureEvent{Type: "error", SessionID: sessionID, Error: h.messageFor(err)}); werr != nil {
		log.Printf("capture write: %v", werr)
	}
}
