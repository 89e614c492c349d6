package gpt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"voiceshield/api/internal/detect/prompt"
	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/util"
)

type Engine struct {
	APIKey string
	Model  string
	client oai.Client
}

// New builds the engine. baseURL is optional and points the SDK at a proxy or a test server.
func New(key, model, baseURL string) *Engine {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// audio models take a while before the first header
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(key)),
		option.WithHTTPClient(&http.Client{Transport: tr}),
		// retries are owned by detect.Retry
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Engine{
		APIKey: strings.TrimSpace(key),
		Model:  strings.TrimSpace(model),
		client: oai.NewClient(opts...),
	}
}

func (e *Engine) Name() string     { return "gpt" }
func (e *Engine) GetModel() string { return e.Model }

// Generate sends the clip as input_audio. Audio chat models reject
// response_format, so the schema travels inside the system text and the
// answer is unfenced before returning.
func (e *Engine) Generate(ctx context.Context, call prompt.Call) (string, error) {
	if e.APIKey == "" {
		return "", errors.New("OPENAI_API_KEY is empty")
	}
	format, err := audioFormat(call)
	if err != nil {
		return "", err
	}

	system := call.System
	if call.Schema != "" {
		system += "\n\nReturn ONLY JSON matching this schema:\n" + call.Schema
	}

	params := oai.ChatCompletionNewParams{
		Model: e.Model,
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(call.User),
				oai.InputAudioContentPart(oai.ChatCompletionContentPartInputAudioInputAudioParam{
					Data:   util.EncodeBase64(call.Audio),
					Format: format,
				}),
			}),
		},
		Temperature: oai.Float(0),
	}

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("gpt %s: no choices: %w", call.Kind, prompt.ErrEmptyResponse)
	}
	txt := util.StripCodeFences(resp.Choices[0].Message.Content)
	if txt == "" {
		return "", fmt.Errorf("gpt %s: %w", call.Kind, prompt.ErrEmptyResponse)
	}
	return txt, nil
}

// audioFormat picks "wav" or "mp3", the only encodings input_audio accepts.
// call.MIME already carries the data-URI type when one was embedded, so it
// wins over the declared format.
func audioFormat(call prompt.Call) (string, error) {
	mime := strings.ToLower(call.MIME)
	switch {
	case strings.Contains(mime, "wav"):
		return "wav", nil
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return "mp3", nil
	case call.Format == types.FormatWAV:
		return "wav", nil
	case call.Format == types.FormatMP3:
		return "mp3", nil
	}
	return "", &types.FieldError{Fields: []string{"audio_format"}, Reason: "gpt accepts only wav or mp3"}
}
