package util

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// EncodeBase64 returns the bare standard base64 of b, no data: prefix.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// StripDataURL removes a leading data:<mime>;base64, and returns the payload and the mime.
func StripDataURL(s string) (payload, mime string) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return s, ""
	}
	idx := strings.IndexByte(s, ',')
	if idx < 0 {
		return s, ""
	}
	meta := s[len("data:"):idx] // "<mime>;base64"
	if semi := strings.IndexByte(meta, ';'); semi >= 0 {
		mime = meta[:semi]
	} else {
		mime = meta
	}
	return s[idx+1:], mime
}

// DecodeBase64MaybeDataURL decodes base64, tolerating a data: prefix. The
// returned hint is the MIME from that prefix, if any.
func DecodeBase64MaybeDataURL(s string) ([]byte, string, error) {
	payload, hint := StripDataURL(s)
	// std first, then URL-safe, then the unpadded variants
	if b, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return b, hint, nil
	} else if b2, err2 := base64.URLEncoding.DecodeString(payload); err2 == nil {
		return b2, hint, nil
	} else if b3, err3 := base64.RawStdEncoding.DecodeString(payload); err3 == nil {
		return b3, hint, nil
	} else if b4, err4 := base64.RawURLEncoding.DecodeString(payload); err4 == nil {
		return b4, hint, nil
	} else {
		return nil, "", err
	}
}


// PickMIME: explicit wins, then the data: hint, then sniffing, then audio/mpeg.
func PickMIME(explicit, hint string, data []byte) string {
	if exp := strings.TrimSpace(explicit); exp != "" {
		return exp
	}
	if h := strings.TrimSpace(hint); h != "" {
		return h
	}
	if m := SniffAudioMIME(data); m != "" {
		return m
	}
	if len(data) > 0 {
		if ct := http.DetectContentType(data); strings.HasPrefix(ct, "audio/") {
			return ct
		}
	}
	return "audio/mpeg"
}

// SniffAudioMIME recognises RIFF/WAVE and MPEG audio (ID3 tag or frame sync).
func SniffAudioMIME(b []byte) string {
	// RIFF....WAVE
	if len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE" {
		return "audio/wav"
	}
	// ID3v2
	if len(b) >= 3 && b[0] == 'I' && b[1] == 'D' && b[2] == '3' {
		return "audio/mpeg"
	}
	// MPEG frame sync: 11 set bits
	if len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0 {
		return "audio/mpeg"
	}
	return ""
}
