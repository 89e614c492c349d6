package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// LoadPromptFile reads <dir>/<name>.txt. ok is false when dir is empty or the
// file is missing or blank; callers then fall back to the built-in text.
func LoadPromptFile(dir, name string) (text string, ok bool, err error) {
	if strings.TrimSpace(dir) == "" {
		return "", false, nil
	}
	p := filepath.Join(dir, name+".txt")
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read prompt %s: %w", p, err)
	}
	text = strings.TrimSpace(string(b))
	if text == "" {
		return "", false, nil
	}
	return text, true, nil
}

// ParseSchema decodes a JSON schema literal and normalises it with FixJSONSchemaStrict.
func ParseSchema(raw string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("bad schema: %w", err)
	}
	FixJSONSchemaStrict(m)
	return m, nil
}

// FixJSONSchemaStrict: any node with properties gets type=object and every property required.
func FixJSONSchemaStrict(node any) {
	switch n := node.(type) {
	case map[string]any:
		if props, ok := n["properties"].(map[string]any); ok {
			if _, hasType := n["type"]; !hasType {
				n["type"] = "object"
			}
			req := make([]any, 0, len(props))
			for k := range props {
				req = append(req, k)
			}
			n["required"] = req
			for _, v := range props {
				FixJSONSchemaStrict(v)
			}
		}
		if items, ok := n["items"]; ok {
			FixJSONSchemaStrict(items)
		}
	case []any:
		for _, v := range n {
			FixJSONSchemaStrict(v)
		}
	}
}

// StripCodeFences unwraps a markdown fenced block around a model answer,
// whatever its language tag. Unfenced text is only trimmed.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	body, ok := strings.CutPrefix(s, "```")
	if !ok {
		return s
	}
	body = strings.TrimLeftFunc(body, unicode.IsLetter)
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
