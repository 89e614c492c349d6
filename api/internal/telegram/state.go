package telegram

import "sync"

// chatLanguages remembers the /lang choice per chat.
type chatLanguages struct {
	m sync.Map // chatID -> string
}

func (c *chatLanguages) set(chatID int64, lang string) { c.m.Store(chatID, lang) }

func (c *chatLanguages) get(chatID int64) string {
	if v, ok := c.m.Load(chatID); ok {
		if s, _ := v.(string); s != "" {
			return s
		}
	}
	return defaultLanguage
}
