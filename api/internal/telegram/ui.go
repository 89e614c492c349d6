package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/session"
)

// Feedback buttons under a verdict, bound to the detection that produced it.
func makeFeedbackKeyboard(seq int) tgbotapi.InlineKeyboardMarkup {
	human := tgbotapi.NewInlineKeyboardButtonData("🗣 Human", feedbackData(seq, types.LabelHuman))
	ai := tgbotapi.NewInlineKeyboardButtonData("🤖 AI generated", feedbackData(seq, types.LabelAIGenerated))
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(human, ai))
}

func formatVerdict(resp types.DetectionResponse) string {
	var b strings.Builder
	switch resp.Prediction {
	case types.LabelAIGenerated:
		b.WriteString("🤖 AI_GENERATED")
	default:
		b.WriteString("🗣 HUMAN")
	}
	fmt.Fprintf(&b, " (confidence %.0f%%)\n", resp.Confidence*100)
	if resp.Details != nil {
		if lang := strings.TrimSpace(resp.Details.DetectedLanguage); lang != "" {
			b.WriteString("Language: " + lang + "\n")
		}
		if rs := strings.TrimSpace(resp.Details.Reasoning); rs != "" {
			b.WriteString("\n" + clip(rs, 3000) + "\n")
		}
	}
	b.WriteString("\nWas this right?")
	return b.String()
}

func formatCorrections(cl *session.CorrectionLog) string {
	cs := cl.Snapshot()
	if len(cs) == 0 {
		return "No corrections yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Corrections (%d kept of %d total):\n", len(cs), cl.Total())
	for i, c := range cs {
		fmt.Fprintf(&b, "%d. %s → %s: %s\n", i+1, c.OriginalPrediction, c.ActualLabel, clip(c.ReasoningOfFailure, 300))
	}
	return clip(b.String(), 3900)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
