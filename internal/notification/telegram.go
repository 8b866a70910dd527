package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier posts alerts straight to a chat through the Bot API.
// Text is sent as MarkdownV2 with the title in bold.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewTelegramNotifier creates a notifier for chatID (@username or numeric id).
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  telegramAPI,
		client:   newHTTPClient(),
	}
}

// WithAPIBase points the notifier at a different Bot API host.
func (t *TelegramNotifier) WithAPIBase(base string) *TelegramNotifier {
	t.apiBase = strings.TrimRight(base, "/")
	return t
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	url := t.apiBase + "/bot" + t.botToken + "/sendMessage"
	msg := telegramMessage{ChatID: t.chatID, Text: telegramText(alert), ParseMode: "MarkdownV2"}
	if err := postJSON(ctx, t.client, url, msg); err != nil {
		// The URL carries the token; keep it out of the error.
		return fmt.Errorf("telegram: %s", strings.ReplaceAll(err.Error(), t.botToken, "***"))
	}
	log.Printf("[telegram] sent %s alert %q", alert.Level, alert.Title)
	return nil
}

func telegramText(alert Alert) string {
	icon := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		icon = "⚠️"
	case AlertCritical:
		icon = "🚨"
	}
	if alert.Title == "" {
		return icon + " " + escapeMarkdown(alert.Message)
	}
	return icon + " *" + escapeMarkdown(alert.Title) + "*\n\n" + escapeMarkdown(alert.Message)
}

// markdownV2Specials must be backslash-escaped in MarkdownV2 text.
const markdownV2Specials = "_*[]()~`>#+-=|{}.!\\"

func escapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		if strings.ContainsRune(markdownV2Specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
