package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// maxMessageLen is the Telegram sendMessage text cap. Longer texts are split
// on paragraph boundaries before sending.
const maxMessageLen = 4000

// TelegramConfig configures the Telegram backend.
type TelegramConfig struct {
	BotToken string
	// ChatIDs maps each channel to its target chat/group. A channel without
	// a mapping falls back to DefaultChatID.
	ChatIDs       map[Channel]string
	DefaultChatID string
	APIURL        string // overridable for tests; defaults to the Bot API
}

// Telegram sends messages via the Telegram Bot API.
type Telegram struct {
	cfg    TelegramConfig
	client *http.Client
}

// NewTelegram creates a Telegram notifier.
// BotToken is the Bot API token from @BotFather.
func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.telegram.org"
	}
	return &Telegram{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send delivers text to the channel's chat, splitting into multiple API
// calls when the text exceeds the message cap.
func (t *Telegram) Send(ctx context.Context, ch Channel, text string) error {
	chatID := t.cfg.ChatIDs[ch]
	if chatID == "" {
		chatID = t.cfg.DefaultChatID
	}
	if chatID == "" {
		return fmt.Errorf("telegram: no chat configured for channel %s", ch)
	}

	for _, chunk := range chunkMessage(text, maxMessageLen) {
		if err := t.send(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	log.Printf("[telegram] sent %s message (%d chars)", ch, len(text))
	return nil
}

func (t *Telegram) send(ctx context.Context, chatID, text string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.cfg.APIURL, t.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// chunkMessage splits text into pieces of at most limit characters,
// preferring paragraph boundaries ("\n\n"). A single paragraph longer than
// the limit is hard-split.
func chunkMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var buf strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		// Flush when appending this paragraph would overflow.
		if buf.Len() > 0 && buf.Len()+2+len(para) > limit {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}

		if len(para) > limit {
			for len(para) > limit {
				chunks = append(chunks, para[:limit])
				para = para[limit:]
			}
		}

		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}
