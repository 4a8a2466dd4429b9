package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChunkMessage_ShortTextPassesThrough(t *testing.T) {
	chunks := chunkMessage("hello", 4000)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("chunks = %q", chunks)
	}
}

func TestChunkMessage_SplitsOnParagraphs(t *testing.T) {
	paras := []string{
		strings.Repeat("a", 30),
		strings.Repeat("b", 30),
		strings.Repeat("c", 30),
	}
	text := strings.Join(paras, "\n\n")

	chunks := chunkMessage(text, 70)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %q", len(chunks), chunks)
	}
	for _, c := range chunks {
		if len(c) > 70 {
			t.Fatalf("chunk exceeds limit: %d chars", len(c))
		}
	}
	if strings.Join(chunks, "\n\n") != text {
		t.Fatal("rejoined chunks do not reproduce the original text")
	}
}

func TestChunkMessage_HardSplitsOversizedParagraph(t *testing.T) {
	text := strings.Repeat("x", 95)
	chunks := chunkMessage(text, 40)

	total := 0
	for _, c := range chunks {
		if len(c) > 40 {
			t.Fatalf("chunk exceeds limit: %d chars", len(c))
		}
		total += len(c)
	}
	if total != 95 {
		t.Fatalf("chunks carry %d chars, want 95", total)
	}
}

func TestTelegram_SendRoutesByChannel(t *testing.T) {
	var got struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{
		BotToken:      "test-token",
		ChatIDs:       map[Channel]string{ChannelVolume: "-100200"},
		DefaultChatID: "-100999",
		APIURL:        srv.URL,
	})

	if err := tg.Send(context.Background(), ChannelVolume, "spike"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.ChatID != "-100200" || got.Text != "spike" {
		t.Fatalf("sent chat=%s text=%q", got.ChatID, got.Text)
	}

	if err := tg.Send(context.Background(), ChannelTrend, "trend"); err != nil {
		t.Fatalf("send default: %v", err)
	}
	if got.ChatID != "-100999" {
		t.Fatalf("default chat = %s, want -100999", got.ChatID)
	}
}

func TestTelegram_SendFailsWithoutChat(t *testing.T) {
	tg := NewTelegram(TelegramConfig{BotToken: "t"})
	if err := tg.Send(context.Background(), ChannelTrend, "x"); err == nil {
		t.Fatal("expected error with no chat configured")
	}
}
