package bot

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/automuse/api/templates"
)

const testMeta = `id: rss_to_telegram
name: RSS to Telegram
intents:
  - rss to telegram
tags:
  - rss
  - telegram
inputs:
  required:
    - key: feed_url
secrets:
  - TELEGRAM_TOKEN
`

const testWorkflow = `{
  "nodes": [
    {"id": "n1", "name": "Cron", "type": "n8n-nodes-base.cron", "position": [0, 0]},
    {"id": "n2", "name": "Send", "type": "n8n-nodes-base.telegram", "position": [200, 0], "parameters": {"token": "={{$env.TELEGRAM_TOKEN}}"}}
  ],
  "connections": {}
}`

type fakeTelegram struct {
	server *httptest.Server

	mu    sync.Mutex
	sent  []string
	chats []int64
}

func newFakeTelegram(t *testing.T) *fakeTelegram {
	t.Helper()
	fake := &fakeTelegram{}
	fake.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
			return
		}
		var req struct {
			ChatID int64  `json:"chat_id"`
			Text   string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode sendMessage: %v", err)
		}
		fake.mu.Lock()
		fake.sent = append(fake.sent, req.Text)
		fake.chats = append(fake.chats, req.ChatID)
		fake.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeTelegram) client() *Client {
	return &Client{
		token:      "test-token",
		baseURL:    f.server.URL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (f *fakeTelegram) lastMessage(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no message was sent")
	}
	return f.sent[len(f.sent)-1]
}

func newBotComposer(t *testing.T) *templates.Composer {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "rss_to_telegram")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, templates.MetaFileName), []byte(testMeta), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, templates.WorkflowFileName), []byte(testWorkflow), 0o644); err != nil {
		t.Fatal(err)
	}

	indexPath := filepath.Join(t.TempDir(), "index.json")
	idx, err := templates.BuildIndex(root)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if err := templates.WriteIndex(idx, indexPath); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	return templates.NewComposer(templates.NewStore(root), indexPath)
}

func postUpdate(t *testing.T, handler *Handler, secret, text string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	handler.Mount(mux)

	payload := map[string]any{
		"update_id": 1001,
		"message": map[string]any{
			"message_id": 7,
			"from":       map[string]any{"id": 42, "is_bot": false, "username": "tester"},
			"chat":       map[string]any{"id": 42, "type": "private"},
			"text":       text,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(string(body)))
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	t.Parallel()
	fake := newFakeTelegram(t)
	handler := NewHandler(fake.client(), newBotComposer(t), "hook-secret", nil)

	if w := postUpdate(t, handler, "", "hello"); w.Code != http.StatusForbidden {
		t.Fatalf("missing secret: status=%d", w.Code)
	}
	if w := postUpdate(t, handler, "wrong", "hello"); w.Code != http.StatusForbidden {
		t.Fatalf("wrong secret: status=%d", w.Code)
	}
}

func TestWebhookComposeReply(t *testing.T) {
	t.Parallel()
	fake := newFakeTelegram(t)
	handler := NewHandler(fake.client(), newBotComposer(t), "hook-secret", nil)

	w := postUpdate(t, handler, "hook-secret", "RSS feed to telegram every hour")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}

	reply := fake.lastMessage(t)
	if !strings.Contains(reply, "RSS to Telegram") {
		t.Fatalf("reply does not name the template: %q", reply)
	}
	if !strings.Contains(reply, "TELEGRAM_TOKEN") || !strings.Contains(reply, "feed_url") {
		t.Fatalf("reply missing secrets/inputs: %q", reply)
	}
	if !strings.Contains(reply, "```json") {
		t.Fatalf("reply missing workflow code block: %q", reply)
	}
}

func TestWebhookCommands(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "start", text: "/start", want: "Send me a task description"},
		{name: "generate without description", text: "/generate", want: usageText},
		{name: "generate with description", text: "/generate rss to telegram", want: "RSS to Telegram"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fake := newFakeTelegram(t)
			handler := NewHandler(fake.client(), newBotComposer(t), "hook-secret", nil)

			if w := postUpdate(t, handler, "hook-secret", tt.text); w.Code != http.StatusOK {
				t.Fatalf("status=%d", w.Code)
			}
			if reply := fake.lastMessage(t); !strings.Contains(reply, tt.want) {
				t.Fatalf("reply=%q want substring %q", reply, tt.want)
			}
		})
	}
}

func TestComposeFailureMessages(t *testing.T) {
	t.Parallel()
	missingIndex := templates.NewComposer(
		templates.NewStore(t.TempDir()),
		filepath.Join(t.TempDir(), "missing.json"))
	fake := newFakeTelegram(t)
	handler := NewHandler(fake.client(), missingIndex, "hook-secret", nil)

	if w := postUpdate(t, handler, "hook-secret", "anything"); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if reply := fake.lastMessage(t); !strings.Contains(reply, "not ready") {
		t.Fatalf("reply=%q", reply)
	}
}

func TestRenderReplyTruncatesLongWorkflows(t *testing.T) {
	t.Parallel()
	nodes := make([]any, 0, 40)
	for i := 0; i < 40; i++ {
		nodes = append(nodes, map[string]any{
			"id":       strings.Repeat("x", 80) + string(rune('a'+i%26)),
			"name":     "Node",
			"position": []any{0, 0},
		})
	}
	result := templates.ComposeResult{
		TemplateID:   "big",
		Summary:      "big workflow",
		WorkflowJSON: map[string]any{"nodes": nodes, "connections": map[string]any{}},
	}

	reply := renderReply(result)
	if !strings.Contains(reply, "... (truncated)") {
		t.Fatalf("expected truncation marker in reply of %d bytes", len(reply))
	}
}

func TestRenderReplyTruncationKeepsValidUTF8(t *testing.T) {
	t.Parallel()
	result := templates.ComposeResult{
		TemplateID: "arabic",
		Summary:    "arabic workflow",
		WorkflowJSON: map[string]any{
			"nodes": []any{map[string]any{
				"id":       "n1",
				"name":     strings.Repeat("رصد التغذية ", 400),
				"position": []any{0, 0},
			}},
			"connections": map[string]any{},
		},
	}

	reply := renderReply(result)
	if !strings.Contains(reply, "... (truncated)") {
		t.Fatalf("expected truncation marker in reply of %d bytes", len(reply))
	}
	if !utf8.ValidString(reply) {
		t.Fatal("truncated reply is not valid UTF-8")
	}
}

func TestTruncateUTF8(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 10) + "é"
	if got := truncateUTF8(s, 11); got != strings.Repeat("a", 10) {
		t.Fatalf("truncateUTF8(%q, 11) = %q", s, got)
	}
	if got := truncateUTF8(s, 11); !utf8.ValidString(got) {
		t.Fatalf("result is not valid UTF-8: %q", got)
	}
	if got := truncateUTF8("short", 100); got != "short" {
		t.Fatalf("truncateUTF8 should not change strings within the limit: %q", got)
	}
}
