package bot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"github.com/automuse/api/templates"
)

const (
	// maxRenderedJSON keeps the reply under Telegram's message size limit.
	maxRenderedJSON = 3500

	updateDedupTTL = 24 * time.Hour
)

const welcomeText = "Hi! Send me a task description and I will reply with an n8n workflow JSON.\n" +
	"Or use: /generate <task description>\n\n" +
	"Examples:\n" +
	"- RSS feed to Telegram every hour\n" +
	"- Webhook that forwards data to Google Sheets\n" +
	"- HTTP check every 10 minutes with a Telegram alert"

const usageText = "Send a task description, or use: /generate <task description>"

// Handler receives Telegram webhook updates and answers with composed
// workflows. Each update is handled independently against a fresh index
// read; the optional redis client de-duplicates redelivered updates.
type Handler struct {
	client   *Client
	composer *templates.Composer
	secret   string
	redis    *redis.Client
	logger   *slog.Logger
}

func NewHandler(client *Client, composer *templates.Composer, webhookSecret string, redisClient *redis.Client) *Handler {
	return &Handler{
		client:   client,
		composer: composer,
		secret:   strings.TrimSpace(webhookSecret),
		redis:    redisClient,
		logger:   slog.Default(),
	}
}

func (h *Handler) Mount(mux *http.ServeMux) {
	mux.HandleFunc("POST /telegram/webhook", h.handleWebhook)
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.verifySecret(r); err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var upd update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update payload")
		return
	}

	msg := upd.Message
	if msg.ID == 0 {
		msg = upd.EditedMessage
	}
	if msg.ID == 0 || msg.From.IsBot || strings.TrimSpace(msg.Text) == "" {
		writeOK(w)
		return
	}
	if h.alreadyHandled(r.Context(), upd.UpdateID) {
		writeOK(w)
		return
	}

	reply := h.replyTo(strings.TrimSpace(msg.Text))
	if err := h.client.SendMessage(r.Context(), msg.Chat.ID, reply, "Markdown"); err != nil {
		h.logger.Error("failed to send telegram reply", "chat", msg.Chat.ID, "err", err)
	}
	writeOK(w)
}

func (h *Handler) verifySecret(r *http.Request) error {
	if h.secret == "" {
		return errors.New("webhook secret is not configured")
	}
	provided := strings.TrimSpace(r.Header.Get("X-Telegram-Bot-Api-Secret-Token"))
	if provided == "" {
		return errors.New("missing webhook secret")
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		return errors.New("invalid webhook secret")
	}
	return nil
}

func (h *Handler) alreadyHandled(ctx context.Context, updateID int64) bool {
	if h.redis == nil || updateID == 0 {
		return false
	}
	key := fmt.Sprintf("telegram:update:%d", updateID)
	fresh, err := h.redis.SetNX(ctx, key, 1, updateDedupTTL).Result()
	if err != nil {
		h.logger.Warn("update dedup check failed", "update", updateID, "err", err)
		return false
	}
	return !fresh
}

func (h *Handler) replyTo(text string) string {
	description := text
	switch {
	case strings.HasPrefix(text, "/start"):
		return welcomeText
	case strings.HasPrefix(text, "/generate"):
		description = strings.TrimSpace(strings.TrimPrefix(text, "/generate"))
		if description == "" {
			return usageText
		}
	}

	result, err := h.composer.Compose(description)
	if err != nil {
		return composeFailureText(err)
	}
	return renderReply(result)
}

func composeFailureText(err error) string {
	var validationErr *templates.ValidationError
	switch {
	case errors.Is(err, templates.ErrIndexUnavailable):
		return "The service is not ready yet: the template index is missing. Try again later."
	case errors.Is(err, templates.ErrNoMatch):
		return "No template matched your description. Try rephrasing it."
	case errors.As(err, &validationErr):
		return "The matched template failed safety validation: " + validationErr.Detail
	default:
		return "Something went wrong while generating the workflow. Try again later."
	}
}

func renderReply(result templates.ComposeResult) string {
	pretty, err := json.MarshalIndent(result.WorkflowJSON, "", "  ")
	if err != nil {
		pretty = []byte("{}")
	}
	rendered := string(pretty)
	if len(rendered) > maxRenderedJSON {
		rendered = truncateUTF8(rendered, maxRenderedJSON) + "\n... (truncated)"
	}

	return fmt.Sprintf("Done!\n\n%s\n\nRequired secrets: %s\nRequired inputs: %s\n\n```json\n%s\n```",
		result.Summary,
		listOrNone(result.RequiredSecrets),
		listOrNone(result.RequiredInputs),
		rendered)
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func listOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
