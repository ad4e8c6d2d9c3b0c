package telegram

import (
	"context"
	stderrors "errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/reshetovitsme/tag-feed/internal/modules/feed/domain"
	"github.com/reshetovitsme/tag-feed/internal/modules/feed/repository"
	"github.com/reshetovitsme/tag-feed/internal/shared/config"
	"github.com/reshetovitsme/tag-feed/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// MarkerKey is the repository key holding the title of the newest
// announced release
const MarkerKey = "announced"

// ItemSource provides the currently published feed items
type ItemSource interface {
	CachedItems(ctx context.Context) ([]domain.Item, error)
}

// Sender is the subset of *bot.Bot used to post messages
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Handler announces new releases to a Telegram chat and answers bot commands
type Handler struct {
	cfg    *config.Config
	repo   repository.Repository
	items  ItemSource
	sender Sender

	// serializes marker read, send and marker write
	announceMu sync.Mutex
}

// New creates a new Telegram handler
func New(cfg *config.Config, repo repository.Repository, items ItemSource) *Handler {
	return &Handler{
		cfg:   cfg,
		repo:  repo,
		items: items,
	}
}

// SetSender sets the client used for outgoing messages
func (h *Handler) SetSender(sender Sender) {
	h.sender = sender
}

// RegisterCommands registers bot commands
func (h *Handler) RegisterCommands(b *bot.Bot) {
	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, h.handleStart)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/latest", bot.MatchTypeExact, h.handleLatest)
}

// HandleUpdate ignores everything that is not a registered command
func (h *Handler) HandleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message != nil {
		slog.Debug("Ignoring telegram message", "chat_id", update.Message.Chat.ID)
	}
}

// Announce posts the items that are newer than the last announced one.
// items must be ordered newest first. The first call only records a marker
// so an existing backlog is not replayed.
func (h *Handler) Announce(ctx context.Context, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}
	newest := items[0].Title

	h.announceMu.Lock()
	defer h.announceMu.Unlock()

	marker, err := h.repo.Get(ctx, MarkerKey)
	if err != nil {
		if stderrors.Is(err, errors.ErrCacheNotFound) {
			return h.saveMarker(ctx, newest)
		}
		return oops.With("context", "failed to read announce marker").Wrap(err)
	}

	last := string(marker.Data)
	if last == newest {
		return nil
	}

	fresh := Unannounced(items, last)
	if h.sender == nil {
		return oops.Errorf("telegram sender not initialized")
	}
	if _, err := h.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    h.chatID(),
		Text:      formatReleases("New releases", fresh),
		ParseMode: models.ParseModeHTML,
	}); err != nil {
		return oops.With("chat_id", h.cfg.TelegramChatID, "context", "failed to send announcement").Wrap(err)
	}

	slog.Info("Announced releases", "chat_id", h.cfg.TelegramChatID, "count", len(fresh))
	return h.saveMarker(ctx, newest)
}

// Unannounced returns the items published after the one titled last. When
// last is no longer in the feed every item is returned.
func Unannounced(items []domain.Item, last string) []domain.Item {
	_, idx, found := lo.FindIndexOf(items, func(item domain.Item) bool {
		return item.Title == last
	})
	if !found {
		return items
	}
	return items[:idx]
}

func (h *Handler) saveMarker(ctx context.Context, title string) error {
	if _, err := h.repo.Put(ctx, MarkerKey, []byte(title)); err != nil {
		return oops.With("context", "failed to save announce marker").Wrap(err)
	}
	return nil
}

// chatID accepts both numeric ids and @channel usernames
func (h *Handler) chatID() any {
	if id, err := strconv.ParseInt(h.cfg.TelegramChatID, 10, 64); err == nil {
		return id
	}
	return h.cfg.TelegramChatID
}

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   fmt.Sprintf("I announce new releases of %s.\nUse /latest to see the current feed.", h.cfg.FeedTitle),
	})
}

func (h *Handler) handleLatest(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	text := "No releases published yet."
	items, err := h.items.CachedItems(ctx)
	switch {
	case err != nil && !stderrors.Is(err, errors.ErrCacheNotFound):
		slog.Error("Failed to load cached items", "error", err)
		text = "Failed to load the feed, try again later."
	case len(items) > 0:
		text = formatReleases("Latest releases", items)
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    update.Message.Chat.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
}

func formatReleases(heading string, items []domain.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(heading))
	for _, item := range items {
		title := html.EscapeString(item.Title)
		if item.Link != "" {
			fmt.Fprintf(&b, "• <a href=\"%s\">%s</a>", html.EscapeString(item.Link), title)
		} else {
			fmt.Fprintf(&b, "• %s", title)
		}
		if !item.Date.IsZero() {
			fmt.Fprintf(&b, " (%s)", item.Date.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
