// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/polysentinel/internal/models"
)

// StatusFunc reports a one-line service status for the /status command.
type StatusFunc func() string

// MarketFunc reports the statistics of one market for /status <title>.
type MarketFunc func(title string) string

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	status         StatusFunc
	market         MarketFunc
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SetStatusFunc installs the handler behind the /status command.
func (c *Client) SetStatusFunc(fn StatusFunc) {
	c.status = fn
}

// SetMarketFunc installs the handler behind /status <title>.
func (c *Client) SetMarketFunc(fn MarketFunc) {
	c.market = fn
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	text, ok := c.reply(msg.Command(), msg.CommandArguments())
	if !ok {
		return
	}
	c.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, text)) //nolint:errcheck
}

// reply returns the plain-text answer to a bot command, if any.
func (c *Client) reply(command, args string) (string, bool) {
	switch command {
	case "ping":
		return "Pong", true
	case "status":
		if title := strings.TrimSpace(args); title != "" {
			if c.market == nil {
				return "", false
			}
			return c.market(title), true
		}
		if c.status == nil {
			return "", false
		}
		return c.status(), true
	default:
		return "", false
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a feed failure notification.
func (c *Client) SendError(feedErr error) error {
	text := fmt.Sprintf("⚠️ *Feed error*\n`%s`", escapeMarkdownV2(feedErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendAlert sends one anomaly alert.
func (c *Client) SendAlert(event models.AlertEvent) error {
	return c.sendMarkdownV2(formatAlert(event))
}

// formatAlert formats an alert event into a Telegram MarkdownV2 message.
func formatAlert(event models.AlertEvent) string {
	var b strings.Builder

	emoji := "🚨"
	switch event.Kind {
	case models.AlertWhaleAccumulation:
		emoji = "🐋"
	case models.AlertPriceSpike:
		emoji = "📈"
	}

	fmt.Fprintf(&b, "%s *%s*\n", emoji, escapeMarkdownV2(event.Kind.String()))
	fmt.Fprintf(&b, "%s\n\n", escapeMarkdownV2(event.Title))
	fmt.Fprintf(&b, "Side: %s\n", escapeMarkdownV2(event.Side))
	fmt.Fprintf(&b, "Outcome: %s\n", escapeMarkdownV2(event.Outcome))
	fmt.Fprintf(&b, "Price: *%s* \\(avg %s\\)\n",
		escapeMarkdownV2(strconv.FormatFloat(event.Price, 'f', 3, 64)),
		escapeMarkdownV2(strconv.FormatFloat(event.AvgPrice, 'f', 3, 64)))
	fmt.Fprintf(&b, "Size: *%d* \\(avg %s\\)\n",
		event.Size,
		escapeMarkdownV2(strconv.FormatFloat(event.AvgSize, 'f', 1, 64)))
	fmt.Fprintf(&b, "Time: %s", escapeMarkdownV2(event.Timestamp))

	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
