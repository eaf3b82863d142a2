package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rewired-gh/polysentinel/internal/decoder"
	"github.com/rewired-gh/polysentinel/internal/logger"
)

// PolymarketConfig configures the live activity websocket feed.
type PolymarketConfig struct {
	URL               string
	PingInterval      time.Duration
	ReconnectInterval time.Duration
	MaxRetries        int
}

const (
	topicActivity = "activity"
	typeTrades    = "trades"
	typeUpdate    = "update"

	maxReconnectDelay = 5 * time.Minute

	// local wall clock, as shown to operators
	timestampLayout = "3:04:05 PM"
)

var ErrMaxRetries = errors.New("max reconnect attempts reached")

type subscription struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Filters string `json:"filters,omitempty"`
}

type subscriptionMessage struct {
	Action        string         `json:"action"`
	Subscriptions []subscription `json:"subscriptions"`
}

type message struct {
	ConnectionID string          `json:"connection_id"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    int64           `json:"timestamp"`
	Topic        string          `json:"topic"`
	Type         string          `json:"type"`
}

// activityPayload is a trade on the activity topic.
type activityPayload struct {
	Asset           json.RawMessage `json:"asset"`
	ConditionID     string          `json:"conditionId"`
	EventSlug       string          `json:"eventSlug"`
	Name            string          `json:"name"`
	Outcome         string          `json:"outcome"`
	OutcomeIndex    int             `json:"outcomeIndex"`
	Price           float64         `json:"price"`
	ProxyWallet     string          `json:"proxyWallet"`
	Side            string          `json:"side"`
	Size            float64         `json:"size"`
	Slug            string          `json:"slug"`
	Timestamp       int64           `json:"timestamp"`
	Title           string          `json:"title"`
	TransactionHash string          `json:"transactionHash"`
}

type cryptoPayload struct {
	Symbol string `json:"symbol"`
}

// PolymarketStats counts feed traffic.
type PolymarketStats struct {
	Messages  int64
	Forwarded int64
	Invalid   int64
	PingsSent int64
	Pongs     int64
}

// Polymarket streams trades from the Polymarket live-data websocket and
// forwards them as wire lines.
type Polymarket struct {
	config PolymarketConfig
	dialer *websocket.Dialer

	messages  atomic.Int64
	forwarded atomic.Int64
	invalid   atomic.Int64
	pingsSent atomic.Int64
	pongs     atomic.Int64
}

func NewPolymarket(config PolymarketConfig) *Polymarket {
	return &Polymarket{
		config: config,
		dialer: websocket.DefaultDialer,
	}
}

// Stats returns a copy of the traffic counters.
func (c *Polymarket) Stats() PolymarketStats {
	return PolymarketStats{
		Messages:  c.messages.Load(),
		Forwarded: c.forwarded.Load(),
		Invalid:   c.invalid.Load(),
		PingsSent: c.pingsSent.Load(),
		Pongs:     c.pongs.Load(),
	}
}

// Run connects and forwards trades until ctx is cancelled or sub stops.
// Lost connections are retried with exponential backoff; after MaxRetries
// consecutive failures Run returns ErrMaxRetries.
func (c *Polymarket) Run(ctx context.Context, sub Submitter) error {
	defer func() {
		s := c.Stats()
		logger.Info("Feed stats: %d messages, %d forwarded, %d invalid, %d pings sent, %d pongs",
			s.Messages, s.Forwarded, s.Invalid, s.PingsSent, s.Pongs)
	}()

	attempt := 0
	for {
		connected, err := c.session(ctx, sub)
		if ctx.Err() != nil || !sub.Running() {
			return nil
		}
		if connected {
			attempt = 0
		}
		logger.Warn("Disconnected from Polymarket: %v", err)

		attempt++
		if attempt > c.config.MaxRetries {
			return fmt.Errorf("%w (%d): %v", ErrMaxRetries, c.config.MaxRetries, err)
		}

		delay := backoff(c.config.ReconnectInterval, attempt)
		logger.Info("Reconnecting in %v (attempt %d/%d)", delay, attempt, c.config.MaxRetries)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// backoff returns base doubled attempt times, capped at maxReconnectDelay.
func backoff(base time.Duration, attempt int) time.Duration {
	if base >= maxReconnectDelay {
		return maxReconnectDelay
	}
	for i := 0; i < attempt; i++ {
		base *= 2
		if base >= maxReconnectDelay {
			return maxReconnectDelay
		}
	}
	return base
}

// session runs one connection. connected reports whether the dial succeeded.
func (c *Polymarket) session(ctx context.Context, sub Submitter) (connected bool, err error) {
	logger.Info("Connecting to %s", c.config.URL)
	conn, _, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	logger.Info("Connected to Polymarket")

	conn.SetPongHandler(func(string) error {
		c.pongs.Add(1)
		return nil
	})

	if err := c.subscribe(conn); err != nil {
		return true, err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.keepalive(sessionCtx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read failed: %w", err)
		}
		c.handleMessage(data, sub)
	}
}

func (c *Polymarket) subscribe(conn *websocket.Conn) error {
	msg := subscriptionMessage{
		Action:        "subscribe",
		Subscriptions: []subscription{{Topic: topicActivity, Type: typeTrades}},
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	logger.Debug("Subscribed to %s/%s", topicActivity, typeTrades)
	return nil
}

// keepalive pings on every interval and closes conn once ctx ends so the
// blocked read returns.
func (c *Polymarket) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
				time.Now().Add(time.Second))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.PingInterval)); err != nil {
				logger.Warn("Failed to send ping: %v", err)
				continue
			}
			c.pingsSent.Add(1)
		}
	}
}

func (c *Polymarket) handleMessage(data []byte, sub Submitter) {
	if len(data) == 0 {
		return
	}
	c.messages.Add(1)

	line, err := toLine(data)
	if err != nil {
		c.invalid.Add(1)
		logger.Debug("Skipping feed message: %v", err)
		return
	}
	if sub.Submit(line) {
		c.forwarded.Add(1)
	}
}

// toLine validates a feed message and renders its trade as a wire line.
func toLine(data []byte) (string, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	if len(msg.Payload) == 0 || string(msg.Payload) == "null" {
		return "", errors.New("message without payload")
	}
	if msg.Type == "" {
		return "", errors.New("message without type")
	}
	if msg.Type != typeTrades && msg.Type != typeUpdate {
		return "", fmt.Errorf("unknown message type: %s", msg.Type)
	}

	var activity activityPayload
	if err := json.Unmarshal(msg.Payload, &activity); err != nil {
		return "", fmt.Errorf("invalid payload: %w", err)
	}
	if len(activity.Asset) == 0 {
		var crypto cryptoPayload
		if err := json.Unmarshal(msg.Payload, &crypto); err == nil && crypto.Symbol != "" {
			return "", fmt.Errorf("crypto price payloads are not supported (%s)", crypto.Symbol)
		}
		return "", errors.New("unknown payload type")
	}

	return decoder.Encode(
		activity.Title,
		activity.Name,
		activity.Outcome,
		strconv.Itoa(activity.OutcomeIndex),
		activity.Side,
		strconv.FormatFloat(activity.Size, 'f', -1, 64),
		strconv.FormatFloat(activity.Price, 'f', -1, 64),
		time.Unix(activity.Timestamp, 0).Format(timestampLayout),
	)
}
