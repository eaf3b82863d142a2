package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/polysentinel/internal/decoder"
	"github.com/rewired-gh/polysentinel/internal/models"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	lines   []string
	stopped atomic.Bool
	// stopAfter > 0 stops the submitter after that many lines
	stopAfter int
	rejected  []string
}

func (f *fakeSubmitter) Submit(line string) bool {
	if f.stopped.Load() {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	if f.stopAfter > 0 && len(f.lines) >= f.stopAfter {
		f.stopped.Store(true)
	}
	return true
}

func (f *fakeSubmitter) Running() bool { return !f.stopped.Load() }

func (f *fakeSubmitter) Reject(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, reason)
}

func (f *fakeSubmitter) rejections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rejected...)
}

func (f *fakeSubmitter) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func TestReadLines(t *testing.T) {
	input := "{a}\n\n{b}\r\n{c}"
	sub := &fakeSubmitter{}
	require.NoError(t, ReadLines(context.Background(), strings.NewReader(input), sub))
	// blank lines are the submitter's concern
	assert.Equal(t, []string{"{a}", "", "{b}", "{c}"}, sub.snapshot())
}

func TestReadLines_DropsOversizedLine(t *testing.T) {
	oversized := "{" + strings.Repeat("x", maxLineSize+10) + "}"
	input := "{valid}\n" + oversized + "\r\n{valid2}\n" + oversized

	sub := &fakeSubmitter{}
	require.NoError(t, ReadLines(context.Background(), strings.NewReader(input), sub))
	assert.Equal(t, []string{"{valid}", "{valid2}"}, sub.snapshot())
	assert.Equal(t, []string{decoder.ReasonTooLong, decoder.ReasonTooLong}, sub.rejections())
}

func TestReadLines_LineAtLimitKept(t *testing.T) {
	line := strings.Repeat("y", maxLineSize)
	sub := &fakeSubmitter{}
	require.NoError(t, ReadLines(context.Background(), strings.NewReader(line+"\r\n{next}\n"), sub))
	lines := sub.snapshot()
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], maxLineSize)
	assert.Equal(t, "{next}", lines[1])
	assert.Empty(t, sub.rejections())
}

func TestReadLines_StopsWhenNotRunning(t *testing.T) {
	sub := &fakeSubmitter{stopAfter: 2}
	require.NoError(t, ReadLines(context.Background(), strings.NewReader("1\n2\n3\n4\n"), sub))
	assert.Len(t, sub.snapshot(), 2)
}

func TestReadLines_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sub := &fakeSubmitter{}
	require.NoError(t, ReadLines(ctx, strings.NewReader("1\n2\n"), sub))
	assert.Empty(t, sub.snapshot())
}

func TestOpenPipe_Missing(t *testing.T) {
	_, err := OpenPipe("/nonexistent/pipe_1")
	assert.Error(t, err)
}

func tradeMessage(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"connection_id": "abc",
		"topic":         "activity",
		"type":          "trades",
		"timestamp":     1700000000000,
		"payload": map[string]any{
			"asset":        "7123",
			"title":        "Will it rain?",
			"name":         "whale",
			"outcome":      "No",
			"outcomeIndex": 1,
			"side":         "SELL",
			"size":         250.5,
			"price":        0.37,
			"timestamp":    1700000000,
		},
	})
	require.NoError(t, err)
	return b
}

func TestToLine(t *testing.T) {
	line, err := toLine(tradeMessage(t))
	require.NoError(t, err)

	rec, err := decoder.Decode(line)
	require.NoError(t, err)
	assert.Equal(t, "Will it rain?", rec.Title)
	assert.Equal(t, "whale", rec.Name)
	assert.Equal(t, "No", rec.Outcome)
	assert.Equal(t, models.OutcomeSecond, rec.OutcomeValue)
	assert.Equal(t, "SELL", rec.Side)
	assert.Equal(t, 250, rec.Size)
	assert.Equal(t, 0.37, rec.Price)
	assert.Equal(t, time.Unix(1700000000, 0).Format(timestampLayout), rec.Timestamp)
}

func TestToLine_Rejections(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `nope`},
		{"no payload", `{"type":"trades"}`},
		{"no type", `{"payload":{"asset":"1"}}`},
		{"unknown type", `{"type":"orders","payload":{"asset":"1"}}`},
		{"crypto payload", `{"type":"update","payload":{"symbol":"btcusdt","value":1}}`},
		{"unknown payload", `{"type":"trades","payload":{"foo":1}}`},
		{"brace in title", `{"type":"trades","payload":{"asset":"1","title":"a{b}"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := toLine([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestPolymarket_StreamsTrades(t *testing.T) {
	trade := tradeMessage(t)
	subs := make(chan subscriptionMessage, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscriptionMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subs <- sub
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"orders","payload":{}}`))
		_ = conn.WriteMessage(websocket.TextMessage, trade)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"update","payload":{"symbol":"ethusdt"}}`))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	feed := NewPolymarket(PolymarketConfig{
		URL:               "ws" + strings.TrimPrefix(srv.URL, "http"),
		PingInterval:      time.Second,
		ReconnectInterval: time.Millisecond,
		MaxRetries:        0,
	})

	sub := &fakeSubmitter{}
	err := feed.Run(context.Background(), sub)
	require.True(t, errors.Is(err, ErrMaxRetries), "got %v", err)

	var gotSub subscriptionMessage
	select {
	case gotSub = <-subs:
	case <-time.After(time.Second):
		t.Fatal("server never received a subscription")
	}
	require.Len(t, gotSub.Subscriptions, 1)
	assert.Equal(t, "subscribe", gotSub.Action)
	assert.Equal(t, topicActivity, gotSub.Subscriptions[0].Topic)
	assert.Equal(t, typeTrades, gotSub.Subscriptions[0].Type)

	lines := sub.snapshot()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "{Will it rain?}{whale}{No}{1}{SELL}{250.5}{0.37}"), lines[0])

	stats := feed.Stats()
	assert.Equal(t, int64(3), stats.Messages)
	assert.Equal(t, int64(1), stats.Forwarded)
	assert.Equal(t, int64(2), stats.Invalid)
}

func TestPolymarket_StopsOnCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// hold the connection open until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	feed := NewPolymarket(PolymarketConfig{
		URL:               "ws" + strings.TrimPrefix(srv.URL, "http"),
		PingInterval:      10 * time.Millisecond,
		ReconnectInterval: time.Millisecond,
		MaxRetries:        3,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- feed.Run(ctx, &fakeSubmitter{}) }()

	require.Eventually(t, func() bool { return feed.Stats().PingsSent > 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop after cancel")
	}
}

func TestPolymarket_DialFailureExhaustsRetries(t *testing.T) {
	feed := NewPolymarket(PolymarketConfig{
		URL:               "ws://127.0.0.1:1/ws",
		PingInterval:      time.Second,
		ReconnectInterval: time.Millisecond,
		MaxRetries:        2,
	})
	err := feed.Run(context.Background(), &fakeSubmitter{})
	assert.ErrorIs(t, err, ErrMaxRetries)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{2 * time.Second, 1, 4 * time.Second},
		{2 * time.Second, 3, 16 * time.Second},
		{2 * time.Second, 33, maxReconnectDelay},
		{2 * time.Second, 64, maxReconnectDelay},
		{time.Millisecond, 1000, maxReconnectDelay},
		{time.Hour, 1, maxReconnectDelay},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff(tt.base, tt.attempt), "backoff(%v, %d)", tt.base, tt.attempt)
	}
}
