package sink

import (
	"sync"

	"github.com/rewired-gh/polysentinel/internal/logger"
	"github.com/rewired-gh/polysentinel/internal/models"
)

// AlertSender delivers a single alert, typically over the network.
type AlertSender interface {
	SendAlert(event models.AlertEvent) error
}

// Telegram forwards alerts to an AlertSender from a background goroutine so
// analysis workers never wait on the network. Alerts arriving while the
// buffer is full are dropped.
type Telegram struct {
	sender AlertSender
	events chan models.AlertEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewTelegram(sender AlertSender, bufferSize int) *Telegram {
	if bufferSize < 1 {
		bufferSize = 1
	}
	t := &Telegram{
		sender: sender,
		events: make(chan models.AlertEvent, bufferSize),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Telegram) run() {
	defer close(t.done)
	for e := range t.events {
		if err := t.sender.SendAlert(e); err != nil {
			logger.Error("Failed to send Telegram alert %s: %v", e.ID, err)
		}
	}
}

func (t *Telegram) Alert(e models.AlertEvent) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.events <- e:
	default:
		logger.Warn("Telegram buffer full, dropping alert %s for %s", e.ID, e.Title)
	}
}

func (t *Telegram) Heartbeat(int) {}

func (t *Telegram) Summary([]models.KeySummary) {}

// Close stops accepting alerts and waits until buffered ones are sent.
func (t *Telegram) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.events)
	}
	t.mu.Unlock()
	<-t.done
}
