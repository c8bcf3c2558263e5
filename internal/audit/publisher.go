package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"quicklaunch.dev/internal/obs"
)

const (
	defaultBuffer       = 256
	defaultWriteTimeout = 5 * time.Second
)

// Publisher delivers audit entries to the store asynchronously.
// Publish is fire-and-forget: handlers never block on audit persistence
// and a full buffer drops the entry rather than stalling a request.
// Every entry is additionally mirrored to the structured log so a
// dropped write still leaves a trace.
type Publisher struct {
	store   Store
	entries chan Entry
	now     func() time.Time

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithBuffer overrides the channel buffer size.
func WithBuffer(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.entries = make(chan Entry, n)
		}
	}
}

// WithPublisherClock overrides the time source. Test use.
func WithPublisherClock(fn func() time.Time) PublisherOption {
	return func(p *Publisher) {
		if fn != nil {
			p.now = fn
		}
	}
}

// NewPublisher starts the background writer.
func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:   store,
		entries: make(chan Entry, defaultBuffer),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// Publish enqueues an entry for persistence. Missing event type defaults
// to domain; missing occurred_at is stamped with the current time.
func (p *Publisher) Publish(entry Entry) {
	entry.EventName = strings.TrimSpace(entry.EventName)
	if entry.EventName == "" {
		return
	}
	if entry.EventType == "" {
		entry.EventType = EventTypeDomain
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = p.now().UTC()
	}

	logEntry(entry)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		// The log mirror above is the only trace once the writer has
		// stopped; sending here would hit a closed channel.
		obs.LogRequest(map[string]any{
			"ts":    p.now().UTC().Format(time.RFC3339Nano),
			"level": "warn",
			"msg":   "audit_publisher_closed",
			"event": entry.EventName,
		})
		return
	}
	select {
	case p.entries <- entry:
	default:
		obs.LogRequest(map[string]any{
			"ts":    p.now().UTC().Format(time.RFC3339Nano),
			"level": "warn",
			"msg":   "audit_buffer_full",
			"event": entry.EventName,
		})
	}
}

// Close stops accepting entries and drains the buffer.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.entries)
		p.mu.Unlock()
		<-p.done
	})
}

func (p *Publisher) run() {
	defer close(p.done)
	for entry := range p.entries {
		ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
		if err := p.store.Append(ctx, &entry); err != nil {
			obs.LogRequest(map[string]any{
				"ts":    p.now().UTC().Format(time.RFC3339Nano),
				"level": "error",
				"msg":   "audit_append_failed",
				"event": entry.EventName,
				"error": err.Error(),
			})
		}
		cancel()
	}
}
