package ricod

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"rico/core/events"
	"rico/core/types"
)

const streamHistoryLimit = 2048

// StreamUpdate is one sale event as delivered to websocket subscribers.
type StreamUpdate struct {
	Sequence   uint64            `json:"sequence"`
	Cursor     string            `json:"cursor"`
	Type       string            `json:"type"`
	Tick       uint64            `json:"tick"`
	Attributes map[string]string `json:"attributes"`
}

func cloneStreamUpdate(update StreamUpdate) StreamUpdate {
	cloned := update
	if update.Attributes != nil {
		cloned.Attributes = make(map[string]string, len(update.Attributes))
		for k, v := range update.Attributes {
			cloned.Attributes[k] = v
		}
	}
	return cloned
}

// EventHub fans committed sale events out to subscribers and keeps a bounded
// history so reconnecting clients can resume from a cursor. It implements
// events.Emitter and never blocks the publisher.
type EventHub struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan StreamUpdate
	history []StreamUpdate
}

// NewEventHub returns an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[uint64]chan StreamUpdate)}
}

// Emit implements events.Emitter. Events without a transport payload are
// dropped.
func (h *EventHub) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok {
		return
	}
	rendered := payload.Event()
	if rendered == nil {
		return
	}
	h.publish(rendered)
}

func (h *EventHub) publish(evt *types.Event) {
	h.mu.Lock()
	h.seq++
	update := StreamUpdate{
		Sequence:   h.seq,
		Cursor:     strconv.FormatUint(h.seq, 10),
		Type:       evt.Type,
		Tick:       evt.Tick,
		Attributes: evt.Attributes,
	}
	stored := cloneStreamUpdate(update)
	h.history = append(h.history, stored)
	if len(h.history) > streamHistoryLimit {
		excess := len(h.history) - streamHistoryLimit
		trimmed := make([]StreamUpdate, streamHistoryLimit)
		copy(trimmed, h.history[excess:])
		h.history = trimmed
	}
	subscribers := make([]chan StreamUpdate, 0, len(h.subs))
	for _, ch := range h.subs {
		subscribers = append(subscribers, ch)
	}
	h.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- cloneStreamUpdate(update):
		default:
		}
	}
}

// Subscribe registers a subscriber for updates after cursor. It returns the
// live channel, a cancel func and the backlog the caller must replay first.
func (h *EventHub) Subscribe(ctx context.Context, cursor string) (<-chan StreamUpdate, func(), []StreamUpdate) {
	updates := make(chan StreamUpdate, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = updates
	backlog := make([]StreamUpdate, 0, len(h.history))
	for _, entry := range h.history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneStreamUpdate(entry))
		}
	}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
			h.mu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog
}
