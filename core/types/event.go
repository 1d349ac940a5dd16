package types

// Event represents a typed event emitted by a sale state transition. Tick is
// the sale tick at which the transition committed.
type Event struct {
	Type       string            `json:"type"`
	Tick       uint64            `json:"tick"`
	Attributes map[string]string `json:"attributes"`
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := &Event{Type: e.Type, Tick: e.Tick, Attributes: make(map[string]string, len(e.Attributes))}
	for k, v := range e.Attributes {
		clone.Attributes[k] = v
	}
	return clone
}
