package pipeline

import (
	"sync"

	"healthdoc/internal/model"
)

// Event is one progress update for a document, as published to stream
// subscribers and persisted as a checkpoint.
type Event struct {
	DocumentID string       `json:"document_id"`
	Stage      model.Stage  `json:"processing_stage"`
	Progress   int          `json:"progress"`
	Status     model.Status `json:"status"`
	Error      string       `json:"error,omitempty"`
}

const subscriberBuffer = 16

// Broker is an in-process publish/subscribe hub keyed by document ID.
// Publishing never blocks: a subscriber that falls behind loses events,
// which is acceptable because every event carries absolute state.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers interest in one document's events. The returned
// cancel function is idempotent and closes the channel.
func (b *Broker) Subscribe(documentID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[documentID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[documentID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[documentID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(b.subs, documentID)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber of its document.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[ev.DocumentID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
