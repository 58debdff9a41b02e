package ledger

import (
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

// Subscribe registers a listener for ledger notifications. Delivery is
// non-blocking: a listener whose buffer is full misses events rather than
// stalling the ledger. The returned function unsubscribes and closes the channel.
func (l *Ledger) Subscribe(buffer int) (<-chan types.LedgerEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan types.LedgerEvent, buffer)
	l.subs[id] = ch

	unsubscribe := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if c, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(c)
		}
	}

	return ch, unsubscribe
}

// emit must be called with l.mu held.
func (l *Ledger) emit(ev types.LedgerEvent) {
	EventsEmittedTotal.WithLabelValues(string(ev.Kind)).Inc()

	for id, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			EventsDroppedTotal.Inc()
			l.logger.Warn("ledger-event-dropped",
				zap.Int("subscriber", id),
				zap.String("kind", string(ev.Kind)),
				zap.Uint64("market-id", ev.MarketID))
		}
	}
}
