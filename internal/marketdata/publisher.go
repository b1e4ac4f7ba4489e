package marketdata

import (
	"context"

	"lv-tradecore/internal/logging"
)

var publisherLog = logging.Component("publisher")

// RunPublisher forwards debounced quote batches to websocket clients.
func RunPublisher(ctx context.Context, cache *Cache, sub *Subscription, bus *Bus) error {
	publisherLog.Info("quote publisher started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.C():
			symbols := sub.Drain()
			if len(symbols) == 0 {
				continue
			}
			bus.Publish(Event{Type: EventQuotes, Data: cache.Snapshot(symbols)})
		}
	}
}
