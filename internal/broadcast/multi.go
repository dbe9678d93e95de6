package broadcast

import "github.com/gdbrns/go-whatsapp-pair-session/internal/pairing"

// Multi publishes to every non-nil sink in order.
type Multi []pairing.Broadcaster

func (m Multi) Publish(event string, snap pairing.Snapshot) {
	for _, sink := range m {
		if sink != nil {
			sink.Publish(event, snap)
		}
	}
}
