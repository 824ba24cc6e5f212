package events

import "github.com/kode4food/foreman/pkg/api"

type (
	// Publisher is the side of the hub that components raise events on
	Publisher interface {
		Raise(typ api.EventType, source string, data any)
	}

	// Subscriber is the side of the hub that triggers and streams consume
	Subscriber interface {
		Subscribe(pattern string, handler Handler) (SubscriptionID, error)
		Unsubscribe(id SubscriptionID) error
	}

	discard struct{}
)

// Discard is a Publisher that drops every event
var Discard Publisher = discard{}

func (discard) Raise(api.EventType, string, any) {}

var (
	_ Publisher  = (*Hub)(nil)
	_ Subscriber = (*Hub)(nil)
)
