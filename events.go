package sessync

// EventType is the closed set of session change events.
type EventType string

const (
	// EventInitial is delivered exactly once per subscription, before any
	// other event, carrying the session current at subscribe time (nil if
	// none could be fetched).
	EventInitial EventType = "initial"

	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventTokenRefreshed EventType = "token_refreshed"
	EventUserUpdated    EventType = "user_updated"
)

// Event is one session transition as seen by a subscriber. Session is nil
// for signed_out and for an initial event with no live session.
type Event struct {
	Type    EventType
	Session *Session
}

// Handler observes session change events. A returned error is logged and
// never affects other subscribers or the triggering operation.
type Handler func(Event) error
