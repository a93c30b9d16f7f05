package sessync

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; the client calls them on
// hot paths.
type Hooks interface {
	// The cached entry was dropped on read.
	// reason ∈ {"corrupt", "gen_mismatch", "expired", "value_decode"}
	SelfHeal(storageKey, reason string)

	// A Set carrying a stale generation was skipped (an invalidation won
	// the race against an in-flight write).
	StaleWriteSkipped(storageKey string, observed, current uint64)

	// A subscriber callback panicked during event delivery.
	SubscriberPanic(subscriptionID string, recovered any)

	// Posting to or applying from the cross-context channel failed.
	BroadcastError(op string, err error)

	// GenStore errors (snapshot or bump).
	GenError(op string, err error)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)                  {}
func (NopHooks) StaleWriteSkipped(string, uint64, uint64) {}
func (NopHooks) SubscriberPanic(string, any)              {}
func (NopHooks) BroadcastError(string, error)             {}
func (NopHooks) GenError(string, error)                   {}
