package sessync

// coalesce backfills an Options knob left at its zero value with the client
// default. Zero is never a meaningful setting for the knobs this guards
// (TTLs, skew, queue depth, logger/hooks handles), so it always reads as
// "use the default".
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
