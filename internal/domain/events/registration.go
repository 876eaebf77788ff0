package events

// Registration maps an event type to the set of data versions a handler
// accepts. The special version token DataVersionAny matches every version.
// A registration is built once when a handler is constructed and is
// immutable thereafter; matching is an exact, case-sensitive string
// comparison with no semantic-version interpretation.
type Registration map[EventType][]string

// Matches reports whether the registration covers the given event type and
// data version.
func (r Registration) Matches(eventType EventType, dataVersion string) bool {
	versions, ok := r[eventType]
	if !ok {
		return false
	}

	for _, v := range versions {
		if v == DataVersionAny || v == dataVersion {
			return true
		}
	}
	return false
}
