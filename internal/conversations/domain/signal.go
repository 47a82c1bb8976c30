package domain

// SignalKind distinguishes the events that drive a stage transition.
type SignalKind string

const (
	// SignalAnswer carries a reply to the currently pending question.
	SignalAnswer SignalKind = "answer"
	// SignalFreeText carries a message not tied to a pending question.
	SignalFreeText SignalKind = "free_text"
	// SignalReset returns the conversation to NEW with evidence cleared.
	SignalReset SignalKind = "system_reset"
	// SignalTimeout closes an idle conversation. Generated by the sweep,
	// never by a real message.
	SignalTimeout SignalKind = "system_timeout"
)

// Signal is a single inbound event for one conversation.
type Signal struct {
	Kind    SignalKind
	Payload string
	// DedupKey identifies the logical delivery. Redeliveries of the same
	// upstream event carry the same key and are applied at most once.
	DedupKey string
}

// IsSystem reports whether the signal was generated internally rather than
// by the lead.
func (s Signal) IsSystem() bool {
	return s.Kind == SignalReset || s.Kind == SignalTimeout
}

// IsMessage reports whether the signal represents a real inbound message.
func (s Signal) IsMessage() bool {
	return s.Kind == SignalAnswer || s.Kind == SignalFreeText
}
