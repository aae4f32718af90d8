package domain

import "time"

// Action is what the scheduler decided to do with a batch.
type Action int

const (
	ActionNotifyNow Action = iota
	ActionDefer
	ActionSuppress
)

func (a Action) String() string {
	switch a {
	case ActionNotifyNow:
		return "notify_now"
	case ActionDefer:
		return "defer"
	case ActionSuppress:
		return "suppress"
	}
	return "unknown"
}

// Decision is the immutable output of one scheduling evaluation.
type Decision struct {
	Action      Action
	Urgency     UrgencyLevel
	StoryCap    int
	Window      WindowClass
	DeferUntil  time.Time   // zero unless Action == ActionDefer
	DeferWindow WindowClass // target window class when deferring
	SinceLast   string      // coarse gap since the previous notification
	Reasoning   string      // names the rule that fired, never empty
}

// Analysis is the optional enrichment returned by the text-analysis
// collaborator. The urgency classifier stays authoritative; the hint is
// carried in the delivery payload only.
type Analysis struct {
	UrgencyHint string
	Summary     string
}

// InvalidItem records an item excluded from a batch with the reason.
type InvalidItem struct {
	Item   Item
	Reason string
}

// BatchStats holds statistics about one batch evaluation.
type BatchStats struct {
	Recipient  string
	Fetched    int
	Invalid    int
	Unique     int
	Duplicates int
	Urgency    UrgencyLevel
	Action     Action
	Delivered  bool
	Duration   time.Duration
}
