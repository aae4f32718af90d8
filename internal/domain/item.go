package domain

import "time"

// Item is a single news item after feed parsing, before any decision logic.
type Item struct {
	ID          string
	Title       string
	Link        string
	Source      string // identifies the feed (e.g., "ynet", "haaretz")
	PublishedAt time.Time
	ContentHash string
	Summary     *string
	LowPriority bool // pre-tagged upstream, passed through unchanged
}

// Known item kinds. Content hashes identify normalized text, link hashes
// identify canonical URLs.
const (
	KnownKindContent = "content"
	KnownKindLink    = "link"
)

// KnownItemRecord tracks a hash the deduplicator has already seen.
type KnownItemRecord struct {
	ItemHash  string    `db:"item_hash"`
	Kind      string    `db:"kind"`
	FirstSeen time.Time `db:"first_seen"`
	LastSeen  time.Time `db:"last_seen"`
}

// UrgencyLevel is a coarse priority tag driving scheduling policy.
// Levels are totally ordered: low < normal < high < breaking.
type UrgencyLevel int

const (
	UrgencyLow UrgencyLevel = iota
	UrgencyNormal
	UrgencyHigh
	UrgencyBreaking
)

func (u UrgencyLevel) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyNormal:
		return "normal"
	case UrgencyHigh:
		return "high"
	case UrgencyBreaking:
		return "breaking"
	}
	return "unknown"
}

// WindowClass is a named time-of-day bucket with its own notification policy.
type WindowClass int

const (
	WindowQuiet WindowClass = iota
	WindowBusiness
	WindowPeak
)

func (w WindowClass) String() string {
	switch w {
	case WindowQuiet:
		return "quiet"
	case WindowBusiness:
		return "business"
	case WindowPeak:
		return "peak"
	}
	return "unknown"
}

// NotificationState records the last successful notify decision for a recipient.
type NotificationState struct {
	ID              int64        `db:"id"`
	Recipient       string       `db:"recipient"`
	LastNotifiedAt  time.Time    `db:"last_notified_at"`
	LastUrgencySent UrgencyLevel `db:"last_urgency_sent"`
}
