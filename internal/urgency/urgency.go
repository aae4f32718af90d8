// Package urgency maps a batch of items to an urgency level using keyword
// and volume signals.
package urgency

import (
	"strings"

	"github.com/roimaishar/newser/internal/domain"
	"github.com/roimaishar/newser/internal/fingerprint"
)

// DefaultVolumeThreshold is the batch size at which urgency rises to high.
const DefaultVolumeThreshold = 3

// DefaultBreakingKeywords covers terror, war and emergency terms in Hebrew.
var DefaultBreakingKeywords = []string{
	"פיגוע", "רצח", "מלחמה", "טיל", "חירום", "דחוף",
}

// Classifier computes urgency for a batch. Classification is a pure function
// of the items and the configured signals; the keyword set is fixed at
// construction time and never mutated during evaluation.
type Classifier struct {
	keywords        []string
	volumeThreshold int
}

// NewClassifier builds a classifier over normalized breaking keywords. Empty
// keywords are dropped; a zero or negative volume threshold falls back to the
// default.
func NewClassifier(breakingKeywords []string, volumeThreshold int) *Classifier {
	keywords := make([]string, 0, len(breakingKeywords))
	for _, kw := range breakingKeywords {
		if normalized := fingerprint.Normalize(kw); normalized != "" {
			keywords = append(keywords, normalized)
		}
	}
	if volumeThreshold <= 0 {
		volumeThreshold = DefaultVolumeThreshold
	}
	return &Classifier{
		keywords:        keywords,
		volumeThreshold: volumeThreshold,
	}
}

// Classify applies the rules in strict priority order:
// breaking keyword substring match, then volume threshold, then normal.
// It never returns low: low is a pass-through category for items pre-tagged
// upstream, not a computed level.
func (c *Classifier) Classify(items []domain.Item) domain.UrgencyLevel {
	for _, item := range items {
		if c.matchesBreaking(item) {
			return domain.UrgencyBreaking
		}
	}
	if len(items) >= c.volumeThreshold {
		return domain.UrgencyHigh
	}
	return domain.UrgencyNormal
}

// BatchUrgency aggregates classification with the upstream low-priority tag:
// a batch consisting entirely of pre-tagged low items stays low.
func (c *Classifier) BatchUrgency(items []domain.Item) domain.UrgencyLevel {
	if len(items) > 0 && allLowPriority(items) {
		return domain.UrgencyLow
	}
	return c.Classify(items)
}

func (c *Classifier) matchesBreaking(item domain.Item) bool {
	text := fingerprint.Normalize(item.Title)
	if item.Summary != nil {
		text += " " + fingerprint.Normalize(*item.Summary)
	}
	if text == "" {
		return false
	}
	// Substring, not word-bounded: Hebrew prefixes (ה, ל, ב) attach directly
	// to the word, so "הפיגוע" and "למלחמה" must still match.
	for _, kw := range c.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func allLowPriority(items []domain.Item) bool {
	for _, item := range items {
		if !item.LowPriority {
			return false
		}
	}
	return true
}
