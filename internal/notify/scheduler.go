// Package notify turns urgency and time-window signals into a single
// scheduling decision per batch.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roimaishar/newser/internal/domain"
	"github.com/roimaishar/newser/internal/window"
)

// Scheduler owns the notification state for one recipient. It is the only
// writer of that state; Decide is safe for concurrent callers.
type Scheduler struct {
	schedule window.Schedule
	logger   *slog.Logger

	mu    sync.Mutex
	state domain.NotificationState
}

// NewScheduler creates a scheduler for one recipient with restored state.
// Pass a zero state when no previous notification exists.
func NewScheduler(schedule window.Schedule, state domain.NotificationState, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		state:    state,
		logger:   logger.With("recipient", state.Recipient),
	}
}

// State returns a copy of the current notification state.
func (s *Scheduler) State() domain.NotificationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Decide evaluates the decision table for the given urgency at the given
// time, and on notify-now atomically records the notification in the state.
//
//	          quiet            business        peak
//	breaking  notify now       notify now      notify now
//	high      defer->business  notify now      notify now
//	normal    defer->peak      defer->peak     notify now
//	low       suppress         suppress        suppress
func (s *Scheduler) Decide(urgency domain.UrgencyLevel, now time.Time) domain.Decision {
	class, storyCap := s.schedule.Resolve(now)

	decision := s.evaluate(urgency, class, storyCap, now)

	s.mu.Lock()
	decision.SinceLast = TimeSince(s.state.LastNotifiedAt, now)
	if decision.Action == domain.ActionNotifyNow {
		s.state.LastNotifiedAt = now
		s.state.LastUrgencySent = urgency
	}
	s.mu.Unlock()

	s.logger.Debug("scheduling decision",
		"action", decision.Action,
		"urgency", urgency,
		"window", class,
		"story_cap", decision.StoryCap,
		"reason", decision.Reasoning,
	)

	return decision
}

func (s *Scheduler) evaluate(urgency domain.UrgencyLevel, class domain.WindowClass, storyCap int, now time.Time) domain.Decision {
	switch urgency {
	case domain.UrgencyBreaking:
		return domain.Decision{
			Action:    domain.ActionNotifyNow,
			Urgency:   urgency,
			Window:    class,
			StoryCap:  storyCap,
			Reasoning: fmt.Sprintf("breaking always notifies immediately (window %s)", class),
		}

	case domain.UrgencyHigh:
		if class == domain.WindowQuiet {
			return s.deferTo(urgency, class, now, domain.WindowBusiness,
				"high urgency waits out quiet hours, deferred to business start")
		}
		return domain.Decision{
			Action:    domain.ActionNotifyNow,
			Urgency:   urgency,
			Window:    class,
			StoryCap:  storyCap,
			Reasoning: fmt.Sprintf("high urgency notifies during %s hours", class),
		}

	case domain.UrgencyNormal:
		if class == domain.WindowPeak {
			return domain.Decision{
				Action:    domain.ActionNotifyNow,
				Urgency:   urgency,
				Window:    class,
				StoryCap:  storyCap,
				Reasoning: "normal urgency notifies inside a peak window",
			}
		}
		return s.deferTo(urgency, class, now, domain.WindowPeak,
			fmt.Sprintf("normal urgency outside peak (window %s), deferred to next peak", class))

	default: // low
		return domain.Decision{
			Action:    domain.ActionSuppress,
			Urgency:   urgency,
			Window:    class,
			StoryCap:  0,
			Reasoning: "low priority items are suppressed for the daily digest",
		}
	}
}

func (s *Scheduler) deferTo(urgency domain.UrgencyLevel, class domain.WindowClass, now time.Time, target domain.WindowClass, reason string) domain.Decision {
	var until time.Time
	switch target {
	case domain.WindowBusiness:
		until = s.schedule.NextBusinessStart(now)
	default:
		until = s.schedule.NextPeakStart(now)
	}

	// Story cap comes from the window the delivery will land in.
	_, storyCap := s.schedule.Resolve(until)

	return domain.Decision{
		Action:      domain.ActionDefer,
		Urgency:     urgency,
		Window:      class,
		StoryCap:    storyCap,
		DeferUntil:  until,
		DeferWindow: target,
		Reasoning:   reason,
	}
}

// TimeSince renders the gap since a previous notification in coarse units
// for human-readable payloads. A zero time means no notification yet.
func TimeSince(last time.Time, now time.Time) string {
	if last.IsZero() {
		return "no data"
	}

	diff := now.Sub(last)
	switch {
	case diff >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(diff.Hours()/24))
	case diff >= 24*time.Hour:
		return "1 day"
	case diff >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(diff.Hours()))
	case diff >= time.Hour:
		return "1 hour"
	case diff >= 2*time.Minute:
		return fmt.Sprintf("%d minutes", int(diff.Minutes()))
	case diff >= time.Minute:
		return "1 minute"
	}
	return "less than a minute"
}
