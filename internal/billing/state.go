package billing

import (
	"strconv"
	"time"

	"subledger/internal/models"
)

// ScheduledChange is a provider-declared pending action on a
// subscription, e.g. a cancellation taking effect at period end.
type ScheduledChange struct {
	Action      string
	EffectiveAt time.Time
}

// StateEvent is the provider-neutral view of one webhook's status
// information.
type StateEvent struct {
	NativeStatus    string
	ScheduledChange *ScheduledChange
}

// PriorState is what the stored line item said before this event.
// The zero value represents a never-seen line item.
type PriorState struct {
	Status                    models.LineItemStatus
	PastDueSince              *time.Time
	CancellationEffectiveDate *time.Time
}

// Resolution is the resolved target state for one line item.
type Resolution struct {
	Status                    models.LineItemStatus
	CancellationEffectiveDate *time.Time
	PastDueSince              *time.Time
}

// ResolveState computes the next line item state from an event and the
// prior record. Pure; now is passed in so replays are testable.
//
// past_due_since is an edge marker: set exactly at the transition into
// past_due, cleared when the item goes active, otherwise carried forward.
// A replayed past_due event therefore leaves it untouched.
func ResolveState(event StateEvent, prior PriorState, now time.Time) Resolution {
	res := Resolution{}

	switch {
	case event.ScheduledChange != nil &&
		event.ScheduledChange.Action == "cancel" &&
		!event.ScheduledChange.EffectiveAt.IsZero():
		res.Status = models.StatusDeleted
		effective := event.ScheduledChange.EffectiveAt
		res.CancellationEffectiveDate = &effective
	case isCanceledStatus(event.NativeStatus):
		res.Status = models.StatusDeleted
		// A replayed cancel must not move the recorded date.
		if prior.Status == models.StatusDeleted && prior.CancellationEffectiveDate != nil {
			res.CancellationEffectiveDate = prior.CancellationEffectiveDate
		} else {
			res.CancellationEffectiveDate = &now
		}
	default:
		res.Status = normalizeStatus(event.NativeStatus)
		// A bare status re-send never clears a recorded cancellation.
		res.CancellationEffectiveDate = prior.CancellationEffectiveDate
	}

	switch {
	case res.Status == models.StatusPastDue && prior.Status != models.StatusPastDue:
		res.PastDueSince = &now
	case res.Status == models.StatusActive:
		res.PastDueSince = nil
	default:
		res.PastDueSince = prior.PastDueSince
	}

	return res
}

// ResolveQuantity applies the legacy protocol's field precedence:
// new_quantity wins over quantity, and the prior value is retained when
// neither parses. First match wins, never a merge.
func ResolveQuantity(newQuantity, quantity string, prior int) int {
	if n, err := strconv.Atoi(newQuantity); err == nil {
		return n
	}
	if n, err := strconv.Atoi(quantity); err == nil {
		return n
	}
	return prior
}

func isCanceledStatus(s string) bool {
	switch s {
	case "canceled", "cancelled", "unsubscribed", "deleted":
		return true
	}
	return false
}

// normalizeStatus maps provider status vocabulary onto the stored enum,
// passing unrecognized values through unchanged.
func normalizeStatus(s string) models.LineItemStatus {
	switch s {
	case "active":
		return models.StatusActive
	case "trialing", "trialling":
		return models.StatusTrialing
	case "paused":
		return models.StatusPaused
	case "past_due", "past due":
		return models.StatusPastDue
	default:
		return models.LineItemStatus(s)
	}
}
