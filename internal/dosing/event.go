package dosing

import "time"

// EventStatus tracks the lifecycle of a materialized due-dose event.
type EventStatus string

const (
	// EventStatusPending marks a freshly materialized, unactioned event.
	EventStatusPending EventStatus = "PENDING"
	// EventStatusTaken marks a dose the patient confirmed.
	EventStatusTaken EventStatus = "TAKEN"
	// EventStatusSkipped marks a dose the patient declined.
	EventStatusSkipped EventStatus = "SKIPPED"
	// EventStatusFailed marks a dispense that could not complete.
	EventStatusFailed EventStatus = "FAILED"
	// EventStatusMissed marks a dose that expired without action.
	EventStatusMissed EventStatus = "MISSED"
)

// Valid reports whether the status is one of the known values.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusPending, EventStatusTaken, EventStatusSkipped, EventStatusFailed, EventStatusMissed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status machine permits moving from s to
// next. PENDING may move to any acted state; FAILED may be retried into
// TAKEN; TAKEN, SKIPPED and MISSED are terminal.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	switch s {
	case EventStatusPending:
		return next == EventStatusTaken || next == EventStatusSkipped ||
			next == EventStatusFailed || next == EventStatusMissed
	case EventStatusFailed:
		return next == EventStatusTaken
	default:
		return false
	}
}

// EventDetails is the structured payload attached to an event at creation:
// the originating schedule, the dose items as they were when the event was
// materialized, and free-form annotations such as provider notes or the
// running snooze count.
type EventDetails struct {
	ScheduleID  string
	DoseItems   []DoseItem
	Annotations map[string]string
}

// EventRecord is the persisted unit representing one specific due-dose
// instance. Records are created once per occurrence identity and afterwards
// only mutated through status transitions.
type EventRecord struct {
	ID         string
	DueAt      time.Time
	GroupLabel string
	Status     EventStatus
	ActedAt    *time.Time
	Details    EventDetails
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IdentityKey derives the stable reconciliation key of the record: the due
// instant at second precision joined with the group label. Two records with
// the same key describe the same occurrence.
func (r EventRecord) IdentityKey() string {
	return IdentityKey(r.DueAt, r.GroupLabel)
}

// IdentityKey builds the occurrence identity key used by reconciliation.
func IdentityKey(dueAt time.Time, groupLabel string) string {
	return dueAt.UTC().Truncate(time.Second).Format(time.RFC3339) + "-" + groupLabel
}
