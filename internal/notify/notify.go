// Package notify turns subtask mutations into notification records for the
// assignee. Detection compares snapshots captured around the write; dispatch
// persists one notification per qualifying change and never notifies the
// actor about their own edit.
package notify

import (
	"context"
	"fmt"
	"time"

	"plantrack/api/internal/schedule"
	"plantrack/api/internal/store"
)

// Notification type tags.
const (
	TypeTaskCreated   = "TASK_CREATED"
	TypeTaskUpdated   = "TASK_UPDATED"
	TypeTaskDeleted   = "TASK_DELETED"
	TypeTaskAssigned  = "TASK_ASSIGNED"
	TypeTaskCompleted = "TASK_COMPLETED"
	TypeTaskOverdue   = "TASK_OVERDUE"
	TypeDateChanged   = "DATE_CHANGED"
	TypeStatusChanged = "STATUS_CHANGED"
)

// Snapshot captures the notification-relevant fields of a subtask at one
// point in time.
type Snapshot struct {
	StartDate  time.Time
	EndDate    time.Time
	Status     schedule.Status
	AssigneeID *int64
}

// SnapshotOf reads a snapshot from a subtask row.
func SnapshotOf(st store.SubTask) Snapshot {
	return Snapshot{
		StartDate:  st.StartDate,
		EndDate:    st.EndDate,
		Status:     st.Status,
		AssigneeID: st.AssigneeID,
	}
}

// Changes flags the notification-worthy differences between two snapshots.
// Progress on its own never qualifies.
type Changes struct {
	DatesChanged    bool
	StatusChanged   bool
	AssigneeChanged bool
}

// Any reports whether at least one flag is set.
func (c Changes) Any() bool {
	return c.DatesChanged || c.StatusChanged || c.AssigneeChanged
}

// Detect compares before/after snapshots of the same subtask.
func Detect(before, after Snapshot) Changes {
	return Changes{
		DatesChanged:    !sameDay(before.StartDate, after.StartDate) || !sameDay(before.EndDate, after.EndDate),
		StatusChanged:   before.Status != after.Status,
		AssigneeChanged: !sameAssignee(before.AssigneeID, after.AssigneeID),
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameAssignee(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Sink persists notifications. Insert failures are reported to the caller
// but must not undo the mutation that triggered them.
type Sink interface {
	InsertNotification(ctx context.Context, n *store.Notification) error
}

// Dispatcher writes notifications for detected changes.
type Dispatcher struct {
	sink Sink
}

func NewDispatcher(sink Sink) *Dispatcher {
	return &Dispatcher{sink: sink}
}

var statusLabels = map[schedule.Status]string{
	schedule.StatusPlanned:    "planned",
	schedule.StatusInProgress: "in progress",
	schedule.StatusCompleted:  "completed",
	schedule.StatusOverdue:    "overdue",
}

// SubTaskUpdated emits notifications for an applied subtask update. The
// recipient is the current assignee; edits to one's own task stay silent.
// Returns how many notifications were written.
func (d *Dispatcher) SubTaskUpdated(ctx context.Context, changes Changes, st store.SubTask, activityID, actorID int64) (int, error) {
	if st.AssigneeID == nil || *st.AssigneeID == actorID {
		return 0, nil
	}

	written := 0
	if changes.AssigneeChanged {
		msg := fmt.Sprintf("You were assigned the task %q.", st.Title)
		if err := d.insert(ctx, TypeTaskAssigned, msg, st, activityID, actorID); err != nil {
			return written, err
		}
		written++
	}
	if changes.DatesChanged {
		msg := fmt.Sprintf("Dates for task %q were updated: %s to %s.",
			st.Title, st.StartDate.Format("2006-01-02"), st.EndDate.Format("2006-01-02"))
		if err := d.insert(ctx, TypeDateChanged, msg, st, activityID, actorID); err != nil {
			return written, err
		}
		written++
	}
	if changes.StatusChanged {
		label, ok := statusLabels[st.Status]
		if !ok {
			label = string(st.Status)
		}
		msg := fmt.Sprintf("Status of task %q changed to %s.", st.Title, label)
		if err := d.insert(ctx, TypeStatusChanged, msg, st, activityID, actorID); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// SubTaskCreated notifies the assignee of a newly created task.
func (d *Dispatcher) SubTaskCreated(ctx context.Context, st store.SubTask, activityID, actorID int64) (int, error) {
	if st.AssigneeID == nil || *st.AssigneeID == actorID {
		return 0, nil
	}
	msg := fmt.Sprintf("You were assigned the task %q.", st.Title)
	if err := d.insert(ctx, TypeTaskAssigned, msg, st, activityID, actorID); err != nil {
		return 0, err
	}
	return 1, nil
}

// SubTaskDeleted notifies the assignee that their task was removed. The
// subtask row is already gone, so the notification links only the activity.
func (d *Dispatcher) SubTaskDeleted(ctx context.Context, st store.SubTask, activityID, actorID int64) (int, error) {
	if st.AssigneeID == nil || *st.AssigneeID == actorID {
		return 0, nil
	}
	n := &store.Notification{
		Type:         TypeTaskDeleted,
		Message:      fmt.Sprintf("Task %q was deleted.", st.Title),
		TargetUserID: *st.AssigneeID,
		CreatedByID:  &actorID,
		ActivityID:   &activityID,
	}
	if err := d.sink.InsertNotification(ctx, n); err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	return 1, nil
}

func (d *Dispatcher) insert(ctx context.Context, typ, message string, st store.SubTask, activityID, actorID int64) error {
	n := &store.Notification{
		Type:         typ,
		Message:      message,
		TargetUserID: *st.AssigneeID,
		CreatedByID:  &actorID,
		ActivityID:   &activityID,
		SubTaskID:    &st.ID,
	}
	if err := d.sink.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
