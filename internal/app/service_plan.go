package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"plantrack/api/internal/notify"
	"plantrack/api/internal/rbac"
	"plantrack/api/internal/schedule"
	"plantrack/api/internal/search"
	"plantrack/api/internal/store"
)

const dateLayout = "2006-01-02"

// ActivityView is an activity with wire-format dates.
type ActivityView struct {
	store.Activity
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// SubTaskView is a subtask with wire-format dates and the derived status.
type SubTaskView struct {
	store.SubTask
	StartDate       string          `json:"start_date"`
	EndDate         string          `json:"end_date"`
	EffectiveStatus schedule.Status `json:"effective_status"`
}

type GanttTopic struct {
	store.Topic
	SubTasks []SubTaskView `json:"subtasks"`
}

// GanttView is the payload for the chart read path.
type GanttView struct {
	Activity ActivityView       `json:"activity"`
	Topics   []GanttTopic       `json:"topics"`
	Scale    string             `json:"scale"`
	Range    schedule.RangeInfo `json:"range"`
	Today    string             `json:"today"`
}

type ActivityInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

type TopicInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	OrderIndex  int    `json:"order_index"`
}

type SubTaskInput struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	Status          string `json:"status"`
	ProgressPercent int    `json:"progress_percent"`
	AssigneeID      *int64 `json:"assignee_id"`
}

// SubTaskPatch carries a partial update; nil fields are left untouched.
type SubTaskPatch struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	StartDate       *string `json:"start_date"`
	EndDate         *string `json:"end_date"`
	Status          *string `json:"status"`
	ProgressPercent *int    `json:"progress_percent"`
	AssigneeID      *int64  `json:"assignee_id"`
	ClearAssignee   bool    `json:"clear_assignee"`
}

func (s *Service) activityView(a store.Activity) ActivityView {
	return ActivityView{
		Activity:  a,
		StartDate: a.StartDate.Format(dateLayout),
		EndDate:   a.EndDate.Format(dateLayout),
	}
}

func (s *Service) subTaskView(st store.SubTask) SubTaskView {
	return SubTaskView{
		SubTask:         st,
		StartDate:       st.StartDate.Format(dateLayout),
		EndDate:         st.EndDate.Format(dateLayout),
		EffectiveStatus: schedule.EffectiveStatus(st.Status, st.ProgressPercent, st.EndDate, s.now()),
	}
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errValidation(fmt.Sprintf("%s is required", field), map[string]string{field: "required"})
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, errValidation(fmt.Sprintf("%s must be a YYYY-MM-DD date", field), map[string]string{field: "invalid date"})
	}
	return parsed, nil
}

func parseDateRange(startValue, endValue string) (time.Time, time.Time, error) {
	start, err := parseDate("start_date", startValue)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate("end_date", endValue)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errValidation("end_date must not be before start_date", nil)
	}
	return start, end, nil
}

// requireReader rejects sessions that may not read plan data.
func requireReader(sess Session) error {
	actor := sess.Actor()
	if !actor.Active || !rbac.Can(actor.Role, rbac.ActionRead) {
		return errForbidden()
	}
	return nil
}

// requireWriter is the coarse role gate for mutations. It runs before any
// existence lookup so a viewer learns nothing about what exists.
func requireWriter(sess Session) error {
	actor := sess.Actor()
	if !actor.Active || !rbac.Can(actor.Role, rbac.ActionWrite) {
		return errForbidden()
	}
	return nil
}

// --- activities ---

func (s *Service) ListActivities(ctx context.Context, sess Session) ([]ActivityView, error) {
	if err := requireReader(sess); err != nil {
		return nil, err
	}
	activities, err := s.store.ListActivities(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		views = append(views, s.activityView(a))
	}
	return views, nil
}

func (s *Service) GetActivity(ctx context.Context, sess Session, id int64) (ActivityView, error) {
	if err := requireReader(sess); err != nil {
		return ActivityView{}, err
	}
	activity, err := s.store.GetActivity(ctx, id)
	if err != nil {
		return ActivityView{}, err
	}
	return s.activityView(activity), nil
}

func (s *Service) CreateActivity(ctx context.Context, sess Session, in ActivityInput) (ActivityView, error) {
	if !rbac.CanCreateActivity(sess.Actor()) {
		return ActivityView{}, errForbidden()
	}
	if in.Name == "" {
		return ActivityView{}, errValidation("name is required", map[string]string{"name": "required"})
	}
	start, end, err := parseDateRange(in.StartDate, in.EndDate)
	if err != nil {
		return ActivityView{}, err
	}

	activity := store.Activity{
		Name:        in.Name,
		Description: in.Description,
		OwnerID:     sess.UserID,
		StartDate:   start,
		EndDate:     end,
	}
	if err := s.store.CreateActivity(ctx, &activity); err != nil {
		return ActivityView{}, err
	}
	s.indexActivity(activity)
	return s.activityView(activity), nil
}

func (s *Service) UpdateActivity(ctx context.Context, sess Session, id int64, in ActivityInput) (ActivityView, error) {
	if err := requireWriter(sess); err != nil {
		return ActivityView{}, err
	}
	activity, err := s.store.GetActivity(ctx, id)
	if err != nil {
		return ActivityView{}, err
	}
	if !rbac.CanManagePlan(sess.Actor(), activity.OwnerID) {
		return ActivityView{}, errForbidden()
	}
	if in.Name == "" {
		return ActivityView{}, errValidation("name is required", map[string]string{"name": "required"})
	}
	start, end, err := parseDateRange(in.StartDate, in.EndDate)
	if err != nil {
		return ActivityView{}, err
	}

	activity.Name = in.Name
	activity.Description = in.Description
	activity.StartDate = start
	activity.EndDate = end
	if err := s.store.UpdateActivity(ctx, &activity); err != nil {
		return ActivityView{}, err
	}
	s.indexActivity(activity)
	return s.activityView(activity), nil
}

func (s *Service) DeleteActivity(ctx context.Context, sess Session, id int64) error {
	if err := requireWriter(sess); err != nil {
		return err
	}
	activity, err := s.store.GetActivity(ctx, id)
	if err != nil {
		return err
	}
	if !rbac.CanDeleteActivity(sess.Actor()) {
		return errForbidden()
	}
	if err := s.store.DeleteActivity(ctx, activity.ID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteActivity(activity.ID)
	}
	return nil
}

// --- topics ---

func (s *Service) ListTopics(ctx context.Context, sess Session, activityID int64) ([]store.Topic, error) {
	if err := requireReader(sess); err != nil {
		return nil, err
	}
	if _, err := s.store.GetActivity(ctx, activityID); err != nil {
		return nil, err
	}
	return s.store.ListTopics(ctx, activityID)
}

func (s *Service) CreateTopic(ctx context.Context, sess Session, activityID int64, in TopicInput) (store.Topic, error) {
	if err := requireWriter(sess); err != nil {
		return store.Topic{}, err
	}
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return store.Topic{}, err
	}
	if !rbac.CanManagePlan(sess.Actor(), activity.OwnerID) {
		return store.Topic{}, errForbidden()
	}
	if in.Title == "" {
		return store.Topic{}, errValidation("title is required", map[string]string{"title": "required"})
	}

	topic := store.Topic{
		ActivityID:  activityID,
		Title:       in.Title,
		Description: in.Description,
		OrderIndex:  in.OrderIndex,
	}
	if err := s.store.CreateTopic(ctx, &topic); err != nil {
		return store.Topic{}, err
	}
	s.indexTopic(topic)
	return topic, nil
}

func (s *Service) UpdateTopic(ctx context.Context, sess Session, id int64, in TopicInput) (store.Topic, error) {
	if err := requireWriter(sess); err != nil {
		return store.Topic{}, err
	}
	topic, err := s.store.GetTopic(ctx, id)
	if err != nil {
		return store.Topic{}, err
	}
	activity, err := s.store.ActivityForTopic(ctx, id)
	if err != nil {
		return store.Topic{}, err
	}
	if !rbac.CanManagePlan(sess.Actor(), activity.OwnerID) {
		return store.Topic{}, errForbidden()
	}
	if in.Title == "" {
		return store.Topic{}, errValidation("title is required", map[string]string{"title": "required"})
	}

	topic.Title = in.Title
	topic.Description = in.Description
	topic.OrderIndex = in.OrderIndex
	if err := s.store.UpdateTopic(ctx, &topic); err != nil {
		return store.Topic{}, err
	}
	s.indexTopic(topic)
	return topic, nil
}

func (s *Service) DeleteTopic(ctx context.Context, sess Session, id int64) error {
	if err := requireWriter(sess); err != nil {
		return err
	}
	if _, err := s.store.GetTopic(ctx, id); err != nil {
		return err
	}
	activity, err := s.store.ActivityForTopic(ctx, id)
	if err != nil {
		return err
	}
	if !rbac.CanManagePlan(sess.Actor(), activity.OwnerID) {
		return errForbidden()
	}
	if err := s.store.DeleteTopic(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteTopic(id)
	}
	return nil
}

// --- subtasks ---

func (s *Service) ListSubTasks(ctx context.Context, sess Session, topicID int64) ([]SubTaskView, error) {
	if err := requireReader(sess); err != nil {
		return nil, err
	}
	if _, err := s.store.GetTopic(ctx, topicID); err != nil {
		return nil, err
	}
	subtasks, err := s.store.ListSubTasks(ctx, topicID)
	if err != nil {
		return nil, err
	}
	views := make([]SubTaskView, 0, len(subtasks))
	for _, st := range subtasks {
		views = append(views, s.subTaskView(st))
	}
	return views, nil
}

func (s *Service) GetSubTask(ctx context.Context, sess Session, id int64) (SubTaskView, error) {
	if err := requireReader(sess); err != nil {
		return SubTaskView{}, err
	}
	st, err := s.store.GetSubTask(ctx, id)
	if err != nil {
		return SubTaskView{}, err
	}
	return s.subTaskView(st), nil
}

func (s *Service) CreateSubTask(ctx context.Context, sess Session, topicID int64, in SubTaskInput) (SubTaskView, []string, error) {
	if err := requireWriter(sess); err != nil {
		return SubTaskView{}, nil, err
	}
	if _, err := s.store.GetTopic(ctx, topicID); err != nil {
		return SubTaskView{}, nil, err
	}
	activity, err := s.store.ActivityForTopic(ctx, topicID)
	if err != nil {
		return SubTaskView{}, nil, err
	}
	if !rbac.CanManagePlan(sess.Actor(), activity.OwnerID) {
		return SubTaskView{}, nil, errForbidden()
	}

	st := store.SubTask{TopicID: topicID, Status: schedule.StatusPlanned}
	if err := s.applySubTaskInput(ctx, &st, in); err != nil {
		return SubTaskView{}, nil, err
	}
	warnings := dateRangeWarnings(st, activity)

	if err := s.store.CreateSubTask(ctx, &st); err != nil {
		return SubTaskView{}, nil, err
	}

	if _, err := s.notifier.SubTaskCreated(ctx, st, activity.ID, sess.UserID); err != nil {
		log.Printf("notify: subtask %d created: %v", st.ID, err)
	}
	if st.AssigneeID != nil && *st.AssigneeID != sess.UserID {
		s.sendAssignmentMail(ctx, st, activity)
	}
	s.indexSubTask(st, activity.ID)
	return s.subTaskView(st), warnings, nil
}

func (s *Service) UpdateSubTask(ctx context.Context, sess Session, id int64, in SubTaskInput) (SubTaskView, []string, error) {
	if err := requireWriter(sess); err != nil {
		return SubTaskView{}, nil, err
	}
	st, err := s.store.GetSubTask(ctx, id)
	if err != nil {
		return SubTaskView{}, nil, err
	}
	activity, err := s.store.ActivityForSubTask(ctx, id)
	if err != nil {
		return SubTaskView{}, nil, err
	}
	if !rbac.CanManagePlan(sess.Actor(), activity.OwnerID) {
		return SubTaskView{}, nil, errForbidden()
	}

	before := notify.SnapshotOf(st)
	if err := s.applySubTaskInput(ctx, &st, in); err != nil {
		return SubTaskView{}, nil, err
	}
	warnings := dateRangeWarnings(st, activity)

	if err := s.store.UpdateSubTask(ctx, &st); err != nil {
		return SubTaskView{}, nil, err
	}
	s.notifySubTaskUpdated(ctx, before, st, activity, sess.UserID)
	s.indexSubTask(st, activity.ID)
	return s.subTaskView(st), warnings, nil
}

func (s *Service) PatchSubTask(ctx context.Context, sess Session, id int64, patch SubTaskPatch) (SubTaskView, []string, error) {
	if err := requireWriter(sess); err != nil {
		return SubTaskView{}, nil, err
	}
	st, err := s.store.GetSubTask(ctx, id)
	if err != nil {
		return SubTaskView{}, nil, err
	}
	activity, err := s.store.ActivityForSubTask(ctx, id)
	if err != nil {
		return SubTaskView{}, nil, err
	}
	if !rbac.CanManagePlan(sess.Actor(), activity.OwnerID) {
		return SubTaskView{}, nil, errForbidden()
	}

	before := notify.SnapshotOf(st)
	if err := s.applySubTaskPatch(ctx, &st, patch); err != nil {
		return SubTaskView{}, nil, err
	}
	warnings := dateRangeWarnings(st, activity)

	if err := s.store.UpdateSubTask(ctx, &st); err != nil {
		return SubTaskView{}, nil, err
	}
	s.notifySubTaskUpdated(ctx, before, st, activity, sess.UserID)
	s.indexSubTask(st, activity.ID)
	return s.subTaskView(st), warnings, nil
}

func (s *Service) DeleteSubTask(ctx context.Context, sess Session, id int64) error {
	if err := requireWriter(sess); err != nil {
		return err
	}
	st, err := s.store.GetSubTask(ctx, id)
	if err != nil {
		return err
	}
	activity, err := s.store.ActivityForSubTask(ctx, id)
	if err != nil {
		return err
	}
	if !rbac.CanManagePlan(sess.Actor(), activity.OwnerID) {
		return errForbidden()
	}

	if err := s.store.DeleteSubTask(ctx, id); err != nil {
		return err
	}
	if _, err := s.notifier.SubTaskDeleted(ctx, st, activity.ID, sess.UserID); err != nil {
		log.Printf("notify: subtask %d deleted: %v", id, err)
	}
	if s.search != nil {
		s.search.DeleteSubTask(id)
	}
	return nil
}

// applySubTaskInput validates a full-replace payload and writes it onto the
// row. Assignee references are resolved up front so a broken id fails the
// request rather than the foreign key.
func (s *Service) applySubTaskInput(ctx context.Context, st *store.SubTask, in SubTaskInput) error {
	if in.Title == "" {
		return errValidation("title is required", map[string]string{"title": "required"})
	}
	start, end, err := parseDateRange(in.StartDate, in.EndDate)
	if err != nil {
		return err
	}
	status := schedule.StatusPlanned
	if in.Status != "" {
		status, err = schedule.ParseStatus(in.Status)
		if err != nil {
			return errValidation("invalid status", map[string]string{"status": in.Status})
		}
	}
	if in.ProgressPercent < 0 || in.ProgressPercent > 100 {
		return errValidation("progress_percent must be between 0 and 100", map[string]string{"progress_percent": "out of range"})
	}
	if in.AssigneeID != nil {
		if err := s.checkAssignee(ctx, *in.AssigneeID); err != nil {
			return err
		}
	}

	st.Title = in.Title
	st.Description = in.Description
	st.StartDate = start
	st.EndDate = end
	st.Status = status
	st.ProgressPercent = in.ProgressPercent
	st.AssigneeID = in.AssigneeID
	return nil
}

func (s *Service) applySubTaskPatch(ctx context.Context, st *store.SubTask, patch SubTaskPatch) error {
	if patch.Title != nil {
		if *patch.Title == "" {
			return errValidation("title must not be empty", map[string]string{"title": "required"})
		}
		st.Title = *patch.Title
	}
	if patch.Description != nil {
		st.Description = *patch.Description
	}
	if patch.StartDate != nil {
		start, err := parseDate("start_date", *patch.StartDate)
		if err != nil {
			return err
		}
		st.StartDate = start
	}
	if patch.EndDate != nil {
		end, err := parseDate("end_date", *patch.EndDate)
		if err != nil {
			return err
		}
		st.EndDate = end
	}
	if st.EndDate.Before(st.StartDate) {
		return errValidation("end_date must not be before start_date", nil)
	}
	if patch.Status != nil {
		status, err := schedule.ParseStatus(*patch.Status)
		if err != nil {
			return errValidation("invalid status", map[string]string{"status": *patch.Status})
		}
		st.Status = status
	}
	if patch.ProgressPercent != nil {
		if *patch.ProgressPercent < 0 || *patch.ProgressPercent > 100 {
			return errValidation("progress_percent must be between 0 and 100", map[string]string{"progress_percent": "out of range"})
		}
		st.ProgressPercent = *patch.ProgressPercent
	}
	if patch.ClearAssignee {
		st.AssigneeID = nil
	} else if patch.AssigneeID != nil {
		if err := s.checkAssignee(ctx, *patch.AssigneeID); err != nil {
			return err
		}
		st.AssigneeID = patch.AssigneeID
	}
	return nil
}

func (s *Service) checkAssignee(ctx context.Context, userID int64) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return errValidation("assignee not found", map[string]string{"assignee_id": "unknown user"})
		}
		return err
	}
	if !user.IsActive {
		return errValidation("assignee is deactivated", map[string]string{"assignee_id": "inactive user"})
	}
	return nil
}

// dateRangeWarnings flags subtask dates that fall outside the activity span.
// These are advisory; the write still goes through.
func dateRangeWarnings(st store.SubTask, activity store.Activity) []string {
	var warnings []string
	if st.StartDate.Before(activity.StartDate) {
		warnings = append(warnings, fmt.Sprintf("start_date %s is before the activity start %s",
			st.StartDate.Format(dateLayout), activity.StartDate.Format(dateLayout)))
	}
	if st.EndDate.After(activity.EndDate) {
		warnings = append(warnings, fmt.Sprintf("end_date %s is after the activity end %s",
			st.EndDate.Format(dateLayout), activity.EndDate.Format(dateLayout)))
	}
	return warnings
}

func (s *Service) notifySubTaskUpdated(ctx context.Context, before notify.Snapshot, st store.SubTask, activity store.Activity, actorID int64) {
	changes := notify.Detect(before, notify.SnapshotOf(st))
	if !changes.Any() {
		return
	}
	if _, err := s.notifier.SubTaskUpdated(ctx, changes, st, activity.ID, actorID); err != nil {
		log.Printf("notify: subtask %d updated: %v", st.ID, err)
	}
	if changes.AssigneeChanged && st.AssigneeID != nil && *st.AssigneeID != actorID {
		s.sendAssignmentMail(ctx, st, activity)
	}
}

// sendAssignmentMail is best-effort; failures are logged and never surface.
func (s *Service) sendAssignmentMail(ctx context.Context, st store.SubTask, activity store.Activity) {
	if s.email == nil || !s.email.IsConfigured() || st.AssigneeID == nil {
		return
	}
	assignee, err := s.store.GetUserByID(ctx, *st.AssigneeID)
	if err != nil {
		log.Printf("email: load assignee %d: %v", *st.AssigneeID, err)
		return
	}
	if err := s.email.SendTaskAssignedEmail(assignee.Email, assignee.FullName, st.Title,
		activity.Name, st.StartDate.Format(dateLayout), st.EndDate.Format(dateLayout)); err != nil {
		log.Printf("email: task assigned to %s: %v", assignee.Email, err)
	}
}

func (s *Service) indexActivity(a store.Activity) {
	if s.search == nil {
		return
	}
	s.search.IndexActivity(search.ActivityRecord{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		OwnerID:     a.OwnerID,
	})
}

func (s *Service) indexTopic(t store.Topic) {
	if s.search == nil {
		return
	}
	s.search.IndexTopic(search.TopicRecord{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		ActivityID:  t.ActivityID,
	})
}

func (s *Service) indexSubTask(st store.SubTask, activityID int64) {
	if s.search == nil {
		return
	}
	s.search.IndexSubTask(search.SubTaskRecord{
		ID:          st.ID,
		Title:       st.Title,
		Description: st.Description,
		Status:      string(st.Status),
		TopicID:     st.TopicID,
		ActivityID:  activityID,
	})
}

// --- gantt ---

// Gantt assembles the chart payload: the activity, its topics with derived
// subtask statuses, and the scale picked from the activity span.
func (s *Service) Gantt(ctx context.Context, sess Session, activityID int64) (GanttView, error) {
	if err := requireReader(sess); err != nil {
		return GanttView{}, err
	}
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return GanttView{}, err
	}
	topics, err := s.store.ListTopics(ctx, activityID)
	if err != nil {
		return GanttView{}, err
	}
	subtasks, err := s.store.ListActivitySubTasks(ctx, activityID)
	if err != nil {
		return GanttView{}, err
	}

	byTopic := make(map[int64][]SubTaskView, len(topics))
	for _, st := range subtasks {
		byTopic[st.TopicID] = append(byTopic[st.TopicID], s.subTaskView(st))
	}
	ganttTopics := make([]GanttTopic, 0, len(topics))
	for _, topic := range topics {
		views := byTopic[topic.ID]
		if views == nil {
			views = []SubTaskView{}
		}
		ganttTopics = append(ganttTopics, GanttTopic{Topic: topic, SubTasks: views})
	}

	return GanttView{
		Activity: s.activityView(activity),
		Topics:   ganttTopics,
		Scale:    schedule.Scale(activity.StartDate, activity.EndDate),
		Range:    schedule.Range(activity.StartDate, activity.EndDate),
		Today:    s.now().Format(dateLayout),
	}, nil
}
