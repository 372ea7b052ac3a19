package export

import (
	"context"
	"fmt"
	"time"

	"plantrack/api/internal/schedule"
	"plantrack/api/internal/store"
)

// DataStore defines the data access the exporter needs.
type DataStore interface {
	GetActivity(ctx context.Context, id int64) (store.Activity, error)
	GetUserByID(ctx context.Context, id int64) (store.User, error)
	ListTopics(ctx context.Context, activityID int64) ([]store.Topic, error)
	ListSubTasks(ctx context.Context, topicID int64) ([]store.SubTask, error)
}

// Service provides activity report export functionality
type Service struct {
	store DataStore
	now   func() time.Time
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store, now: time.Now}
}

// Export generates a report for the activity in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	report, err := s.buildReport(ctx, req.ActivityID)
	if err != nil {
		return nil, err
	}

	html, err := RenderReportHTML(report)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, report.ActivityName)
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(report.ActivityName) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func (s *Service) buildReport(ctx context.Context, activityID int64) (Report, error) {
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return Report{}, fmt.Errorf("get activity: %w", err)
	}

	owner, err := s.store.GetUserByID(ctx, activity.OwnerID)
	if err != nil {
		return Report{}, fmt.Errorf("get owner: %w", err)
	}

	topics, err := s.store.ListTopics(ctx, activityID)
	if err != nil {
		return Report{}, fmt.Errorf("list topics: %w", err)
	}

	today := s.now()
	report := Report{
		ActivityName: activity.Name,
		Description:  activity.Description,
		OwnerName:    owner.FullName,
		StartDate:    activity.StartDate,
		EndDate:      activity.EndDate,
		Scale:        schedule.Scale(activity.StartDate, activity.EndDate),
		GeneratedAt:  today,
	}

	// Assignee names are resolved once per user across the whole report.
	names := map[int64]string{activity.OwnerID: owner.FullName}

	for _, topic := range topics {
		subtasks, err := s.store.ListSubTasks(ctx, topic.ID)
		if err != nil {
			return Report{}, fmt.Errorf("list subtasks: %w", err)
		}

		rt := ReportTopic{Title: topic.Title}
		for _, st := range subtasks {
			row := ReportSubTask{
				Title:           st.Title,
				StartDate:       st.StartDate,
				EndDate:         st.EndDate,
				Status:          string(schedule.EffectiveStatus(st.Status, st.ProgressPercent, st.EndDate, today)),
				ProgressPercent: st.ProgressPercent,
			}
			if st.AssigneeID != nil {
				name, ok := names[*st.AssigneeID]
				if !ok {
					assignee, err := s.store.GetUserByID(ctx, *st.AssigneeID)
					if err == nil {
						name = assignee.FullName
					}
					names[*st.AssigneeID] = name
				}
				row.AssigneeName = name
			}
			rt.SubTasks = append(rt.SubTasks, row)
		}
		report.Topics = append(report.Topics, rt)
	}

	return report, nil
}
