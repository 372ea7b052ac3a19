// Package schedule holds the pure date logic of the planner: derived subtask
// status and gantt chart scale. Callers inject "today" so results are
// deterministic.
package schedule

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPlanned    Status = "PLANNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusOverdue    Status = "OVERDUE"
)

func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusPlanned, StatusInProgress, StatusCompleted, StatusOverdue:
		return Status(value), nil
	default:
		return "", fmt.Errorf("invalid status %q", value)
	}
}

// EffectiveStatus derives the status shown to users from the stored status,
// the progress percentage and the current date. The stored status is never
// written back. Precedence: completed beats overdue beats stored.
func EffectiveStatus(stored Status, progressPercent int, endDate, today time.Time) Status {
	if progressPercent == 100 || stored == StatusCompleted {
		return StatusCompleted
	}
	if dateOnly(endDate).Before(dateOnly(today)) {
		return StatusOverdue
	}
	return stored
}

// Scale maps an activity's date span to a chart granularity using the
// inclusive day count.
func Scale(startDate, endDate time.Time) string {
	totalDays := TotalDays(startDate, endDate)
	switch {
	case totalDays <= 30:
		return "day"
	case totalDays <= 180:
		return "week"
	default:
		return "month"
	}
}

// TotalDays counts days in the span, both endpoints included.
func TotalDays(startDate, endDate time.Time) int {
	return int(dateOnly(endDate).Sub(dateOnly(startDate))/(24*time.Hour)) + 1
}

// RangeInfo describes a span in days, weeks and months for chart headers.
type RangeInfo struct {
	TotalDays   int     `json:"total_days"`
	TotalWeeks  float64 `json:"total_weeks"`
	TotalMonths float64 `json:"total_months"`
}

func Range(startDate, endDate time.Time) RangeInfo {
	totalDays := TotalDays(startDate, endDate)
	return RangeInfo{
		TotalDays:   totalDays,
		TotalWeeks:  round1(float64(totalDays) / 7),
		TotalMonths: round1(float64(totalDays) / 30),
	}
}

func round1(value float64) float64 {
	return float64(int(value*10+0.5)) / 10
}

func dateOnly(value time.Time) time.Time {
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
}
