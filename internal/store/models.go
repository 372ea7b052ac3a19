package store

import (
	"time"

	"plantrack/api/internal/schedule"
)

// User is an account that can sign in and own activities.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Activity is the top level planning unit. Topics hang off it and are
// removed with it.
type Activity struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     int64     `json:"owner_id"`
	StartDate   time.Time `json:"-"`
	EndDate     time.Time `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Topic groups subtasks inside an activity.
type Topic struct {
	ID          int64     `json:"id"`
	ActivityID  int64     `json:"activity_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	OrderIndex  int       `json:"order_index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SubTask is a unit of work within a topic. Status here is the stored
// status; the displayed one is derived per request via schedule.EffectiveStatus.
type SubTask struct {
	ID              int64           `json:"id"`
	TopicID         int64           `json:"topic_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	StartDate       time.Time       `json:"-"`
	EndDate         time.Time       `json:"-"`
	Status          schedule.Status `json:"status"`
	ProgressPercent int             `json:"progress_percent"`
	AssigneeID      *int64          `json:"assignee_id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Notification is an immutable event record addressed to one user. Only the
// read flag ever changes after insert.
type Notification struct {
	ID           int64     `json:"id"`
	Type         string    `json:"type"`
	Message      string    `json:"message"`
	TargetUserID int64     `json:"target_user_id"`
	CreatedByID  *int64    `json:"created_by_id"`
	ActivityID   *int64    `json:"activity_id"`
	SubTaskID    *int64    `json:"subtask_id"`
	IsRead       bool      `json:"is_read"`
	CreatedAt    time.Time `json:"created_at"`
}

// Attachment is a file stored in object storage and linked to a subtask.
type Attachment struct {
	ID           int64     `json:"id"`
	SubTaskID    int64     `json:"subtask_id"`
	UploadedByID int64     `json:"uploaded_by_id"`
	FileName     string    `json:"file_name"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	ObjectKey    string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is a stored refresh token record, used when Redis is not
// configured.
type Session struct {
	TokenHash string
	UserID    int64
	Email     string
	Role      string
	ExpiresAt time.Time
}
