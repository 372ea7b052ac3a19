package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateEmail is returned when an insert or update would reuse an
// existing account email.
var ErrDuplicateEmail = errors.New("email already registered")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// --- users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, full_name, role, is_active)
		VALUES (LOWER($1), $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, user.Email, user.PasswordHash, user.FullName, user.Role, user.IsActive).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, email, password_hash, full_name, role, is_active, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FullName, &user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email))
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY full_name, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FullName, &user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user *User) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET email=LOWER($2), full_name=$3, role=$4, is_active=$5, updated_at=NOW()
		WHERE id=$1
		RETURNING updated_at
	`, user.ID, user.Email, user.FullName, user.Role, user.IsActive).Scan(&user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("update user %d: %w", user.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash); err != nil {
		return fmt.Errorf("update password for user %d: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	return requireRowAffected(result)
}

func (s *PostgresStore) CountOwnedActivities(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities WHERE owner_id=$1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count owned activities: %w", err)
	}
	return count, nil
}

// --- activities ---

const activityColumns = `id, name, COALESCE(description, ''), start_date, end_date, owner_id, created_at, updated_at`

func (s *PostgresStore) CreateActivity(ctx context.Context, activity *Activity) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO activities (name, description, start_date, end_date, owner_id)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, activity.Name, activity.Description, activity.StartDate, activity.EndDate, activity.OwnerID).
		Scan(&activity.ID, &activity.CreatedAt, &activity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetActivity(ctx context.Context, id int64) (Activity, error) {
	var a Activity
	err := s.db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=$1`, id).
		Scan(&a.ID, &a.Name, &a.Description, &a.StartDate, &a.EndDate, &a.OwnerID, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *PostgresStore) ListActivities(ctx context.Context) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+activityColumns+` FROM activities ORDER BY start_date, id`)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.StartDate, &a.EndDate, &a.OwnerID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (s *PostgresStore) UpdateActivity(ctx context.Context, activity *Activity) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE activities
		SET name=$2, description=NULLIF($3, ''), start_date=$4, end_date=$5, updated_at=NOW()
		WHERE id=$1
		RETURNING updated_at
	`, activity.ID, activity.Name, activity.Description, activity.StartDate, activity.EndDate).
		Scan(&activity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update activity %d: %w", activity.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteActivity(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete activity %d: %w", id, err)
	}
	return requireRowAffected(result)
}

// --- topics ---

const topicColumns = `id, activity_id, title, COALESCE(description, ''), order_index, created_at, updated_at`

func (s *PostgresStore) CreateTopic(ctx context.Context, topic *Topic) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO topics (activity_id, title, description, order_index)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		RETURNING id, created_at, updated_at
	`, topic.ActivityID, topic.Title, topic.Description, topic.OrderIndex).
		Scan(&topic.ID, &topic.CreatedAt, &topic.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert topic: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, id int64) (Topic, error) {
	var t Topic
	err := s.db.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id=$1`, id).
		Scan(&t.ID, &t.ActivityID, &t.Title, &t.Description, &t.OrderIndex, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *PostgresStore) ListTopics(ctx context.Context, activityID int64) ([]Topic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE activity_id=$1 ORDER BY order_index, id`, activityID)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.ActivityID, &t.Title, &t.Description, &t.OrderIndex, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func (s *PostgresStore) UpdateTopic(ctx context.Context, topic *Topic) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE topics
		SET title=$2, description=NULLIF($3, ''), order_index=$4, updated_at=NOW()
		WHERE id=$1
		RETURNING updated_at
	`, topic.ID, topic.Title, topic.Description, topic.OrderIndex).Scan(&topic.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update topic %d: %w", topic.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteTopic(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM topics WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete topic %d: %w", id, err)
	}
	return requireRowAffected(result)
}

// --- subtasks ---

const subtaskColumns = `id, topic_id, title, COALESCE(description, ''), start_date, end_date, status, assignee_id, progress_percent, created_at, updated_at`

func (s *PostgresStore) CreateSubTask(ctx context.Context, st *SubTask) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO subtasks (topic_id, title, description, start_date, end_date, status, assignee_id, progress_percent)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, st.TopicID, st.Title, st.Description, st.StartDate, st.EndDate, st.Status, st.AssigneeID, st.ProgressPercent).
		Scan(&st.ID, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert subtask: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubTask(ctx context.Context, id int64) (SubTask, error) {
	var st SubTask
	err := s.db.QueryRowContext(ctx, `SELECT `+subtaskColumns+` FROM subtasks WHERE id=$1`, id).
		Scan(&st.ID, &st.TopicID, &st.Title, &st.Description, &st.StartDate, &st.EndDate, &st.Status, &st.AssigneeID, &st.ProgressPercent, &st.CreatedAt, &st.UpdatedAt)
	return st, err
}

func (s *PostgresStore) ListSubTasks(ctx context.Context, topicID int64) ([]SubTask, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subtaskColumns+` FROM subtasks WHERE topic_id=$1 ORDER BY start_date, id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("list subtasks: %w", err)
	}
	defer rows.Close()
	return collectSubTasks(rows)
}

// ListActivitySubTasks returns every subtask under the activity, joined
// through topics, ordered for chart rendering.
func (s *PostgresStore) ListActivitySubTasks(ctx context.Context, activityID int64) ([]SubTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.id, st.topic_id, st.title, COALESCE(st.description, ''), st.start_date, st.end_date,
		       st.status, st.assignee_id, st.progress_percent, st.created_at, st.updated_at
		FROM subtasks st
		JOIN topics t ON t.id = st.topic_id
		WHERE t.activity_id = $1
		ORDER BY t.order_index, t.id, st.start_date, st.id
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("list activity subtasks: %w", err)
	}
	defer rows.Close()
	return collectSubTasks(rows)
}

func collectSubTasks(rows *sql.Rows) ([]SubTask, error) {
	var subtasks []SubTask
	for rows.Next() {
		var st SubTask
		if err := rows.Scan(&st.ID, &st.TopicID, &st.Title, &st.Description, &st.StartDate, &st.EndDate, &st.Status, &st.AssigneeID, &st.ProgressPercent, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}
		subtasks = append(subtasks, st)
	}
	return subtasks, rows.Err()
}

func (s *PostgresStore) UpdateSubTask(ctx context.Context, st *SubTask) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE subtasks
		SET title=$2, description=NULLIF($3, ''), start_date=$4, end_date=$5, status=$6, assignee_id=$7, progress_percent=$8, updated_at=NOW()
		WHERE id=$1
		RETURNING updated_at
	`, st.ID, st.Title, st.Description, st.StartDate, st.EndDate, st.Status, st.AssigneeID, st.ProgressPercent).
		Scan(&st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update subtask %d: %w", st.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteSubTask(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM subtasks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete subtask %d: %w", id, err)
	}
	return requireRowAffected(result)
}

// ActivityForTopic resolves the activity that owns the given topic.
func (s *PostgresStore) ActivityForTopic(ctx context.Context, topicID int64) (Activity, error) {
	var a Activity
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.name, COALESCE(a.description, ''), a.start_date, a.end_date, a.owner_id, a.created_at, a.updated_at
		FROM activities a
		JOIN topics t ON t.activity_id = a.id
		WHERE t.id = $1
	`, topicID).Scan(&a.ID, &a.Name, &a.Description, &a.StartDate, &a.EndDate, &a.OwnerID, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// ActivityForSubTask resolves ownership transitively: subtask, topic, activity.
func (s *PostgresStore) ActivityForSubTask(ctx context.Context, subtaskID int64) (Activity, error) {
	var a Activity
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.name, COALESCE(a.description, ''), a.start_date, a.end_date, a.owner_id, a.created_at, a.updated_at
		FROM activities a
		JOIN topics t ON t.activity_id = a.id
		JOIN subtasks st ON st.topic_id = t.id
		WHERE st.id = $1
	`, subtaskID).Scan(&a.ID, &a.Name, &a.Description, &a.StartDate, &a.EndDate, &a.OwnerID, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// --- notifications ---

const notificationColumns = `id, type, message, activity_id, subtask_id, target_user_id, created_by_id, is_read, created_at`

func (s *PostgresStore) InsertNotification(ctx context.Context, n *Notification) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (type, message, activity_id, subtask_id, target_user_id, created_by_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, n.Type, n.Message, n.ActivityID, n.SubTaskID, n.TargetUserID, n.CreatedByID).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNotification(ctx context.Context, id int64) (Notification, error) {
	var n Notification
	err := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=$1`, id).
		Scan(&n.ID, &n.Type, &n.Message, &n.ActivityID, &n.SubTaskID, &n.TargetUserID, &n.CreatedByID, &n.IsRead, &n.CreatedAt)
	return n, err
}

func (s *PostgresStore) ListNotifications(ctx context.Context, targetUserID int64, unreadOnly bool, limit int) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE target_user_id=$1`
	if unreadOnly {
		query += ` AND is_read=FALSE`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, targetUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Message, &n.ActivityID, &n.SubTaskID, &n.TargetUserID, &n.CreatedByID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, targetUserID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE target_user_id=$1 AND is_read=FALSE`, targetUserID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	return requireRowAffected(result)
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, targetUserID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read=TRUE WHERE target_user_id=$1 AND is_read=FALSE`, targetUserID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) DeleteNotification(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete notification %d: %w", id, err)
	}
	return requireRowAffected(result)
}

// --- refresh sessions (Postgres fallback when Redis is not configured) ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.password_hash, u.full_name, u.role, u.is_active, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FullName, &user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti=$1 AND expires_at > NOW())`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// --- attachments ---

const attachmentColumns = `id, subtask_id, uploaded_by_id, file_name, content_type, size_bytes, object_key, created_at`

func (s *PostgresStore) CreateAttachment(ctx context.Context, att *Attachment) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO attachments (subtask_id, uploaded_by_id, file_name, content_type, size_bytes, object_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, att.SubTaskID, att.UploadedByID, att.FileName, att.ContentType, att.SizeBytes, att.ObjectKey).
		Scan(&att.ID, &att.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, id int64) (Attachment, error) {
	var att Attachment
	err := s.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id=$1`, id).
		Scan(&att.ID, &att.SubTaskID, &att.UploadedByID, &att.FileName, &att.ContentType, &att.SizeBytes, &att.ObjectKey, &att.CreatedAt)
	return att, err
}

func (s *PostgresStore) ListAttachments(ctx context.Context, subtaskID int64) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE subtask_id=$1 ORDER BY created_at, id`, subtaskID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []Attachment
	for rows.Next() {
		var att Attachment
		if err := rows.Scan(&att.ID, &att.SubTaskID, &att.UploadedByID, &att.FileName, &att.ContentType, &att.SizeBytes, &att.ObjectKey, &att.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}
	return attachments, rows.Err()
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete attachment %d: %w", id, err)
	}
	return requireRowAffected(result)
}

func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
