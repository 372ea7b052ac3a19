package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"plantrack/api/internal/attach"
	"plantrack/api/internal/authpw"
	"plantrack/api/internal/rbac"
	"plantrack/api/internal/store"
)

type UserInput struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UserUpdate carries a partial user update; nil fields are left untouched.
type UserUpdate struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// UserSummary is the reduced listing non-admins see, enough to fill an
// assignee picker.
type UserSummary struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// --- users ---

func (s *Service) CreateUser(ctx context.Context, sess Session, in UserInput) (store.User, error) {
	actor := sess.Actor()
	if !actor.Active || !rbac.Can(actor.Role, rbac.ActionAdmin) {
		return store.User{}, errForbidden()
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return store.User{}, errValidation("a valid email is required", map[string]string{"email": "invalid"})
	}
	if in.FullName == "" {
		return store.User{}, errValidation("full_name is required", map[string]string{"full_name": "required"})
	}
	if err := authpw.ValidatePassword(in.Password); err != nil {
		return store.User{}, errValidation(err.Error(), map[string]string{"password": "too short"})
	}
	role := rbac.RoleViewer
	if in.Role != "" {
		parsed, err := rbac.ParseRole(in.Role)
		if err != nil {
			return store.User{}, errValidation("invalid role", map[string]string{"role": in.Role})
		}
		role = parsed
	}

	hash, err := authpw.HashPassword(in.Password)
	if err != nil {
		return store.User{}, err
	}
	user := store.User{
		Email:        email,
		FullName:     in.FullName,
		PasswordHash: hash,
		Role:         string(role),
		IsActive:     true,
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return store.User{}, errConflict("email is already registered")
		}
		return store.User{}, err
	}

	if s.email != nil && s.email.IsConfigured() {
		if err := s.email.SendWelcomeEmail(user.Email, user.FullName, user.Role); err != nil {
			log.Printf("email: welcome to %s: %v", user.Email, err)
		}
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, sess Session) ([]store.User, error) {
	actor := sess.Actor()
	if !actor.Active || !rbac.Can(actor.Role, rbac.ActionAdmin) {
		return nil, errForbidden()
	}
	return s.store.ListUsers(ctx)
}

// ListUserSummaries returns active accounts only, readable by any signed-in
// user.
func (s *Service) ListUserSummaries(ctx context.Context, sess Session) ([]UserSummary, error) {
	if err := requireReader(sess); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]UserSummary, 0, len(users))
	for _, u := range users {
		if !u.IsActive {
			continue
		}
		summaries = append(summaries, UserSummary{ID: u.ID, FullName: u.FullName, Email: u.Email})
	}
	return summaries, nil
}

func (s *Service) GetUser(ctx context.Context, sess Session, id int64) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return store.User{}, err
	}
	if !rbac.CanViewUser(sess.Actor(), id) {
		return store.User{}, errForbidden()
	}
	return user, nil
}

func (s *Service) UpdateUser(ctx context.Context, sess Session, id int64, in UserUpdate) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return store.User{}, err
	}
	actor := sess.Actor()

	if in.Email != nil || in.FullName != nil {
		if !rbac.CanUpdateProfile(actor, id) {
			return store.User{}, errForbidden()
		}
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email == "" || !strings.Contains(email, "@") {
			return store.User{}, errValidation("a valid email is required", map[string]string{"email": "invalid"})
		}
		user.Email = email
	}
	if in.FullName != nil {
		if *in.FullName == "" {
			return store.User{}, errValidation("full_name must not be empty", map[string]string{"full_name": "required"})
		}
		user.FullName = *in.FullName
	}
	if in.Role != nil {
		role, err := rbac.ParseRole(*in.Role)
		if err != nil {
			return store.User{}, errValidation("invalid role", map[string]string{"role": *in.Role})
		}
		if !rbac.CanChangeRole(actor, id, role) {
			return store.User{}, errForbidden()
		}
		user.Role = string(role)
	}
	if in.IsActive != nil {
		if !rbac.CanSetActive(actor, id, *in.IsActive) {
			return store.User{}, errForbidden()
		}
		user.IsActive = *in.IsActive
	}

	if err := s.store.UpdateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return store.User{}, errConflict("email is already registered")
		}
		return store.User{}, err
	}
	return user, nil
}

func (s *Service) DeleteUser(ctx context.Context, sess Session, id int64) error {
	if _, err := s.store.GetUserByID(ctx, id); err != nil {
		return err
	}
	if !rbac.CanDeleteUser(sess.Actor(), id) {
		return errForbidden()
	}
	owned, err := s.store.CountOwnedActivities(ctx, id)
	if err != nil {
		return err
	}
	if owned > 0 {
		return errConflict(fmt.Sprintf("user still owns %d activities; reassign or delete them first", owned))
	}
	return s.store.DeleteUser(ctx, id)
}

func (s *Service) ChangePassword(ctx context.Context, sess Session, targetID int64, oldPassword, newPassword string) error {
	target, err := s.store.GetUserByID(ctx, targetID)
	if err != nil {
		return err
	}
	actor := sess.Actor()
	if !rbac.CanChangePassword(actor, targetID) {
		return errForbidden()
	}

	requireOld := rbac.NeedsOldPassword(actor, targetID)
	if err := s.authpw.ChangePassword(ctx, target, oldPassword, newPassword, requireOld); err != nil {
		if errors.Is(err, authpw.ErrWrongPassword) {
			return errValidation("current password is incorrect", map[string]string{"old_password": "mismatch"})
		}
		if strings.Contains(err.Error(), "password must be") {
			return errValidation(err.Error(), map[string]string{"password": "too short"})
		}
		return err
	}
	return nil
}

// --- notifications ---

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 100
)

func (s *Service) ListNotifications(ctx context.Context, sess Session, unreadOnly bool, limit int) ([]store.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	notifications, err := s.store.ListNotifications(ctx, sess.UserID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	if notifications == nil {
		notifications = []store.Notification{}
	}
	return notifications, nil
}

func (s *Service) UnreadNotificationCount(ctx context.Context, sess Session) (int, error) {
	return s.store.CountUnreadNotifications(ctx, sess.UserID)
}

// MarkNotificationRead flips the read flag. The flag is one-way: a request
// to set it back to unread is rejected.
func (s *Service) MarkNotificationRead(ctx context.Context, sess Session, id int64, isRead bool) (store.Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return store.Notification{}, err
	}
	if n.TargetUserID != sess.UserID {
		return store.Notification{}, errForbidden()
	}
	if !isRead {
		return store.Notification{}, errValidation("is_read can only be set to true", nil)
	}
	if !n.IsRead {
		if err := s.store.MarkNotificationRead(ctx, id); err != nil {
			return store.Notification{}, err
		}
		n.IsRead = true
	}
	return n, nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, sess Session) (int64, error) {
	return s.store.MarkAllNotificationsRead(ctx, sess.UserID)
}

func (s *Service) DeleteNotification(ctx context.Context, sess Session, id int64) error {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.TargetUserID != sess.UserID {
		return errForbidden()
	}
	return s.store.DeleteNotification(ctx, id)
}

// --- attachments ---

var errAttachmentsUnavailable = domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)

func (s *Service) ListAttachments(ctx context.Context, sess Session, subtaskID int64) ([]store.Attachment, error) {
	if err := requireReader(sess); err != nil {
		return nil, err
	}
	if _, err := s.store.GetSubTask(ctx, subtaskID); err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, subtaskID)
	if err != nil {
		return nil, err
	}
	if attachments == nil {
		attachments = []store.Attachment{}
	}
	return attachments, nil
}

func (s *Service) UploadAttachment(ctx context.Context, sess Session, subtaskID int64, fileName, contentType string, size int64, r io.Reader) (store.Attachment, error) {
	if err := requireWriter(sess); err != nil {
		return store.Attachment{}, err
	}
	if _, err := s.store.GetSubTask(ctx, subtaskID); err != nil {
		return store.Attachment{}, err
	}
	activity, err := s.store.ActivityForSubTask(ctx, subtaskID)
	if err != nil {
		return store.Attachment{}, err
	}
	if !rbac.CanManagePlan(sess.Actor(), activity.OwnerID) {
		return store.Attachment{}, errForbidden()
	}
	if s.attach == nil {
		return store.Attachment{}, errAttachmentsUnavailable
	}
	if fileName == "" {
		return store.Attachment{}, errValidation("file name is required", nil)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectKey := attach.NewObjectKey(subtaskID, fileName)
	if err := s.attach.Put(ctx, objectKey, r, size, contentType); err != nil {
		return store.Attachment{}, fmt.Errorf("store attachment object: %w", err)
	}

	record := store.Attachment{
		SubTaskID:    subtaskID,
		UploadedByID: sess.UserID,
		FileName:     fileName,
		ContentType:  contentType,
		SizeBytes:    size,
		ObjectKey:    objectKey,
	}
	if err := s.store.CreateAttachment(ctx, &record); err != nil {
		// Do not leave the object orphaned when the row insert fails.
		if removeErr := s.attach.Remove(ctx, objectKey); removeErr != nil {
			log.Printf("attach: cleanup %s: %v", objectKey, removeErr)
		}
		return store.Attachment{}, err
	}
	return record, nil
}

// AttachmentDownload resolves a download for an attachment. It prefers a
// presigned URL redirect; when presigning fails the object is streamed
// through the API instead.
type AttachmentDownload struct {
	Attachment store.Attachment
	URL        string
	Body       io.ReadCloser
}

func (s *Service) DownloadAttachment(ctx context.Context, sess Session, id int64) (AttachmentDownload, error) {
	if err := requireReader(sess); err != nil {
		return AttachmentDownload{}, err
	}
	record, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return AttachmentDownload{}, err
	}
	if s.attach == nil {
		return AttachmentDownload{}, errAttachmentsUnavailable
	}

	url, err := s.attach.PresignedURL(ctx, record.ObjectKey, record.FileName, 15*time.Minute)
	if err == nil {
		return AttachmentDownload{Attachment: record, URL: url}, nil
	}
	log.Printf("attach: presign %s: %v", record.ObjectKey, err)

	body, err := s.attach.Get(ctx, record.ObjectKey)
	if err != nil {
		return AttachmentDownload{}, fmt.Errorf("fetch attachment object: %w", err)
	}
	return AttachmentDownload{Attachment: record, Body: body}, nil
}

// DeleteAttachment is allowed to whoever may manage the plan, and to the
// uploader themselves.
func (s *Service) DeleteAttachment(ctx context.Context, sess Session, id int64) error {
	if err := requireWriter(sess); err != nil {
		return err
	}
	record, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return err
	}
	activity, err := s.store.ActivityForSubTask(ctx, record.SubTaskID)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	allowed := record.UploadedByID == sess.UserID
	if err == nil {
		allowed = allowed || rbac.CanManagePlan(sess.Actor(), activity.OwnerID)
	}
	if !allowed {
		return errForbidden()
	}

	if err := s.store.DeleteAttachment(ctx, id); err != nil {
		return err
	}
	if s.attach != nil {
		if err := s.attach.Remove(ctx, record.ObjectKey); err != nil {
			log.Printf("attach: remove %s: %v", record.ObjectKey, err)
		}
	}
	return nil
}
