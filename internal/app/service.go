package app

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"plantrack/api/internal/attach"
	"plantrack/api/internal/auth"
	"plantrack/api/internal/authpw"
	"plantrack/api/internal/config"
	"plantrack/api/internal/email"
	"plantrack/api/internal/export"
	"plantrack/api/internal/notify"
	"plantrack/api/internal/rbac"
	"plantrack/api/internal/search"
	"plantrack/api/internal/session"
	"plantrack/api/internal/store"
	"plantrack/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       int64
	Email        string
	FullName     string
	Role         string
	Active       bool
	JTI          string
	ExpiresAt    time.Time
}

// Actor converts the session into an authorization subject.
func (s Session) Actor() rbac.Actor {
	return rbac.Actor{ID: s.UserID, Role: rbac.Normalize(s.Role), Active: s.Active}
}

type dataStore interface {
	CreateUser(context.Context, *store.User) error
	GetUserByID(context.Context, int64) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	ListUsers(context.Context) ([]store.User, error)
	UpdateUser(context.Context, *store.User) error
	UpdateUserPassword(context.Context, int64, string) error
	DeleteUser(context.Context, int64) error
	CountOwnedActivities(context.Context, int64) (int, error)

	CreateActivity(context.Context, *store.Activity) error
	GetActivity(context.Context, int64) (store.Activity, error)
	ListActivities(context.Context) ([]store.Activity, error)
	UpdateActivity(context.Context, *store.Activity) error
	DeleteActivity(context.Context, int64) error

	CreateTopic(context.Context, *store.Topic) error
	GetTopic(context.Context, int64) (store.Topic, error)
	ListTopics(context.Context, int64) ([]store.Topic, error)
	UpdateTopic(context.Context, *store.Topic) error
	DeleteTopic(context.Context, int64) error

	CreateSubTask(context.Context, *store.SubTask) error
	GetSubTask(context.Context, int64) (store.SubTask, error)
	ListSubTasks(context.Context, int64) ([]store.SubTask, error)
	ListActivitySubTasks(context.Context, int64) ([]store.SubTask, error)
	UpdateSubTask(context.Context, *store.SubTask) error
	DeleteSubTask(context.Context, int64) error
	ActivityForTopic(context.Context, int64) (store.Activity, error)
	ActivityForSubTask(context.Context, int64) (store.Activity, error)

	InsertNotification(context.Context, *store.Notification) error
	GetNotification(context.Context, int64) (store.Notification, error)
	ListNotifications(context.Context, int64, bool, int) ([]store.Notification, error)
	CountUnreadNotifications(context.Context, int64) (int, error)
	MarkNotificationRead(context.Context, int64) error
	MarkAllNotificationsRead(context.Context, int64) (int64, error)
	DeleteNotification(context.Context, int64) error

	SaveRefreshSession(context.Context, string, int64, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeToken(context.Context, string, time.Time) error
	IsTokenRevoked(context.Context, string) (bool, error)

	CreateAttachment(context.Context, *store.Attachment) error
	GetAttachment(context.Context, int64) (store.Attachment, error)
	ListAttachments(context.Context, int64) ([]store.Attachment, error)
	DeleteAttachment(context.Context, int64) error

	Ping(ctx context.Context) error
}

// refreshStore is the Redis-backed session cache; nil means refresh tokens
// live in Postgres only.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, data session.TokenData, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (session.TokenData, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexActivity(a search.ActivityRecord)
	IndexTopic(t search.TopicRecord)
	IndexSubTask(st search.SubTaskRecord)
	DeleteActivity(id int64)
	DeleteTopic(id int64)
	DeleteSubTask(id int64)
}

type exportService interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type mailService interface {
	IsConfigured() bool
	SendTaskAssignedEmail(to, userName, taskTitle, activityName, startDate, endDate string) error
	SendWelcomeEmail(to, userName, role string) error
}

// blobStore is the object storage behind subtask attachments.
type blobStore interface {
	Put(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, objectKey string) (io.ReadCloser, error)
	Remove(ctx context.Context, objectKey string) error
	PresignedURL(ctx context.Context, objectKey, fileName string, expiry time.Duration) (string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	authpw   *authpw.Service
	notifier *notify.Dispatcher
	search   searchService
	exporter exportService
	email    mailService
	attach   blobStore
	now      func() time.Time
}

type Options struct {
	Sessions *session.RedisStore
	Search   *search.Service
	Exporter *export.Service
	Email    *email.Service
	Attach   *attach.Service
}

func New(cfg config.Config, pg *store.PostgresStore, opts Options) *Service {
	svc := &Service{
		cfg:    cfg,
		store:  pg,
		authpw: authpw.NewService(pg),
		now:    time.Now,
	}
	svc.notifier = notify.NewDispatcher(pg)
	if opts.Sessions != nil {
		svc.sessions = opts.Sessions
	}
	if opts.Search != nil {
		svc.search = opts.Search
	}
	if opts.Exporter != nil {
		svc.exporter = opts.Exporter
	}
	if opts.Email != nil {
		svc.email = opts.Email
	}
	if opts.Attach != nil {
		svc.attach = opts.Attach
	}
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds the first admin account when the users table is empty and
// warms the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		hash, err := authpw.HashPassword(s.cfg.AdminPassword)
		if err != nil {
			return err
		}
		admin := store.User{
			Email:        s.cfg.AdminEmail,
			FullName:     "Administrator",
			PasswordHash: hash,
			Role:         string(rbac.RoleAdmin),
			IsActive:     true,
		}
		if err := s.store.CreateUser(ctx, &admin); err != nil {
			return err
		}
		log.Printf("seeded admin account %s", admin.Email)
	}

	if reindexer, ok := s.search.(interface{ ReindexAllFromPG(context.Context) }); ok {
		go reindexer.ReindexAllFromPG(context.Background())
	}
	return nil
}

// Login checks credentials and issues an access/refresh token pair.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, emailAddr, password)
	if err != nil {
		if err == authpw.ErrInactive {
			return Session{}, domainError(http.StatusForbidden, "ACCOUNT_DISABLED", "Account is deactivated", nil)
		}
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token and issues a fresh session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)

	var user store.User
	if s.sessions != nil {
		data, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
		if err != nil {
			return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		}
		// Re-read the account so role and active-flag changes take effect
		// at refresh time.
		user, err = s.store.GetUserByID(ctx, data.UserID)
		if err != nil {
			return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		}
	} else {
		var err error
		user, err = s.store.LookupRefreshSession(ctx, tokenHash)
		if err != nil {
			return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		}
	}

	if !user.IsActive {
		return Session{}, domainError(http.StatusForbidden, "ACCOUNT_DISABLED", "Account is deactivated", nil)
	}

	if err := s.revokeRefresh(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.saveRefresh(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		Role:         user.Role,
		Active:       user.IsActive,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) saveRefresh(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	if s.sessions != nil {
		return s.sessions.SaveRefreshSession(ctx, tokenHash, session.TokenData{
			UserID: user.ID,
			Email:  user.Email,
			Role:   user.Role,
		}, expiresAt)
	}
	return s.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (s *Service) revokeRefresh(ctx context.Context, tokenHash string) error {
	if s.sessions != nil {
		return s.sessions.RevokeRefreshSession(ctx, tokenHash)
	}
	return s.store.RevokeRefreshSession(ctx, tokenHash)
}

// SessionFromToken validates an access token and loads the current account
// state behind it.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if !user.IsActive {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role,
		Active:    user.IsActive,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		if err := s.store.RevokeToken(ctx, sess.JTI, sess.ExpiresAt); err != nil {
			log.Printf("logout: revoke access token: %v", err)
		}
	}
	if refreshToken != "" {
		if err := s.revokeRefresh(ctx, auth.HashToken(refreshToken)); err != nil {
			log.Printf("logout: revoke refresh token: %v", err)
		}
	}
	return nil
}

// Search runs a full-text query over activities, topics and subtasks.
func (s *Service) Search(ctx context.Context, text, filterType string, activityID int64, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:             text,
		FilterType:       search.ResultType(filterType),
		FilterActivityID: activityID,
		Limit:            limit,
		Offset:           offset,
	}), nil
}

// Export renders an activity report. Read access is enough; the report
// contains nothing a plain GET would not show.
func (s *Service) Export(ctx context.Context, sess Session, activityID int64, format string) (*export.Result, error) {
	if !rbac.Can(sess.Actor().Role, rbac.ActionRead) || !sess.Active {
		return nil, errForbidden()
	}
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export service not configured", nil)
	}
	if _, err := s.store.GetActivity(ctx, activityID); err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, export.Request{ActivityID: activityID, Format: export.Format(format)})
}
