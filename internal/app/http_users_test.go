package app

import (
	"context"
	"net/http"
	"testing"

	"plantrack/api/internal/store"
)

func TestUsersCollectionScopedByRole(t *testing.T) {
	users := []store.User{
		{ID: 1, Email: "admin@example.com", FullName: "Admin", Role: "ADMIN", IsActive: true},
		{ID: 7, Email: "ayse@example.com", FullName: "Ayse Demir", Role: "EDITOR", IsActive: true},
		{ID: 8, Email: "gone@example.com", FullName: "Former", Role: "VIEWER", IsActive: false},
	}
	fs := &fakeStore{
		listUsersFn: func(context.Context) ([]store.User, error) { return users, nil },
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/users", bearer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	listed, ok := payload["users"].([]any)
	if !ok {
		t.Fatalf("missing users in %v", payload)
	}
	// Non-admins get active accounts only, reduced to assignee-picker fields.
	if len(listed) != 2 {
		t.Fatalf("expected deactivated accounts filtered out, got %v", listed)
	}
	first, _ := listed[0].(map[string]any)
	if _, present := first["is_active"]; present {
		t.Fatalf("summaries must not expose account state: %v", first)
	}
}

func TestUsersCollectionAdminSeesEverything(t *testing.T) {
	users := []store.User{
		{ID: 1, Email: "admin@example.com", FullName: "Admin", Role: "ADMIN", IsActive: true},
		{ID: 8, Email: "gone@example.com", FullName: "Former", Role: "VIEWER", IsActive: false},
	}
	fs := &fakeStore{
		listUsersFn: func(context.Context) ([]store.User, error) { return users, nil },
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	admin := store.User{ID: 1, Email: "admin@example.com", FullName: "Admin", Role: "ADMIN", IsActive: true}
	bearer := bearerFor(t, svc, fs, admin)

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/users", bearer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	listed, _ := payload["users"].([]any)
	if len(listed) != 2 {
		t.Fatalf("admin must see deactivated accounts too, got %v", listed)
	}
}

func TestUserMeAlias(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/users/me", bearer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	user, _ := payload["user"].(map[string]any)
	if user["email"] != "ayse@example.com" {
		t.Fatalf("me alias returned wrong account: %v", user)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodPut, "/api/users/me/password", bearer, map[string]string{
		"old_password": "not-it",
		"new_password": "longenough",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestNotificationsLimitValidation(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/notifications?limit=abc", bearer, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestNotificationsListDefaultsToEmptyArray(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/notifications", bearer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if _, ok := payload["notifications"].([]any); !ok {
		t.Fatalf("notifications must encode as an array, got %T", payload["notifications"])
	}
}

func TestMarkNotificationReadRequiresFlag(t *testing.T) {
	fs := &fakeStore{
		getNotificationFn: func(context.Context, int64) (store.Notification, error) {
			return store.Notification{ID: 3, TargetUserID: 7}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodPatch, "/api/notifications/3", bearer, map[string]any{})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without is_read, got %d", rr.Code)
	}
	if payload["error"] != "is_read is required" {
		t.Fatalf("unexpected payload %v", payload)
	}

	rr, payload = doJSON(t, server.Handler(), http.MethodPatch, "/api/notifications/3", bearer, map[string]any{
		"is_read": true,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("mark read status %d: %s", rr.Code, rr.Body.String())
	}
	if _, ok := payload["notification"].(map[string]any); !ok {
		t.Fatalf("missing notification in %v", payload)
	}
}

func TestMarkAllNotificationsReadEndpoint(t *testing.T) {
	fs := &fakeStore{markAllReadReturnCount: 4}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodPost, "/api/notifications/mark-all-read", bearer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if payload["updated"] != float64(4) {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestUnreadCountEndpoint(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/notifications/unread-count", bearer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if payload["count"] != float64(0) {
		t.Fatalf("unexpected payload %v", payload)
	}
}
