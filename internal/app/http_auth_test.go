package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"plantrack/api/internal/authpw"
	"plantrack/api/internal/store"
)

// bearerFor wires the fake store to recognize the user and returns an
// Authorization header value carrying a fresh access token.
func bearerFor(t *testing.T, svc *Service, fs *fakeStore, user store.User) string {
	t.Helper()
	fs.getUserByIDFn = func(_ context.Context, id int64) (store.User, error) {
		if id == user.ID {
			return user, nil
		}
		return store.User{}, sql.ErrNoRows
	}
	sess, err := svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return "Bearer " + sess.Token
}

func doJSON(t *testing.T, handler http.Handler, method, path, bearer string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var payload map[string]any
	if len(rr.Body.Bytes()) > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", rr.Body.String(), err)
		}
	}
	return rr, payload
}

func editorUser() store.User {
	hash, err := authpw.HashPassword("hunter22")
	if err != nil {
		panic(err)
	}
	return store.User{
		ID:           7,
		Email:        "ayse@example.com",
		FullName:     "Ayse Demir",
		PasswordHash: hash,
		Role:         "EDITOR",
		IsActive:     true,
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")
	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health status %d", rr.Code)
	}
	if payload["ok"] != true {
		t.Fatalf("unexpected health payload %v", payload)
	}
}

func TestLoginEndpointReturnsTokenPair(t *testing.T) {
	user := editorUser()
	fs := &fakeStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			if email == user.Email {
				return user, nil
			}
			return store.User{}, sql.ErrNoRows
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr, payload := doJSON(t, server.Handler(), http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ayse@example.com",
		"password": "hunter22",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rr.Code, rr.Body.String())
	}
	if payload["token"] == "" || payload["refresh_token"] == "" {
		t.Fatalf("missing token pair in %v", payload)
	}
	if payload["role"] != "EDITOR" || payload["full_name"] != "Ayse Demir" {
		t.Fatalf("unexpected identity fields in %v", payload)
	}
}

func TestLoginEndpointRejectsBadPassword(t *testing.T) {
	user := editorUser()
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) { return user, nil },
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr, payload := doJSON(t, server.Handler(), http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ayse@example.com",
		"password": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("unexpected error payload %v", payload)
	}
}

func TestLoginEndpointRejectsMalformedBody(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	paths := []string{
		"/api/auth/me",
		"/api/activities",
		"/api/users",
		"/api/notifications",
		"/api/search",
	}
	for _, path := range paths {
		rr, payload := doJSON(t, server.Handler(), http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: expected 401, got %d", path, rr.Code)
		}
		if payload["code"] != "UNAUTHORIZED" {
			t.Fatalf("%s: unexpected error payload %v", path, payload)
		}
	}
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	rr, payload := doJSON(t, server.Handler(), http.MethodPost, "/api/auth/logout", "Bearer garbage", map[string]string{
		"refresh_token": "whatever",
	})
	if rr.Code != http.StatusOK || payload["ok"] != true {
		t.Fatalf("logout must not fail, got %d %v", rr.Code, payload)
	}
}

func TestMeReturnsCurrentUser(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/auth/me", bearer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me status %d: %s", rr.Code, rr.Body.String())
	}
	user, ok := payload["user"].(map[string]any)
	if !ok {
		t.Fatalf("missing user in %v", payload)
	}
	if user["email"] != "ayse@example.com" {
		t.Fatalf("unexpected user %v", user)
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Fatal("password hash must never reach the wire")
	}
}

func TestRequestIDEchoedBack(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}
