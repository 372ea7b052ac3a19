package app

import (
	"context"
	"net/http"
	"testing"

	"plantrack/api/internal/store"
)

func TestActivityRouteRejectsMalformedID(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/activities/abc", bearer, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-numeric id, got %d", rr.Code)
	}
	if payload["code"] != "NOT_FOUND" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestGetActivityFormatsDates(t *testing.T) {
	fs := &fakeStore{
		getActivityFn: func(context.Context, int64) (store.Activity, error) {
			return testActivity(42, 7), nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/activities/42", bearer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	activity, ok := payload["activity"].(map[string]any)
	if !ok {
		t.Fatalf("missing activity in %v", payload)
	}
	if activity["start_date"] != "2026-08-01" || activity["end_date"] != "2026-09-30" {
		t.Fatalf("dates not in wire format: %v", activity)
	}
}

func TestCreateTopicEndpoint(t *testing.T) {
	fs := &fakeStore{
		getActivityFn: func(context.Context, int64) (store.Activity, error) {
			return testActivity(42, 7), nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodPost, "/api/activities/42/topics", bearer, map[string]any{
		"title":       "Design",
		"order_index": 2,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	topic, ok := payload["topic"].(map[string]any)
	if !ok || topic["title"] != "Design" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestPatchSubTaskEndpointCarriesWarnings(t *testing.T) {
	assignee := int64(9)
	st := subTaskFixture(&assignee)
	fs := planFakesFor(st, 7)
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodPatch, "/api/subtasks/11", bearer, map[string]any{
		"end_date": "2026-10-15",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	warnings, ok := payload["warnings"].([]any)
	if !ok || len(warnings) != 1 {
		t.Fatalf("expected one warning for the out-of-span date, got %v", payload["warnings"])
	}
	subtask, ok := payload["subtask"].(map[string]any)
	if !ok {
		t.Fatalf("missing subtask in %v", payload)
	}
	if subtask["end_date"] != "2026-10-15" {
		t.Fatalf("patched date not applied: %v", subtask)
	}
	if subtask["effective_status"] == nil {
		t.Fatal("derived status missing from the view")
	}
}

func TestPatchSubTaskEndpointOmitsEmptyWarnings(t *testing.T) {
	assignee := int64(9)
	st := subTaskFixture(&assignee)
	fs := planFakesFor(st, 7)
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodPatch, "/api/subtasks/11", bearer, map[string]any{
		"progress_percent": 80,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if _, present := payload["warnings"]; present {
		t.Fatal("warnings key must be absent when there are none")
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/activities/42/export?format=docx", bearer, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestGanttPayloadShape(t *testing.T) {
	fs := &fakeStore{
		getActivityFn: func(context.Context, int64) (store.Activity, error) {
			return testActivity(42, 7), nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, fs, editorUser())

	rr, payload := doJSON(t, server.Handler(), http.MethodGet, "/api/activities/42/gantt", bearer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	for _, key := range []string{"activity", "topics", "scale", "range", "today"} {
		if _, present := payload[key]; !present {
			t.Fatalf("gantt payload missing %q: %v", key, payload)
		}
	}
	// Two months span -> weekly scale.
	if payload["scale"] != "week" {
		t.Fatalf("expected week scale for a two-month span, got %v", payload["scale"])
	}
	if payload["today"] != "2026-08-15" {
		t.Fatalf("today must use the service clock, got %v", payload["today"])
	}
	if _, ok := payload["topics"].([]any); !ok {
		t.Fatalf("topics must encode as an array, got %T", payload["topics"])
	}
}

func TestViewerCannotMutateOverHTTP(t *testing.T) {
	fs := &fakeStore{
		getActivityFn: func(context.Context, int64) (store.Activity, error) {
			return testActivity(42, 7), nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	viewer := store.User{ID: 3, Email: "viewer@example.com", Role: "VIEWER", IsActive: true}
	bearer := bearerFor(t, svc, fs, viewer)

	rr, payload := doJSON(t, server.Handler(), http.MethodPost, "/api/activities/42/topics", bearer, map[string]any{
		"title": "Design",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if payload["code"] != "FORBIDDEN" {
		t.Fatalf("unexpected payload %v", payload)
	}
}
