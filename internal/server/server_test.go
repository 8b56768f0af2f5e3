package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"narrahunt/internal/artifact"
	"narrahunt/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	db.SaveCell(database.CellRow{Entity: "Vitalik Buterin", ArtifactType: "username", Status: "pending", Priority: 1.0})

	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Research Matrix") {
		t.Error("expected 'Research Matrix' in response body")
	}
	if !strings.Contains(body, "Vitalik Buterin") {
		t.Error("expected cell entity in response body")
	}
}

func TestEntityRoute(t *testing.T) {
	db := openTestDB(t)
	db.InsertEntity("Vitalik Buterin", []string{"vitalik.eth"}, nil)
	db.UpsertDiscovery(artifact.Discovery{
		Value: "vitalik_btc", Display: "vitalik_btc", Subtype: artifact.TypeUsername,
		Entity: "Vitalik Buterin", Score: 0.8,
		Sources: []string{"https://bitcointalk.org"},
	})

	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/entity/Vitalik%20Buterin")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "vitalik_btc") {
		t.Error("expected discovery in response body")
	}
	if !strings.Contains(body, "vitalik.eth") {
		t.Error("expected alias in response body")
	}
}

func TestEntityRouteNotFound(t *testing.T) {
	db := openTestDB(t)
	srv, _ := New(db)

	rec := get(t, srv, "/entity/Nobody")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestReportRoute(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertReport(database.ObjectiveReport{
		Entity:          "Vitalik Buterin",
		ArtifactType:    "username",
		CellStatusAfter: "exhausted",
		DiscoveryCount:  1,
		BodyMarkdown:    ptr("# Objective digest\n\n- **vitalik_btc**\n"),
	})

	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/report/1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	// The markdown body renders as HTML.
	if !strings.Contains(body, "<h1") || !strings.Contains(body, "Objective digest") {
		t.Errorf("expected rendered markdown for report %d, got:\n%s", id, body)
	}
}

func TestReportRouteBadID(t *testing.T) {
	db := openTestDB(t)
	srv, _ := New(db)

	if rec := get(t, srv, "/report/notanumber"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for bad id, got %d", rec.Code)
	}
	if rec := get(t, srv, "/report/999"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing report, got %d", rec.Code)
	}
}

func TestUnknownPath(t *testing.T) {
	db := openTestDB(t)
	srv, _ := New(db)

	if rec := get(t, srv, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
