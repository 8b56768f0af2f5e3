package engine

import (
	"context"
	"path/filepath"
	"testing"

	"narrahunt/internal/artifact"
	"narrahunt/internal/config"
	"narrahunt/internal/crawl"
	"narrahunt/internal/database"
	"narrahunt/internal/matrix"
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

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("failed to parse test config: %v", err)
	}
	return cfg
}

const aboutPage = "Vitalik Buterin posted as vitalik_btc on bitcointalk.org in 2011."

func TestFullCycle(t *testing.T) {
	cfg := testConfig(t, `
entities:
  - name: Vitalik Buterin
    sources:
      - https://vitalik.ca/about
artifact_types: [username]
scoring:
  source_credibility:
    vitalik.ca: 1.0
promotion:
  profile_urls:
    - https://github.com/%s
llm:
  provider: none
`)
	db := openTestDB(t)
	fetcher := crawl.NewFixtureFetcher(map[string]string{
		"https://vitalik.ca/about": aboutPage,
	})

	eng, err := New(cfg, db, fetcher, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := eng.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Entity != "Vitalik Buterin" || result.ArtifactType != artifact.TypeUsername {
		t.Errorf("unexpected objective %s/%s", result.Entity, result.ArtifactType)
	}
	if len(result.Discoveries) != 1 {
		t.Fatalf("expected 1 discovery, got %d", len(result.Discoveries))
	}
	d := result.Discoveries[0]
	if d.Value != "vitalik_btc" {
		t.Errorf("expected vitalik_btc, got %q", d.Value)
	}
	// username weight 0.6 + entity boost 0.2, credibility 1.0.
	if d.Score != 0.8 {
		t.Errorf("expected score 0.8, got %v", d.Score)
	}
	if result.Flagged {
		t.Error("cycle with discoveries must not be flagged")
	}
	if result.CellStatus != matrix.StatusExhausted {
		t.Errorf("expected cell exhausted after its only source, got %s", result.CellStatus)
	}

	// Score 0.8 on an identity subtype promotes a new entity.
	if len(result.Promoted) != 1 || result.Promoted[0] != "vitalik_btc" {
		t.Fatalf("expected vitalik_btc promoted, got %v", result.Promoted)
	}
	promoted, err := db.GetEntity("vitalik_btc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if promoted == nil || promoted.PromotedFrom == nil || *promoted.PromotedFrom != "Vitalik Buterin" {
		t.Error("expected promoted entity recorded with its origin")
	}

	// Promotion adds fresh cells, so the next objective targets the new
	// entity via its synthesized source queue.
	obj, err := eng.Matrix().NextObjective()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj.Entity != "vitalik_btc" {
		t.Errorf("expected next objective for promoted entity, got %s", obj.Entity)
	}
	if len(obj.Sources) == 0 || obj.Sources[0] != "https://github.com/vitalik_btc" {
		t.Errorf("expected synthesized profile source, got %v", obj.Sources)
	}

	stored, _ := db.GetDiscovery("vitalik_btc", artifact.TypeUsername)
	if stored == nil {
		t.Fatal("expected discovery persisted")
	}
	if len(stored.Sources) != 1 {
		t.Errorf("expected 1 source recorded, got %d", len(stored.Sources))
	}

	rep, err := db.GetReport(result.ReportID)
	if err != nil || rep == nil {
		t.Fatalf("expected stored report, err=%v", err)
	}
	if rep.DiscoveryCount != 1 || rep.Flagged {
		t.Errorf("unexpected report: count=%d flagged=%v", rep.DiscoveryCount, rep.Flagged)
	}
}

func TestFailedSourceStaysQueued(t *testing.T) {
	cfg := testConfig(t, `
entities:
  - name: Vitalik Buterin
    sources:
      - https://vitalik.ca/about
      - https://down.example.com/page
artifact_types: [username]
llm:
  provider: none
`)
	db := openTestDB(t)
	fetcher := crawl.NewFixtureFetcher(map[string]string{
		"https://vitalik.ca/about": aboutPage,
	})

	eng, err := New(cfg, db, fetcher, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := eng.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.FailedSources) != 1 || result.FailedSources[0] != "https://down.example.com/page" {
		t.Errorf("expected the dead source reported, got %v", result.FailedSources)
	}
	if len(result.Discoveries) != 1 {
		t.Errorf("expected the reachable source still processed, got %d discoveries", len(result.Discoveries))
	}
	if result.CellStatus != matrix.StatusPending {
		t.Errorf("expected cell pending while the failed source is queued, got %s", result.CellStatus)
	}

	// The persisted cell keeps only the failed source for retry.
	rows, _ := db.GetAllCells()
	if len(rows) != 1 {
		t.Fatalf("expected 1 persisted cell, got %d", len(rows))
	}
	if len(rows[0].Sources) != 1 || rows[0].Sources[0] != "https://down.example.com/page" {
		t.Errorf("expected failed source queued for retry, got %v", rows[0].Sources)
	}
}

func TestZeroYieldCycleFlagged(t *testing.T) {
	cfg := testConfig(t, `
entities:
  - name: Vitalik Buterin
    sources:
      - https://gone.example.com/a
      - https://gone.example.com/b
artifact_types: [username]
llm:
  provider: none
`)
	db := openTestDB(t)
	fetcher := crawl.NewFixtureFetcher(nil)

	eng, err := New(cfg, db, fetcher, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := eng.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Flagged {
		t.Error("expected cycle with zero fetches and zero discoveries flagged")
	}
	if len(result.FailedSources) != 2 {
		t.Errorf("expected both sources reported failed, got %v", result.FailedSources)
	}
	if result.CellStatus != matrix.StatusPending {
		t.Errorf("expected all sources retained for retry, got %s", result.CellStatus)
	}

	rep, _ := db.GetReport(result.ReportID)
	if rep == nil || !rep.Flagged {
		t.Error("expected flagged report persisted")
	}
}

func TestRunStopsWhenMatrixExhausted(t *testing.T) {
	cfg := testConfig(t, `
entities:
  - name: Vitalik Buterin
    sources:
      - https://vitalik.ca/about
artifact_types: [username, pseudonym]
llm:
  provider: none
`)
	db := openTestDB(t)
	fetcher := crawl.NewFixtureFetcher(map[string]string{
		"https://vitalik.ca/about": aboutPage,
	})

	eng, err := New(cfg, db, fetcher, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := eng.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Two cells, one source each: the run ends well before ten cycles.
	if len(results) != 2 {
		t.Errorf("expected 2 cycles before exhaustion, got %d", len(results))
	}
}

func TestMatrixStateSurvivesRestart(t *testing.T) {
	yaml := `
entities:
  - name: Vitalik Buterin
    sources:
      - https://vitalik.ca/about
artifact_types: [username]
llm:
  provider: none
`
	db := openTestDB(t)
	fetcher := crawl.NewFixtureFetcher(map[string]string{
		"https://vitalik.ca/about": aboutPage,
	})

	eng, err := New(testConfig(t, yaml), db, fetcher, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := eng.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A new engine over the same database must see the exhausted cell and
	// not re-run it, even though the config still lists the entity.
	eng2, err := New(testConfig(t, yaml), db, fetcher, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := eng2.RunCycle(context.Background()); err != matrix.ErrNoObjective {
		t.Errorf("expected ErrNoObjective after restart, got %v", err)
	}
}
