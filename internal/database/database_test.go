package database

import (
	"path/filepath"
	"testing"

	"narrahunt/internal/artifact"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func TestUpsertDiscoveryCreates(t *testing.T) {
	db := openTestDB(t)
	stored, created, err := db.UpsertDiscovery(artifact.Discovery{
		Value:   "vitalik_btc",
		Display: "vitalik_btc",
		Subtype: artifact.TypeUsername,
		Entity:  "Vitalik Buterin",
		Score:   0.8,
		Sources: []string{"https://bitcointalk.org/profile"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected discovery to be created")
	}
	if stored.ID == 0 {
		t.Error("expected non-zero discovery ID")
	}
	if stored.Score != 0.8 {
		t.Errorf("expected score 0.8, got %v", stored.Score)
	}
	if stored.FirstSeen.IsZero() || stored.LastSeen.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestUpsertDiscoveryMonotonicMerge(t *testing.T) {
	db := openTestDB(t)
	db.UpsertDiscovery(artifact.Discovery{
		Value: "frontier", Display: "Frontier", Subtype: artifact.TypeProjectName,
		Entity: "Vitalik Buterin", Score: 0.9,
		Sources: []string{"https://ethereum.org/history"},
	})

	// A lower-scoring re-sighting must not lower the stored score or
	// overwrite the display form.
	stored, created, err := db.UpsertDiscovery(artifact.Discovery{
		Value: "frontier", Display: "frontier", Subtype: artifact.TypeProjectName,
		Entity: "Vitalik Buterin", Score: 0.5,
		Sources: []string{"https://blog.example.com/post"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected merge, not create")
	}
	if stored.Score != 0.9 {
		t.Errorf("expected score to stay 0.9, got %v", stored.Score)
	}
	if stored.Display != "Frontier" {
		t.Errorf("expected display 'Frontier', got %q", stored.Display)
	}
	if len(stored.Sources) != 2 {
		t.Errorf("expected 2 sources after merge, got %d", len(stored.Sources))
	}
}

func TestUpsertDiscoveryHigherScoreWins(t *testing.T) {
	db := openTestDB(t)
	db.UpsertDiscovery(artifact.Discovery{
		Value: "bitcoin magazine", Display: "bitcoin magazine", Subtype: artifact.TypeProjectName,
		Entity: "Vitalik Buterin", Score: 0.4,
		Sources: []string{"https://a.example.com"},
	})
	stored, _, err := db.UpsertDiscovery(artifact.Discovery{
		Value: "bitcoin magazine", Display: "Bitcoin Magazine", Subtype: artifact.TypeProjectName,
		Entity: "Vitalik Buterin", Score: 0.85,
		Sources: []string{"https://a.example.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Score != 0.85 {
		t.Errorf("expected score 0.85, got %v", stored.Score)
	}
	if stored.Display != "Bitcoin Magazine" {
		t.Errorf("expected display to follow higher score, got %q", stored.Display)
	}
	if len(stored.Sources) != 1 {
		t.Errorf("expected duplicate source ignored, got %d sources", len(stored.Sources))
	}
}

func TestSameValueDifferentSubtype(t *testing.T) {
	db := openTestDB(t)
	db.UpsertDiscovery(artifact.Discovery{
		Value: "frontier", Display: "Frontier", Subtype: artifact.TypeProjectName,
		Entity: "Vitalik Buterin", Score: 0.7,
	})
	_, created, err := db.UpsertDiscovery(artifact.Discovery{
		Value: "frontier", Display: "frontier", Subtype: artifact.TypeTerminology,
		Entity: "Vitalik Buterin", Score: 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected separate record per subtype")
	}

	all, _ := db.GetAllDiscoveries()
	if len(all) != 2 {
		t.Errorf("expected 2 discoveries, got %d", len(all))
	}
}

func TestHighValue(t *testing.T) {
	db := openTestDB(t)
	db.UpsertDiscovery(artifact.Discovery{Value: "low", Display: "low", Subtype: artifact.TypeGeneric, Entity: "E", Score: 0.4})
	db.UpsertDiscovery(artifact.Discovery{Value: "high", Display: "high", Subtype: artifact.TypeUsername, Entity: "E", Score: 0.9})
	db.UpsertDiscovery(artifact.Discovery{Value: "mid", Display: "mid", Subtype: artifact.TypePseudonym, Entity: "E", Score: 0.8})

	hv, err := db.HighValue(0.8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hv) != 2 {
		t.Fatalf("expected 2 high-value discoveries, got %d", len(hv))
	}
	if hv[0].Value != "high" {
		t.Errorf("expected highest score first, got %q", hv[0].Value)
	}
}

func TestGetDiscoveryMissing(t *testing.T) {
	db := openTestDB(t)
	d, err := db.GetDiscovery("nope", artifact.TypeUsername)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != nil {
		t.Error("expected nil for missing discovery")
	}
}

func TestEntityLifecycle(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertEntity("Vitalik Buterin", []string{"vitalik.eth"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero entity ID")
	}

	// Duplicate insert is a no-op.
	dup, err := db.InsertEntity("Vitalik Buterin", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup != 0 {
		t.Error("expected 0 for duplicate entity")
	}

	e, err := db.GetEntity("Vitalik Buterin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e == nil {
		t.Fatal("expected entity")
	}
	if len(e.Aliases) != 1 || e.Aliases[0] != "vitalik.eth" {
		t.Errorf("expected alias 'vitalik.eth', got %v", e.Aliases)
	}
	if e.PromotedFrom != nil {
		t.Error("expected seed entity to have no promoted_from")
	}
}

func TestPromotedEntity(t *testing.T) {
	db := openTestDB(t)
	db.InsertEntity("Vitalik Buterin", nil, nil)
	db.InsertEntity("vitalik_btc", nil, ptr("Vitalik Buterin"))

	e, _ := db.GetEntity("vitalik_btc")
	if e == nil {
		t.Fatal("expected promoted entity")
	}
	if e.PromotedFrom == nil || *e.PromotedFrom != "Vitalik Buterin" {
		t.Error("expected promoted_from to be recorded")
	}

	all, _ := db.GetAllEntities()
	if len(all) != 2 {
		t.Errorf("expected 2 entities, got %d", len(all))
	}
}

func TestAppendAlias(t *testing.T) {
	db := openTestDB(t)
	db.InsertEntity("Satoshi Nakamoto", []string{"satoshi"}, nil)

	if err := db.AppendAlias("Satoshi Nakamoto", "nakamoto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Appending an existing alias is a no-op.
	if err := db.AppendAlias("Satoshi Nakamoto", "satoshi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, _ := db.GetEntity("Satoshi Nakamoto")
	if len(e.Aliases) != 2 {
		t.Errorf("expected 2 aliases, got %v", e.Aliases)
	}
}

func TestCellRoundTrip(t *testing.T) {
	db := openTestDB(t)
	cells := []CellRow{
		{Entity: "Vitalik Buterin", ArtifactType: "username", Status: "exhausted", Priority: 0.25, Sources: nil, LastRun: ptr("2026-08-30 10:00:00"), Position: 0},
		{Entity: "Vitalik Buterin", ArtifactType: "project_name", Status: "pending", Priority: 1.0, Sources: []string{"https://vitalik.ca"}, Position: 1},
	}
	for _, c := range cells {
		if err := db.SaveCell(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := db.GetAllCells()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(got))
	}
	if got[0].ArtifactType != "username" || got[1].ArtifactType != "project_name" {
		t.Error("expected cells ordered by position")
	}
	if got[0].Status != "exhausted" || got[0].Priority != 0.25 {
		t.Errorf("expected exhausted/0.25, got %s/%v", got[0].Status, got[0].Priority)
	}
	if len(got[1].Sources) != 1 {
		t.Errorf("expected 1 queued source, got %d", len(got[1].Sources))
	}

	// Saving again with new state replaces the row.
	cells[1].Status = "pending"
	cells[1].Priority = 0.5
	cells[1].Sources = nil
	db.SaveCell(cells[1])
	got, _ = db.GetAllCells()
	if len(got) != 2 {
		t.Fatalf("expected replace not insert, got %d cells", len(got))
	}
	if got[1].Priority != 0.5 {
		t.Errorf("expected priority 0.5 after save, got %v", got[1].Priority)
	}
}

func TestResetCells(t *testing.T) {
	db := openTestDB(t)
	db.SaveCell(CellRow{Entity: "E", ArtifactType: "username", Status: "pending", Priority: 1.0})
	if err := db.ResetCells(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := db.GetAllCells()
	if len(got) != 0 {
		t.Errorf("expected 0 cells after reset, got %d", len(got))
	}
}

func TestReportLifecycle(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertReport(ObjectiveReport{
		Entity:          "Vitalik Buterin",
		ArtifactType:    "username",
		CellStatusAfter: "pending",
		DiscoveryCount:  2,
		FailedSources:   []string{"https://dead.example.com"},
		Flagged:         false,
		BodyMarkdown:    ptr("# Objective report\n"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero report ID")
	}

	r, err := db.GetReport(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r == nil {
		t.Fatal("expected report")
	}
	if r.DiscoveryCount != 2 {
		t.Errorf("expected 2 discoveries, got %d", r.DiscoveryCount)
	}
	if len(r.FailedSources) != 1 {
		t.Errorf("expected 1 failed source, got %d", len(r.FailedSources))
	}
	if r.Flagged {
		t.Error("expected report not flagged")
	}
}

func TestFlaggedReport(t *testing.T) {
	db := openTestDB(t)
	db.InsertReport(ObjectiveReport{
		Entity: "E", ArtifactType: "username", CellStatusAfter: "exhausted",
		DiscoveryCount: 0, FailedSources: []string{"https://a", "https://b"},
		Flagged: true,
	})
	db.InsertReport(ObjectiveReport{
		Entity: "E", ArtifactType: "project_name", CellStatusAfter: "pending",
		DiscoveryCount: 3, Flagged: false,
	})

	recent, err := db.GetRecentReports(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(recent))
	}

	stats, _ := db.GetStats()
	if stats.FlaggedReports != 1 {
		t.Errorf("expected 1 flagged report, got %d", stats.FlaggedReports)
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Entities != 0 || stats.Discoveries != 0 {
		t.Error("expected empty stats")
	}

	db.InsertEntity("Seed", nil, nil)
	db.InsertEntity("Promoted", nil, ptr("Seed"))
	db.SaveCell(CellRow{Entity: "Seed", ArtifactType: "username", Status: "pending", Priority: 1.0})
	db.SaveCell(CellRow{Entity: "Seed", ArtifactType: "pseudonym", Status: "exhausted", Priority: 0.01, Position: 1})
	db.UpsertDiscovery(artifact.Discovery{Value: "x", Display: "x", Subtype: artifact.TypeUsername, Entity: "Seed", Score: 0.9})

	stats, _ = db.GetStats()
	if stats.Entities != 2 {
		t.Errorf("expected 2 entities, got %d", stats.Entities)
	}
	if stats.PromotedEntities != 1 {
		t.Errorf("expected 1 promoted entity, got %d", stats.PromotedEntities)
	}
	if stats.PendingCells != 1 || stats.ExhaustedCells != 1 {
		t.Errorf("expected 1 pending / 1 exhausted, got %d/%d", stats.PendingCells, stats.ExhaustedCells)
	}
	if stats.HighValue != 1 {
		t.Errorf("expected 1 high-value discovery, got %d", stats.HighValue)
	}
}
