// Package engine drives the research loop: pick an objective, fetch its
// sources, extract and score candidates, persist discoveries, and feed
// the results back into the matrix. Fetching and extraction run in
// parallel per source; the store merge and objective completion are
// serialized.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"narrahunt/internal/artifact"
	"narrahunt/internal/classify"
	"narrahunt/internal/config"
	"narrahunt/internal/crawl"
	"narrahunt/internal/database"
	"narrahunt/internal/extract"
	"narrahunt/internal/llm"
	"narrahunt/internal/matrix"
	"narrahunt/internal/report"
	"narrahunt/internal/score"
)

// Engine coordinates one research loop over a matrix, a crawler, and the
// discovery store. It owns no persistent state itself.
type Engine struct {
	cfg        *config.Config
	db         *database.DB
	mat        *matrix.Matrix
	fetcher    crawl.Fetcher
	provider   llm.Provider
	scorer     *score.Scorer
	classifier *classify.Classifier
}

// CycleResult is the outcome of one completed objective.
type CycleResult struct {
	Entity        string
	ArtifactType  artifact.Type
	Discoveries   []artifact.Discovery
	CellStatus    matrix.Status
	Promoted      []string
	FailedSources []string
	Flagged       bool
	ReportID      int64
}

// ErrMatrixExhausted wraps matrix.ErrNoObjective for callers of Run.
var ErrMatrixExhausted = matrix.ErrNoObjective

// New builds an engine: it restores persisted matrix state, merges the
// configured seed entities on top, and records seeds in the entity table.
func New(cfg *config.Config, db *database.DB, fetcher crawl.Fetcher, provider llm.Provider) (*Engine, error) {
	mat := matrix.New(matrix.Options{
		DecayFactor:        cfg.Scoring.DecayFactor,
		PriorityFloor:      cfg.Scoring.PriorityFloor,
		PromotionThreshold: cfg.Scoring.PromotionThreshold,
		ProfileURLs:        cfg.Promotion.ProfileURLs,
		SearchTemplate:     cfg.Promotion.SearchTemplate,
	})

	rows, err := db.GetAllCells()
	if err != nil {
		return nil, fmt.Errorf("loading matrix state: %w", err)
	}
	mat.Load(cellsFromRows(rows))

	seeds := make([]matrix.Seed, 0, len(cfg.Entities))
	for _, e := range cfg.Entities {
		seeds = append(seeds, matrix.Seed{Name: e.Name, Aliases: e.Aliases, Sources: e.Sources})
		if _, err := db.InsertEntity(e.Name, e.Aliases, nil); err != nil {
			return nil, fmt.Errorf("recording entity %q: %w", e.Name, err)
		}
	}
	mat.Configure(seeds, cfg.Types())

	return &Engine{
		cfg:      cfg,
		db:       db,
		mat:      mat,
		fetcher:  fetcher,
		provider: provider,
		scorer: score.New(score.Options{
			SubtypeWeights:     cfg.Scoring.SubtypeWeights,
			EntityBoost:        cfg.Scoring.EntityBoost,
			KeywordBoost:       cfg.Scoring.KeywordBoost,
			Keywords:           cfg.Keywords,
			SourceCredibility:  cfg.Scoring.SourceCredibility,
			DefaultCredibility: cfg.Scoring.DefaultCredibility,
		}),
		classifier: classify.New(cfg.Scoring.MinPersistScore),
	}, nil
}

// Matrix exposes the engine's matrix for status inspection.
func (e *Engine) Matrix() *matrix.Matrix {
	return e.mat
}

// Run executes up to maxCycles research cycles, stopping early when the
// matrix is exhausted or the context is cancelled.
func (e *Engine) Run(ctx context.Context, maxCycles int) ([]CycleResult, error) {
	var results []CycleResult
	for i := 0; i < maxCycles; i++ {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		result, err := e.RunCycle(ctx)
		if errors.Is(err, matrix.ErrNoObjective) {
			log.Printf("Matrix exhausted after %d cycle(s)", i)
			return results, nil
		}
		if err != nil {
			return results, err
		}
		results = append(results, *result)

		log.Printf("Cycle %d/%d: %s/%s -> %d discoveries, %d promoted, cell %s",
			i+1, maxCycles, result.Entity, result.ArtifactType,
			len(result.Discoveries), len(result.Promoted), result.CellStatus)
	}
	return results, nil
}

// RunCycle performs one full cycle for the next objective. Per-source
// fetch failures are isolated: their sources stay queued for the cell's
// next activation, and whatever succeeded is still merged and completed.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	obj, err := e.mat.NextObjective()
	if err != nil {
		return nil, err
	}

	candidates, attempted, failed := e.gather(ctx, obj)

	candidates = e.refine(ctx, candidates)

	staged := e.classifier.Classify(candidates)

	// Serialized merge into the store. The stored record (max score,
	// source union across all prior runs) is what drives promotion.
	var stored []artifact.Discovery
	for _, d := range staged {
		merged, _, err := e.db.UpsertDiscovery(d)
		if err != nil {
			return nil, fmt.Errorf("upserting discovery %q: %w", d.Value, err)
		}
		stored = append(stored, *merged)
	}

	comp, err := e.mat.CompleteObjective(obj, attempted, stored)
	if err != nil {
		return nil, err
	}

	for _, name := range comp.Promoted {
		origin := obj.Entity
		if _, err := e.db.InsertEntity(name, nil, &origin); err != nil {
			log.Printf("Error recording promoted entity %q: %v", name, err)
		}
	}

	if err := e.persistCells(); err != nil {
		return nil, err
	}

	flagged := len(stored) == 0 && len(attempted) == 0
	body := report.Markdown(report.Record{
		Entity:          obj.Entity,
		ArtifactType:    obj.Type,
		CellStatusAfter: string(comp.CellStatus),
		Discoveries:     stored,
		FailedSources:   failed,
		Promoted:        comp.Promoted,
		Flagged:         flagged,
		GeneratedAt:     time.Now(),
	})
	reportID, err := e.db.InsertReport(database.ObjectiveReport{
		Entity:          obj.Entity,
		ArtifactType:    string(obj.Type),
		CellStatusAfter: string(comp.CellStatus),
		DiscoveryCount:  len(stored),
		FailedSources:   failed,
		Flagged:         flagged,
		BodyMarkdown:    &body,
	})
	if err != nil {
		return nil, fmt.Errorf("storing report: %w", err)
	}

	return &CycleResult{
		Entity:        obj.Entity,
		ArtifactType:  obj.Type,
		Discoveries:   stored,
		CellStatus:    comp.CellStatus,
		Promoted:      comp.Promoted,
		FailedSources: failed,
		Flagged:       flagged,
		ReportID:      reportID,
	}, nil
}

// gather fetches every source of the objective with bounded parallelism
// and runs the pure extract+score pass on each fetched page.
func (e *Engine) gather(ctx context.Context, obj *matrix.Objective) (candidates []artifact.Candidate, attempted, failed []string) {
	extractor := extract.New(obj.Entity, obj.Aliases, e.cfg.Keywords, e.cfg.Types())

	type sourceResult struct {
		candidates []artifact.Candidate
		err        error
	}
	results := make([]sourceResult, len(obj.Sources))

	g, gctx := errgroup.WithContext(ctx)
	limit := e.cfg.Crawler.MaxParallel
	if limit <= 0 {
		limit = len(obj.Sources)
	}
	g.SetLimit(limit)

	for i, source := range obj.Sources {
		g.Go(func() error {
			page, err := e.fetcher.Fetch(gctx, source)
			if err != nil {
				results[i] = sourceResult{err: err}
				return nil // per-source failures never abort the cycle
			}
			scored := extractor.Extract(page.Text, source)
			for j := range scored {
				scored[j].Score = e.scorer.Score(scored[j])
			}
			results[i] = sourceResult{candidates: scored}
			return nil
		})
	}
	g.Wait()

	for i, source := range obj.Sources {
		if results[i].err != nil {
			failed = append(failed, source)
			log.Printf("Source failed (will retry next activation): %v", results[i].err)
			continue
		}
		attempted = append(attempted, source)
		candidates = append(candidates, results[i].candidates...)
	}
	return candidates, attempted, failed
}

// refine re-judges candidates whose pattern score landed in the ambiguous
// band. The judged score never lowers the pattern score, and a missing or
// failing provider leaves pattern scores untouched.
func (e *Engine) refine(ctx context.Context, candidates []artifact.Candidate) []artifact.Candidate {
	if e.provider == nil {
		return candidates
	}

	low, high := e.cfg.LLM.JudgeBandLow, e.cfg.LLM.JudgeBandHigh
	for i := range candidates {
		s := candidates[i].Score
		if s < low || s > high {
			continue
		}
		judgment, err := llm.Judge(ctx, e.provider, candidates[i], e.cfg.LLM.MaxTokens)
		if err != nil || judgment == nil {
			continue
		}
		if judgment.Score > s {
			candidates[i].Score = judgment.Score
		}
	}
	return candidates
}

func (e *Engine) persistCells() error {
	for _, c := range e.mat.Cells() {
		var lastRun *string
		if !c.LastRun.IsZero() {
			s := c.LastRun.UTC().Format("2006-01-02 15:04:05")
			lastRun = &s
		}
		row := database.CellRow{
			Entity:       c.Key.Entity,
			ArtifactType: string(c.Key.Type),
			Status:       string(c.Status),
			Priority:     c.Priority,
			Sources:      c.Sources,
			LastRun:      lastRun,
			Position:     c.Position,
		}
		if err := e.db.SaveCell(row); err != nil {
			return fmt.Errorf("saving cell %s/%s: %w", row.Entity, row.ArtifactType, err)
		}
	}
	return nil
}

func cellsFromRows(rows []database.CellRow) []matrix.Cell {
	cells := make([]matrix.Cell, 0, len(rows))
	for _, r := range rows {
		t, err := artifact.ParseType(r.ArtifactType)
		if err != nil {
			log.Printf("Skipping persisted cell with unknown type %q", r.ArtifactType)
			continue
		}
		var lastRun time.Time
		if r.LastRun != nil {
			if parsed, err := time.Parse("2006-01-02 15:04:05", *r.LastRun); err == nil {
				lastRun = parsed
			}
		}
		cells = append(cells, matrix.Cell{
			Key:      matrix.Key{Entity: r.Entity, Type: t},
			Status:   matrix.Status(r.Status),
			Priority: r.Priority,
			Sources:  r.Sources,
			LastRun:  lastRun,
			Position: r.Position,
		})
	}
	return cells
}
