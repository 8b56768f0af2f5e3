// Package matrix owns the research matrix: the (entity, artifact type)
// cells, their objective lifecycle, and promotion of high-value
// discoveries into new entities. All transitions go through NextObjective
// and CompleteObjective under a single lock; no other code mutates cells.
package matrix

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"narrahunt/internal/artifact"
)

// ErrNoObjective is returned when every cell is active or exhausted.
// Recoverable by reconfiguring the matrix with fresh entities or sources.
var ErrNoObjective = errors.New("no objective available")

// Status is the lifecycle state of a matrix cell.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusExhausted Status = "exhausted"
)

// Key identifies one cell.
type Key struct {
	Entity string
	Type   artifact.Type
}

// Cell is the tracked state for one (entity, artifact type) combination.
type Cell struct {
	Key      Key
	Status   Status
	Priority float64
	Sources  []string // remaining source queue, in consult order
	LastRun  time.Time
	Position int // insertion order, used as the final tie-break
}

// Seed describes an entity to merge into the matrix.
type Seed struct {
	Name    string
	Aliases []string
	Sources []string
}

// Objective is one issued unit of research work. Immutable once returned;
// consumed exactly once by CompleteObjective.
type Objective struct {
	Entity    string
	Aliases   []string
	Type      artifact.Type
	Sources   []string
	CreatedAt time.Time
}

// Completion reports the outcome of completing one objective.
type Completion struct {
	CellStatus Status
	Promoted   []string // entity names synthesized from discoveries
}

// Options tunes decay and promotion behavior.
type Options struct {
	DecayFactor        float64 // cell priority multiplier after each run
	PriorityFloor      float64
	PromotionThreshold float64
	ProfileURLs        []string // %s templates for promoted entities
	SearchTemplate     string   // %s template for promoted entities
}

// Matrix holds all cells. Safe for concurrent use; issuance and completion
// are serialized so a cell can never be active twice.
type Matrix struct {
	mu      sync.Mutex
	opts    Options
	types   []artifact.Type
	cells   map[Key]*Cell
	order   []Key
	aliases map[string][]string
	nextPos int
	now     func() time.Time
}

// New creates an empty matrix.
func New(opts Options) *Matrix {
	if opts.DecayFactor <= 0 || opts.DecayFactor >= 1 {
		opts.DecayFactor = 0.5
	}
	if opts.PriorityFloor <= 0 {
		opts.PriorityFloor = 0.01
	}
	if opts.PromotionThreshold <= 0 {
		opts.PromotionThreshold = 0.8
	}
	return &Matrix{
		opts:    opts,
		cells:   make(map[Key]*Cell),
		aliases: make(map[string][]string),
		now:     time.Now,
	}
}

// Configure merges entities and artifact types into the matrix without
// resetting in-flight cells. Re-adding an existing (entity, type) pair is
// a no-op; new aliases append to known entities.
func (m *Matrix) Configure(seeds []Seed, types []artifact.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range types {
		if !m.hasType(t) {
			m.types = append(m.types, t)
		}
	}

	for _, seed := range seeds {
		m.mergeAliases(seed.Name, seed.Aliases)
		for _, t := range m.types {
			m.addCell(Key{Entity: seed.Name, Type: t}, seed.Sources)
		}
	}
}

// NextObjective selects the highest-priority pending cell, marks it
// active, and returns the objective. Ties break on oldest last run, then
// insertion order, so replays are deterministic.
func (m *Matrix) NextObjective() (*Objective, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Cell
	for _, key := range m.order {
		cell := m.cells[key]
		if cell.Status != StatusPending {
			continue
		}
		if len(cell.Sources) == 0 {
			// Nothing left to consult; retire the cell now rather than
			// issuing empty work.
			cell.Status = StatusExhausted
			continue
		}
		if best == nil || better(cell, best) {
			best = cell
		}
	}
	if best == nil {
		return nil, ErrNoObjective
	}

	best.Status = StatusActive
	sources := make([]string, len(best.Sources))
	copy(sources, best.Sources)

	return &Objective{
		Entity:    best.Key.Entity,
		Aliases:   append([]string(nil), m.aliases[best.Key.Entity]...),
		Type:      best.Key.Type,
		Sources:   sources,
		CreatedAt: m.now(),
	}, nil
}

// better reports whether a should be picked over b.
func better(a, b *Cell) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.LastRun.Equal(b.LastRun) {
		return a.LastRun.Before(b.LastRun)
	}
	return a.Position < b.Position
}

// CompleteObjective consumes the attempted sources from the owning cell's
// queue, decays its priority, and transitions it back to pending or to
// exhausted. Discoveries meeting the promotion rule synthesize new
// entities with pending cells for every known artifact type.
func (m *Matrix) CompleteObjective(obj *Objective, attempted []string, discoveries []artifact.Discovery) (*Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key{Entity: obj.Entity, Type: obj.Type}
	cell, ok := m.cells[key]
	if !ok {
		return nil, fmt.Errorf("completing unknown cell %s/%s", obj.Entity, obj.Type)
	}
	if cell.Status != StatusActive {
		return nil, fmt.Errorf("completing objective for %s/%s in state %s", obj.Entity, obj.Type, cell.Status)
	}

	consumed := make(map[string]bool, len(attempted))
	for _, src := range attempted {
		consumed[src] = true
	}
	var remaining []string
	for _, src := range cell.Sources {
		if !consumed[src] {
			remaining = append(remaining, src)
		}
	}
	cell.Sources = remaining

	cell.Priority *= m.opts.DecayFactor
	if cell.Priority < m.opts.PriorityFloor {
		cell.Priority = m.opts.PriorityFloor
	}
	cell.LastRun = m.now()

	if len(cell.Sources) == 0 {
		cell.Status = StatusExhausted
	} else {
		cell.Status = StatusPending
	}

	comp := &Completion{CellStatus: cell.Status}
	for _, d := range discoveries {
		if name, ok := m.promote(d); ok {
			comp.Promoted = append(comp.Promoted, name)
		}
	}
	return comp, nil
}

// promote turns one qualifying discovery into a new entity with fresh
// pending cells. Returns false when the discovery does not qualify or the
// entity already exists.
func (m *Matrix) promote(d artifact.Discovery) (string, bool) {
	if d.Score < m.opts.PromotionThreshold || !d.Subtype.Promotable() {
		return "", false
	}

	name := d.Display
	if name == "" {
		name = d.Value
	}
	if m.knownEntity(name) {
		return "", false
	}

	sources := make([]string, 0, len(m.opts.ProfileURLs)+1)
	for _, tmpl := range m.opts.ProfileURLs {
		sources = append(sources, fmt.Sprintf(tmpl, name))
	}
	if m.opts.SearchTemplate != "" {
		sources = append(sources, "search:"+fmt.Sprintf(m.opts.SearchTemplate, name))
	}

	m.aliases[name] = nil
	for _, t := range m.types {
		m.addCell(Key{Entity: name, Type: t}, sources)
	}
	return name, true
}

// Cells returns a snapshot of every cell in insertion order.
func (m *Matrix) Cells() []Cell {
	m.mu.Lock()
	defer m.mu.Unlock()

	cells := make([]Cell, 0, len(m.order))
	for _, key := range m.order {
		c := *m.cells[key]
		c.Sources = append([]string(nil), c.Sources...)
		cells = append(cells, c)
	}
	return cells
}

// Load restores cells from a persisted snapshot. In-flight (active) cells
// from a previous process revert to pending: their objectives were never
// completed, so their progress is retried.
func (m *Matrix) Load(cells []Cell) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range cells {
		if !m.hasType(c.Key.Type) {
			m.types = append(m.types, c.Key.Type)
		}
		if c.Status == StatusActive {
			c.Status = StatusPending
		}
		stored := c
		stored.Position = m.nextPos
		m.nextPos++
		m.cells[c.Key] = &stored
		m.order = append(m.order, c.Key)
		if _, ok := m.aliases[c.Key.Entity]; !ok {
			m.aliases[c.Key.Entity] = nil
		}
	}
}

// Aliases returns the known aliases for an entity.
func (m *Matrix) Aliases(entity string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.aliases[entity]...)
}

func (m *Matrix) addCell(key Key, sources []string) {
	if _, exists := m.cells[key]; exists {
		return
	}
	m.cells[key] = &Cell{
		Key:      key,
		Status:   StatusPending,
		Priority: 1.0,
		Sources:  append([]string(nil), sources...),
		Position: m.nextPos,
	}
	m.nextPos++
	m.order = append(m.order, key)
}

func (m *Matrix) mergeAliases(entity string, aliases []string) {
	known := m.aliases[entity]
	for _, alias := range aliases {
		if alias == "" || strings.EqualFold(alias, entity) {
			continue
		}
		dup := false
		for _, k := range known {
			if strings.EqualFold(k, alias) {
				dup = true
				break
			}
		}
		if !dup {
			known = append(known, alias)
		}
	}
	m.aliases[entity] = known
}

func (m *Matrix) knownEntity(name string) bool {
	if _, ok := m.aliases[name]; ok {
		return true
	}
	for entity, aliases := range m.aliases {
		if strings.EqualFold(entity, name) {
			return true
		}
		for _, a := range aliases {
			if strings.EqualFold(a, name) {
				return true
			}
		}
	}
	return false
}

func (m *Matrix) hasType(t artifact.Type) bool {
	for _, known := range m.types {
		if known == t {
			return true
		}
	}
	return false
}
