package database

// Entity is a research target row: seeds come from config, the rest are
// promoted from discoveries.
type Entity struct {
	ID           int64
	Name         string
	Aliases      []string
	PromotedFrom *string
	CreatedAt    *string
}

// CellRow is the persisted form of one matrix cell.
type CellRow struct {
	Entity       string
	ArtifactType string
	Status       string // "pending", "active", "exhausted"
	Priority     float64
	Sources      []string
	LastRun      *string
	Position     int
}

// ObjectiveReport is the structured record emitted per completed objective.
type ObjectiveReport struct {
	ID              int64
	Entity          string
	ArtifactType    string
	CellStatusAfter string
	DiscoveryCount  int
	FailedSources   []string
	Flagged         bool
	BodyMarkdown    *string
	GeneratedAt     *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Entities         int
	PromotedEntities int
	Cells            int
	PendingCells     int
	ExhaustedCells   int
	Discoveries      int
	HighValue        int
	Reports          int
	FlaggedReports   int
}
