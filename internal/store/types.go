package store

// SuspendedSession is a session snapshot parked for later resumption.
// Resume restores the FEN, game mode, human side and engine skill;
// move history is intentionally not persisted here.
type SuspendedSession struct {
	ID          string
	FEN         string
	SideToMove  string
	MoveCount   int
	Mode        int
	HumanSide   *string
	Skill       int
	CreatedAt   int64
}

// SavedPosition is a named FEN a player can start a session from.
type SavedPosition struct {
	ID        string
	Name      string
	FEN       string
	IsDefault bool
	CreatedAt int64
}

// MoveRow is one persisted half-move of a finished game.
type MoveRow struct {
	Ply       int
	From      string
	To        string
	Piece     string
	Captured  *string
	Promotion *string
	SAN       string
	FENBefore string
	FENAfter  string
	ClockMS   *int64
}

// FinishedGame is an immutable record of a concluded game and its
// moves, written atomically as one unit.
type FinishedGame struct {
	ID        string
	StartFEN  string
	FinalFEN  string
	Mode      int
	HumanSide *string
	Skill     int
	Outcome   int
	Reason    string
	CreatedAt int64
	Moves     []MoveRow
}

// ReviewStatus is a game review's lifecycle state.
type ReviewStatus string

const (
	ReviewQueued    ReviewStatus = "queued"
	ReviewAnalyzing ReviewStatus = "analyzing"
	ReviewComplete  ReviewStatus = "complete"
	ReviewFailed    ReviewStatus = "failed"
)

// Score is the tagged {type, value} pair the wire contract calls for.
type Score struct {
	Type  string
	Value int
}

// PositionReview is one ply's evaluation.
type PositionReview struct {
	Ply           int
	FENBefore     string
	SAN           string
	BestMoveSAN   string
	BestMoveUCI   string
	EvalBefore    Score
	EvalAfter     Score
	EvalBest      Score
	Classification string
	CentipawnLoss int
	PV            []string
	Depth         int
	ClockMS       *int64
}

// GameReview is a finished game's review: status, per-ply positions,
// and aggregate accuracy once complete.
type GameReview struct {
	GameID        string
	Status        ReviewStatus
	CurrentPly    int
	TotalPlies    int
	WhiteAccuracy *float64
	BlackAccuracy *float64
	AnalysisDepth int
	Error         string
	Winner        string
	CreatedAt     int64
	CompletedAt   *int64
	Positions     []PositionReview
}

// TacticalTag describes one tactical motif detected at a position.
type TacticalTag struct {
	Kind       string
	Confidence float64
	Attacker   string
	Evidence   string
	Lines      []string
}

// PositionAnalysis augments a PositionReview with tactical/king-safety
// metrics for the advanced analysis pipeline.
type PositionAnalysis struct {
	Ply             int
	TacticalTags    []TacticalTag
	WhiteKingSafety float64
	BlackKingSafety float64
	Tension         float64
	Critical        bool
}

// PsychologicalProfile aggregates one side's play over a whole game.
type PsychologicalProfile struct {
	Side                    string
	LongestGoodStreak       int
	LongestPoorStreak       int
	BiggestSwing            float64
	TimeQualityCorrelation  float64
	OpeningAvgLoss          float64
	MiddlegameAvgLoss       float64
	EndgameAvgLoss          float64
}

// AdvancedAnalysis is the per-position tactical/king-safety breakdown
// plus both sides' psychological profiles for a finished game.
type AdvancedAnalysis struct {
	GameID    string
	CreatedAt int64
	Positions []PositionAnalysis
	Profiles  []PsychologicalProfile
}
