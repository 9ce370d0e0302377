package domain

// MatchStatus is the outcome of matching a query against the reference index.
type MatchStatus string

const (
	MatchStatusConfirmed     MatchStatus = "confirmed"
	MatchStatusLowConfidence MatchStatus = "low_confidence"
)

// LabelScore is the aggregated similarity of one label.
type LabelScore struct {
	Label      string  `json:"label"`
	Similarity float64 `json:"similarity"`
	Samples    int     `json:"samples"`
	// Logit is Similarity times the index LogitScale, set for label-set indexes.
	Logit      float64 `json:"logit,omitempty"`
}

// MatchResult is the matcher output for one query.
// Label is empty when no candidate cleared the confidence gate.
type MatchResult struct {
	Status     MatchStatus
	Label      string
	BestLabel  string // highest scoring label, gated or not
	Similarity float64
	Hazard     bool
	Record     *WeaponRecord
	Ranking    []LabelScore
	Skipped    int // corrupt entries ignored while scoring
}

// ReportStatus classifies a user-facing report.
type ReportStatus string

const (
	ReportConfirmed     ReportStatus = "confirmed"
	ReportLowConfidence ReportStatus = "low_confidence"
	ReportError         ReportStatus = "error"
)

// Report is the text handed to the chat layer plus the structured match behind it.
type Report struct {
	Status ReportStatus
	Text   string
	Match  *MatchResult
	Err    error
}
