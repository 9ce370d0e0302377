package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/timmy/armscan/internal/domain"
	"github.com/timmy/armscan/internal/logger"
)

const (
	// ConfidenceThreshold is the minimum similarity for a confirmed match.
	// A best score strictly below it yields a low-confidence outcome.
	ConfidenceThreshold = 0.70
	// HazardThreshold must be strictly exceeded for the explosive warning.
	HazardThreshold = 0.80

	rankingSize = 5
)

// hazardCategories are compared after trimming and lower-casing.
var hazardCategories = map[string]struct{}{
	"grenades": {},
	"mines":    {},
	"гранати":  {},
	"міни":     {},
}

// IsHazardCategory reports whether a catalog category triggers hazard escalation.
func IsHazardCategory(category string) bool {
	_, ok := hazardCategories[strings.ToLower(strings.TrimSpace(category))]
	return ok
}

// isHazard applies the escalation rule to a confirmed match.
func isHazard(record *domain.WeaponRecord, similarity float64) bool {
	return record != nil && IsHazardCategory(record.Category) && similarity > HazardThreshold
}

// RecordLookup resolves a label to its catalog record.
type RecordLookup interface {
	Lookup(label string) *domain.WeaponRecord
}

// Matcher scores a query embedding against a reference index.
type Matcher struct{}

// NewMatcher creates a matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

type labelAccumulator struct {
	label string
	sum   float64
	n     int
}

// Match selects the best label for query.
// Parameters:
//   - ctx: request context, used for logging.
//   - query: L2-normalised query embedding.
//   - idx: reference index. Gating always uses cosine; LogitScale only sets the reported logits.
//   - records: catalog used to attach the matched record; may be nil.
// Returns:
//   - *domain.MatchResult: confirmed or low-confidence outcome.
//   - error: ErrNoCandidates when nothing could be scored, ErrInvalidImage for a zero query.
func (m *Matcher) Match(ctx context.Context, query domain.Embedding, idx *domain.ReferenceIndex, records RecordLookup) (*domain.MatchResult, error) {
	if idx == nil || len(idx.Entries) == 0 {
		return nil, domain.ErrNoCandidates
	}

	qNorm := norm(query)
	if qNorm == 0 || math.IsNaN(qNorm) || math.IsInf(qNorm, 0) {
		return nil, fmt.Errorf("%w: query embedding has no usable magnitude", domain.ErrInvalidImage)
	}

	scale := idx.LogitScale
	if scale <= 0 {
		scale = 1
	}

	var (
		order   []*labelAccumulator
		byLabel = make(map[string]*labelAccumulator)
		skipped int
	)
	for i := range idx.Entries {
		e := &idx.Entries[i]
		sim, ok := cosine(query, qNorm, e.Vector)
		if !ok {
			skipped++
			logger.FromContext(ctx).WithFields(logger.Fields{
				logger.FieldLabel: e.Label,
				logger.FieldPath:  e.Path,
			}).Warn("Skipping corrupt reference entry")
			continue
		}

		acc, ok := byLabel[e.Label]
		if !ok {
			acc = &labelAccumulator{label: e.Label}
			byLabel[e.Label] = acc
			order = append(order, acc)
		}
		acc.sum += sim
		acc.n++
	}

	if len(order) == 0 {
		return nil, fmt.Errorf("%w: all %d entries are unusable", domain.ErrNoCandidates, skipped)
	}

	ranking := make([]domain.LabelScore, 0, len(order))
	best := -1
	for _, acc := range order {
		score := domain.LabelScore{
			Label:      acc.label,
			Similarity: acc.sum / float64(acc.n),
			Samples:    acc.n,
		}
		if scale != 1 {
			score.Logit = scale * score.Similarity
		}
		ranking = append(ranking, score)
		// strictly greater keeps the earliest label on ties
		if best < 0 || ranking[len(ranking)-1].Similarity > ranking[best].Similarity {
			best = len(ranking) - 1
		}
	}

	top := ranking[best]
	result := &domain.MatchResult{
		BestLabel:  top.Label,
		Similarity: top.Similarity,
		Ranking:    topScores(ranking, rankingSize),
		Skipped:    skipped,
	}

	if top.Similarity < ConfidenceThreshold {
		result.Status = domain.MatchStatusLowConfidence
		return result, nil
	}

	result.Status = domain.MatchStatusConfirmed
	result.Label = top.Label
	if records != nil {
		result.Record = records.Lookup(top.Label)
	}
	result.Hazard = isHazard(result.Record, top.Similarity)
	return result, nil
}

// topScores returns the n best scores, keeping enumeration order among equals.
func topScores(scores []domain.LabelScore, n int) []domain.LabelScore {
	sorted := make([]domain.LabelScore, len(scores))
	copy(sorted, scores)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Similarity > sorted[j].Similarity })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity of q and v.
// ok is false when v cannot be compared with q.
func cosine(q []float32, qNorm float64, v []float32) (sim float64, ok bool) {
	if len(v) != len(q) {
		return 0, false
	}
	var dot, vv float64
	for i := range v {
		x := float64(v[i])
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		dot += float64(q[i]) * x
		vv += x * x
	}
	if vv == 0 {
		return 0, false
	}
	return dot / (qNorm * math.Sqrt(vv)), true
}
