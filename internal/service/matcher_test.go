package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/timmy/armscan/internal/domain"
)

const tolerance = 1e-5

func corpusIndex(entries ...domain.ReferenceEntry) *domain.ReferenceIndex {
	for i := range entries {
		entries[i].Position = i
	}
	return &domain.ReferenceIndex{Entries: entries, LogitScale: 1}
}

func entry(label string, v domain.Embedding) domain.ReferenceEntry {
	return domain.ReferenceEntry{Label: label, Path: label + ".jpg", Vector: domain.Vector(v)}
}

func TestMatchAveragesPerLabel(t *testing.T) {
	cat := testCatalog(t)
	idx := corpusIndex(
		entry("AK-47", withSimilarity(0.9)),
		entry("AK-47", withSimilarity(0.8)),
		entry("AK-47", withSimilarity(0.7)),
	)

	result, err := NewMatcher().Match(context.Background(), axis(0), idx, cat)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if result.Status != domain.MatchStatusConfirmed || result.Label != "AK-47" {
		t.Fatalf("Match() = %+v, want confirmed AK-47", result)
	}
	if math.Abs(result.Similarity-0.8) > tolerance {
		t.Errorf("Similarity = %v, want 0.8", result.Similarity)
	}
	if result.Hazard {
		t.Error("Hazard = true for a non-explosive category")
	}
	if result.Record == nil || result.Record.Caliber != "7.62×39 мм" {
		t.Errorf("Record = %+v", result.Record)
	}

	report := Format(result)
	for _, want := range []string{"0.8000", "Автомат Калашникова АК-47", "СРСР", "7.62×39 мм"} {
		if !strings.Contains(report.Text, want) {
			t.Errorf("report missing %q:\n%s", want, report.Text)
		}
	}
	if strings.Contains(report.Text, HazardWarning) {
		t.Errorf("report should not carry the hazard warning:\n%s", report.Text)
	}
}

func TestMatchMeanNotMax(t *testing.T) {
	// one excellent reference cannot carry a label whose mean is weak
	idx := corpusIndex(
		entry("AK-47", withSimilarity(0.99)),
		entry("AK-47", withSimilarity(0.41)),
		entry("F-1", withSimilarity(0.75)),
		entry("F-1", withSimilarity(0.75)),
	)
	result, err := NewMatcher().Match(context.Background(), axis(0), idx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Label != "F-1" {
		t.Errorf("Label = %q, want F-1", result.Label)
	}
	if len(result.Ranking) != 2 || result.Ranking[0].Label != "F-1" || result.Ranking[1].Samples != 2 {
		t.Errorf("Ranking = %+v", result.Ranking)
	}
}

func TestMatchConfidenceGate(t *testing.T) {
	testCases := []struct {
		name       string
		similarity float64
		confirmed  bool
	}{
		{name: "well below", similarity: 0.5, confirmed: false},
		{name: "just below", similarity: 0.69, confirmed: false},
		{name: "just above", similarity: 0.71, confirmed: true},
		{name: "high", similarity: 0.95, confirmed: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			idx := corpusIndex(entry("F-1", withSimilarity(tc.similarity)), entry("AK-47", withSimilarity(tc.similarity-0.1)))
			result, err := NewMatcher().Match(context.Background(), axis(0), idx, testCatalog(t))
			if err != nil {
				t.Fatal(err)
			}
			if got := result.Status == domain.MatchStatusConfirmed; got != tc.confirmed {
				t.Errorf("confirmed = %v, want %v", got, tc.confirmed)
			}
			if !tc.confirmed {
				if result.Label != "" || result.Record != nil || result.Hazard {
					t.Errorf("low confidence result leaked a match: %+v", result)
				}
				if result.BestLabel != "F-1" {
					t.Errorf("BestLabel = %q, want F-1", result.BestLabel)
				}
			}
		})
	}
}

func TestMatchLowConfidenceReport(t *testing.T) {
	idx := corpusIndex(
		entry("AK-47", withSimilarity(0.5)),
		entry("F-1", withSimilarity(0.5)),
		entry("TM-62", withSimilarity(0.5)),
	)
	result, err := NewMatcher().Match(context.Background(), axis(0), idx, testCatalog(t))
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.MatchStatusLowConfidence || result.Label != "" {
		t.Fatalf("Match() = %+v, want low confidence", result)
	}

	report := Format(result)
	if report.Status != domain.ReportLowConfidence {
		t.Errorf("Status = %q", report.Status)
	}
	if !strings.Contains(report.Text, "0.50") || !strings.Contains(report.Text, CautionNote) {
		t.Errorf("report text = %q", report.Text)
	}
	for _, field := range []string{"Модель", "Калібр", "Країна"} {
		if strings.Contains(report.Text, field) {
			t.Errorf("low confidence report contains catalog field %q", field)
		}
	}
}

func TestMatchHazardEscalation(t *testing.T) {
	cat := testCatalog(t)
	testCases := []struct {
		name       string
		label      string
		similarity float64
		hazard     bool
	}{
		{name: "grenade above", label: "F-1", similarity: 0.9, hazard: true},
		{name: "grenade below", label: "F-1", similarity: 0.75, hazard: false},
		{name: "mine above", label: "TM-62", similarity: 0.85, hazard: true},
		{name: "rifle above", label: "AK-47", similarity: 0.95, hazard: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			idx := corpusIndex(entry(tc.label, withSimilarity(tc.similarity)))
			result, err := NewMatcher().Match(context.Background(), axis(0), idx, cat)
			if err != nil {
				t.Fatal(err)
			}
			if result.Hazard != tc.hazard {
				t.Errorf("Hazard = %v, want %v", result.Hazard, tc.hazard)
			}
			if got := strings.Contains(Format(result).Text, HazardWarning); got != tc.hazard {
				t.Errorf("warning in report = %v, want %v", got, tc.hazard)
			}
		})
	}
}

func TestIsHazardBoundary(t *testing.T) {
	grenade := &domain.WeaponRecord{Category: "grenades"}
	testCases := []struct {
		name       string
		record     *domain.WeaponRecord
		similarity float64
		want       bool
	}{
		{name: "at threshold", record: grenade, similarity: HazardThreshold, want: false},
		{name: "below threshold", record: grenade, similarity: 0.79, want: false},
		{name: "above threshold", record: grenade, similarity: math.Nextafter(HazardThreshold, 1), want: true},
		{name: "mixed case and spaces", record: &domain.WeaponRecord{Category: "  Mines "}, similarity: 0.9, want: true},
		{name: "ukrainian category", record: &domain.WeaponRecord{Category: "Гранати"}, similarity: 0.9, want: true},
		{name: "other category", record: &domain.WeaponRecord{Category: "rifles"}, similarity: 0.99, want: false},
		{name: "no record", record: nil, similarity: 0.99, want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isHazard(tc.record, tc.similarity); got != tc.want {
				t.Errorf("isHazard() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMatchTieKeepsFirstLabel(t *testing.T) {
	idx := corpusIndex(
		entry("B", withSimilarity(0.9)),
		entry("A", withSimilarity(0.9)),
	)
	result, err := NewMatcher().Match(context.Background(), axis(0), idx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Label != "B" {
		t.Errorf("Label = %q, want the first enumerated label B", result.Label)
	}
}

func TestMatchLabelSetReportsLogits(t *testing.T) {
	idx := &domain.ReferenceIndex{
		LogitScale: LabelLogitScale,
		Entries: []domain.ReferenceEntry{
			{Position: 0, Label: "AK-47", Vector: domain.Vector(withSimilarity(0.6))},
			{Position: 1, Label: "F-1", Vector: domain.Vector(withSimilarity(0.85))},
		},
	}
	result, err := NewMatcher().Match(context.Background(), axis(0), idx, testCatalog(t))
	if err != nil {
		t.Fatal(err)
	}
	if result.Label != "F-1" || math.Abs(result.Similarity-0.85) > tolerance {
		t.Errorf("Match() = %s %v, want F-1 0.85", result.Label, result.Similarity)
	}
	if !result.Hazard {
		t.Error("0.85 grenade match should escalate")
	}
	if len(result.Ranking) != 2 || math.Abs(result.Ranking[0].Logit-85) > 1e-4 || math.Abs(result.Ranking[1].Logit-60) > 1e-4 {
		t.Errorf("Ranking = %+v, want logits 85 and 60", result.Ranking)
	}

	plain, err := NewMatcher().Match(context.Background(), axis(0), corpusIndex(entry("F-1", withSimilarity(0.85))), nil)
	if err != nil {
		t.Fatal(err)
	}
	if plain.Ranking[0].Logit != 0 {
		t.Errorf("corpus ranking Logit = %v, want unset", plain.Ranking[0].Logit)
	}
}

func TestMatchSkipsCorruptEntries(t *testing.T) {
	idx := corpusIndex(
		entry("AK-47", domain.Embedding{1, 0}),
		entry("AK-47", domain.Embedding{float32(math.NaN()), 0, 0}),
		entry("AK-47", domain.Embedding{0, 0, 0}),
		entry("F-1", withSimilarity(0.9)),
	)
	result, err := NewMatcher().Match(context.Background(), axis(0), idx, nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if result.Skipped != 3 {
		t.Errorf("Skipped = %d, want 3", result.Skipped)
	}
	if result.Label != "F-1" || len(result.Ranking) != 1 {
		t.Errorf("Match() = %+v", result)
	}
}

func TestMatchErrors(t *testing.T) {
	testCases := []struct {
		name  string
		query domain.Embedding
		idx   *domain.ReferenceIndex
		want  error
	}{
		{name: "nil index", query: axis(0), idx: nil, want: domain.ErrNoCandidates},
		{name: "empty index", query: axis(0), idx: corpusIndex(), want: domain.ErrNoCandidates},
		{name: "only corrupt entries", query: axis(0), idx: corpusIndex(entry("A", domain.Embedding{1})), want: domain.ErrNoCandidates},
		{name: "zero query", query: domain.Embedding{0, 0, 0}, idx: corpusIndex(entry("A", axis(0))), want: domain.ErrInvalidImage},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewMatcher().Match(context.Background(), tc.query, tc.idx, nil)
			if !errors.Is(err, tc.want) {
				t.Errorf("Match() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestMatchSelfSimilarity(t *testing.T) {
	v := domain.Embedding{0.3, -0.2, 0.9}
	idx := corpusIndex(entry("A", v))
	result, err := NewMatcher().Match(context.Background(), v, idx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(result.Similarity-1) > tolerance {
		t.Errorf("self similarity = %v, want 1", result.Similarity)
	}
}

func TestRankingIsCapped(t *testing.T) {
	var entries []domain.ReferenceEntry
	for i, label := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		entries = append(entries, entry(label, withSimilarity(0.1*float64(i+1))))
	}
	result, err := NewMatcher().Match(context.Background(), axis(0), corpusIndex(entries...), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Ranking) != rankingSize {
		t.Fatalf("len(Ranking) = %d, want %d", len(result.Ranking), rankingSize)
	}
	if result.Ranking[0].Label != "g" || result.Ranking[4].Label != "c" {
		t.Errorf("Ranking = %+v", result.Ranking)
	}
}

// exactVector has cosine num/10 with (1,0,0,0) using only integer components,
// so the similarity lands on the float64 literal without float32 rounding.
func exactVector(num float32) domain.Embedding {
	switch num {
	case 7:
		return domain.Embedding{7, 7, 1, 1} // |v| = 10
	case 8:
		return domain.Embedding{8, 6, 0, 0}
	default:
		panic("no exact vector for this similarity")
	}
}

func TestMatchExactThresholds(t *testing.T) {
	query := domain.Embedding{1, 0, 0, 0}
	cat := testCatalog(t)

	testCases := []struct {
		name       string
		idx        *domain.ReferenceIndex
		wantStatus domain.MatchStatus
		wantSim    float64
		wantHazard bool
	}{
		{
			name:       "mean of exactly 0.70 passes the gate",
			idx:        corpusIndex(entry("AK-47", exactVector(7)), entry("AK-47", exactVector(7))),
			wantStatus: domain.MatchStatusConfirmed,
			wantSim:    0.70,
		},
		{
			name:       "grenade at exactly 0.80 does not escalate",
			idx:        corpusIndex(entry("F-1", exactVector(8))),
			wantStatus: domain.MatchStatusConfirmed,
			wantSim:    0.80,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := NewMatcher().Match(context.Background(), query, tc.idx, cat)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if result.Similarity != tc.wantSim {
				t.Fatalf("Similarity = %v, want exactly %v", result.Similarity, tc.wantSim)
			}
			if result.Status != tc.wantStatus || result.Hazard != tc.wantHazard {
				t.Errorf("Match() status=%s hazard=%v, want %s %v", result.Status, result.Hazard, tc.wantStatus, tc.wantHazard)
			}
		})
	}
}
