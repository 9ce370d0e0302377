package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/armscan/internal/domain"
	"github.com/timmy/armscan/internal/encoder"
	"github.com/timmy/armscan/internal/logger"
)

// RecognitionService is the single entry point from a photo to a report.
// It owns the shared encoder and reference index for the process lifetime.
type RecognitionService struct {
	encoder  encoder.ImageEncoder
	index    *IndexService
	catalogs *CatalogProvider
	matcher  *Matcher
}

// NewRecognitionService creates a new recognition service.
// Parameters:
//   - enc: shared image encoder.
//   - index: reference index service built on the same encoder.
//   - catalogs: lazily loaded weapon catalog.
// Returns:
//   - *RecognitionService: ready to serve concurrent Recognize calls.
func NewRecognitionService(enc encoder.ImageEncoder, index *IndexService, catalogs *CatalogProvider) *RecognitionService {
	return &RecognitionService{
		encoder:  enc,
		index:    index,
		catalogs: catalogs,
		matcher:  NewMatcher(),
	}
}

// Recognize identifies the weapon or munition in the image at imagePath.
// It never panics and never returns nil; failures are carried in Report.Err.
func (s *RecognitionService) Recognize(ctx context.Context, imagePath string) (report *domain.Report) {
	start := time.Now()
	ctx = logger.SetRecognitionID(ctx, uuid.NewString())
	ctx = logger.SetComponent(ctx, "recognition")

	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).WithFields(logger.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Recognition panicked")
			report = FormatError(fmt.Errorf("recognition panicked: %v", r))
		}
		s.logOutcome(ctx, report, time.Since(start))
	}()

	result, err := s.recognize(ctx, imagePath)
	if err != nil {
		return FormatError(err)
	}
	return Format(result)
}

func (s *RecognitionService) recognize(ctx context.Context, imagePath string) (*domain.MatchResult, error) {
	// query first, so an unreadable upload never triggers an index build
	query, err := s.encoder.EncodeImage(ctx, imagePath)
	if err != nil {
		return nil, err
	}

	cat, err := s.catalogs.Get()
	if err != nil {
		return nil, err
	}

	idx, err := s.index.Get(ctx)
	if err != nil {
		return nil, err
	}

	return s.matcher.Match(ctx, query, idx, cat)
}

func (s *RecognitionService) logOutcome(ctx context.Context, report *domain.Report, elapsed time.Duration) {
	entry := logger.With(logger.Fields{}).
		WithDuration(elapsed.Milliseconds()).
		WithStatus(string(report.Status))

	if m := report.Match; m != nil {
		entry = entry.With(logger.Fields{
			logger.FieldLabel: m.BestLabel,
			"similarity":      m.Similarity,
			"hazard":          m.Hazard,
		})
	}
	if report.Err != nil {
		entry.With(logger.Fields{"error": report.Err.Error()}).Warn(ctx, "Recognition failed")
		return
	}
	entry.Info(ctx, "Recognition completed")
}
