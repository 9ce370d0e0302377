package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/timmy/armscan/internal/domain"
)

// User-facing report texts.
const (
	lowConfidenceFormat = "⚠️ Ймовірність розпізнавання надто низька (схожість: %.2f).\n" +
		"Об’єкт не схожий на відомі зразки зброї або боєприпасів.\n" +
		CautionNote
	// CautionNote defers the decision to the emergency services.
	CautionNote = "Якщо маєте сумніви — не наближайтесь і зверніться до ДСНС або поліції."
	// HazardWarning is appended to confirmed explosive matches.
	HazardWarning = "⚠️ Увага! Об'єкт може бути вибухонебезпечним. Не торкайтесь!"

	invalidImageText = "❌ Не вдалося прочитати зображення. Надішліть фото у форматі JPG або PNG."
	noCandidatesText = "❌ Немає еталонних зображень для порівняння. Розпізнавання тимчасово недоступне."
	catalogText      = "❌ Довідник зброї недоступний. Розпізнавання тимчасово неможливе."
	faultText        = "⚠️ Помилка розпізнавання: сталася непередбачена помилка. Спробуйте ще раз."

	unknownField = "невідомо"
)

// Format renders a match result as report text. It has no side effects.
func Format(result *domain.MatchResult) *domain.Report {
	if result == nil {
		return FormatError(errors.New("empty match result"))
	}

	if result.Status != domain.MatchStatusConfirmed {
		return &domain.Report{
			Status: domain.ReportLowConfidence,
			Text:   fmt.Sprintf(lowConfidenceFormat, result.Similarity),
			Match:  result,
		}
	}

	var b strings.Builder
	if r := result.Record; r != nil {
		fmt.Fprintf(&b, "✅ Модель: %s\n", r.Title())
		fmt.Fprintf(&b, "📌 Тип: %s (%s)\n", orUnknown(r.Type), orUnknown(r.Category))
		fmt.Fprintf(&b, "🏳️ Країна: %s\n", orUnknown(r.Country))
		fmt.Fprintf(&b, "🔫 Калібр: %s\n", orUnknown(string(r.Caliber)))
		fmt.Fprintf(&b, "📏 Схожість: %.4f", result.Similarity)
		if result.Hazard {
			b.WriteString("\n\n" + HazardWarning)
		}
	} else {
		fmt.Fprintf(&b, "✅ Найбільш схожа модель: %s\n📏 Схожість: %.4f", result.Label, result.Similarity)
	}

	return &domain.Report{
		Status: domain.ReportConfirmed,
		Text:   b.String(),
		Match:  result,
	}
}

// FormatError renders a recognition failure with a message per error class.
func FormatError(err error) *domain.Report {
	text := faultText
	switch {
	case errors.Is(err, domain.ErrInvalidImage):
		text = invalidImageText
	case errors.Is(err, domain.ErrNoCandidates):
		text = noCandidatesText
	case errors.Is(err, domain.ErrCatalogUnavailable):
		text = catalogText
	}
	return &domain.Report{
		Status: domain.ReportError,
		Text:   text,
		Err:    err,
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownField
	}
	return s
}
