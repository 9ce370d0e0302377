package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/armscan/internal/api/middleware"
	"github.com/timmy/armscan/internal/domain"
)

const maxUploadBytes = 20 << 20

// Recognizer is the recognition entry point the handler calls.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) *domain.Report
}

// RecognizeHandler handles photo recognition requests.
type RecognizeHandler struct {
	recognizer Recognizer
}

// NewRecognizeHandler creates a new recognize handler.
// Parameters:
//   - recognizer: recognition service instance.
// Returns:
//   - *RecognizeHandler: initialized handler.
func NewRecognizeHandler(recognizer Recognizer) *RecognizeHandler {
	return &RecognizeHandler{recognizer: recognizer}
}

// RecognizeResponse is the JSON body returned by POST /api/v1/recognize.
type RecognizeResponse struct {
	Status     domain.ReportStatus  `json:"status"`
	Label      string               `json:"label,omitempty"`
	BestLabel  string               `json:"best_label,omitempty"`
	Similarity float64              `json:"similarity"`
	Hazard     bool                 `json:"hazard"`
	Report     string               `json:"report"`
	Record     *domain.WeaponRecord `json:"record,omitempty"`
	Ranking    []domain.LabelScore  `json:"ranking,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// Recognize handles POST /api/v1/recognize with a multipart "image" field.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *RecognizeHandler) Recognize(c *gin.Context) {
	log := middleware.GetLogger(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: multipart field 'image' is required",
		})
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "armscan-upload-*"+uploadExt(header.Filename))
	if err != nil {
		log.WithError(err).Error("Failed to create upload file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload: " + err.Error()})
		return
	}
	if err := tmp.Close(); err != nil {
		log.WithError(err).Error("Failed to flush upload file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}

	report := h.recognizer.Recognize(c.Request.Context(), tmp.Name())
	c.JSON(statusFor(report), toResponse(report))
}

// uploadExt keeps the client's image extension so decoders and logs see it.
func uploadExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return ext
	default:
		return ""
	}
}

func statusFor(report *domain.Report) int {
	if report.Err == nil {
		return http.StatusOK
	}
	switch {
	case errors.Is(report.Err, domain.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(report.Err, domain.ErrCatalogUnavailable), errors.Is(report.Err, domain.ErrNoCandidates):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toResponse(report *domain.Report) *RecognizeResponse {
	resp := &RecognizeResponse{
		Status: report.Status,
		Report: report.Text,
	}
	if report.Err != nil {
		resp.Error = report.Err.Error()
	}
	if m := report.Match; m != nil {
		resp.Label = m.Label
		resp.BestLabel = m.BestLabel
		resp.Similarity = m.Similarity
		resp.Hazard = m.Hazard
		resp.Record = m.Record
		resp.Ranking = m.Ranking
	}
	return resp
}
