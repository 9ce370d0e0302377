package repository

import (
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/timmy/armscan/internal/domain"
)

// TestReferencePointIDDeterministic verifies that the same input always produces the same UUID
func TestReferencePointIDDeterministic(t *testing.T) {
	testCases := []struct {
		name      string
		encoderID string
		path      string
	}{
		{name: "basic", encoderID: "thumbnail/v1", path: "corpus/AK-47/1.jpg"},
		{name: "other encoder", encoderID: "onnx/vit.onnx", path: "corpus/AK-47/1.jpg"},
		{name: "other path", encoderID: "thumbnail/v1", path: "corpus/F-1/1.jpg"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id1 := ReferencePointID(tc.encoderID, tc.path)
			id2 := ReferencePointID(tc.encoderID, tc.path)
			if id1 != id2 {
				t.Errorf("UUID mismatch: first=%s, second=%s", id1, id2)
			}
			if len(id1) != 36 {
				t.Errorf("Invalid UUID length: got %d, want 36", len(id1))
			}
		})
	}
}

// TestReferencePointIDUniqueness verifies that different inputs produce different UUIDs
func TestReferencePointIDUniqueness(t *testing.T) {
	a := ReferencePointID("thumbnail/v1", "AK-47/1.jpg")
	b := ReferencePointID("thumbnail/v1", "AK-47/2.jpg")
	c := ReferencePointID("onnx/vit.onnx", "AK-47/1.jpg")
	if a == b || a == c || b == c {
		t.Errorf("expected distinct ids, got %s %s %s", a, b, c)
	}
}

func TestReferencePointPayloadRoundTrip(t *testing.T) {
	build := &domain.IndexBuild{
		ID:          "build-1",
		CorpusPath:  "/srv/corpus",
		EncoderID:   "thumbnail/v1",
		Fingerprint: "abc",
		Skipped:     2,
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	entry := &domain.ReferenceEntry{Position: 7, Label: "F-1", Path: "/srv/corpus/F-1/a.jpg", Vector: domain.Vector{1, 0}}

	point := referencePoint(build, entry)
	if point.GetId().GetUuid() != ReferencePointID(build.EncoderID, entry.Path) {
		t.Errorf("point id = %s", point.GetId().GetUuid())
	}
	if got := point.GetVectors().GetVector().GetData(); len(got) != 2 || got[0] != 1 {
		t.Errorf("vector = %v", got)
	}

	parsed := parseBuild(point.GetPayload())
	if parsed.ID != build.ID || parsed.CorpusPath != build.CorpusPath || parsed.EncoderID != build.EncoderID ||
		parsed.Fingerprint != build.Fingerprint || parsed.Skipped != build.Skipped || !parsed.CreatedAt.Equal(build.CreatedAt) {
		t.Errorf("parseBuild() = %+v, want %+v", parsed, build)
	}
	if parsed.Shape != domain.IndexShapeCorpus {
		t.Errorf("Shape = %q", parsed.Shape)
	}

	var payload map[string]*pb.Value = point.GetPayload()
	if payload["position"].GetIntegerValue() != 7 || payload["label"].GetStringValue() != "F-1" {
		t.Errorf("payload = %v", payload)
	}
}
