package attendance

import (
	"context"
	"log"

	"github.com/kozaktomas/attendance/internal/database"
)

// Detector extracts probe embeddings from a capture image.
type Detector interface {
	Detect(ctx context.Context, image []byte) (Capture, error)
}

// Mark runs a capture image through the detector and reconciles the result.
// Detector failures surface as CodeUpstreamFailure, never as a capture without faces.
func (s *Service) Mark(ctx context.Context, key database.DayKey, image []byte, detector Detector) (*Report, error) {
	if _, err := s.requireClassroom(ctx, key); err != nil {
		return nil, err
	}

	capture, err := detector.Detect(ctx, image)
	if err != nil {
		log.Printf("Face encoder failed for %s: %v", key, err)
		return nil, &Error{
			Code:    CodeUpstreamFailure,
			Message: "Face encoder unavailable",
			Key:     keyString(key),
			Err:     err,
		}
	}

	return s.Reconcile(ctx, key, capture)
}
