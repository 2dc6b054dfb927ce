package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kozaktomas/attendance/internal/database"
)

// EnrollResult reports a stored face encoding.
type EnrollResult struct {
	StudentID   int64  `json:"student_id"`
	StudentName string `json:"student_name"`
	// Replaced is true when the student already had an encoding.
	Replaced bool   `json:"replaced"`
	Message  string `json:"message"`
}

// EnrollFace detects the face in a portrait of the student and stores its
// encoding in canonical form, refreshing the search vector. The image must
// show exactly one face.
func (s *Service) EnrollFace(ctx context.Context, ownerID, studentID int64, image []byte, detector Detector) (*EnrollResult, error) {
	student, err := s.roster.GetStudent(ctx, studentID, ownerID)
	if err != nil {
		return nil, classify(fmt.Errorf("get student: %w", err), database.DayKey{})
	}
	if student == nil {
		return nil, notFound("Student not found")
	}

	capture, err := detector.Detect(ctx, image)
	if err != nil {
		log.Printf("Face encoder failed for student %d: %v", studentID, err)
		return nil, &Error{Code: CodeUpstreamFailure, Message: "Face encoder unavailable", Err: err}
	}

	faces := max(capture.FacesDetected, capture.Probes.Len()+capture.Probes.Rejected)
	switch {
	case faces == 0:
		return nil, invalidInput("No face detected in the image")
	case faces > 1:
		return nil, invalidInput("Multiple faces detected (%d); the photo must show exactly one face", faces)
	case capture.Probes.Len() != 1:
		return nil, &Error{Code: CodeInvalidEmbeddingShape, Message: "Could not generate an encoding for the detected face"}
	}

	embedding := capture.Probes.Probes[0]
	canonical := embedding.Canonical()
	if canonical == "" {
		return nil, &Error{Code: CodeInvalidEmbeddingShape, Message: "Encoding contains non-finite values"}
	}

	if err := s.roster.UpdateFaceEncoding(ctx, student.ID, canonical, embedding.Float32()); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound("Student not found")
		}
		return nil, &Error{Code: CodePersistenceFailure, Message: "Face encoding could not be saved", Err: err}
	}

	log.Printf("Enrolled face encoding for student %d", student.ID)
	return &EnrollResult{
		StudentID:   student.ID,
		StudentName: student.Name,
		Replaced:    student.FaceEncoding != nil && *student.FaceEncoding != "",
		Message:     "Face encoding saved",
	}, nil
}
