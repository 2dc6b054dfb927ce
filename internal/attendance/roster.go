package attendance

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// RosterStudent is an active student as listed for the teacher.
type RosterStudent struct {
	StudentSummary
	HasFaceEncoding bool `json:"has_face_encoding"`
}

// Roster lists the active students of a classroom in enrollment order. A
// non-empty query filters by name, ignoring case and diacritics.
func (s *Service) Roster(ctx context.Context, classroomID, ownerID int64, query string) ([]RosterStudent, error) {
	key := database.DayKey{ClassroomID: classroomID, OwnerID: ownerID}
	if _, err := s.requireClassroom(ctx, key); err != nil {
		return nil, err
	}

	students, err := s.roster.ListStudents(ctx, classroomID, ownerID)
	if err != nil {
		return nil, classify(fmt.Errorf("list students: %w", err), key)
	}

	result := make([]RosterStudent, 0, len(students))
	for _, st := range students {
		if !facematch.NameMatches(st.Name, query) {
			continue
		}
		result = append(result, RosterStudent{
			StudentSummary:  StudentSummary{ID: st.ID, Name: st.Name, Email: st.Email, Roll: st.RollNumber},
			HasFaceEncoding: st.FaceEncoding != nil && *st.FaceEncoding != "",
		})
	}
	return result, nil
}

// StudentImport is one student of a roster import file.
type StudentImport struct {
	Name       string `yaml:"name"`
	Email      string `yaml:"email"`
	RollNumber string `yaml:"roll_number"`
	// FaceEncoding accepts every shape Normalize understands.
	FaceEncoding any `yaml:"face_encoding"`
}

// ClassroomImport is a classroom with its students.
type ClassroomImport struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Subject     string          `yaml:"subject"`
	GradeLevel  string          `yaml:"grade_level"`
	Students    []StudentImport `yaml:"students"`
}

// ImportResult reports what an import created.
type ImportResult struct {
	ClassroomID     int64             `json:"classroom_id"`
	Students        int               `json:"students"`
	WithEncoding    int               `json:"with_encoding"`
	InvalidEncoding []InvalidEncoding `json:"invalid_encodings,omitempty"`
}

// ImportClassroom creates the classroom and its students for the owner.
// Encodings are stored in canonical form; a student whose encoding does not
// normalize is still enrolled, without an encoding, and reported.
func (s *Service) ImportClassroom(ctx context.Context, ownerID int64, in ClassroomImport) (*ImportResult, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalidInput("classroom name is required")
	}
	for i, st := range in.Students {
		if strings.TrimSpace(st.Name) == "" {
			return nil, invalidInput("student %d has no name", i+1)
		}
	}

	classroom := &database.StoredClassroom{
		OwnerID:     ownerID,
		Name:        in.Name,
		Description: in.Description,
		Subject:     in.Subject,
		GradeLevel:  in.GradeLevel,
	}
	if err := s.roster.CreateClassroom(ctx, classroom); err != nil {
		return nil, classify(fmt.Errorf("create classroom: %w", err), database.DayKey{})
	}

	result := &ImportResult{ClassroomID: classroom.ID}
	for _, st := range in.Students {
		student := &database.StoredStudent{
			ClassroomID: classroom.ID,
			OwnerID:     ownerID,
			Name:        st.Name,
			Email:       st.Email,
			RollNumber:  st.RollNumber,
			Active:      true,
		}

		var invalidReason string
		if st.FaceEncoding != nil {
			n := facematch.Normalize(st.FaceEncoding)
			if text := n.Embedding.Canonical(); n.Valid() && text != "" {
				student.FaceEncoding = &text
			} else {
				invalidReason = n.Reason
				if invalidReason == "" {
					invalidReason = "encoding contains non-finite values"
				}
			}
		}

		if err := s.roster.CreateStudent(ctx, student); err != nil {
			return nil, classify(fmt.Errorf("create student %q: %w", st.Name, err), database.DayKey{})
		}
		result.Students++
		if student.FaceEncoding != nil {
			result.WithEncoding++
		}
		if invalidReason != "" {
			log.Printf("Imported student %d without encoding: %s", student.ID, invalidReason)
			result.InvalidEncoding = append(result.InvalidEncoding, InvalidEncoding{StudentID: student.ID, Reason: invalidReason})
		}
	}
	return result, nil
}
