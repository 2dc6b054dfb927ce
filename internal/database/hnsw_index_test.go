package database

import (
	"testing"
)

func indexVector(seed float32) []float32 {
	v := make([]float32, 128)
	for i := range v {
		v[i] = seed + float32(i)/1000
	}
	return v
}

func TestStudentIndex_SearchNearestFirst(t *testing.T) {
	idx := NewStudentIndex()
	idx.Add(StoredStudent{ID: 1, Name: "Alice"}, indexVector(0))
	idx.Add(StoredStudent{ID: 2, Name: "Bob"}, indexVector(1))
	idx.Add(StoredStudent{ID: 3, Name: "Carol"}, indexVector(2))

	if idx.Count() != 3 {
		t.Fatalf("expected 3 students, got %d", idx.Count())
	}

	results, err := idx.Search(indexVector(1), 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Student.ID != 2 {
		t.Errorf("expected Bob first, got %d", results[0].Student.ID)
	}
	if results[0].Distance > 1e-6 {
		t.Errorf("expected distance ~0 for identical vector, got %v", results[0].Distance)
	}
	if results[1].Distance < results[0].Distance {
		t.Error("results are not ordered by distance")
	}
}

func TestStudentIndex_DeleteHidesStudent(t *testing.T) {
	idx := NewStudentIndex()
	idx.Add(StoredStudent{ID: 1}, indexVector(0))
	idx.Add(StoredStudent{ID: 2}, indexVector(5))
	idx.Delete(1)

	results, err := idx.Search(indexVector(0), 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Student.ID == 1 {
			t.Error("deleted student returned from search")
		}
	}
}

func TestStudentIndex_EmptyAndIgnoredEmbeddings(t *testing.T) {
	idx := NewStudentIndex()
	idx.Add(StoredStudent{ID: 1}, nil)

	if idx.Count() != 0 {
		t.Errorf("student without embedding should not be indexed")
	}
	if _, err := idx.Search(indexVector(0), 3); err == nil {
		t.Error("expected error searching an uninitialized index")
	}
	results, err := idx.Search(indexVector(0), 0)
	if err != nil || results != nil {
		t.Errorf("k=0 should return nothing, got %v, %v", results, err)
	}
}
