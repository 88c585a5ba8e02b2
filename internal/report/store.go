package report

import (
	"errors"
	"fmt"
	"sync"

	"github.com/civiceye/civiceye/internal/models"
)

// ErrNotFound is returned for operations on an unknown report id.
var ErrNotFound = errors.New("report not found")

// Store is the ordered in-memory report collection. Reports are kept in
// insertion order internally and listed most recent first.
type Store struct {
	mu      sync.RWMutex
	reports []models.CivicReport
	index   map[string]int
}

func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Append adds r as the most recent report. Ids are not deduplicated; a
// repeated id shadows the earlier report for Get and UpdateStatus.
func (s *Store) Append(r models.CivicReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[r.ID] = len(s.reports)
	s.reports = append(s.reports, r)
}

// UpdateStatus replaces the status of report id and returns the updated copy.
// The store is unchanged when id is unknown.
func (s *Store) UpdateStatus(id string, status models.ReportStatus) (models.CivicReport, error) {
	if !status.IsValid() {
		return models.CivicReport{}, fmt.Errorf("invalid status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return models.CivicReport{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.reports[i].Status = status
	return s.reports[i], nil
}

// Get returns a deep copy of report id.
func (s *Store) Get(id string) (models.CivicReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return models.CivicReport{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r := s.reports[i]
	r.Image = r.Image.Clone()
	r.Location = *r.Location.Clone()
	return r, nil
}

// Image returns the photo of report id without copying it. The bytes are
// shared with the store and must not be modified.
func (s *Store) Image(id string) (models.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return models.Image{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.reports[i].Image, nil
}

// List returns a snapshot, most recent first. Image bytes are shared with the
// store and must not be modified.
func (s *Store) List() []models.CivicReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.CivicReport, len(s.reports))
	for i, r := range s.reports {
		out[len(s.reports)-1-i] = r
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

// Reset drops every report.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = nil
	s.index = make(map[string]int)
}
