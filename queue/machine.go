package queue

import (
	"time"

	"hospital-portal/models"
)

// step moves the pointer by delta modulo the roster length. An empty roster is
// left alone so pollers stay stable while the roster is being edited.
func step(s *models.ActiveSession, delta int) bool {
	n := len(s.Doctors)
	if n == 0 {
		return false
	}
	s.CurrentIndex = ((s.CurrentIndex+delta)%n + n) % n
	return true
}

// replaceRoster swaps the roster wholesale. A pointer that falls off the end
// goes back to 0 rather than being clamped to the new last index.
func replaceRoster(s *models.ActiveSession, doctors []models.Participant) {
	s.Doctors = append([]models.Participant(nil), doctors...)
	resetIfOutOfBounds(s)
}

func resetIfOutOfBounds(s *models.ActiveSession) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Doctors) {
		s.CurrentIndex = 0
	}
}

func newSession(id string, caller models.Identity, doctors []models.Participant, runnerName string, now time.Time) *models.ActiveSession {
	return &models.ActiveSession{
		ID:           id,
		IsRunning:    true,
		Doctors:      append([]models.Participant(nil), doctors...),
		CurrentIndex: 0,
		RunnerID:     caller.ID,
		RunnerName:   runnerName,
		StartTime:    now,
		LastUpdated:  now,
	}
}

func historyFor(id string, s *models.ActiveSession, stoppedBy models.Identity, cancelled bool, end time.Time) *models.SessionHistory {
	total := len(s.Doctors)
	completed := 0
	if total > 0 {
		completed = s.CurrentIndex + 1
	}

	status := models.HistoryStopped
	switch {
	case cancelled:
		status = models.HistoryCancelled
	case total > 0 && completed == total:
		status = models.HistoryCompleted
	}

	duration := int64(end.Sub(s.StartTime) / time.Second)
	if duration < 0 {
		duration = 0
	}

	return &models.SessionHistory{
		ID:               id,
		SessionID:        s.ID,
		RunnerID:         s.RunnerID,
		RunnerName:       s.RunnerName,
		Doctors:          append([]models.Participant(nil), s.Doctors...),
		StartTime:        s.StartTime,
		EndTime:          end,
		Duration:         duration,
		TotalDoctors:     total,
		CompletedDoctors: completed,
		Status:           status,
		StoppedBy:        stoppedBy.ID,
	}
}
