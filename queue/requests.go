package queue

import (
	"fmt"
	"strings"
	"time"

	"hospital-portal/models"
)

// DefaultMinDoctors is the smallest roster a queue can start with.
const DefaultMinDoctors = 4

// StartRequest begins a new session. Empty Doctors or RunnerName fall back to
// the stored draft roster.
type StartRequest struct {
	Doctors    []models.Participant `json:"doctors"`
	RunnerName string               `json:"runnerName"`
}

// Direction moves the pointer.
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

// AdvanceRequest moves the current pointer one step, wrapping at both ends.
type AdvanceRequest struct {
	Direction Direction
}

// EditRosterRequest replaces the roster and/or runner name wholesale. A nil
// field keeps the current value.
type EditRosterRequest struct {
	Doctors    []models.Participant `json:"doctors"`
	RunnerName *string              `json:"runnerName"`
}

// StopRequest ends the running session. Cancelled records the history entry
// as cancelled instead of deriving completed/stopped from the pointer.
type StopRequest struct {
	Cancelled bool `json:"cancelled"`
}

// SyncRequest is the runner's state push for a running queue: start when
// idle, otherwise replace the mutable fields it carries. StartTime names the
// session the push was made against; a push for a session that is no longer
// running is rejected instead of starting a new one.
type SyncRequest struct {
	Doctors      []models.Participant
	CurrentIndex *int
	RunnerName   *string
	StartTime    *time.Time
}

func validateRoster(doctors []models.Participant, min int) error {
	if len(doctors) < min {
		return invalid(fmt.Sprintf("at least %d doctors are required to run the queue, got %d", min, len(doctors)))
	}
	return validateParticipants(doctors)
}

func validateParticipants(doctors []models.Participant) error {
	seen := make(map[string]struct{}, len(doctors))
	for i, d := range doctors {
		if strings.TrimSpace(d.ID) == "" {
			return invalid(fmt.Sprintf("doctor at position %d has no id", i))
		}
		if strings.TrimSpace(d.Name) == "" {
			return invalid(fmt.Sprintf("doctor %q has no name", d.ID))
		}
		if _, dup := seen[d.ID]; dup {
			return invalid(fmt.Sprintf("doctor %q appears more than once", d.ID))
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}

func validateRunnerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("runner name is required")
	}
	return nil
}

func (r AdvanceRequest) validate() error {
	if r.Direction != Forward && r.Direction != Backward {
		return invalid("direction must be forward or backward")
	}
	return nil
}

func (r SyncRequest) validate(min int) error {
	if r.Doctors != nil {
		if err := validateRoster(r.Doctors, min); err != nil {
			return err
		}
	}
	if r.RunnerName != nil {
		if err := validateRunnerName(*r.RunnerName); err != nil {
			return err
		}
	}
	if r.CurrentIndex != nil && *r.CurrentIndex < 0 {
		return invalid(fmt.Sprintf("queue index %d is out of range", *r.CurrentIndex))
	}
	return nil
}

// targets reports whether the push was made against active. A push without
// StartTime targets whatever is current. Stores may keep only millisecond
// precision.
func (r SyncRequest) targets(active *models.ActiveSession) bool {
	if r.StartTime == nil {
		return true
	}
	if active == nil {
		return false
	}
	return active.StartTime.Truncate(time.Millisecond).Equal(r.StartTime.Truncate(time.Millisecond))
}
