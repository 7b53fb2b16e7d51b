package models

import (
	"time"
)

// Participant is one doctor in the rotation. Roster order is rotation order.
type Participant struct {
	ID   string `json:"id" bson:"id" binding:"required"`
	Name string `json:"name" bson:"name" binding:"required"`
	Rank string `json:"rank,omitempty" bson:"rank,omitempty"`
}

// ActiveSession is the single running queue. At most one record with
// IsRunning=true exists at any time.
type ActiveSession struct {
	ID           string        `json:"id" bson:"_id"`
	IsRunning    bool          `json:"isRunning" bson:"isRunning"`
	Doctors      []Participant `json:"doctors" bson:"doctors"`
	CurrentIndex int           `json:"currentQueueIndex" bson:"currentIndex"`
	RunnerID     string        `json:"runnerId" bson:"runnerId"`
	RunnerName   string        `json:"runnerName" bson:"runnerName"`
	StartTime    time.Time     `json:"startTime" bson:"startTime"`
	ElapsedTime  int64         `json:"elapsedTime" bson:"elapsedTime"` // advisory, seconds
	LastUpdated  time.Time     `json:"lastUpdated" bson:"lastUpdated"`
}

// Clone returns a deep copy so callers never share the roster slice.
func (s *ActiveSession) Clone() *ActiveSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Doctors = append([]Participant(nil), s.Doctors...)
	return &c
}

// CurrentDoctor returns the participant under the pointer, or nil.
func (s *ActiveSession) CurrentDoctor() *Participant {
	if s == nil || s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Doctors) {
		return nil
	}
	d := s.Doctors[s.CurrentIndex]
	return &d
}

// HistoryStatus is the terminal status recorded for a finished session.
type HistoryStatus string

const (
	HistoryCompleted HistoryStatus = "completed"
	HistoryStopped   HistoryStatus = "stopped"
	HistoryCancelled HistoryStatus = "cancelled"
)

// SessionHistory is an append-only record written when a session stops.
type SessionHistory struct {
	ID               string        `json:"id" bson:"_id"`
	SessionID        string        `json:"sessionId" bson:"sessionId"`
	RunnerID         string        `json:"runnerId" bson:"runnerId"`
	RunnerName       string        `json:"runnerName" bson:"runnerName"`
	Doctors          []Participant `json:"doctors" bson:"doctors"`
	StartTime        time.Time     `json:"startTime" bson:"startTime"`
	EndTime          time.Time     `json:"endTime" bson:"endTime"`
	Duration         int64         `json:"duration" bson:"duration"` // seconds
	TotalDoctors     int           `json:"totalDoctors" bson:"totalDoctors"`
	CompletedDoctors int           `json:"completedDoctors" bson:"completedDoctors"`
	Status           HistoryStatus `json:"status" bson:"status"`
	StoppedBy        string        `json:"stoppedBy" bson:"stoppedBy"`
}

// QueueStatus is the view served to every poller.
type QueueStatus struct {
	IsRunning     bool          `json:"isRunning"`
	CurrentIndex  int           `json:"currentQueueIndex"`
	Doctors       []Participant `json:"doctors"`
	CurrentDoctor *Participant  `json:"currentDoctor"`
	StartTime     *time.Time    `json:"startTime,omitempty"`
	ElapsedTime   *int64        `json:"elapsedTime,omitempty"`
	RunnerName    string        `json:"runnerName,omitempty"`
	RunnerID      string        `json:"runnerId,omitempty"`
	LastUpdated   *time.Time    `json:"lastUpdated,omitempty"`
}

// IdleStatus is the view returned when no session is running.
func IdleStatus() QueueStatus {
	return QueueStatus{Doctors: []Participant{}}
}

// StatusOf renders the view of a running session at the given instant.
func StatusOf(s *ActiveSession, now time.Time) QueueStatus {
	if s == nil || !s.IsRunning {
		return IdleStatus()
	}
	start := s.StartTime
	updated := s.LastUpdated
	elapsed := int64(now.Sub(start) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	doctors := append([]Participant{}, s.Doctors...)
	return QueueStatus{
		IsRunning:     true,
		CurrentIndex:  s.CurrentIndex,
		Doctors:       doctors,
		CurrentDoctor: s.CurrentDoctor(),
		StartTime:     &start,
		ElapsedTime:   &elapsed,
		RunnerName:    s.RunnerName,
		RunnerID:      s.RunnerID,
		LastUpdated:   &updated,
	}
}

// RosterDraft is the roster edited while no session is running. A start
// request without doctors picks it up.
type RosterDraft struct {
	Doctors    []Participant `json:"doctors" bson:"doctors"`
	RunnerName string        `json:"runnerName" bson:"runnerName"`
	UpdatedBy  string        `json:"updatedBy" bson:"updatedBy"`
	UpdatedAt  time.Time     `json:"updatedAt" bson:"updatedAt"`
}
