package domain

import "time"

// ContestStatus gates whether submissions are accepted.
type ContestStatus string

const (
	StatusNotStarted ContestStatus = "Not Started"
	StatusLive       ContestStatus = "Live"
	StatusFinished   ContestStatus = "Finished"
)

// Valid reports whether s is one of the known contest states.
func (s ContestStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusLive, StatusFinished:
		return true
	}
	return false
}

// KeyVisibility controls whether contestants may see a task's answer key.
type KeyVisibility string

const (
	KeyPrivate KeyVisibility = "private"
	KeyPublic  KeyVisibility = "public"
)

// Task is one scoring unit of the contest, holding at most one answer key.
type Task struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	KeyUploaded   bool          `json:"keyUploaded"`
	KeyVisibility KeyVisibility `json:"keyVisibility"`
}

// Attempt is one scored evaluation of a submission. Immutable once recorded.
type Attempt struct {
	Score     float64 `json:"score"`
	Timestamp int64   `json:"timestamp"` // unix millis
}

// Submission is a team's per-task submission state. Score is the maximum
// over History, or nil while History is empty. Attempts always equals
// len(History). IsBestScore is derived by ranking, never set directly.
// RecentlyUpdated is a transient marker on pushed snapshots only; it is
// never persisted and never feeds back into scoring.
type Submission struct {
	TaskID          string    `json:"taskId"`
	Score           *float64  `json:"score"`
	Attempts        int       `json:"attempts"`
	IsBestScore     bool      `json:"isBestScore"`
	History         []Attempt `json:"history"`
	RecentlyUpdated bool      `json:"recentlyUpdated,omitempty"`
}

// Clone returns a deep copy safe to hand out without holding the ledger lock.
func (s *Submission) Clone() Submission {
	out := *s
	if s.Score != nil {
		v := *s.Score
		out.Score = &v
	}
	out.History = append([]Attempt(nil), s.History...)
	return out
}

// Team is one contestant entry on the scoreboard. Rank, Solved, TotalScore
// and the IsBestScore flags on its submissions are derived fields,
// recomputed in full from submission history after every mutation.
type Team struct {
	ID                 string
	Name               string
	Rank               int
	Solved             int
	TotalScore         float64
	LastSolveTimestamp *int64
	Submissions        map[string]*Submission // keyed by task ID
}

// Clone deep-copies the team including its submission cells.
func (t *Team) Clone() *Team {
	out := *t
	if t.LastSolveTimestamp != nil {
		v := *t.LastSolveTimestamp
		out.LastSolveTimestamp = &v
	}
	out.Submissions = make(map[string]*Submission, len(t.Submissions))
	for taskID, sub := range t.Submissions {
		c := sub.Clone()
		out.Submissions[taskID] = &c
	}
	return &out
}

// TeamView is a snapshot-friendly projection of a Team with submissions
// ordered to match the contest's task order.
type TeamView struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Rank               int          `json:"rank"`
	Solved             int          `json:"solved"`
	TotalScore         float64      `json:"totalScore"`
	LastSolveTimestamp *int64       `json:"lastSolveTimestamp"`
	Submissions        []Submission `json:"submissions"`
}

// Scoreboard captures the full ranked contest state. Subscribers always
// receive the complete current state rather than deltas.
type Scoreboard struct {
	Status    ContestStatus `json:"status"`
	Tasks     []Task        `json:"tasks"`
	Teams     []TeamView    `json:"teams"`
	UpdatedAt time.Time     `json:"updatedAt"`
}
