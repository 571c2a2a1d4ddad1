package app

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"scoreboard-service/internal/domain"
	"scoreboard-service/internal/metrics"
	"scoreboard-service/internal/scoring"
)

// KeyRepository abstracts how answer keys are stored (in-memory, Redis
// cache over Postgres, etc). GetKey returns domain.ErrKeyNotSet when no key
// has been uploaded for the task.
type KeyRepository interface {
	GetKey(ctx context.Context, taskID string) ([][]string, error)
	SetKey(ctx context.Context, taskID string, rows [][]string) error
	DeleteKey(ctx context.Context, taskID string) error
}

// Store persists contest state so the ledger survives restarts. All writes
// happen after the in-memory commit and outside the state lock; failures
// are logged and never roll back the committed mutation.
type Store interface {
	SaveTeam(ctx context.Context, team domain.Team) error
	DeleteTeam(ctx context.Context, teamID string) error
	SaveTask(ctx context.Context, task domain.Task) error
	DeleteTask(ctx context.Context, taskID string) error
	SaveSubmission(ctx context.Context, teamID string, sub domain.Submission) error
	SaveStatus(ctx context.Context, status domain.ContestStatus) error
	Reset(ctx context.Context, tasks []domain.Task, teams []*domain.Team, status domain.ContestStatus) error
}

// ContestService contains the scoreboard use cases: scoring submissions,
// maintaining the ledger and ranking, and publishing updates.
type ContestService struct {
	keys    KeyRepository
	store   Store // optional
	metrics *metrics.Metrics
	contest *Contest
}

// Option customizes a ContestService.
type Option func(*ContestService)

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ContestService) { s.contest.now = now }
}

// WithMetrics enables Prometheus counters for scoring activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ContestService) { s.metrics = m }
}

func NewContestService(keys KeyRepository, store Store, opts ...Option) *ContestService {
	s := &ContestService{
		keys:    keys,
		store:   store,
		contest: newContest(time.Now),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap installs the initial tasks, teams, and status. The same state
// is restored by Reset.
func (s *ContestService) Bootstrap(tasks []domain.Task, teams []*domain.Team, status domain.ContestStatus) {
	s.contest.bootstrap(tasks, teams, status)
}

// SubmitSolution scores a raw CSV submission against the task's answer key
// and records the attempt. Any validation failure (contest not live, no
// key, malformed CSV, row-count mismatch) aborts before the ledger is
// touched. On success the returned submission reflects the cell after the
// write and the scoreboard is the freshly ranked state.
func (s *ContestService) SubmitSolution(ctx context.Context, teamID, taskID, raw string) (domain.Submission, domain.Scoreboard, error) {
	if err := s.contest.ensureSubmittable(teamID, taskID); err != nil {
		s.countError()
		return domain.Submission{}, domain.Scoreboard{}, err
	}

	key, err := s.keys.GetKey(ctx, taskID)
	if err != nil {
		s.countError()
		return domain.Submission{}, domain.Scoreboard{}, err
	}

	started := time.Now()
	score, err := scoring.Score(raw, key)
	if err != nil {
		s.countError()
		return domain.Submission{}, domain.Scoreboard{}, err
	}

	sub, sb, err := s.contest.recordAttempt(teamID, taskID, score)
	if err != nil {
		s.countError()
		return domain.Submission{}, domain.Scoreboard{}, err
	}

	if s.metrics != nil {
		s.metrics.SubmissionsScored.Inc()
		s.metrics.ScoringDuration.Observe(time.Since(started).Seconds())
		s.metrics.ScoreboardPushes.Inc()
	}
	s.persistSubmission(ctx, teamID, sub)
	return sub, sb, nil
}

// UploadKey replaces the task's answer key with the parsed contents of a
// raw CSV file. Existing keys are fully overwritten, never merged.
func (s *ContestService) UploadKey(ctx context.Context, taskID, raw string) error {
	if !s.contest.hasTask(taskID) {
		return domain.ErrTaskNotFound
	}
	rows, err := scoring.ParseKey(raw)
	if err != nil {
		return err
	}
	if err := s.keys.SetKey(ctx, taskID, rows); err != nil {
		return fmt.Errorf("store answer key: %w", err)
	}
	if _, err := s.contest.markKeyUploaded(taskID); err != nil {
		return err
	}
	return nil
}

// UploadMasterKey ingests a legacy master key file covering several tasks
// at once. Keys for unknown task IDs are skipped.
func (s *ContestService) UploadMasterKey(ctx context.Context, raw string) error {
	keys, err := scoring.ParseMasterKey(raw)
	if err != nil {
		return err
	}
	applied := 0
	for taskID, rows := range keys {
		if !s.contest.hasTask(taskID) {
			log.Printf("master key: skipping unknown task %s", taskID)
			continue
		}
		if err := s.keys.SetKey(ctx, taskID, rows); err != nil {
			return fmt.Errorf("store answer key for %s: %w", taskID, err)
		}
		if _, err := s.contest.markKeyUploaded(taskID); err != nil {
			return err
		}
		applied++
	}
	if applied == 0 {
		return fmt.Errorf("%w: no rows matched an existing task", domain.ErrMalformedKey)
	}
	return nil
}

// AddTeam registers a team with an empty submission cell per existing task.
func (s *ContestService) AddTeam(ctx context.Context, name string) (domain.Team, error) {
	team := &domain.Team{
		ID:          uuid.NewString(),
		Name:        name,
		Submissions: make(map[string]*domain.Submission),
	}
	s.contest.addTeam(team)
	created := *team.Clone()
	if s.store != nil {
		if err := s.store.SaveTeam(ctx, created); err != nil {
			log.Printf("persist team %s: %v", created.ID, err)
		}
	}
	return created, nil
}

func (s *ContestService) RenameTeam(ctx context.Context, teamID, name string) error {
	if _, err := s.contest.renameTeam(teamID, name); err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.SaveTeam(ctx, domain.Team{ID: teamID, Name: name}); err != nil {
			log.Printf("persist team %s: %v", teamID, err)
		}
	}
	return nil
}

// DeleteTeam removes the team from the ledger and ranking.
func (s *ContestService) DeleteTeam(ctx context.Context, teamID string) error {
	if _, err := s.contest.deleteTeam(teamID); err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.DeleteTeam(ctx, teamID); err != nil {
			log.Printf("delete team %s: %v", teamID, err)
		}
	}
	return nil
}

// AddTask creates a task and gives every registered team an empty
// submission cell for it.
func (s *ContestService) AddTask(ctx context.Context, name string) (domain.Task, error) {
	task := domain.Task{
		ID:            s.nextTaskID(),
		Name:          name,
		KeyVisibility: domain.KeyPrivate,
	}
	s.contest.addTask(task)
	if s.store != nil {
		if err := s.store.SaveTask(ctx, task); err != nil {
			log.Printf("persist task %s: %v", task.ID, err)
		}
	}
	return task, nil
}

func (s *ContestService) UpdateTask(ctx context.Context, taskID, name string, visibility domain.KeyVisibility) (domain.Task, error) {
	if visibility != "" && visibility != domain.KeyPrivate && visibility != domain.KeyPublic {
		return domain.Task{}, fmt.Errorf("unknown key visibility %q", visibility)
	}
	task, _, err := s.contest.updateTask(taskID, name, visibility)
	if err != nil {
		return domain.Task{}, err
	}
	if s.store != nil {
		if err := s.store.SaveTask(ctx, task); err != nil {
			log.Printf("persist task %s: %v", task.ID, err)
		}
	}
	return task, nil
}

// DeleteTask cascades: the task's answer key and every team's submissions
// for it are removed, and the task stops contributing to totals.
func (s *ContestService) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := s.contest.deleteTask(taskID); err != nil {
		return err
	}
	if err := s.keys.DeleteKey(ctx, taskID); err != nil {
		log.Printf("delete answer key for %s: %v", taskID, err)
	}
	if s.store != nil {
		if err := s.store.DeleteTask(ctx, taskID); err != nil {
			log.Printf("delete task %s: %v", taskID, err)
		}
	}
	return nil
}

func (s *ContestService) Status() domain.ContestStatus {
	return s.contest.currentStatus()
}

// SetStatus switches the contest phase. Admin-only; callers enforce that.
func (s *ContestService) SetStatus(ctx context.Context, status domain.ContestStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	s.contest.setStatus(status)
	if s.store != nil {
		if err := s.store.SaveStatus(ctx, status); err != nil {
			log.Printf("persist status: %v", err)
		}
	}
	return nil
}

// Reset restores the bootstrap state, drops all answer keys, and sets the
// contest live again.
func (s *ContestService) Reset(ctx context.Context) error {
	previousTasks, _ := s.contest.reset()
	for _, taskID := range previousTasks {
		if err := s.keys.DeleteKey(ctx, taskID); err != nil {
			log.Printf("reset: delete key for %s: %v", taskID, err)
		}
	}
	if s.store != nil {
		sb := s.contest.snapshot()
		teams := make([]*domain.Team, 0, len(sb.Teams))
		for i := range sb.Teams {
			if team, ok := s.contest.teamSnapshot(sb.Teams[i].ID); ok {
				teams = append(teams, team)
			}
		}
		if err := s.store.Reset(ctx, sb.Tasks, teams, sb.Status); err != nil {
			log.Printf("persist reset: %v", err)
		}
	}
	return nil
}

// Snapshot returns the current ranked scoreboard.
func (s *ContestService) Snapshot() domain.Scoreboard {
	return s.contest.snapshot()
}

// Team returns a deep copy of one team's ledger state.
func (s *ContestService) Team(teamID string) (*domain.Team, error) {
	team, ok := s.contest.teamSnapshot(teamID)
	if !ok {
		return nil, domain.ErrTeamNotFound
	}
	return team, nil
}

// Subscribe returns a channel receiving the full scoreboard on every
// change, starting with the current state. The caller must invoke the
// returned cancel function to avoid leaks.
func (s *ContestService) Subscribe() (<-chan domain.Scoreboard, func()) {
	return s.contest.subscribe()
}

func (s *ContestService) persistSubmission(ctx context.Context, teamID string, sub domain.Submission) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSubmission(ctx, teamID, sub); err != nil {
		log.Printf("persist submission %s/%s: %v", teamID, sub.TaskID, err)
	}
}

func (s *ContestService) countError() {
	if s.metrics != nil {
		s.metrics.SubmissionErrors.Inc()
	}
}

// nextTaskID continues the T1, T2, ... numbering past the highest existing
// numeric suffix so deletions never cause ID reuse.
func (s *ContestService) nextTaskID() string {
	max := 0
	for _, task := range s.contest.snapshot().Tasks {
		if n, err := strconv.Atoi(strings.TrimPrefix(task.ID, "T")); err == nil && n > max {
			max = n
		}
	}
	return "T" + strconv.Itoa(max+1)
}
