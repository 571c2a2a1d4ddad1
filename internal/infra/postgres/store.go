package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"scoreboard-service/internal/domain"
)

// Store persists contest state in Postgres. The submission history is kept
// as an append-only JSONB blob per (team, task); best_score and the other
// derived fields are recomputed from history on load, so the database can
// never disagree with the ledger invariants.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// LoadKey implements the key loader used by the caching repositories.
func (s *Store) LoadKey(ctx context.Context, taskID string) ([][]string, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT rows FROM answer_keys WHERE task_id=$1`, taskID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrKeyNotSet
	}
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}
	var rows [][]string
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal answer key: %w", err)
	}
	return rows, nil
}

// SaveKey fully replaces the task's answer key.
func (s *Store) SaveKey(ctx context.Context, taskID string, rows [][]string) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO answer_keys (task_id, rows) VALUES ($1, $2)
		ON CONFLICT (task_id) DO UPDATE SET rows = EXCLUDED.rows`,
		taskID, data)
	return err
}

func (s *Store) DeleteKey(ctx context.Context, taskID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM answer_keys WHERE task_id=$1`, taskID)
	return err
}

func (s *Store) SaveTask(ctx context.Context, task domain.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, name, key_visibility) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, key_visibility = EXCLUDED.key_visibility`,
		task.ID, task.Name, string(task.KeyVisibility))
	return err
}

// DeleteTask cascades to the task's answer key and submissions via FKs.
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id=$1`, taskID)
	return err
}

func (s *Store) SaveTeam(ctx context.Context, team domain.Team) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO teams (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		team.ID, team.Name)
	return err
}

// DeleteTeam cascades to the team's submissions via FK.
func (s *Store) DeleteTeam(ctx context.Context, teamID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM teams WHERE id=$1`, teamID)
	return err
}

// SaveSubmission upserts the full cell. The in-memory ledger is
// authoritative, so the stored history is overwritten with the committed
// state rather than appended server-side.
func (s *Store) SaveSubmission(ctx context.Context, teamID string, sub domain.Submission) error {
	history, err := json.Marshal(sub.History)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO submissions (team_id, task_id, best_score, history) VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id, task_id) DO UPDATE
		SET best_score = EXCLUDED.best_score, history = EXCLUDED.history`,
		teamID, sub.TaskID, sub.Score, history)
	return err
}

func (s *Store) SaveStatus(ctx context.Context, status domain.ContestStatus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contest_meta (id, status) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		string(status))
	return err
}

// Reset replaces the whole persisted contest in one transaction.
func (s *Store) Reset(ctx context.Context, tasks []domain.Task, teams []*domain.Team, status domain.ContestStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"submissions", "answer_keys", "teams", "tasks"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}
	for _, task := range tasks {
		if _, err := tx.Exec(ctx, `INSERT INTO tasks (id, name, key_visibility) VALUES ($1, $2, $3)`,
			task.ID, task.Name, string(task.KeyVisibility)); err != nil {
			return err
		}
	}
	for _, team := range teams {
		if _, err := tx.Exec(ctx, `INSERT INTO teams (id, name) VALUES ($1, $2)`, team.ID, team.Name); err != nil {
			return err
		}
		for _, sub := range team.Submissions {
			if len(sub.History) == 0 {
				continue
			}
			history, err := json.Marshal(sub.History)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO submissions (team_id, task_id, best_score, history) VALUES ($1, $2, $3, $4)`,
				team.ID, sub.TaskID, sub.Score, history); err != nil {
				return err
			}
		}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO contest_meta (id, status) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`, string(status)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LoadState reads the full persisted contest. Submission histories are the
// primary data: attempts, best score, and last-solve timestamps are rebuilt
// from them, and key_uploaded flags from the presence of answer keys.
func (s *Store) LoadState(ctx context.Context) ([]domain.Task, []*domain.Team, domain.ContestStatus, error) {
	tasks, err := s.loadTasks(ctx)
	if err != nil {
		return nil, nil, "", err
	}
	teams, err := s.loadTeams(ctx)
	if err != nil {
		return nil, nil, "", err
	}

	status := domain.StatusLive
	var raw string
	err = s.pool.QueryRow(ctx, `SELECT status FROM contest_meta WHERE id=1`).Scan(&raw)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, "", fmt.Errorf("load status: %w", err)
	}
	if err == nil && domain.ContestStatus(raw).Valid() {
		status = domain.ContestStatus(raw)
	}
	return tasks, teams, status, nil
}

func (s *Store) loadTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name, t.key_visibility, k.task_id IS NOT NULL
		FROM tasks t LEFT JOIN answer_keys k ON k.task_id = t.id
		ORDER BY t.id`)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var task domain.Task
		var visibility string
		if err := rows.Scan(&task.ID, &task.Name, &visibility, &task.KeyUploaded); err != nil {
			return nil, err
		}
		task.KeyVisibility = domain.KeyVisibility(visibility)
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *Store) loadTeams(ctx context.Context) ([]*domain.Team, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM teams ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*domain.Team)
	var teams []*domain.Team
	for rows.Next() {
		team := &domain.Team{Submissions: make(map[string]*domain.Submission)}
		if err := rows.Scan(&team.ID, &team.Name); err != nil {
			return nil, err
		}
		byID[team.ID] = team
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	subRows, err := s.pool.Query(ctx, `SELECT team_id, task_id, history FROM submissions`)
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	defer subRows.Close()

	for subRows.Next() {
		var teamID, taskID string
		var raw []byte
		if err := subRows.Scan(&teamID, &taskID, &raw); err != nil {
			return nil, err
		}
		team, ok := byID[teamID]
		if !ok {
			continue
		}
		var history []domain.Attempt
		if err := json.Unmarshal(raw, &history); err != nil {
			return nil, fmt.Errorf("unmarshal history for %s/%s: %w", teamID, taskID, err)
		}
		team.Submissions[taskID] = rebuildSubmission(taskID, history)
		if ts := lastTimestamp(history); ts != nil {
			if team.LastSolveTimestamp == nil || *ts > *team.LastSolveTimestamp {
				team.LastSolveTimestamp = ts
			}
		}
	}
	return teams, subRows.Err()
}

func rebuildSubmission(taskID string, history []domain.Attempt) *domain.Submission {
	sub := &domain.Submission{TaskID: taskID, History: history, Attempts: len(history)}
	for _, attempt := range history {
		if sub.Score == nil || attempt.Score > *sub.Score {
			best := attempt.Score
			sub.Score = &best
		}
	}
	return sub
}

func lastTimestamp(history []domain.Attempt) *int64 {
	var out *int64
	for _, attempt := range history {
		if out == nil || attempt.Timestamp > *out {
			ts := attempt.Timestamp
			out = &ts
		}
	}
	return out
}
