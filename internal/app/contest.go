package app

import (
	"sort"
	"sync"
	"time"

	"scoreboard-service/internal/domain"
)

// cellRef identifies one (team, task) submission cell for transient
// recently-updated marking on pushed snapshots.
type cellRef struct {
	teamID string
	taskID string
}

// Contest owns the mutable scoreboard state: the task list, the per-team
// submission ledger, the contest status, and the subscriber set. All
// mutations run under a single mutex, so a submission's read-modify-write
// of its (team, task) cell is atomic and two concurrent attempts can never
// both compute the running maximum from a stale snapshot. Ranking is
// recomputed in the same critical section, never against an in-flight
// write. Persistence and any other I/O happen outside the lock.
type Contest struct {
	now func() time.Time

	mu          sync.RWMutex
	status      domain.ContestStatus
	tasks       []domain.Task
	teams       map[string]*domain.Team
	subscribers map[chan domain.Scoreboard]struct{}

	seedTasks []domain.Task
	seedTeams []*domain.Team
}

func newContest(now func() time.Time) *Contest {
	return &Contest{
		now:         now,
		status:      domain.StatusLive,
		teams:       make(map[string]*domain.Team),
		subscribers: make(map[chan domain.Scoreboard]struct{}),
	}
}

// bootstrap installs the initial contest state and remembers it for reset.
// Every team is given an empty submission cell per task.
func (c *Contest) bootstrap(tasks []domain.Task, teams []*domain.Team, status domain.ContestStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seedTasks = append([]domain.Task(nil), tasks...)
	c.seedTeams = cloneTeams(teams)
	c.installLocked(tasks, teams, status)
}

// reset restores the bootstrap state and returns the task IDs that existed
// before, so the caller can drop their answer keys.
func (c *Contest) reset() ([]string, domain.Scoreboard) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := make([]string, 0, len(c.tasks))
	for _, task := range c.tasks {
		previous = append(previous, task.ID)
	}
	c.installLocked(c.seedTasks, cloneTeams(c.seedTeams), domain.StatusLive)
	return previous, c.broadcastLocked(nil)
}

func (c *Contest) installLocked(tasks []domain.Task, teams []*domain.Team, status domain.ContestStatus) {
	c.status = status
	c.tasks = append([]domain.Task(nil), tasks...)
	c.teams = make(map[string]*domain.Team, len(teams))
	for _, team := range teams {
		c.teams[team.ID] = team
		c.ensureCellsLocked(team)
	}
	c.rerankLocked()
}

func cloneTeams(teams []*domain.Team) []*domain.Team {
	out := make([]*domain.Team, 0, len(teams))
	for _, team := range teams {
		out = append(out, team.Clone())
	}
	return out
}

// ensureCellsLocked guarantees one submission cell per current task.
func (c *Contest) ensureCellsLocked(team *domain.Team) {
	if team.Submissions == nil {
		team.Submissions = make(map[string]*domain.Submission, len(c.tasks))
	}
	for _, task := range c.tasks {
		if _, ok := team.Submissions[task.ID]; !ok {
			team.Submissions[task.ID] = &domain.Submission{TaskID: task.ID}
		}
	}
}

func (c *Contest) rerankLocked() {
	all := make([]*domain.Team, 0, len(c.teams))
	for _, team := range c.teams {
		all = append(all, team)
	}
	rankTeams(all, c.tasks)
}

func (c *Contest) taskIndexLocked(taskID string) int {
	for i := range c.tasks {
		if c.tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}

// ensureSubmittable is the pre-scoring validation pass. recordAttempt
// repeats these checks under the write lock, so a status flip between the
// two can still never produce a partial write.
func (c *Contest) ensureSubmittable(teamID, taskID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.submittableLocked(teamID, taskID)
}

func (c *Contest) submittableLocked(teamID, taskID string) error {
	if c.status != domain.StatusLive {
		return domain.ErrContestNotLive
	}
	if _, ok := c.teams[teamID]; !ok {
		return domain.ErrTeamNotFound
	}
	if c.taskIndexLocked(taskID) < 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// recordAttempt appends a scored attempt to the (team, task) cell, updates
// the running best and the team's last-solve timestamp, and reranks. The
// returned submission is a deep copy of the cell after the write.
func (c *Contest) recordAttempt(teamID, taskID string, score float64) (domain.Submission, domain.Scoreboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.submittableLocked(teamID, taskID); err != nil {
		return domain.Submission{}, domain.Scoreboard{}, err
	}

	team := c.teams[teamID]
	sub, ok := team.Submissions[taskID]
	if !ok {
		sub = &domain.Submission{TaskID: taskID}
		team.Submissions[taskID] = sub
	}

	ts := c.now().UnixMilli()
	sub.History = append(sub.History, domain.Attempt{Score: score, Timestamp: ts})
	sub.Attempts = len(sub.History)
	if sub.Score == nil || score > *sub.Score {
		best := score
		sub.Score = &best
	}
	team.LastSolveTimestamp = &ts

	c.rerankLocked()
	sb := c.broadcastLocked(map[cellRef]bool{{teamID: teamID, taskID: taskID}: true})
	return sub.Clone(), sb, nil
}

func (c *Contest) addTeam(team *domain.Team) domain.Scoreboard {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teams[team.ID] = team
	c.ensureCellsLocked(team)
	c.rerankLocked()
	return c.broadcastLocked(nil)
}

func (c *Contest) renameTeam(teamID, name string) (domain.Scoreboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	team, ok := c.teams[teamID]
	if !ok {
		return domain.Scoreboard{}, domain.ErrTeamNotFound
	}
	team.Name = name
	return c.broadcastLocked(nil), nil
}

func (c *Contest) deleteTeam(teamID string) (domain.Scoreboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.teams[teamID]; !ok {
		return domain.Scoreboard{}, domain.ErrTeamNotFound
	}
	delete(c.teams, teamID)
	c.rerankLocked()
	return c.broadcastLocked(nil), nil
}

// addTask appends the task and gives every team an empty cell for it.
func (c *Contest) addTask(task domain.Task) domain.Scoreboard {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, task)
	for _, team := range c.teams {
		c.ensureCellsLocked(team)
	}
	c.rerankLocked()
	return c.broadcastLocked(nil)
}

func (c *Contest) updateTask(taskID, name string, visibility domain.KeyVisibility) (domain.Task, domain.Scoreboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.taskIndexLocked(taskID)
	if i < 0 {
		return domain.Task{}, domain.Scoreboard{}, domain.ErrTaskNotFound
	}
	if name != "" {
		c.tasks[i].Name = name
	}
	if visibility != "" {
		c.tasks[i].KeyVisibility = visibility
	}
	return c.tasks[i], c.broadcastLocked(nil), nil
}

func (c *Contest) markKeyUploaded(taskID string) (domain.Scoreboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.taskIndexLocked(taskID)
	if i < 0 {
		return domain.Scoreboard{}, domain.ErrTaskNotFound
	}
	c.tasks[i].KeyUploaded = true
	return c.broadcastLocked(nil), nil
}

// deleteTask removes the task and every team's submissions for it, then
// reranks so the task no longer contributes to any total.
func (c *Contest) deleteTask(taskID string) (domain.Scoreboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.taskIndexLocked(taskID)
	if i < 0 {
		return domain.Scoreboard{}, domain.ErrTaskNotFound
	}
	c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
	for _, team := range c.teams {
		delete(team.Submissions, taskID)
	}
	c.rerankLocked()
	return c.broadcastLocked(nil), nil
}

func (c *Contest) hasTask(taskID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.taskIndexLocked(taskID) >= 0
}

func (c *Contest) currentStatus() domain.ContestStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Contest) setStatus(status domain.ContestStatus) domain.Scoreboard {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	return c.broadcastLocked(nil)
}

func (c *Contest) snapshot() domain.Scoreboard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked(nil)
}

func (c *Contest) teamSnapshot(teamID string) (*domain.Team, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	team, ok := c.teams[teamID]
	if !ok {
		return nil, false
	}
	return team.Clone(), true
}

// subscribe registers a scoreboard channel and delivers the current state
// immediately. The caller must invoke cancel to avoid leaks.
func (c *Contest) subscribe() (<-chan domain.Scoreboard, func()) {
	ch := make(chan domain.Scoreboard, 8)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	initial := c.snapshotLocked(nil)
	c.mu.Unlock()

	ch <- initial

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// broadcastLocked pushes the current snapshot to every subscriber without
// blocking: a slow client's stale update is dropped in favor of the newest
// state, which is safe because pushes always carry the full scoreboard.
func (c *Contest) broadcastLocked(changed map[cellRef]bool) domain.Scoreboard {
	sb := c.snapshotLocked(changed)
	for ch := range c.subscribers {
		select {
		case ch <- sb:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- sb
		}
	}
	return sb
}

// snapshotLocked builds a deep-copied scoreboard in rank order, with
// submissions per team ordered to match the task list. Cells named in
// changed get the transient recently-updated flag. Ranks are already
// current (every mutation reranks), so this only reads.
func (c *Contest) snapshotLocked(changed map[cellRef]bool) domain.Scoreboard {
	ranked := make([]*domain.Team, 0, len(c.teams))
	for _, team := range c.teams {
		ranked = append(ranked, team)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Rank < ranked[j].Rank })

	views := make([]domain.TeamView, 0, len(ranked))
	for _, team := range ranked {
		view := domain.TeamView{
			ID:          team.ID,
			Name:        team.Name,
			Rank:        team.Rank,
			Solved:      team.Solved,
			TotalScore:  team.TotalScore,
			Submissions: make([]domain.Submission, 0, len(c.tasks)),
		}
		if team.LastSolveTimestamp != nil {
			v := *team.LastSolveTimestamp
			view.LastSolveTimestamp = &v
		}
		for _, task := range c.tasks {
			sub, ok := team.Submissions[task.ID]
			if !ok {
				view.Submissions = append(view.Submissions, domain.Submission{TaskID: task.ID})
				continue
			}
			cell := sub.Clone()
			cell.RecentlyUpdated = changed[cellRef{teamID: team.ID, taskID: task.ID}]
			view.Submissions = append(view.Submissions, cell)
		}
		views = append(views, view)
	}

	return domain.Scoreboard{
		Status:    c.status,
		Tasks:     append([]domain.Task(nil), c.tasks...),
		Teams:     views,
		UpdatedAt: c.now(),
	}
}
