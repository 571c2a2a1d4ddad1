package app

import (
	"sync"
	"testing"
	"time"

	"scoreboard-service/internal/domain"
)

func newTestContest() *Contest {
	c := newContest(time.Now)
	c.bootstrap(
		[]domain.Task{{ID: "T1", Name: "Task A"}, {ID: "T2", Name: "Task B"}},
		[]*domain.Team{
			{ID: "team-a", Name: "Alpha"},
			{ID: "team-b", Name: "Beta"},
		},
		domain.StatusLive,
	)
	return c
}

func TestRecordAttemptConcurrentSameCell(t *testing.T) {
	c := newTestContest()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(score float64) {
			defer wg.Done()
			if _, _, err := c.recordAttempt("team-a", "T1", score); err != nil {
				t.Errorf("record attempt: %v", err)
			}
		}(float64(i))
	}
	wg.Wait()

	team, ok := c.teamSnapshot("team-a")
	if !ok {
		t.Fatalf("team missing")
	}
	sub := team.Submissions["T1"]
	if sub.Attempts != n {
		t.Fatalf("expected %d attempts, got %d", n, sub.Attempts)
	}
	if len(sub.History) != n {
		t.Fatalf("expected %d history entries, got %d", n, len(sub.History))
	}
	if sub.Score == nil || *sub.Score != n-1 {
		t.Fatalf("expected best score %d, got %v", n-1, sub.Score)
	}
}

func TestRecordAttemptKeepsRunningMaximum(t *testing.T) {
	c := newTestContest()

	for _, s := range []float64{40, 90, 60} {
		if _, _, err := c.recordAttempt("team-a", "T1", s); err != nil {
			t.Fatalf("record attempt: %v", err)
		}
	}

	team, _ := c.teamSnapshot("team-a")
	sub := team.Submissions["T1"]
	if *sub.Score != 90 || sub.Attempts != 3 {
		t.Fatalf("expected best 90 after 3 attempts, got %v/%d", *sub.Score, sub.Attempts)
	}
}

func TestRecordAttemptRejectedWhenNotLive(t *testing.T) {
	c := newTestContest()
	c.setStatus(domain.StatusFinished)

	_, _, err := c.recordAttempt("team-a", "T1", 50)
	if err != domain.ErrContestNotLive {
		t.Fatalf("expected not-live rejection, got %v", err)
	}

	team, _ := c.teamSnapshot("team-a")
	if team.Submissions["T1"].Attempts != 0 {
		t.Fatalf("expected ledger unchanged after rejection")
	}
}

func TestRecordAttemptUpdatesLastSolveTimestamp(t *testing.T) {
	current := time.UnixMilli(1000)
	c := newContest(func() time.Time { return current })
	c.bootstrap([]domain.Task{{ID: "T1"}}, []*domain.Team{{ID: "team-a", Name: "Alpha"}}, domain.StatusLive)

	if _, _, err := c.recordAttempt("team-a", "T1", 10); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	team, _ := c.teamSnapshot("team-a")
	if team.LastSolveTimestamp == nil || *team.LastSolveTimestamp != 1000 {
		t.Fatalf("expected last solve at 1000, got %v", team.LastSolveTimestamp)
	}

	current = time.UnixMilli(2000)
	if _, _, err := c.recordAttempt("team-a", "T1", 5); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	team, _ = c.teamSnapshot("team-a")
	if *team.LastSolveTimestamp != 2000 {
		t.Fatalf("expected every attempt to advance last solve, got %v", *team.LastSolveTimestamp)
	}
}

func TestSnapshotMarksRecentlyUpdatedCellOnly(t *testing.T) {
	c := newTestContest()

	_, sb, err := c.recordAttempt("team-a", "T1", 75)
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	for _, team := range sb.Teams {
		for _, sub := range team.Submissions {
			changed := team.ID == "team-a" && sub.TaskID == "T1"
			if sub.RecentlyUpdated != changed {
				t.Fatalf("cell %s/%s: recentlyUpdated=%v", team.ID, sub.TaskID, sub.RecentlyUpdated)
			}
		}
	}

	// The transient flag must not appear on plain queries.
	for _, team := range c.snapshot().Teams {
		for _, sub := range team.Submissions {
			if sub.RecentlyUpdated {
				t.Fatalf("query snapshot should not carry the flag")
			}
		}
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	c := newTestContest()

	if _, _, err := c.recordAttempt("team-a", "T1", 80); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if _, _, err := c.recordAttempt("team-a", "T2", 20); err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	if _, err := c.deleteTask("T1"); err != nil {
		t.Fatalf("delete task: %v", err)
	}

	team, _ := c.teamSnapshot("team-a")
	if _, ok := team.Submissions["T1"]; ok {
		t.Fatalf("expected T1 submissions removed")
	}
	if team.TotalScore != 20 {
		t.Fatalf("expected total without deleted task, got %v", team.TotalScore)
	}
}

func TestSubscribeReceivesFullState(t *testing.T) {
	c := newTestContest()
	ch, cancel := c.subscribe()
	defer cancel()

	initial := <-ch
	if len(initial.Teams) != 2 || len(initial.Tasks) != 2 {
		t.Fatalf("expected full initial snapshot, got %+v", initial)
	}

	if _, _, err := c.recordAttempt("team-b", "T2", 55); err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	update := <-ch
	if update.Teams[0].ID != "team-b" || update.Teams[0].TotalScore != 55 {
		t.Fatalf("expected beta leading after update, got %+v", update.Teams[0])
	}
}
