package app

import (
	"testing"

	"scoreboard-service/internal/domain"
)

func score(v float64) *float64 { return &v }

func teamWith(id string, lastSolve *int64, scores map[string]*float64) *domain.Team {
	subs := make(map[string]*domain.Submission, len(scores))
	for taskID, s := range scores {
		subs[taskID] = &domain.Submission{TaskID: taskID, Score: s}
	}
	return &domain.Team{ID: id, Name: id, LastSolveTimestamp: lastSolve, Submissions: subs}
}

func ts(v int64) *int64 { return &v }

func TestRankBestScoreFlagsTieAcrossTeams(t *testing.T) {
	tasks := []domain.Task{{ID: "T1"}}
	a := teamWith("a", ts(1), map[string]*float64{"T1": score(90)})
	b := teamWith("b", ts(2), map[string]*float64{"T1": score(90)})
	c := teamWith("c", ts(3), map[string]*float64{"T1": score(80)})

	rankTeams([]*domain.Team{a, b, c}, tasks)

	if !a.Submissions["T1"].IsBestScore || !b.Submissions["T1"].IsBestScore {
		t.Fatalf("expected both 90s flagged best")
	}
	if c.Submissions["T1"].IsBestScore {
		t.Fatalf("expected 80 not flagged best")
	}
}

func TestRankTotalScoreUsesOwnBestNotTaskMax(t *testing.T) {
	tasks := []domain.Task{{ID: "T1"}, {ID: "T2"}}
	a := teamWith("a", ts(1), map[string]*float64{"T1": score(90), "T2": nil})
	b := teamWith("b", ts(2), map[string]*float64{"T1": score(50), "T2": score(70)})

	rankTeams([]*domain.Team{a, b}, tasks)

	if a.TotalScore != 90 {
		t.Fatalf("expected 90 treating unset task as 0, got %v", a.TotalScore)
	}
	if b.TotalScore != 120 {
		t.Fatalf("expected own scores summed even when not task max, got %v", b.TotalScore)
	}
	if a.Solved != 1 || b.Solved != 2 {
		t.Fatalf("unexpected solved counts: a=%d b=%d", a.Solved, b.Solved)
	}
}

func TestRankOrderAndTieBreak(t *testing.T) {
	tasks := []domain.Task{{ID: "T1"}}
	early := teamWith("early", ts(100), map[string]*float64{"T1": score(90)})
	late := teamWith("late", ts(200), map[string]*float64{"T1": score(90)})
	never := teamWith("never", nil, map[string]*float64{"T1": score(90)})
	top := teamWith("top", ts(500), map[string]*float64{"T1": score(95)})

	ranked := rankTeams([]*domain.Team{never, late, top, early}, tasks)

	wantOrder := []string{"top", "early", "late", "never"}
	for i, id := range wantOrder {
		if ranked[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, ranked[i].ID)
		}
		if ranked[i].Rank != i+1 {
			t.Fatalf("expected dense rank %d, got %d", i+1, ranked[i].Rank)
		}
	}
}

func TestRankIsDeterministicForFullTies(t *testing.T) {
	tasks := []domain.Task{{ID: "T1"}}
	for i := 0; i < 5; i++ {
		a := teamWith("a", ts(10), map[string]*float64{"T1": score(90)})
		b := teamWith("b", ts(10), map[string]*float64{"T1": score(90)})
		ranked := rankTeams([]*domain.Team{b, a}, tasks)
		if ranked[0].ID != "a" || ranked[0].Rank != 1 || ranked[1].Rank != 2 {
			t.Fatalf("expected stable ID order with distinct ranks, got %s=%d %s=%d",
				ranked[0].ID, ranked[0].Rank, ranked[1].ID, ranked[1].Rank)
		}
	}
}

func TestRankSkipsRemovedTasks(t *testing.T) {
	tasks := []domain.Task{{ID: "T1"}}
	// The team still holds a cell for a task no longer in the contest.
	a := teamWith("a", ts(1), map[string]*float64{"T1": score(40), "gone": score(99)})

	rankTeams([]*domain.Team{a}, tasks)

	if a.TotalScore != 40 {
		t.Fatalf("expected removed task excluded from total, got %v", a.TotalScore)
	}
}
