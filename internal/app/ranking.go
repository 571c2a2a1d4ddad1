package app

import (
	"sort"

	"scoreboard-service/internal/domain"
)

// rankTeams recomputes every derived field from primary submission data and
// returns the teams in rank order. It is re-run in full after each ledger
// mutation, task change, or team change; there is deliberately no
// incremental-update path, so the ranking can never drift from the data.
//
// Derivations:
//   - isBestScore: the submission's score ties the cross-team maximum for
//     its task (informational flag, not a scoring rule)
//   - totalScore: sum of the team's own best score per task, missing as 0
//   - solved: count of the team's tasks with score > 0
//   - rank: 1-based dense position after sorting by totalScore descending,
//     ties broken by earlier lastSolveTimestamp, teams without a timestamp
//     after those with one; remaining ties keep team-ID order so ranks stay
//     deterministic
func rankTeams(teams []*domain.Team, tasks []domain.Task) []*domain.Team {
	taskMax := make(map[string]float64, len(tasks))
	for _, task := range tasks {
		for _, team := range teams {
			sub, ok := team.Submissions[task.ID]
			if !ok || sub.Score == nil {
				continue
			}
			if best, seen := taskMax[task.ID]; !seen || *sub.Score > best {
				taskMax[task.ID] = *sub.Score
			}
		}
	}

	for _, team := range teams {
		total := 0.0
		solved := 0
		for _, task := range tasks {
			sub, ok := team.Submissions[task.ID]
			if !ok || sub.Score == nil {
				if ok {
					sub.IsBestScore = false
				}
				continue
			}
			best, seen := taskMax[task.ID]
			sub.IsBestScore = seen && *sub.Score == best
			total += *sub.Score
			if *sub.Score > 0 {
				solved++
			}
		}
		team.TotalScore = total
		team.Solved = solved
	}

	ranked := append([]*domain.Team(nil), teams...)
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].ID < ranked[j].ID })
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		switch {
		case a.LastSolveTimestamp == nil:
			return false
		case b.LastSolveTimestamp == nil:
			return true
		default:
			return *a.LastSolveTimestamp < *b.LastSolveTimestamp
		}
	})
	for i, team := range ranked {
		team.Rank = i + 1
	}
	return ranked
}
