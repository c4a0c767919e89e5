package search

// Context-boost multipliers (spec §4.5 step 6).
const (
	SessionBoostMultiplier = 1.3
	TaskBoostMultiplier    = 1.5
)

// contextBoost multiplies score when the candidate's session/task matches
// the query's, capping the result at 1.0, and returns an explanation
// fragment describing which boosts fired.
func contextBoost(score float64, candidateSessionID, candidateTaskID, querySessionID, queryTaskID string) (float64, []string) {
	var explanation []string

	if querySessionID != "" && candidateSessionID == querySessionID {
		score *= SessionBoostMultiplier
		explanation = append(explanation, "session context boost")
	}
	if queryTaskID != "" && candidateTaskID == queryTaskID {
		score *= TaskBoostMultiplier
		explanation = append(explanation, "task context boost")
	}
	if score > 1.0 {
		score = 1.0
	}
	return score, explanation
}
