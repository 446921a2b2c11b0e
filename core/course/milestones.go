package course

// Milestone thresholds, ascending. Crossing one triggers an automated
// email, at most once per (user, threshold).
var milestoneThresholds = []int{25, 50, 75, 100}

// crossedMilestones returns every threshold at or below percent, lowest
// first. A single bulk update that jumps several thresholds therefore
// yields one milestone per threshold crossed; the per-kind uniqueness
// check decides which of them still need an email.
func crossedMilestones(percent int) []int {
	var crossed []int
	for _, m := range milestoneThresholds {
		if percent >= m {
			crossed = append(crossed, m)
		}
	}
	return crossed
}
