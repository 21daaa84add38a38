package episode

import "strings"

// Importance weights. Pending golden-transcript calibration (see
// DESIGN.md's Open Question note); these are a reasonable starting
// split that favors breadth of participation over raw volume.
const (
	weightParticipants = 0.35
	weightMessageCount = 0.25
	weightReactions    = 0.15
	weightQuestions    = 0.25

	// normParticipants/normMessages saturate the respective sub-scores
	// at 1.0 once a window is "clearly" busy on that axis.
	normParticipants = 6.0
	normMessages     = 40.0
)

// scoreImportance maps a window's shape to [0,1] per §4.5.
func scoreImportance(w *Window) float64 {
	participantScore := clamp01(float64(len(w.Participants)) / normParticipants)
	messageScore := clamp01(float64(len(w.Messages)) / normMessages)

	reactions := 0
	questions := 0
	for _, msg := range w.Messages {
		if msg.HasReaction {
			reactions++
		}
		if strings.Contains(msg.Text, "?") {
			questions++
		}
	}
	reactionScore := clamp01(float64(reactions) / float64(max1(len(w.Messages))))
	questionScore := clamp01(float64(questions) / float64(max1(len(w.Messages))))

	return weightParticipants*participantScore +
		weightMessageCount*messageScore +
		weightReactions*reactionScore +
		weightQuestions*questionScore
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
