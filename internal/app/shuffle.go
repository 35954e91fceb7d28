package app

import (
	"math/rand"

	"trivia-lobby-service/internal/domain"
)

// QuestionOrder fixes the lobby's question sequence at creation: the authored
// order, or one permutation drawn from rnd. The result is persisted with the
// lobby and never recomputed, so every observer sees the identical order.
func QuestionOrder(quiz domain.Quiz, shuffle bool, rnd *rand.Rand) []string {
	order := make([]string, len(quiz.Questions))
	for i := range quiz.Questions {
		order[i] = quiz.Questions[i].ID
	}
	if shuffle {
		rnd.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	return order
}
