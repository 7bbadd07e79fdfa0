package app

import (
	"sort"
	"strconv"
	"strings"

	"quizroom-service/internal/domain"
)

// gradeAnswer judges a raw submission against the active question.
// Malformed input is never an error, just an incorrect answer.
func gradeAnswer(q domain.Question, raw string) bool {
	if q.Type == domain.QuestionMultiple {
		idx, err := strconv.Atoi(strings.TrimSpace(raw))
		return err == nil && idx == q.AnswerIndex
	}

	got := normalizeAnswer(raw)
	want := normalizeAnswer(q.AnswerText)
	if strings.Contains(want, ",") {
		// Comma-separated expected values match as an unordered set.
		return canonicalSet(got) == canonicalSet(want)
	}
	return got == want
}

func normalizeAnswer(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// canonicalSet splits on commas, trims each token, and rejoins sorted so
// "4, 2" and "2,4" compare equal.
func canonicalSet(s string) string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
