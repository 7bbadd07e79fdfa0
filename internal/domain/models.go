package domain

import "time"

// RoomState is the lifecycle phase of a room.
type RoomState string

const (
	// StateLobby means no question is live; the host may start a round.
	StateLobby RoomState = "lobby"
	// StateRunning means a question is live and answers are accepted.
	StateRunning RoomState = "running"
	// StateBetween means the round was evaluated and the host must advance.
	StateBetween RoomState = "between"
	// StateFinished is terminal; the question cursor ran past the bank.
	StateFinished RoomState = "finished"
)

// QuestionType distinguishes multiple-choice from free-text questions.
type QuestionType string

const (
	QuestionMultiple QuestionType = "multiple"
	QuestionText     QuestionType = "text"
)

// Question is one immutable entry of a question bank.
// Multiple-choice questions carry Choices plus AnswerIndex; text questions
// carry AnswerText, which may be a comma-separated set of accepted tokens.
type Question struct {
	ID          int          `json:"id"`
	Title       string       `json:"title"`
	Text        string       `json:"text"`
	Type        QuestionType `json:"type"`
	Choices     []string     `json:"choices,omitempty"`
	AnswerIndex int          `json:"answerIndex,omitempty"`
	AnswerText  string       `json:"answerText,omitempty"`
}

// QuestionBank is an ordered, immutable list of questions.
type QuestionBank struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// QuestionView is the broadcast form of a question, stripped of the answer.
type QuestionView struct {
	ID      int          `json:"id"`
	Title   string       `json:"title"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Choices []string     `json:"choices,omitempty"`
}

// View returns the answer-free form sent to room members.
func (q Question) View() QuestionView {
	return QuestionView{ID: q.ID, Title: q.Title, Text: q.Text, Type: q.Type, Choices: q.Choices}
}

// Player is one participant inside a room, keyed by connection id.
type Player struct {
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"-"`
}

// Answer records one participant's submission for the current round.
// A second submission in the same round is rejected, never overwritten.
type Answer struct {
	Answer      string    `json:"answer"`
	Correct     bool      `json:"correct"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// RoomSnapshot is the full room view broadcast as room_update.
type RoomSnapshot struct {
	Code          string            `json:"code"`
	HostName      string            `json:"hostName"`
	State         RoomState         `json:"state"`
	QuestionIndex int               `json:"questionIndex"`
	Players       map[string]Player `json:"players"`
}

// PlayerResult is one line of a round or final result.
type PlayerResult struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Answered bool   `json:"answered"`
	Correct  bool   `json:"correct"`
}

// RoundResult is broadcast once per round when evaluation fires.
type RoundResult struct {
	QuestionIndex int            `json:"questionIndex"`
	Results       []PlayerResult `json:"results"`
	CorrectAnswer any            `json:"correctAnswer"`
}

// RoundProgress is broadcast after every recorded submission.
type RoundProgress struct {
	AnswersCount int               `json:"answersCount"`
	TotalPlayers int               `json:"totalPlayers"`
	Players      map[string]Player `json:"players"`
}

// TimerStart announces the server-owned deadline of a round.
// EndAt is a Unix-millisecond timestamp so clients can interpolate locally.
type TimerStart struct {
	Duration int   `json:"duration"`
	EndAt    int64 `json:"endAt"`
}

// TimerTick carries the server's authoritative remaining seconds.
type TimerTick struct {
	Remain int `json:"remain"`
}

// FinalStandings is broadcast once when the room reaches the finished state.
// Players are ordered by descending score.
type FinalStandings struct {
	Players []PlayerResult `json:"players"`
}
