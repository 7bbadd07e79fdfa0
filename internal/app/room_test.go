package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"quizroom-service/internal/domain"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// newTestRoom builds a room with a synthetic clock and no background timer
// driver; tests feed ticks through timerTick directly.
func newTestRoom(clock *fakeClock, questions ...domain.Question) *Room {
	bank := domain.QuestionBank{ID: "test", Questions: questions}
	return newRoom("ABCDE", "host-1", "Host", bank, 30, -1, clock.Now)
}

func multipleQuestion() domain.Question {
	return domain.Question{ID: 0, Title: "Q", Text: "?", Type: domain.QuestionMultiple, Choices: []string{"a", "b"}, AnswerIndex: 1}
}

func drainEvents(ch <-chan Event) []Event {
	var events []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func countEvents(events []Event, eventType string) int {
	n := 0
	for _, ev := range events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func TestTimerExpiryEvaluatesExactlyOnce(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(clock, multipleQuestion())
	room.join("p1", "Max")

	events, cancel := room.subscribe()
	defer cancel()

	if err := room.startRound("host-1", 30); err != nil {
		t.Fatalf("start round: %v", err)
	}
	round := room.round

	clock.Advance(31 * time.Second)
	if done := room.timerTick(round); !done {
		t.Fatalf("expected tick past deadline to stop the driver")
	}
	// A straggling tick for the same round must not evaluate again.
	if done := room.timerTick(round); !done {
		t.Fatalf("expected stale tick to be a no-op stop")
	}

	got := drainEvents(events)
	if n := countEvents(got, EventRoundResult); n != 1 {
		t.Fatalf("expected exactly one round_result, got %d", n)
	}
	if room.state != domain.StateBetween {
		t.Fatalf("expected between state, got %s", room.state)
	}
}

func TestAllAnsweredBeatsTimer(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(clock, multipleQuestion())
	room.join("p1", "Max")

	events, cancel := room.subscribe()
	defer cancel()

	if err := room.startRound("host-1", 30); err != nil {
		t.Fatalf("start round: %v", err)
	}
	round := room.round

	correct, err := room.submitAnswer("p1", "1")
	if err != nil || !correct {
		t.Fatalf("expected correct submission, got correct=%v err=%v", correct, err)
	}
	if room.state != domain.StateBetween {
		t.Fatalf("expected full participation to end the round, state=%s", room.state)
	}

	// The timer goroutine losing the race must not re-evaluate.
	clock.Advance(time.Minute)
	if done := room.timerTick(round); !done {
		t.Fatalf("expected tick after completion to stop")
	}

	got := drainEvents(events)
	if n := countEvents(got, EventRoundResult); n != 1 {
		t.Fatalf("expected exactly one round_result, got %d", n)
	}
}

func TestTimerTickBroadcastsCeilingSeconds(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(clock, multipleQuestion())
	room.join("p1", "Max")

	events, cancel := room.subscribe()
	defer cancel()

	if err := room.startRound("host-1", 30); err != nil {
		t.Fatalf("start round: %v", err)
	}
	drainEvents(events)

	clock.Advance(2500 * time.Millisecond)
	if done := room.timerTick(room.round); done {
		t.Fatalf("expected round to keep running")
	}

	got := drainEvents(events)
	if n := len(got); n != 1 {
		t.Fatalf("expected one tick event, got %d", n)
	}
	tick, ok := got[0].Payload.(domain.TimerTick)
	if !ok || tick.Remain != 28 {
		t.Fatalf("expected remain 28 (ceiling of 27.5s), got %+v", got[0].Payload)
	}
}

func TestAnswersResetOnStartRound(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(clock, multipleQuestion(), multipleQuestion())
	room.join("p1", "Max")

	if err := room.startRound("host-1", 30); err != nil {
		t.Fatalf("start round: %v", err)
	}
	if _, err := room.submitAnswer("p1", "0"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := room.nextQuestion("host-1"); err != nil {
		t.Fatalf("next question: %v", err)
	}
	if err := room.startRound("host-1", 30); err != nil {
		t.Fatalf("second start round: %v", err)
	}
	if len(room.answers) != 0 {
		t.Fatalf("expected answers cleared at round start, got %d", len(room.answers))
	}
	if _, err := room.submitAnswer("p1", "1"); err != nil {
		t.Fatalf("expected fresh submission after reset: %v", err)
	}
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(clock, multipleQuestion())
	room.join("p1", "Max")
	room.join("p2", "Mia")

	if err := room.startRound("host-1", 30); err != nil {
		t.Fatalf("start round: %v", err)
	}
	if _, err := room.submitAnswer("p1", "1"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := room.submitAnswer("p1", "0"); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if room.players["p1"].Score != 15 {
		t.Fatalf("expected first submission to stand with 15 points, got %d", room.players["p1"].Score)
	}
	if room.answers["p1"].Answer != "1" {
		t.Fatalf("expected recorded answer %q, got %q", "1", room.answers["p1"].Answer)
	}
}

func TestFirstCorrectBonusGoesToEarliestCorrect(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(clock, multipleQuestion())
	room.join("p1", "Max")
	room.join("p2", "Mia")
	room.join("p3", "Tom")

	if err := room.startRound("host-1", 30); err != nil {
		t.Fatalf("start round: %v", err)
	}

	// An incorrect answer arriving first must not soak up the bonus.
	if _, err := room.submitAnswer("p1", "0"); err != nil {
		t.Fatalf("submit p1: %v", err)
	}
	clock.Advance(time.Second)
	if _, err := room.submitAnswer("p2", "1"); err != nil {
		t.Fatalf("submit p2: %v", err)
	}
	clock.Advance(time.Second)
	if _, err := room.submitAnswer("p3", "1"); err != nil {
		t.Fatalf("submit p3: %v", err)
	}

	if got := room.players["p1"].Score; got != 0 {
		t.Errorf("p1 score = %d, want 0", got)
	}
	if got := room.players["p2"].Score; got != 15 {
		t.Errorf("p2 score = %d, want 15 (base + first-correct bonus)", got)
	}
	if got := room.players["p3"].Score; got != 10 {
		t.Errorf("p3 score = %d, want 10", got)
	}
}

func TestSubscribeDuringCloseDoesNotPanic(t *testing.T) {
	clock := newFakeClock()

	// A member subscribing while the host teardown closes the room must
	// never send on a channel the teardown already closed.
	for i := 0; i < 2000; i++ {
		room := newTestRoom(clock, multipleQuestion())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			events, cancel := room.subscribe()
			drainEvents(events)
			cancel()
		}()
		go func() {
			defer wg.Done()
			room.close()
		}()
		wg.Wait()
	}
}

func TestHostActionsRejectedWhileRunning(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(clock, multipleQuestion(), multipleQuestion())
	room.join("p1", "Max")

	if err := room.startRound("host-1", 30); err != nil {
		t.Fatalf("start round: %v", err)
	}
	timer := room.timer

	if err := room.startRound("host-1", 30); !errors.Is(err, domain.ErrRoundActive) {
		t.Fatalf("expected state conflict on start_round mid-round, got %v", err)
	}
	if err := room.nextQuestion("host-1"); !errors.Is(err, domain.ErrRoundActive) {
		t.Fatalf("expected state conflict on next_question mid-round, got %v", err)
	}

	if room.state != domain.StateRunning {
		t.Fatalf("expected round still running, state=%s", room.state)
	}
	if room.questionIndex != 0 {
		t.Fatalf("expected cursor untouched, got %d", room.questionIndex)
	}
	if room.round != 1 {
		t.Fatalf("expected no new round started, got %d", room.round)
	}
	if room.timer != timer {
		t.Fatalf("expected the live timer to survive rejected host actions")
	}
}

func TestNonMemberCannotSubmit(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(clock, multipleQuestion())
	room.join("p1", "Max")

	if err := room.startRound("host-1", 30); err != nil {
		t.Fatalf("start round: %v", err)
	}
	if _, err := room.submitAnswer("ghost", "1"); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("expected non-member rejection, got %v", err)
	}
	if len(room.answers) != 0 {
		t.Fatalf("expected no answer recorded, got %d", len(room.answers))
	}
	if room.state != domain.StateRunning {
		t.Fatalf("expected round unaffected, state=%s", room.state)
	}
}

func TestMemberRemovalCompletesRound(t *testing.T) {
	clock := newFakeClock()
	room := newTestRoom(clock, multipleQuestion())
	room.join("p1", "Max")
	room.join("p2", "Mia")

	if err := room.startRound("host-1", 30); err != nil {
		t.Fatalf("start round: %v", err)
	}
	if _, err := room.submitAnswer("p1", "1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if room.state != domain.StateRunning {
		t.Fatalf("expected round still running with one answer outstanding")
	}

	room.removeMember("p2")
	if room.state != domain.StateBetween {
		t.Fatalf("expected round to finish once only answered players remain, state=%s", room.state)
	}
}
