package app

import (
	"math"
	"sort"
	"sync"
	"time"

	"quizroom-service/internal/domain"
)

// Event is one server-to-room broadcast message.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const (
	EventRoomUpdate   = "room_update"
	EventQuestion     = "question"
	EventTimerStart   = "timer_start"
	EventTimerTick    = "timer_tick"
	EventRoundUpdate  = "round_update"
	EventRoundResult  = "round_result"
	EventGameFinished = "game_finished"
	EventRoomClosed   = "room_closed"
)

// questionEvent pairs the cursor with the answer-free question view.
type questionEvent struct {
	Index    int                 `json:"index"`
	Question domain.QuestionView `json:"question"`
}

// roundTimer is the cancellable handle for one round's countdown goroutine.
// Stop is idempotent; stopping an already-fired timer is a no-op.
type roundTimer struct {
	stop chan struct{}
	once sync.Once
}

func (t *roundTimer) Stop() {
	t.once.Do(func() { close(t.stop) })
}

// Room is one isolated game session. All mutation happens under mu; the
// round counter plus the state field guard round evaluation so it fires
// exactly once per round, whether the timer or full participation wins.
type Room struct {
	code     string
	hostID   string
	hostName string
	bank     domain.QuestionBank

	now            func() time.Time
	tickInterval   time.Duration
	defaultSeconds int

	mu            sync.Mutex
	state         domain.RoomState
	questionIndex int
	players       map[string]*domain.Player
	joinOrder     []string
	answers       map[string]*domain.Answer
	round         uint64
	timer         *roundTimer
	deadline      time.Time
	closed        bool
	subscribers   map[chan Event]struct{}
}

func newRoom(code, hostID, hostName string, bank domain.QuestionBank, defaultSeconds int, tickInterval time.Duration, now func() time.Time) *Room {
	return &Room{
		code:           code,
		hostID:         hostID,
		hostName:       hostName,
		bank:           bank,
		now:            now,
		tickInterval:   tickInterval,
		defaultSeconds: defaultSeconds,
		state:          domain.StateLobby,
		players:        make(map[string]*domain.Player),
		answers:        make(map[string]*domain.Answer),
		subscribers:    make(map[chan Event]struct{}),
	}
}

// Code returns the room's join code.
func (r *Room) Code() string {
	return r.code
}

// HostID returns the connection identity that created the room.
func (r *Room) HostID() string {
	return r.hostID
}

func (r *Room) join(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[id]; !ok {
		r.players[id] = &domain.Player{Name: name, JoinedAt: r.now()}
		r.joinOrder = append(r.joinOrder, id)
	} else {
		r.players[id].Name = name
	}
	r.broadcastLocked(Event{Type: EventRoomUpdate, Payload: r.snapshotLocked()})
}

// removeMember drops a participant and their pending answer. If the round is
// running and everyone still present has answered, the round completes now
// instead of waiting out the timer.
func (r *Room) removeMember(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[id]; !ok {
		return
	}
	delete(r.players, id)
	delete(r.answers, id)
	for i, pid := range r.joinOrder {
		if pid == id {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			break
		}
	}
	r.broadcastLocked(Event{Type: EventRoomUpdate, Payload: r.snapshotLocked()})

	if r.state == domain.StateRunning && len(r.players) > 0 && len(r.answers) >= len(r.players) {
		r.finishRoundLocked()
	}
}

func (r *Room) startRound(callerID string, seconds int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if callerID != r.hostID {
		return domain.ErrNotHost
	}
	switch r.state {
	case domain.StateRunning:
		return domain.ErrRoundActive
	case domain.StateFinished:
		return domain.ErrGameFinished
	}
	if r.questionIndex >= len(r.bank.Questions) {
		return domain.ErrGameFinished
	}

	if seconds <= 0 {
		seconds = r.defaultSeconds
	}

	r.stopTimerLocked()
	r.state = domain.StateRunning
	r.answers = make(map[string]*domain.Answer)
	r.round++

	q := r.bank.Questions[r.questionIndex]
	r.broadcastLocked(Event{Type: EventQuestion, Payload: questionEvent{Index: r.questionIndex, Question: q.View()}})

	r.deadline = r.now().Add(time.Duration(seconds) * time.Second)
	r.broadcastLocked(Event{Type: EventTimerStart, Payload: domain.TimerStart{
		Duration: seconds,
		EndAt:    r.deadline.UnixMilli(),
	}})

	r.timer = &roundTimer{stop: make(chan struct{})}
	if r.tickInterval > 0 {
		go r.runTimer(r.timer, r.round)
	}
	return nil
}

// runTimer drives the countdown for one round. It exits when the round it
// was started for is no longer the live running round.
func (r *Room) runTimer(t *roundTimer, round uint64) {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if r.timerTick(round) {
				return
			}
		}
	}
}

// timerTick broadcasts the authoritative remaining seconds and finishes the
// round once the deadline passes. It reports whether the driver should stop.
// The (state, round) check makes it safe against a tick racing the
// all-answered completion path: whichever transition happens first wins.
func (r *Room) timerTick(round uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateRunning || r.round != round {
		return true
	}

	remain := int(math.Ceil(r.deadline.Sub(r.now()).Seconds()))
	if remain < 0 {
		remain = 0
	}
	r.broadcastLocked(Event{Type: EventTimerTick, Payload: domain.TimerTick{Remain: remain}})

	if remain <= 0 {
		r.finishRoundLocked()
		return true
	}
	return false
}

func (r *Room) submitAnswer(callerID, raw string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateRunning {
		return false, domain.ErrNoActiveRound
	}
	player, ok := r.players[callerID]
	if !ok {
		return false, domain.ErrNotParticipant
	}
	if _, ok := r.answers[callerID]; ok {
		return false, domain.ErrAlreadyAnswered
	}

	q := r.bank.Questions[r.questionIndex]
	correct := gradeAnswer(q, raw)
	r.answers[callerID] = &domain.Answer{Answer: raw, Correct: correct, SubmittedAt: r.now()}

	if correct {
		player.Score += 10
		if r.correctCountLocked() == 1 {
			player.Score += 5
		}
	}

	r.broadcastLocked(Event{Type: EventRoundUpdate, Payload: domain.RoundProgress{
		AnswersCount: len(r.answers),
		TotalPlayers: len(r.players),
		Players:      r.playersCopyLocked(),
	}})

	if len(r.answers) >= len(r.players) {
		r.finishRoundLocked()
	}
	return correct, nil
}

func (r *Room) correctCountLocked() int {
	n := 0
	for _, a := range r.answers {
		if a.Correct {
			n++
		}
	}
	return n
}

// finishRoundLocked is the single transition out of running. The state guard
// means the timer path and the all-answered path can both call it, but only
// the first caller evaluates the round.
func (r *Room) finishRoundLocked() {
	if r.state != domain.StateRunning {
		return
	}
	r.state = domain.StateBetween
	r.stopTimerLocked()

	q := r.bank.Questions[r.questionIndex]
	var correctAnswer any = q.AnswerText
	if q.Type == domain.QuestionMultiple {
		correctAnswer = q.AnswerIndex
	}

	r.broadcastLocked(Event{Type: EventRoundResult, Payload: domain.RoundResult{
		QuestionIndex: r.questionIndex,
		Results:       r.resultsLocked(),
		CorrectAnswer: correctAnswer,
	}})
	r.broadcastLocked(Event{Type: EventRoomUpdate, Payload: r.snapshotLocked()})
}

func (r *Room) nextQuestion(callerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if callerID != r.hostID {
		return domain.ErrNotHost
	}
	switch r.state {
	case domain.StateRunning:
		return domain.ErrRoundActive
	case domain.StateFinished:
		return domain.ErrGameFinished
	}

	r.questionIndex++
	if r.questionIndex >= len(r.bank.Questions) {
		r.state = domain.StateFinished
		r.stopTimerLocked()
		r.broadcastLocked(Event{Type: EventGameFinished, Payload: domain.FinalStandings{Players: r.standingsLocked()}})
		return nil
	}
	r.state = domain.StateLobby
	r.broadcastLocked(Event{Type: EventRoomUpdate, Payload: r.snapshotLocked()})
	return nil
}

// close tears the room down: timer cancelled, members notified, subscriber
// channels closed. Safe to call once; the registry removes the room after.
func (r *Room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.stopTimerLocked()
	r.broadcastLocked(Event{Type: EventRoomClosed, Payload: struct{}{}})
	for ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = make(map[chan Event]struct{})
}

func (r *Room) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// subscribe registers an event channel for one room member. The first event
// delivered is the current room snapshot. The cancel function is safe to
// call after the room closed the channel itself.
func (r *Room) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	r.subscribers[ch] = struct{}{}
	// Send the snapshot before releasing the lock: the channel is fresh and
	// buffered so this cannot block, and a concurrent close() cannot close
	// the channel underneath the send.
	ch <- Event{Type: EventRoomUpdate, Payload: r.snapshotLocked()}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Room) broadcastLocked(ev Event) {
	for ch := range r.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow consumer: drop its oldest event rather than block the room.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func (r *Room) snapshotLocked() domain.RoomSnapshot {
	return domain.RoomSnapshot{
		Code:          r.code,
		HostName:      r.hostName,
		State:         r.state,
		QuestionIndex: r.questionIndex,
		Players:       r.playersCopyLocked(),
	}
}

func (r *Room) playersCopyLocked() map[string]domain.Player {
	players := make(map[string]domain.Player, len(r.players))
	for id, p := range r.players {
		players[id] = *p
	}
	return players
}

// resultsLocked lists per-player round outcomes in join order.
func (r *Room) resultsLocked() []domain.PlayerResult {
	results := make([]domain.PlayerResult, 0, len(r.players))
	for _, id := range r.joinOrder {
		p, ok := r.players[id]
		if !ok {
			continue
		}
		result := domain.PlayerResult{ID: id, Name: p.Name, Score: p.Score}
		if a, ok := r.answers[id]; ok {
			result.Answered = true
			result.Correct = a.Correct
		}
		results = append(results, result)
	}
	return results
}

// standingsLocked is the final ranking: score descending, ties by join order.
func (r *Room) standingsLocked() []domain.PlayerResult {
	standings := r.resultsLocked()
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Score > standings[j].Score
	})
	return standings
}
