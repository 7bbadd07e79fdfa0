package app

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"quizroom-service/internal/domain"
)

// RoomRegistry abstracts how live rooms are stored (in-memory, Redis-marked, etc).
type RoomRegistry interface {
	// PutIfAbsent reserves a code for a room, reporting whether it was free.
	PutIfAbsent(code string, room *Room) bool
	Get(code string) (*Room, bool)
	Remove(code string)
}

// BankRepository loads question banks (from cache/backing store).
type BankRepository interface {
	GetBank(ctx context.Context, bankID string) (domain.QuestionBank, error)
}

// Options tunes the game loop. Zero values fall back to sensible defaults.
// A negative TickInterval disables the background countdown driver so tests
// can feed ticks synthetically.
type Options struct {
	DefaultBank         string
	DefaultRoundSeconds int
	TickInterval        time.Duration
	CodeLength          int
	Clock               func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DefaultBank == "" {
		o.DefaultBank = "default"
	}
	if o.DefaultRoundSeconds <= 0 {
		o.DefaultRoundSeconds = 30
	}
	if o.TickInterval == 0 {
		o.TickInterval = 500 * time.Millisecond
	}
	if o.CodeLength <= 0 {
		o.CodeLength = 5
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// RoomService contains the room lifecycle use cases and tracks which room
// each connection belongs to, so a dropped connection can be cleaned up.
type RoomService struct {
	registry RoomRegistry
	banks    BankRepository
	opts     Options

	mu    sync.Mutex
	conns map[string]string // connection id -> room code
}

func NewRoomService(registry RoomRegistry, banks BankRepository, opts Options) *RoomService {
	return &RoomService{
		registry: registry,
		banks:    banks,
		opts:     opts.withDefaults(),
		conns:    make(map[string]string),
	}
}

// codeAlphabet avoids easily confused characters (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const maxCodeAttempts = 32

// newRoomCode draws a short human-typeable code via rejection sampling so
// every alphabet character is equally likely.
func newRoomCode(n int) string {
	max := byte(255 - (256 % len(codeAlphabet)))
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for {
		if _, err := crand.Read(buf); err != nil {
			panic(err)
		}
		for _, b := range buf {
			if b <= max {
				out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}
}

// CreateRoom allocates a collision-free code, creates the room in the lobby
// state, and attaches the creator as host. The host is not a player.
func (s *RoomService) CreateRoom(ctx context.Context, connID, hostName, bankID string) (string, error) {
	if bankID == "" {
		bankID = s.opts.DefaultBank
	}
	bank, err := s.banks.GetBank(ctx, bankID)
	if err != nil {
		return "", err
	}
	if len(bank.Questions) == 0 {
		return "", domain.ErrBankEmpty
	}

	name := sanitizeName(hostName, "Host")
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := newRoomCode(s.opts.CodeLength)
		room := newRoom(code, connID, name, bank, s.opts.DefaultRoundSeconds, s.opts.TickInterval, s.opts.Clock)
		if !s.registry.PutIfAbsent(code, room) {
			continue
		}
		s.attach(connID, code)
		return code, nil
	}
	return "", fmt.Errorf("no free room code after %d attempts", maxCodeAttempts)
}

// JoinRoom adds a connection to an existing room as a player.
func (s *RoomService) JoinRoom(connID, code, name string) error {
	room, ok := s.registry.Get(code)
	if !ok {
		return domain.ErrRoomNotFound
	}
	s.attach(connID, code)
	room.join(connID, sanitizeName(name, "Spieler"))
	return nil
}

// StartRound begins the current question's round. Host-only.
func (s *RoomService) StartRound(connID, code string, seconds int) error {
	room, ok := s.registry.Get(code)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return room.startRound(connID, seconds)
}

// SubmitAnswer grades and records one submission for the running round.
func (s *RoomService) SubmitAnswer(connID, code, answer string) (bool, error) {
	room, ok := s.registry.Get(code)
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	return room.submitAnswer(connID, answer)
}

// NextQuestion advances the cursor, finishing the game past the last one. Host-only.
func (s *RoomService) NextQuestion(connID, code string) error {
	room, ok := s.registry.Get(code)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return room.nextQuestion(connID)
}

// Subscribe returns the room's event channel, primed with a snapshot.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *RoomService) Subscribe(code string) (<-chan Event, func(), error) {
	room, ok := s.registry.Get(code)
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	ch, cancel := room.subscribe()
	return ch, cancel, nil
}

// Disconnect detaches a connection from its room. A player leaving shrinks
// the room; the host leaving destroys it with no hand-off.
func (s *RoomService) Disconnect(connID string) {
	s.mu.Lock()
	code, ok := s.conns[connID]
	delete(s.conns, connID)
	s.mu.Unlock()
	if !ok {
		return
	}

	room, found := s.registry.Get(code)
	if !found {
		return
	}
	if room.HostID() == connID {
		room.close()
		s.registry.Remove(code)
		s.detachRoom(code)
		return
	}
	room.removeMember(connID)
}

// attach maps a connection to a room, detaching it from any previous one first.
func (s *RoomService) attach(connID, code string) {
	s.mu.Lock()
	prev, ok := s.conns[connID]
	s.conns[connID] = code
	s.mu.Unlock()

	if ok && prev != code {
		if room, found := s.registry.Get(prev); found {
			if room.HostID() == connID {
				room.close()
				s.registry.Remove(prev)
				s.detachRoom(prev)
			} else {
				room.removeMember(connID)
			}
		}
	}
}

// detachRoom clears membership entries left behind by a destroyed room.
func (s *RoomService) detachRoom(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.conns {
		if c == code {
			delete(s.conns, id)
		}
	}
}

// sanitizeName trims, caps, and HTML-escapes a display name before it is
// ever rendered to other room members.
func sanitizeName(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	runes := []rune(name)
	if len(runes) > 32 {
		name = string(runes[:32])
	}
	return html.EscapeString(name)
}
