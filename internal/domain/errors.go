package domain

import "errors"

// Error messages are user-facing and surface verbatim in acknowledgements.
var (
	// ErrRoomNotFound is returned for unknown or stale room codes.
	ErrRoomNotFound = errors.New("Raum nicht gefunden")
	// ErrNotHost is returned when a non-host attempts a host-only action.
	ErrNotHost = errors.New("Nur Host")
	// ErrNoActiveRound is returned when submitting outside a running round.
	ErrNoActiveRound = errors.New("Kein laufendes Spiel")
	// ErrAlreadyAnswered is returned on a second submission in the same round.
	ErrAlreadyAnswered = errors.New("Schon geantwortet")
	// ErrNotParticipant is returned when a connection acts in a room it never joined.
	ErrNotParticipant = errors.New("Kein Mitspieler")
	// ErrRoundActive is returned when advancing while a round is still running.
	ErrRoundActive = errors.New("Runde läuft noch")
	// ErrGameFinished is returned when starting a round after the last question.
	ErrGameFinished = errors.New("Spiel ist beendet")
	// ErrBankNotFound indicates the question bank could not be loaded.
	ErrBankNotFound = errors.New("question bank not found")
	// ErrBankEmpty indicates a bank with no questions was supplied.
	ErrBankEmpty = errors.New("question bank is empty")
)
