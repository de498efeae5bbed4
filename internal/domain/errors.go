package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no room matches the id or join code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidRoomSettings is returned when create settings are out of range.
	ErrInvalidRoomSettings = errors.New("invalid room settings")
	// ErrGameAlreadyStarted is returned when the room is no longer accepting the operation.
	ErrGameAlreadyStarted = errors.New("game already started")
	// ErrRoomFull is returned when the room reached its max player count.
	ErrRoomFull = errors.New("room is full")
	// ErrInvalidPassword is returned when a private room password does not match.
	ErrInvalidPassword = errors.New("invalid room password")
	// ErrCodeGenerationExhausted is returned when no unique join code could be found.
	ErrCodeGenerationExhausted = errors.New("could not generate a unique room code")
	// ErrHostCannotToggle is returned when the host tries to toggle ready state.
	ErrHostCannotToggle = errors.New("host is always ready")
	// ErrNotHost is returned when a host-only operation is attempted by a guest.
	ErrNotHost = errors.New("only the host can do that")
	// ErrNotAllPlayersReady is returned when the game is started before everyone is ready.
	ErrNotAllPlayersReady = errors.New("not all players are ready")
	// ErrPlayerNotFound is returned when the player is not a member of the room.
	ErrPlayerNotFound = errors.New("player not found in room")

	// ErrQuizNotFound indicates the quiz definition could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizHasNoQuestions indicates a quiz definition with an empty question list.
	ErrQuizHasNoQuestions = errors.New("quiz has no questions")

	// ErrSessionNotFound is returned when no game session exists for the room.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrGameNotFinished is returned when final results are requested mid-game.
	ErrGameNotFinished = errors.New("game not finished")
	// ErrNoCurrentQuestion is returned when an answer arrives outside a question window.
	ErrNoCurrentQuestion = errors.New("no question is currently active")
	// ErrAlreadyAnswered is returned on a duplicate submission for the current question.
	ErrAlreadyAnswered = errors.New("answer already submitted for this question")
	// ErrInvalidAnswerFormat is returned when the raw answer is not a valid option index.
	ErrInvalidAnswerFormat = errors.New("invalid answer format")
	// ErrAnsweredBeforeQuestion is returned when the submission predates the question.
	ErrAnsweredBeforeQuestion = errors.New("answer submitted before question started")
	// ErrAnswerTooLate is returned when the submission is outside the timing window.
	ErrAnswerTooLate = errors.New("answer submitted too late")
)
