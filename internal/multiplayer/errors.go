package multiplayer

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable code carried by an ERROR message.
type ErrorCode string

const (
	CodeParseError      ErrorCode = "PARSE_ERROR"
	CodeUnknownType     ErrorCode = "UNKNOWN_TYPE"
	CodeInvalidPayload  ErrorCode = "INVALID_PAYLOAD"
	CodeNotJoined       ErrorCode = "NOT_JOINED"
	CodeNotAuthorized   ErrorCode = "NOT_AUTHORIZED"
	CodeNotInBattle     ErrorCode = "NOT_IN_BATTLE"
	CodeMatchMismatch   ErrorCode = "MATCH_MISMATCH"
	CodeSessionFinished ErrorCode = "SESSION_FINISHED"
	CodeNotParticipant  ErrorCode = "NOT_PARTICIPANT"
	CodeAlreadyInBattle ErrorCode = "ALREADY_IN_BATTLE"
	CodePetFainted      ErrorCode = "PET_FAINTED"
	CodeInvalidState    ErrorCode = "INVALID_STATE"
	CodeInternal        ErrorCode = "INTERNAL"
)

// State errors. None of them mutate shared state when returned.
var (
	ErrSessionFinished   = errors.New("battle session already finished")
	ErrNotParticipant    = errors.New("player is not a participant of this session")
	ErrAlreadyBattling   = errors.New("player is already in a battle")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownPlayer     = errors.New("unknown player")
	ErrNotInBattle       = errors.New("player is not in a battle")
	ErrMatchMismatch     = errors.New("match id does not match the player's session")
	ErrNotJoined         = errors.New("connection has not joined")
	ErrNotAuthorized     = errors.New("player id does not match the connection")
	ErrPetFainted        = errors.New("pet has no health left")
)

// ProtocolError reports a malformed or unrecognized inbound message.
type ProtocolError struct {
	Code    ErrorCode
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func protocolErrorf(code ErrorCode, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf maps an error to the stable code reported to clients.
func CodeOf(err error) ErrorCode {
	var pe *ProtocolError
	switch {
	case errors.As(err, &pe):
		return pe.Code
	case errors.Is(err, ErrSessionFinished):
		return CodeSessionFinished
	case errors.Is(err, ErrNotParticipant):
		return CodeNotParticipant
	case errors.Is(err, ErrAlreadyBattling):
		return CodeAlreadyInBattle
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidState
	case errors.Is(err, ErrNotInBattle):
		return CodeNotInBattle
	case errors.Is(err, ErrMatchMismatch):
		return CodeMatchMismatch
	case errors.Is(err, ErrNotJoined), errors.Is(err, ErrUnknownPlayer):
		return CodeNotJoined
	case errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrPetNotOwned):
		return CodeNotAuthorized
	case errors.Is(err, ErrPetFainted):
		return CodePetFainted
	default:
		return CodeInternal
	}
}
