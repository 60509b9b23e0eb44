package multiplayer

import (
	"bytes"
	"time"

	"github.com/goccy/go-json"
)

// MessageType is the "type" field of every frame.
type MessageType string

const (
	// Inbound.
	MsgPlayerJoin   MessageType = "PLAYER_JOIN"
	MsgPlayerLeave  MessageType = "PLAYER_LEAVE"
	MsgSearchMatch  MessageType = "SEARCH_MATCH"
	MsgCancelSearch MessageType = "CANCEL_SEARCH"
	MsgBattleAction MessageType = "BATTLE_ACTION"
	MsgSurrender    MessageType = "SURRENDER"
	MsgHeartbeat    MessageType = "HEARTBEAT"

	// Outbound only.
	MsgMatchFound    MessageType = "MATCH_FOUND"
	MsgBattleStart   MessageType = "BATTLE_START"
	MsgBattleEnd     MessageType = "BATTLE_END"
	MsgOnlinePlayers MessageType = "ONLINE_PLAYERS"
	MsgError         MessageType = "ERROR"
)

// Envelope is one frame on the wire.
type Envelope struct {
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// NewEnvelope stamps an outbound message with the current time in milliseconds.
func NewEnvelope(t MessageType, payload any) Envelope {
	return Envelope{Type: t, Payload: payload, Timestamp: time.Now().UnixMilli()}
}

// Encode serializes an envelope into a single text frame.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Inbound is a decoded and validated client message.
type Inbound interface {
	messageType() MessageType
}

// JoinRequest is a validated PLAYER_JOIN.
type JoinRequest struct {
	UserID PlayerID
	Pet    PetSnapshot
}

// LeaveRequest is a validated PLAYER_LEAVE.
type LeaveRequest struct {
	UserID PlayerID
}

// SearchRequest is a validated SEARCH_MATCH.
type SearchRequest struct {
	UserID PlayerID
	PetID  PetID
	Level  int
}

// CancelSearchRequest is a validated CANCEL_SEARCH.
type CancelSearchRequest struct {
	UserID PlayerID
}

// ActionRequest is a validated BATTLE_ACTION.
type ActionRequest struct {
	MatchID MatchID
	ActorID PlayerID
	Action  Action
}

// SurrenderRequest is a validated SURRENDER.
type SurrenderRequest struct {
	MatchID MatchID
}

// HeartbeatRequest is a HEARTBEAT; its payload is ignored.
type HeartbeatRequest struct{}

func (JoinRequest) messageType() MessageType         { return MsgPlayerJoin }
func (LeaveRequest) messageType() MessageType        { return MsgPlayerLeave }
func (SearchRequest) messageType() MessageType       { return MsgSearchMatch }
func (CancelSearchRequest) messageType() MessageType { return MsgCancelSearch }
func (ActionRequest) messageType() MessageType       { return MsgBattleAction }
func (SurrenderRequest) messageType() MessageType    { return MsgSurrender }
func (HeartbeatRequest) messageType() MessageType    { return MsgHeartbeat }

type rawEnvelope struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

type joinWire struct {
	UserID  *int64  `json:"userId"`
	PetID   *int64  `json:"petId"`
	PetName *string `json:"petName"`
	Level   *int    `json:"level"`
	HP      *int    `json:"hp"`
	MaxHP   *int    `json:"maxHp"`
}

type userWire struct {
	UserID *int64 `json:"userId"`
}

type searchWire struct {
	UserID *int64 `json:"userId"`
	PetID  *int64 `json:"petId"`
	Level  *int   `json:"level"`
}

type actionWire struct {
	MatchID    *string `json:"matchId"`
	ActorID    *int64  `json:"actorId"`
	ActionType *string `json:"actionType"`
	SkillID    *int64  `json:"skillId"`
	Damage     *int    `json:"damage"`
	IsCritical *bool   `json:"isCritical"`
	IsDodge    *bool   `json:"isDodge"`
}

type surrenderWire struct {
	MatchID *string `json:"matchId"`
}

// Decode parses one inbound frame into a typed request.
// The returned error is always a *ProtocolError.
func Decode(frame []byte) (Inbound, error) {
	var env rawEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, protocolErrorf(CodeParseError, "failed to parse message")
	}

	switch env.Type {
	case MsgPlayerJoin:
		var w joinWire
		if err := decodePayload(env.Payload, &w); err != nil {
			return nil, err
		}
		if w.UserID == nil || w.PetID == nil || w.PetName == nil || w.Level == nil || w.HP == nil || w.MaxHP == nil {
			return nil, protocolErrorf(CodeInvalidPayload, "PLAYER_JOIN requires userId, petId, petName, level, hp, maxHp")
		}
		return JoinRequest{
			UserID: PlayerID(*w.UserID),
			Pet: PetSnapshot{
				PetID:     PetID(*w.PetID),
				Name:      *w.PetName,
				Level:     *w.Level,
				Health:    *w.HP,
				MaxHealth: *w.MaxHP,
			},
		}, nil

	case MsgPlayerLeave, MsgCancelSearch:
		var w userWire
		if err := decodePayload(env.Payload, &w); err != nil {
			return nil, err
		}
		if w.UserID == nil {
			return nil, protocolErrorf(CodeInvalidPayload, "%s requires userId", env.Type)
		}
		if env.Type == MsgPlayerLeave {
			return LeaveRequest{UserID: PlayerID(*w.UserID)}, nil
		}
		return CancelSearchRequest{UserID: PlayerID(*w.UserID)}, nil

	case MsgSearchMatch:
		var w searchWire
		if err := decodePayload(env.Payload, &w); err != nil {
			return nil, err
		}
		if w.UserID == nil || w.PetID == nil || w.Level == nil {
			return nil, protocolErrorf(CodeInvalidPayload, "SEARCH_MATCH requires userId, petId, level")
		}
		return SearchRequest{UserID: PlayerID(*w.UserID), PetID: PetID(*w.PetID), Level: *w.Level}, nil

	case MsgBattleAction:
		var w actionWire
		if err := decodePayload(env.Payload, &w); err != nil {
			return nil, err
		}
		if w.MatchID == nil || w.ActorID == nil || w.ActionType == nil {
			return nil, protocolErrorf(CodeInvalidPayload, "BATTLE_ACTION requires matchId, actorId, actionType")
		}
		kind, err := ParseActionType(*w.ActionType)
		if err != nil {
			return nil, protocolErrorf(CodeInvalidPayload, "%v", err)
		}
		action := Action{
			Type:     kind,
			SkillID:  w.SkillID,
			Critical: w.IsCritical != nil && *w.IsCritical,
			Dodge:    w.IsDodge != nil && *w.IsDodge,
		}
		if w.Damage != nil {
			action.Damage = *w.Damage
		}
		return ActionRequest{MatchID: MatchID(*w.MatchID), ActorID: PlayerID(*w.ActorID), Action: action}, nil

	case MsgSurrender:
		var w surrenderWire
		if err := decodePayload(env.Payload, &w); err != nil {
			return nil, err
		}
		if w.MatchID == nil {
			return nil, protocolErrorf(CodeInvalidPayload, "SURRENDER requires matchId")
		}
		return SurrenderRequest{MatchID: MatchID(*w.MatchID)}, nil

	case MsgHeartbeat:
		return HeartbeatRequest{}, nil

	default:
		return nil, protocolErrorf(CodeUnknownType, "Unknown message type: %s", env.Type)
	}
}

func decodePayload(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return protocolErrorf(CodeInvalidPayload, "missing payload")
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return protocolErrorf(CodeInvalidPayload, "malformed payload")
	}
	return nil
}

// PlayerSummary describes a participant in MATCH_FOUND and BATTLE_START.
type PlayerSummary struct {
	UserID  PlayerID `json:"userId"`
	PetID   PetID    `json:"petId"`
	PetName string   `json:"petName"`
	Level   int      `json:"level"`
	HP      int      `json:"hp"`
	MaxHP   int      `json:"maxHp"`
}

// MatchFoundPayload is sent to each participant with the other side's summary.
type MatchFoundPayload struct {
	MatchID  MatchID       `json:"matchId"`
	Opponent PlayerSummary `json:"opponent"`
}

// BattleStartPayload is sent to both participants.
type BattleStartPayload struct {
	MatchID MatchID       `json:"matchId"`
	Player1 PlayerSummary `json:"player1"`
	Player2 PlayerSummary `json:"player2"`
}

// BattleActionPayload is the resolved action broadcast to both participants.
type BattleActionPayload struct {
	MatchID     MatchID    `json:"matchId"`
	ActorID     PlayerID   `json:"actorId"`
	TargetID    PlayerID   `json:"targetId"`
	ActionType  ActionType `json:"actionType"`
	SkillID     *int64     `json:"skillId,omitempty"`
	Damage      int        `json:"damage"`
	IsCritical  bool       `json:"isCritical"`
	IsDodge     bool       `json:"isDodge"`
	Turn        int        `json:"turn"`
	RemainingHP int        `json:"remainingHp"`
	Player1HP   int        `json:"player1Hp"`
	Player2HP   int        `json:"player2Hp"`
}

// BattleEndPayload is the terminal message of a session.
type BattleEndPayload struct {
	MatchID    MatchID    `json:"matchId"`
	WinnerID   PlayerID   `json:"winnerId"`
	LoserID    PlayerID   `json:"loserId"`
	GoldEarned int        `json:"goldEarned"`
	ExpEarned  int        `json:"expEarned"`
	Reason     string     `json:"reason"`
	BattleLog  []LogEntry `json:"battleLog"`
}

// OnlinePlayer is one row of the presence list.
type OnlinePlayer struct {
	UserID  PlayerID `json:"userId"`
	PetName string   `json:"petName"`
	Level   int      `json:"level"`
	Status  Status   `json:"status"`
}

// OnlinePlayersPayload is the presence signal broadcast to every connection.
type OnlinePlayersPayload struct {
	Count   int            `json:"count"`
	Players []OnlinePlayer `json:"players"`
}

// ErrorPayload is sent only to the offending connection.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// HeartbeatPayload answers a client HEARTBEAT.
type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}
