package multiplayer

import "time"

// BattleState is the lifecycle state of a Battle. Active is the only
// state that accepts actions; Finished is terminal.
type BattleState int

const (
	BattleActive BattleState = iota
	BattleFinished
)

func (s BattleState) String() string {
	if s == BattleFinished {
		return "finished"
	}
	return "active"
}

// EndReason describes why a battle finished.
type EndReason int

const (
	EndReasonKnockout   EndReason = iota // Opponent health reached zero
	EndReasonSurrender                   // Participant surrendered
	EndReasonDisconnect                  // Participant disconnected or left
	EndReasonTimeout                     // Participant stopped answering liveness probes
)

func (r EndReason) String() string {
	switch r {
	case EndReasonKnockout:
		return "knockout"
	case EndReasonSurrender:
		return "surrender"
	case EndReasonDisconnect:
		return "disconnect"
	case EndReasonTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Action is one declared battle action. Damage is client-declared and clamped.
type Action struct {
	Type     ActionType
	SkillID  *int64
	Damage   int
	Critical bool
	Dodge    bool
}

// DamageLimits caps the damage accepted per action type.
// Types absent from the map deal no damage.
type DamageLimits map[ActionType]int

// Clamp bounds a declared damage to [0, limit].
func (l DamageLimits) Clamp(t ActionType, declared int) int {
	limit := l[t]
	return max(0, min(declared, limit))
}

// DefaultDamageLimits are the caps used when none are configured.
func DefaultDamageLimits() DamageLimits {
	return DamageLimits{
		ActionAttack: 100,
		ActionSkill:  200,
		ActionDefend: 0,
		ActionHeal:   0,
	}
}

// LogEntry is one resolved action in server arrival order.
type LogEntry struct {
	Round       int        `json:"round"`
	ActorID     PlayerID   `json:"actorId"`
	Action      ActionType `json:"action"`
	Damage      int        `json:"damage"`
	IsCritical  bool       `json:"isCritical"`
	IsDodge     bool       `json:"isDodge"`
	RemainingHP int        `json:"remainingHp"`
}

type participant struct {
	summary PlayerSummary
	health  int
	maxHP   int
}

// Resolution is the outcome of a successfully resolved action.
type Resolution struct {
	Entry    LogEntry
	TargetID PlayerID
	Health   [2]int // participant health in Participants() order
	Finished bool
}

// Battle is the authoritative state of one pairing.
// Not safe for concurrent use; the Coordinator serializes access.
type Battle struct {
	id        MatchID
	players   [2]participant
	limits    DamageLimits
	state     BattleState
	turn      int
	log       []LogEntry
	winner    PlayerID
	loser     PlayerID
	reason    EndReason
	startedAt time.Time
}

// NewBattle creates an active battle from the two players' join snapshots.
func NewBattle(id MatchID, p1, p2 *Player, limits DamageLimits) *Battle {
	if limits == nil {
		limits = DefaultDamageLimits()
	}
	b := &Battle{
		id:        id,
		limits:    limits,
		state:     BattleActive,
		turn:      1,
		startedAt: time.Now(),
	}
	for i, p := range []*Player{p1, p2} {
		pet := p.Pet.normalized()
		b.players[i] = participant{
			summary: p.Summary(),
			health:  pet.Health,
			maxHP:   pet.MaxHealth,
		}
	}
	// A participant that starts at zero health has already lost.
	for i := range b.players {
		if b.players[i].health == 0 {
			b.finish(b.players[1-i].summary.UserID, b.players[i].summary.UserID, EndReasonKnockout)
			break
		}
	}
	return b
}

// ID returns the match identifier.
func (b *Battle) ID() MatchID {
	return b.id
}

// Participants returns both player ids in pairing order.
func (b *Battle) Participants() [2]PlayerID {
	return [2]PlayerID{b.players[0].summary.UserID, b.players[1].summary.UserID}
}

// Has reports whether id is a participant.
func (b *Battle) Has(id PlayerID) bool {
	return b.index(id) >= 0
}

// Opponent returns the other participant's id.
func (b *Battle) Opponent(id PlayerID) (PlayerID, bool) {
	i := b.index(id)
	if i < 0 {
		return 0, false
	}
	return b.players[1-i].summary.UserID, true
}

// Health returns a participant's current health.
func (b *Battle) Health(id PlayerID) int {
	i := b.index(id)
	if i < 0 {
		return 0
	}
	return b.players[i].health
}

// State returns the lifecycle state.
func (b *Battle) State() BattleState {
	return b.state
}

// Finished reports whether the battle is over.
func (b *Battle) Finished() bool {
	return b.state == BattleFinished
}

// Turn returns the turn number the next action will be logged under.
func (b *Battle) Turn() int {
	return b.turn
}

// Outcome returns winner, loser and reason. Only meaningful once finished.
func (b *Battle) Outcome() (winner, loser PlayerID, reason EndReason) {
	return b.winner, b.loser, b.reason
}

// Log returns a copy of the resolved actions in arrival order.
func (b *Battle) Log() []LogEntry {
	out := make([]LogEntry, len(b.log))
	copy(out, b.log)
	return out
}

// Duration returns the time since the battle was created.
func (b *Battle) Duration() time.Duration {
	return time.Since(b.startedAt)
}

// StartPayload builds the BATTLE_START message.
func (b *Battle) StartPayload() BattleStartPayload {
	return BattleStartPayload{
		MatchID: b.id,
		Player1: b.summary(0),
		Player2: b.summary(1),
	}
}

// summary reports a participant with its current health.
func (b *Battle) summary(i int) PlayerSummary {
	s := b.players[i].summary
	s.HP = b.players[i].health
	s.MaxHP = b.players[i].maxHP
	return s
}

// ResolveAction applies a declared action against the actor's opponent.
// Realtime battles have no turn alternation: either side may act at any time.
// Rejections never mutate state.
func (b *Battle) ResolveAction(actor PlayerID, a Action) (Resolution, error) {
	if b.state == BattleFinished {
		return Resolution{}, ErrSessionFinished
	}
	i := b.index(actor)
	if i < 0 {
		return Resolution{}, ErrNotParticipant
	}

	target := &b.players[1-i]
	damage := b.limits.Clamp(a.Type, a.Damage)
	target.health = max(0, target.health-damage)

	entry := LogEntry{
		Round:       b.turn,
		ActorID:     actor,
		Action:      a.Type,
		Damage:      damage,
		IsCritical:  a.Critical,
		IsDodge:     a.Dodge,
		RemainingHP: target.health,
	}
	b.log = append(b.log, entry)
	b.turn++

	if target.health == 0 {
		b.finish(actor, target.summary.UserID, EndReasonKnockout)
	}

	return Resolution{
		Entry:    entry,
		TargetID: target.summary.UserID,
		Health:   [2]int{b.players[0].health, b.players[1].health},
		Finished: b.state == BattleFinished,
	}, nil
}

// Forfeit ends the battle with the other participant as winner, regardless of health.
func (b *Battle) Forfeit(loser PlayerID, reason EndReason) error {
	if b.state == BattleFinished {
		return ErrSessionFinished
	}
	winner, ok := b.Opponent(loser)
	if !ok {
		return ErrNotParticipant
	}
	b.finish(winner, loser, reason)
	return nil
}

func (b *Battle) finish(winner, loser PlayerID, reason EndReason) {
	b.state = BattleFinished
	b.winner = winner
	b.loser = loser
	b.reason = reason
}

func (b *Battle) index(id PlayerID) int {
	for i := range b.players {
		if b.players[i].summary.UserID == id {
			return i
		}
	}
	return -1
}

// Reward is what the winner earns from a finished battle.
type Reward struct {
	Gold int
	Exp  int
}

// RewardPolicy computes rewards for a finished battle.
type RewardPolicy func(winner, loser PlayerID) Reward

// FlatRewards returns a policy that grants the same reward for every win.
func FlatRewards(gold, exp int) RewardPolicy {
	return func(PlayerID, PlayerID) Reward {
		return Reward{Gold: gold, Exp: exp}
	}
}
