package multiplayer

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// CoordinatorConfig holds configuration for the coordinator.
type CoordinatorConfig struct {
	DamageLimits     DamageLimits  // Per action type damage caps
	Rewards          RewardPolicy  // Reward for the winner of a finished battle
	BattleStartDelay time.Duration // Delay between MATCH_FOUND and BATTLE_START
	LivenessInterval time.Duration // How often every connection is probed
	MaxMissedProbes  int           // Consecutive unanswered probes before teardown
	SaveTimeout      time.Duration // Bound on one store call
}

// DefaultCoordinatorConfig returns sensible defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		DamageLimits:     DefaultDamageLimits(),
		Rewards:          FlatRewards(100, 50),
		BattleStartDelay: time.Second,
		LivenessInterval: 30 * time.Second,
		MaxMissedProbes:  2,
		SaveTimeout:      5 * time.Second,
	}
}

// Coordinator owns the registry, the matchmaking queue and the active battles.
// All three are mutated under one lock because the at-most-one-queue-entry and
// at-most-one-session invariants span them.
type Coordinator struct {
	config  CoordinatorConfig
	logger  *log.Logger
	pets    PetStore    // Optional, can be nil
	results ResultSaver // Optional, can be nil

	mu       sync.Mutex
	registry *Registry
	queue    *Queue
	battles  map[MatchID]*Battle

	liveness *LivenessMonitor
	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
	saves    sync.WaitGroup
}

// NewCoordinator creates a new coordinator. A nil logger discards output.
func NewCoordinator(cfg CoordinatorConfig, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if cfg.DamageLimits == nil {
		cfg.DamageLimits = DefaultDamageLimits()
	}
	if cfg.Rewards == nil {
		cfg.Rewards = FlatRewards(100, 50)
	}
	if cfg.MaxMissedProbes < 1 {
		cfg.MaxMissedProbes = 1
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 5 * time.Second
	}
	return &Coordinator{
		config:   cfg,
		logger:   logger,
		registry: NewRegistry(),
		queue:    NewQueue(),
		battles:  make(map[MatchID]*Battle),
		events:   make(chan Event, 256),
		done:     make(chan struct{}),
	}
}

// SetPetStore sets the optional authoritative pet snapshot source.
func (c *Coordinator) SetPetStore(store PetStore) {
	c.pets = store
}

// SetResultSaver sets the optional battle result saver.
func (c *Coordinator) SetResultSaver(saver ResultSaver) {
	c.results = saver
}

// Start begins event processing and the liveness monitor.
func (c *Coordinator) Start() error {
	go c.processEvents()

	if c.config.LivenessInterval > 0 {
		c.liveness = NewLivenessMonitor(c.config.LivenessInterval, func() {
			c.Send(livenessTickEvent{})
		})
		if err := c.liveness.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Stop shuts down the coordinator and closes every connection.
// In-flight battles are dropped without a result.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.liveness != nil {
			if err := c.liveness.Stop(); err != nil {
				c.logger.Warn("liveness monitor shutdown", "error", err)
			}
		}

		c.mu.Lock()
		for _, conn := range c.registry.Conns() {
			conn.Close()
		}
		c.mu.Unlock()

		c.saves.Wait()
	})
}

// Send queues an event for asynchronous processing.
// Inbound frames are decoded in the caller's goroutine so that snapshot
// loading never happens inside the critical section.
func (c *Coordinator) Send(evt Event) {
	if m, ok := evt.(MessageEvent); ok {
		evt = c.prepare(m)
	}
	select {
	case c.events <- evt:
	case <-c.done:
	}
}

func (c *Coordinator) processEvents() {
	for {
		select {
		case evt := <-c.events:
			c.Handle(evt)
		case <-c.done:
			return
		}
	}
}

// Handle processes one event synchronously.
func (c *Coordinator) Handle(evt Event) {
	if m, ok := evt.(MessageEvent); ok {
		evt = c.prepare(m)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatch(evt)
}

// dispatch routes one event. Caller holds c.mu.
func (c *Coordinator) dispatch(evt Event) {
	switch e := evt.(type) {
	case JoinedEvent:
		c.registry.Attach(e.Conn)
		c.logger.Debug("connection opened", "conn", e.Conn.ID())
	case inboundEvent:
		c.handleInbound(e)
	case DisconnectedEvent:
		c.handleClosed(e.ConnID, EndReasonDisconnect)
	case HeartbeatTimeoutEvent:
		c.handleClosed(e.ConnID, EndReasonTimeout)
	case PongEvent:
		c.registry.markSeen(e.ConnID)
	case livenessTickEvent:
		c.sweepLiveness()
	case battleStartEvent:
		c.handleBattleStart(e.matchID)
	}
}

// prepare decodes a frame and, for joins, loads the authoritative pet snapshot.
func (c *Coordinator) prepare(m MessageEvent) inboundEvent {
	req, err := Decode(m.Frame)
	if err != nil {
		return inboundEvent{connID: m.ConnID, err: err}
	}

	if join, ok := req.(JoinRequest); ok && c.pets != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.SaveTimeout)
		defer cancel()
		snap, err := c.pets.LoadPetSnapshot(ctx, join.UserID, join.Pet.PetID)
		switch {
		case err == nil:
			join.Pet = snap
			req = join
		case errors.Is(err, ErrPetNotOwned):
			c.logger.Warn("join with a pet owned by another player", "player", join.UserID, "pet", join.Pet.PetID)
			return inboundEvent{connID: m.ConnID, err: err}
		case errors.Is(err, ErrPetNotFound):
			c.logger.Debug("pet not in store, using declared snapshot", "pet", join.Pet.PetID)
		default:
			c.logger.Warn("could not load pet snapshot", "pet", join.Pet.PetID, "error", err)
		}
	}
	return inboundEvent{connID: m.ConnID, req: req}
}

func (c *Coordinator) handleInbound(e inboundEvent) {
	entry, ok := c.registry.conns[e.connID]
	if !ok {
		c.logger.Debug("message from unknown connection", "conn", e.connID)
		return
	}
	c.registry.markSeen(e.connID)
	conn := entry.conn

	if e.err != nil {
		c.logger.Debug("rejected message", "conn", e.connID, "error", e.err)
		c.sendError(conn, e.err)
		return
	}

	switch req := e.req.(type) {
	case HeartbeatRequest:
		c.deliver(conn, NewEnvelope(MsgHeartbeat, HeartbeatPayload{Timestamp: time.Now().UnixMilli()}))
		return
	case JoinRequest:
		c.handleJoin(conn, req)
		return
	}

	player, ok := c.registry.PlayerFor(e.connID)
	if !ok {
		c.sendError(conn, ErrNotJoined)
		return
	}

	var err error
	switch req := e.req.(type) {
	case LeaveRequest:
		err = c.handleLeave(player, req)
	case SearchRequest:
		err = c.handleSearch(player, req)
	case CancelSearchRequest:
		err = c.handleCancelSearch(player, req)
	case ActionRequest:
		err = c.handleAction(player, req)
	case SurrenderRequest:
		err = c.handleSurrender(player, req)
	}
	if err != nil {
		c.logger.Debug("request rejected", "player", player.ID, "error", err)
		c.sendError(conn, err)
	}
}

func (c *Coordinator) handleJoin(conn Conn, req JoinRequest) {
	stale, err := c.registry.Register(conn, req.UserID, req.Pet)
	if err != nil {
		c.sendError(conn, err)
		return
	}
	if stale != nil {
		c.logger.Info("replacing stale connection", "player", stale.ID, "conn", stale.Conn.ID())
		c.teardown(stale, EndReasonDisconnect)
		stale.Conn.Close()
	}
	c.logger.Info("player joined", "player", req.UserID, "pet", req.Pet.Name, "conn", conn.ID())
	c.broadcastPresence()
}

func (c *Coordinator) handleLeave(p *Player, req LeaveRequest) error {
	if req.UserID != p.ID {
		return ErrNotAuthorized
	}
	c.registry.Unregister(p.ID)
	c.teardown(p, EndReasonDisconnect)
	c.logger.Info("player left", "player", p.ID)
	c.broadcastPresence()
	p.Conn.Close()
	return nil
}

func (c *Coordinator) handleSearch(p *Player, req SearchRequest) error {
	if req.UserID != p.ID {
		return ErrNotAuthorized
	}
	if err := c.enqueue(p.ID); err != nil {
		return err
	}
	c.broadcastPresence()
	return nil
}

func (c *Coordinator) handleCancelSearch(p *Player, req CancelSearchRequest) error {
	if req.UserID != p.ID {
		return ErrNotAuthorized
	}
	if c.dequeue(p.ID) {
		c.broadcastPresence()
	}
	return nil
}

// enqueue adds an idle player to the queue and runs a pairing pass.
// Already queued players are left alone. Caller holds c.mu.
func (c *Coordinator) enqueue(id PlayerID) error {
	p, ok := c.registry.Lookup(id)
	if !ok {
		return ErrUnknownPlayer
	}
	if p.Status == StatusBattling {
		return ErrAlreadyBattling
	}
	if p.Pet.Health <= 0 {
		return ErrPetFainted
	}
	if c.queue.Contains(id) {
		return nil
	}
	if err := c.registry.SetStatus(id, StatusSearching, ""); err != nil {
		return err
	}
	c.queue.Push(id)
	c.logger.Info("player searching", "player", id, "queue", c.queue.Len())

	c.tryPairAll()
	return nil
}

// dequeue removes a waiting player and returns it to idle. Caller holds c.mu.
func (c *Coordinator) dequeue(id PlayerID) bool {
	if !c.queue.Remove(id) {
		return false
	}
	if p, ok := c.registry.Lookup(id); ok && p.Status == StatusSearching {
		if err := c.registry.SetStatus(id, StatusIdle, ""); err != nil {
			c.logger.Error("could not reset status after dequeue", "player", id, "error", err)
		}
	}
	return true
}

// tryPairAll pairs the two earliest live entries while at least two remain.
func (c *Coordinator) tryPairAll() {
	for c.queue.Len() >= 2 {
		first, ok := c.popLive()
		if !ok {
			return
		}
		second, ok := c.popLive()
		if !ok {
			c.queue.pushFront(first.ID)
			return
		}
		c.startBattle(first, second)
	}
}

// popLive pops the earliest entry that still has a searching player.
// Entries without one raced a disconnect or violate the queue invariant; they are purged.
func (c *Coordinator) popLive() (*Player, bool) {
	for {
		id, ok := c.queue.Pop()
		if !ok {
			return nil, false
		}
		p, ok := c.registry.Lookup(id)
		if !ok {
			c.logger.Warn("dropping queue entry without a connection", "player", id)
			continue
		}
		if p.Status != StatusSearching {
			c.logger.Error("dropping queue entry in unexpected status", "player", id, "status", p.Status)
			continue
		}
		return p, true
	}
}

func (c *Coordinator) startBattle(p1, p2 *Player) {
	matchID := MatchID("match_" + uuid.NewString())
	battle := NewBattle(matchID, p1, p2, c.config.DamageLimits)

	for _, p := range []*Player{p1, p2} {
		if err := c.registry.SetStatus(p.ID, StatusBattling, matchID); err != nil {
			c.logger.Error("could not mark player battling", "player", p.ID, "error", err)
		}
	}
	c.battles[matchID] = battle

	c.deliver(p1.Conn, NewEnvelope(MsgMatchFound, MatchFoundPayload{MatchID: matchID, Opponent: p2.Summary()}))
	c.deliver(p2.Conn, NewEnvelope(MsgMatchFound, MatchFoundPayload{MatchID: matchID, Opponent: p1.Summary()}))
	c.logger.Info("match found", "match", matchID, "player1", p1.ID, "player2", p2.ID)

	if battle.Finished() {
		c.endBattle(battle)
		return
	}
	if c.config.BattleStartDelay <= 0 {
		c.handleBattleStart(matchID)
		return
	}
	time.AfterFunc(c.config.BattleStartDelay, func() {
		c.Send(battleStartEvent{matchID: matchID})
	})
}

func (c *Coordinator) handleBattleStart(id MatchID) {
	battle, ok := c.battles[id]
	if !ok || battle.Finished() {
		return
	}
	c.broadcastBattle(battle, NewEnvelope(MsgBattleStart, battle.StartPayload()))
}

func (c *Coordinator) handleAction(p *Player, req ActionRequest) error {
	if req.ActorID != p.ID {
		return ErrNotAuthorized
	}
	battle, err := c.battleFor(p, req.MatchID)
	if err != nil {
		return err
	}

	res, err := battle.ResolveAction(p.ID, req.Action)
	if err != nil {
		return err
	}

	c.broadcastBattle(battle, NewEnvelope(MsgBattleAction, BattleActionPayload{
		MatchID:     battle.ID(),
		ActorID:     res.Entry.ActorID,
		TargetID:    res.TargetID,
		ActionType:  res.Entry.Action,
		SkillID:     req.Action.SkillID,
		Damage:      res.Entry.Damage,
		IsCritical:  res.Entry.IsCritical,
		IsDodge:     res.Entry.IsDodge,
		Turn:        res.Entry.Round,
		RemainingHP: res.Entry.RemainingHP,
		Player1HP:   res.Health[0],
		Player2HP:   res.Health[1],
	}))
	c.logger.Debug("action resolved", "match", battle.ID(), "actor", p.ID,
		"damage", res.Entry.Damage, "remaining", res.Entry.RemainingHP)

	if res.Finished {
		c.endBattle(battle)
	}
	return nil
}

func (c *Coordinator) handleSurrender(p *Player, req SurrenderRequest) error {
	battle, err := c.battleFor(p, req.MatchID)
	if err != nil {
		return err
	}
	if err := battle.Forfeit(p.ID, EndReasonSurrender); err != nil {
		return err
	}
	c.endBattle(battle)
	return nil
}

// battleFor validates that p is battling in the referenced match.
func (c *Coordinator) battleFor(p *Player, id MatchID) (*Battle, error) {
	if p.Status != StatusBattling {
		return nil, ErrNotInBattle
	}
	if p.Match != id {
		return nil, ErrMatchMismatch
	}
	battle, ok := c.battles[id]
	if !ok {
		c.logger.Error("player references a missing battle", "player", p.ID, "match", id)
		if err := c.registry.SetStatus(p.ID, StatusIdle, ""); err != nil {
			c.logger.Error("could not repair player status", "player", p.ID, "error", err)
		}
		return nil, ErrNotInBattle
	}
	if !battle.Has(p.ID) {
		return nil, ErrNotParticipant
	}
	return battle, nil
}

// endBattle delivers BATTLE_END, frees both players and removes the session.
func (c *Coordinator) endBattle(battle *Battle) {
	winner, loser, reason := battle.Outcome()
	reward := c.config.Rewards(winner, loser)
	entries := battle.Log()

	env := NewEnvelope(MsgBattleEnd, BattleEndPayload{
		MatchID:    battle.ID(),
		WinnerID:   winner,
		LoserID:    loser,
		GoldEarned: reward.Gold,
		ExpEarned:  reward.Exp,
		Reason:     reason.String(),
		BattleLog:  entries,
	})
	for _, id := range battle.Participants() {
		p, ok := c.registry.Lookup(id)
		if !ok || p.Match != battle.ID() {
			continue
		}
		if err := c.registry.SetStatus(id, StatusIdle, ""); err != nil {
			c.logger.Error("could not free player after battle", "player", id, "error", err)
		}
		c.deliver(p.Conn, env)
	}
	delete(c.battles, battle.ID())
	c.logger.Info("battle ended", "match", battle.ID(), "winner", winner, "loser", loser, "reason", reason)

	c.persist(BattleResult{
		MatchID:    battle.ID(),
		WinnerID:   winner,
		LoserID:    loser,
		GoldEarned: reward.Gold,
		ExpEarned:  reward.Exp,
		Reason:     reason.String(),
		Turns:      len(entries),
		Duration:   battle.Duration(),
	})
	c.broadcastPresence()
}

// persist saves a result in the background. Failures never affect clients.
func (c *Coordinator) persist(result BattleResult) {
	if c.results == nil {
		return
	}
	c.saves.Add(1)
	go func() {
		defer c.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.config.SaveTimeout)
		defer cancel()
		if err := c.results.SaveBattleResult(ctx, result); err != nil {
			c.logger.Error("could not save battle result", "match", result.MatchID, "error", err)
		}
	}()
}

// teardown removes every trace of p from the queue and its battle.
// The caller has already removed p from the registry.
func (c *Coordinator) teardown(p *Player, reason EndReason) {
	c.queue.Remove(p.ID)
	if p.Status != StatusBattling {
		return
	}
	battle, ok := c.battles[p.Match]
	if !ok {
		return
	}
	if err := battle.Forfeit(p.ID, reason); err != nil {
		c.logger.Warn("forfeit rejected", "player", p.ID, "match", p.Match, "error", err)
		return
	}
	c.endBattle(battle)
}

// handleClosed runs the disconnect path for a transport closure or a liveness timeout.
func (c *Coordinator) handleClosed(id ConnID, reason EndReason) {
	entry, ok := c.registry.conns[id]
	if !ok {
		return
	}
	conn := entry.conn
	playerID, joined := c.registry.Detach(id)
	conn.Close()

	if !joined {
		c.logger.Debug("connection closed", "conn", id)
		return
	}
	p, ok := c.registry.Unregister(playerID)
	if !ok {
		return
	}
	c.teardown(p, reason)
	c.logger.Info("player disconnected", "player", playerID, "reason", reason)
	c.broadcastPresence()
}

func (c *Coordinator) broadcastBattle(battle *Battle, env Envelope) {
	for _, id := range battle.Participants() {
		if p, ok := c.registry.Lookup(id); ok {
			c.deliver(p.Conn, env)
		}
	}
}

func (c *Coordinator) broadcastPresence() {
	env := NewEnvelope(MsgOnlinePlayers, c.registry.Online())
	for _, conn := range c.registry.Conns() {
		c.deliver(conn, env)
	}
}

// deliver sends to one connection. A failure is logged and never aborts the caller.
// A client that cannot keep up is closed; its disconnect runs the normal teardown.
func (c *Coordinator) deliver(conn Conn, env Envelope) {
	err := conn.Send(env)
	if err == nil {
		return
	}
	c.logger.Warn("send failed", "conn", conn.ID(), "type", env.Type, "error", err)
	if errors.Is(err, ErrSendBufferFull) {
		conn.Close()
	}
}

func (c *Coordinator) sendError(conn Conn, err error) {
	c.deliver(conn, NewEnvelope(MsgError, ErrorPayload{Code: CodeOf(err), Message: errorMessage(err)}))
}

func errorMessage(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

// Online returns the current presence list.
func (c *Coordinator) Online() OnlinePlayersPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Online()
}

// PlayerStatus returns a registered player's status.
func (c *Coordinator) PlayerStatus(id PlayerID) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.registry.Lookup(id)
	if !ok {
		return "", false
	}
	return p.Status, true
}

// QueuedPlayers returns the waiting players in FIFO order.
func (c *Coordinator) QueuedPlayers() []PlayerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Snapshot()
}

// BattleCount returns the number of active battles.
func (c *Coordinator) BattleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.battles)
}
