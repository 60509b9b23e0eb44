package multiplayer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	cfg := DefaultCoordinatorConfig()
	cfg.BattleStartDelay = 0
	cfg.LivenessInterval = 0
	return NewCoordinator(cfg, nil)
}

func frame(t *testing.T, typ MessageType, payload map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{"type": typ, "payload": payload, "timestamp": time.Now().UnixMilli()})
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	return data
}

func connect(c *Coordinator, id ConnID) *ChannelConn {
	conn := NewChannelConn(id, 256)
	c.Handle(JoinedEvent{Conn: conn})
	return conn
}

func send(t *testing.T, c *Coordinator, conn *ChannelConn, typ MessageType, payload map[string]any) {
	t.Helper()
	c.Handle(MessageEvent{ConnID: conn.ID(), Frame: frame(t, typ, payload)})
}

func join(t *testing.T, c *Coordinator, conn *ChannelConn, id PlayerID, hp int) {
	t.Helper()
	send(t, c, conn, MsgPlayerJoin, map[string]any{
		"userId": id, "petId": id * 10, "petName": "pet", "level": 5, "hp": hp, "maxHp": 100,
	})
}

func search(t *testing.T, c *Coordinator, conn *ChannelConn, id PlayerID) {
	t.Helper()
	send(t, c, conn, MsgSearchMatch, map[string]any{"userId": id, "petId": id * 10, "level": 5})
}

func attack(t *testing.T, c *Coordinator, conn *ChannelConn, match MatchID, actor PlayerID, damage int) {
	t.Helper()
	send(t, c, conn, MsgBattleAction, map[string]any{
		"matchId": match, "actorId": actor, "actionType": "ATTACK", "damage": damage,
	})
}

// drain returns every queued message except presence broadcasts.
func drain(conn *ChannelConn) []Envelope {
	var out []Envelope
	for {
		select {
		case env := <-conn.Outbox():
			if env.Type != MsgOnlinePlayers {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func expectTypes(t *testing.T, got []Envelope, want ...MessageType) {
	t.Helper()
	if len(got) != len(want) {
		types := make([]MessageType, len(got))
		for i, env := range got {
			types[i] = env.Type
		}
		t.Fatalf("Expected %v, got %v", want, types)
	}
	for i := range want {
		if got[i].Type != want[i] {
			t.Fatalf("Message %d: expected %s, got %s", i, want[i], got[i].Type)
		}
	}
}

func expectError(t *testing.T, conn *ChannelConn, code ErrorCode) {
	t.Helper()
	msgs := drain(conn)
	expectTypes(t, msgs, MsgError)
	if p := msgs[0].Payload.(ErrorPayload); p.Code != code {
		t.Fatalf("Expected error code %s, got %s (%s)", code, p.Code, p.Message)
	}
}

// startMatch joins players 1 and 2, pairs them and returns the match id.
func startMatch(t *testing.T, c *Coordinator) (a, b *ChannelConn, match MatchID) {
	t.Helper()
	a = connect(c, "a")
	b = connect(c, "b")
	join(t, c, a, 1, 100)
	join(t, c, b, 2, 100)
	search(t, c, a, 1)
	search(t, c, b, 2)

	msgs := drain(a)
	expectTypes(t, msgs, MsgMatchFound, MsgBattleStart)
	drain(b)
	return a, b, msgs[0].Payload.(MatchFoundPayload).MatchID
}

func TestMatchFoundThenBattleStart(t *testing.T) {
	c := newTestCoordinator(t)
	a := connect(c, "a")
	b := connect(c, "b")
	join(t, c, a, 1, 100)
	join(t, c, b, 2, 100)

	search(t, c, a, 1)
	if got := drain(a); len(got) != 0 {
		t.Fatalf("Expected no match with a single searcher, got %v", got)
	}
	if status, _ := c.PlayerStatus(1); status != StatusSearching {
		t.Errorf("Expected player 1 searching, got %s", status)
	}

	search(t, c, b, 2)

	for _, tc := range []struct {
		conn     *ChannelConn
		opponent PlayerID
	}{{a, 2}, {b, 1}} {
		msgs := drain(tc.conn)
		expectTypes(t, msgs, MsgMatchFound, MsgBattleStart)

		found := msgs[0].Payload.(MatchFoundPayload)
		if found.Opponent.UserID != tc.opponent {
			t.Errorf("Expected opponent %d, got %d", tc.opponent, found.Opponent.UserID)
		}
		start := msgs[1].Payload.(BattleStartPayload)
		if start.MatchID != found.MatchID {
			t.Errorf("BATTLE_START match %s differs from MATCH_FOUND %s", start.MatchID, found.MatchID)
		}
		if start.Player1.HP != 100 || start.Player2.HP != 100 {
			t.Errorf("Expected full health 100/100, got %d/%d", start.Player1.HP, start.Player2.HP)
		}
	}

	for _, id := range []PlayerID{1, 2} {
		if status, _ := c.PlayerStatus(id); status != StatusBattling {
			t.Errorf("Expected player %d battling, got %s", id, status)
		}
	}
	if c.BattleCount() != 1 {
		t.Errorf("Expected one active battle, got %d", c.BattleCount())
	}
	if q := c.QueuedPlayers(); len(q) != 0 {
		t.Errorf("Expected empty queue, got %v", q)
	}
}

func TestBattleActionBroadcast(t *testing.T) {
	c := newTestCoordinator(t)
	a, b, match := startMatch(t, c)

	attack(t, c, a, match, 1, 30)

	for _, conn := range []*ChannelConn{a, b} {
		msgs := drain(conn)
		expectTypes(t, msgs, MsgBattleAction)
		p := msgs[0].Payload.(BattleActionPayload)
		if p.ActorID != 1 || p.TargetID != 2 {
			t.Errorf("Unexpected actor/target: %d/%d", p.ActorID, p.TargetID)
		}
		if p.Damage != 30 || p.RemainingHP != 70 {
			t.Errorf("Expected damage 30 and remaining 70, got %d/%d", p.Damage, p.RemainingHP)
		}
		if p.Turn != 1 {
			t.Errorf("Expected turn 1, got %d", p.Turn)
		}
		if p.Player1HP != 100 || p.Player2HP != 70 {
			t.Errorf("Unexpected health snapshot %d/%d", p.Player1HP, p.Player2HP)
		}
	}

	attack(t, c, b, match, 2, 10)
	msgs := drain(a)
	expectTypes(t, msgs, MsgBattleAction)
	if turn := msgs[0].Payload.(BattleActionPayload).Turn; turn != 2 {
		t.Errorf("Expected turn to increment to 2, got %d", turn)
	}
}

func TestBattleEndsOnKnockout(t *testing.T) {
	c := newTestCoordinator(t)
	saver := newFakeSaver()
	c.SetResultSaver(saver)
	a, b, match := startMatch(t, c)

	for i := 0; i < 4; i++ {
		attack(t, c, a, match, 1, 30)
	}

	msgs := drain(b)
	expectTypes(t, msgs, MsgBattleAction, MsgBattleAction, MsgBattleAction, MsgBattleAction, MsgBattleEnd)

	end := msgs[4].Payload.(BattleEndPayload)
	if end.WinnerID != 1 || end.LoserID != 2 {
		t.Errorf("Expected winner 1 loser 2, got %d/%d", end.WinnerID, end.LoserID)
	}
	if end.GoldEarned != 100 || end.ExpEarned != 50 {
		t.Errorf("Expected 100 gold and 50 exp, got %d/%d", end.GoldEarned, end.ExpEarned)
	}
	if end.Reason != "knockout" {
		t.Errorf("Expected knockout, got %s", end.Reason)
	}
	wantHP := []int{70, 40, 10, 0}
	if len(end.BattleLog) != len(wantHP) {
		t.Fatalf("Expected %d log entries, got %d", len(wantHP), len(end.BattleLog))
	}
	for i, hp := range wantHP {
		e := end.BattleLog[i]
		if e.Round != i+1 || e.ActorID != 1 || e.RemainingHP != hp {
			t.Errorf("Entry %d: unexpected %+v", i, e)
		}
	}
	if got := drain(a); len(got) != 5 || got[4].Type != MsgBattleEnd {
		t.Errorf("Expected winner to receive BATTLE_END too, got %d messages", len(got))
	}

	if c.BattleCount() != 0 {
		t.Errorf("Expected session removed, %d remain", c.BattleCount())
	}
	for _, id := range []PlayerID{1, 2} {
		if status, _ := c.PlayerStatus(id); status != StatusIdle {
			t.Errorf("Expected player %d idle, got %s", id, status)
		}
	}

	attack(t, c, b, match, 2, 30)
	expectError(t, b, CodeNotInBattle)

	c.Stop()
	results := saver.Results()
	if len(results) != 1 {
		t.Fatalf("Expected one saved result, got %d", len(results))
	}
	if r := results[0]; r.MatchID != match || r.WinnerID != 1 || r.Turns != 4 || r.Reason != "knockout" {
		t.Errorf("Unexpected saved result: %+v", r)
	}
}

func TestDisconnectForfeitsBattle(t *testing.T) {
	c := newTestCoordinator(t)
	a, b, _ := startMatch(t, c)

	c.Handle(DisconnectedEvent{ConnID: a.ID()})

	msgs := drain(b)
	expectTypes(t, msgs, MsgBattleEnd)
	end := msgs[0].Payload.(BattleEndPayload)
	if end.WinnerID != 2 || end.LoserID != 1 || end.Reason != "disconnect" {
		t.Errorf("Unexpected result: %+v", end)
	}

	if c.BattleCount() != 0 {
		t.Errorf("Expected session removed, %d remain", c.BattleCount())
	}
	if _, ok := c.PlayerStatus(1); ok {
		t.Error("Disconnected player must be unregistered")
	}
	if status, _ := c.PlayerStatus(2); status != StatusIdle {
		t.Errorf("Expected survivor idle, got %s", status)
	}
	select {
	case <-a.Done():
	default:
		t.Error("Expected disconnected connection to be closed")
	}

	c.Handle(DisconnectedEvent{ConnID: a.ID()})
	if got := drain(b); len(got) != 0 {
		t.Errorf("Second disconnect must be a no-op, got %v", got)
	}
}

func TestQueueIsFIFO(t *testing.T) {
	c := newTestCoordinator(t)
	conns := make([]*ChannelConn, 3)
	for i, id := range []ConnID{"a", "b", "c"} {
		conns[i] = connect(c, id)
		join(t, c, conns[i], PlayerID(i+1), 100)
	}
	for i := range conns {
		search(t, c, conns[i], PlayerID(i+1))
	}

	found := drain(conns[0])[0].Payload.(MatchFoundPayload)
	if found.Opponent.UserID != 2 {
		t.Errorf("Expected first two searchers paired, got opponent %d", found.Opponent.UserID)
	}
	if got := drain(conns[2]); len(got) != 0 {
		t.Errorf("Third searcher should still wait, got %v", got)
	}
	if q := c.QueuedPlayers(); len(q) != 1 || q[0] != 3 {
		t.Errorf("Expected queue [3], got %v", q)
	}
	if status, _ := c.PlayerStatus(3); status != StatusSearching {
		t.Errorf("Expected player 3 searching, got %s", status)
	}
}

func TestSearchIsIdempotent(t *testing.T) {
	c := newTestCoordinator(t)
	a := connect(c, "a")
	join(t, c, a, 1, 100)

	search(t, c, a, 1)
	search(t, c, a, 1)

	if q := c.QueuedPlayers(); len(q) != 1 {
		t.Errorf("Expected single queue entry, got %v", q)
	}
	if got := drain(a); len(got) != 0 {
		t.Errorf("Repeated search must not pair a player with itself, got %v", got)
	}
}

func TestCancelSearch(t *testing.T) {
	c := newTestCoordinator(t)
	a := connect(c, "a")
	b := connect(c, "b")
	join(t, c, a, 1, 100)
	join(t, c, b, 2, 100)

	search(t, c, a, 1)
	send(t, c, a, MsgCancelSearch, map[string]any{"userId": 1})
	search(t, c, b, 2)

	if got := drain(b); len(got) != 0 {
		t.Fatalf("Cancelled player must not be paired, got %v", got)
	}
	if status, _ := c.PlayerStatus(1); status != StatusIdle {
		t.Errorf("Expected idle after cancel, got %s", status)
	}
	if q := c.QueuedPlayers(); len(q) != 1 || q[0] != 2 {
		t.Errorf("Expected queue [2], got %v", q)
	}
}

func TestSearchWhileBattling(t *testing.T) {
	c := newTestCoordinator(t)
	a, _, _ := startMatch(t, c)

	search(t, c, a, 1)
	expectError(t, a, CodeAlreadyInBattle)
	if q := c.QueuedPlayers(); len(q) != 0 {
		t.Errorf("Battling player must not be queued, got %v", q)
	}
}

func TestSurrender(t *testing.T) {
	c := newTestCoordinator(t)
	a, b, match := startMatch(t, c)

	send(t, c, b, MsgSurrender, map[string]any{"matchId": match})

	msgs := drain(a)
	expectTypes(t, msgs, MsgBattleEnd)
	if end := msgs[0].Payload.(BattleEndPayload); end.WinnerID != 1 || end.Reason != "surrender" {
		t.Errorf("Unexpected result: %+v", end)
	}
	if c.BattleCount() != 0 {
		t.Error("Expected session removed after surrender")
	}
}

func TestLeaveEndsBattleAndClosesConnection(t *testing.T) {
	c := newTestCoordinator(t)
	a, b, _ := startMatch(t, c)

	send(t, c, a, MsgPlayerLeave, map[string]any{"userId": 1})

	msgs := drain(b)
	expectTypes(t, msgs, MsgBattleEnd)
	if end := msgs[0].Payload.(BattleEndPayload); end.WinnerID != 2 {
		t.Errorf("Expected remaining player to win, got %d", end.WinnerID)
	}
	select {
	case <-a.Done():
	default:
		t.Error("Expected leaving connection to be closed")
	}
	if got := c.Online(); got.Count != 1 || got.Players[0].UserID != 2 {
		t.Errorf("Unexpected presence after leave: %+v", got)
	}
}

func TestActionRejections(t *testing.T) {
	c := newTestCoordinator(t)
	a, b, match := startMatch(t, c)

	t.Run("spoofed actor", func(t *testing.T) {
		attack(t, c, a, match, 2, 30)
		expectError(t, a, CodeNotAuthorized)
	})
	t.Run("wrong match", func(t *testing.T) {
		attack(t, c, a, "match_other", 1, 30)
		expectError(t, a, CodeMatchMismatch)
	})
	t.Run("damage clamped", func(t *testing.T) {
		attack(t, c, a, match, 1, 5000)
		msgs := drain(b)
		expectTypes(t, msgs, MsgBattleAction, MsgBattleEnd)
		if d := msgs[0].Payload.(BattleActionPayload).Damage; d != 100 {
			t.Errorf("Expected damage clamped to 100, got %d", d)
		}
	})
}

func TestProtocolErrors(t *testing.T) {
	c := newTestCoordinator(t)
	a := connect(c, "a")

	c.Handle(MessageEvent{ConnID: a.ID(), Frame: []byte("not json")})
	expectError(t, a, CodeParseError)

	send(t, c, a, "TELEPORT", map[string]any{})
	expectError(t, a, CodeUnknownType)

	send(t, c, a, MsgSearchMatch, map[string]any{"userId": 1, "petId": 1, "level": 1})
	expectError(t, a, CodeNotJoined)

	send(t, c, a, MsgPlayerJoin, map[string]any{"userId": 1})
	expectError(t, a, CodeInvalidPayload)

	send(t, c, a, MsgHeartbeat, nil)
	msgs := drain(a)
	expectTypes(t, msgs, MsgHeartbeat)
}

func TestJoinBindsIdentity(t *testing.T) {
	c := newTestCoordinator(t)
	a := connect(c, "a")
	join(t, c, a, 1, 100)

	join(t, c, a, 2, 100)
	expectError(t, a, CodeNotAuthorized)

	search(t, c, a, 2)
	expectError(t, a, CodeNotAuthorized)

	if _, ok := c.PlayerStatus(2); ok {
		t.Error("Player 2 must not be registered")
	}
}

func TestReconnectReplacesStaleConnection(t *testing.T) {
	c := newTestCoordinator(t)
	a, b, _ := startMatch(t, c)

	fresh := connect(c, "a2")
	join(t, c, fresh, 1, 100)

	msgs := drain(b)
	expectTypes(t, msgs, MsgBattleEnd)
	if end := msgs[0].Payload.(BattleEndPayload); end.WinnerID != 2 {
		t.Errorf("Expected stale player to forfeit, got winner %d", end.WinnerID)
	}
	select {
	case <-a.Done():
	default:
		t.Error("Expected stale connection to be closed")
	}
	if status, _ := c.PlayerStatus(1); status != StatusIdle {
		t.Errorf("Expected reconnected player idle, got %s", status)
	}

	c.Handle(DisconnectedEvent{ConnID: a.ID()})
	if _, ok := c.PlayerStatus(1); !ok {
		t.Error("Late disconnect of stale connection must not remove the new session")
	}
}

func TestPairingSkipsDeadQueueEntries(t *testing.T) {
	c := newTestCoordinator(t)
	a := connect(c, "a")
	b := connect(c, "b")
	join(t, c, a, 1, 100)
	join(t, c, b, 2, 100)
	search(t, c, a, 1)

	// Simulate a disconnect that raced the pairing pass.
	c.mu.Lock()
	c.registry.Unregister(1)
	c.mu.Unlock()

	search(t, c, b, 2)

	if got := drain(b); len(got) != 0 {
		t.Fatalf("Expected no match against a dead entry, got %v", got)
	}
	if q := c.QueuedPlayers(); len(q) != 1 || q[0] != 2 {
		t.Errorf("Expected queue [2], got %v", q)
	}
}

func TestPetStoreOverridesDeclaredSnapshot(t *testing.T) {
	c := newTestCoordinator(t)
	c.SetPetStore(fakePets{10: {owner: 1, snap: PetSnapshot{PetID: 10, Name: "Stored", Level: 9, Health: 40, MaxHealth: 80}}})

	a := connect(c, "a")
	b := connect(c, "b")
	join(t, c, a, 1, 100)
	join(t, c, b, 2, 100)
	search(t, c, a, 1)
	search(t, c, b, 2)

	msgs := drain(b)
	expectTypes(t, msgs, MsgMatchFound, MsgBattleStart)
	opp := msgs[0].Payload.(MatchFoundPayload).Opponent
	if opp.PetName != "Stored" || opp.HP != 40 || opp.MaxHP != 80 {
		t.Errorf("Expected stored snapshot for player 1, got %+v", opp)
	}
	start := msgs[1].Payload.(BattleStartPayload)
	if start.Player2.HP != 100 {
		t.Errorf("Unknown pet should keep declared hp, got %d", start.Player2.HP)
	}
}

func TestJoinWithAnotherPlayersPetIsRejected(t *testing.T) {
	c := newTestCoordinator(t)
	// Pet 20 is what join() declares for player 2; the store says player 5 owns it.
	c.SetPetStore(fakePets{20: {owner: 5, snap: PetSnapshot{PetID: 20, Name: "Borrowed", Level: 50, Health: 999, MaxHealth: 999}}})

	conn := connect(c, "b")
	join(t, c, conn, 2, 100)
	expectError(t, conn, CodeNotAuthorized)

	if _, ok := c.PlayerStatus(2); ok {
		t.Error("Join with a foreign pet must not register the player")
	}
	if online := c.Online(); online.Count != 0 {
		t.Errorf("Expected nobody online, got %d", online.Count)
	}
}

func TestSearchRejectedWhenPetFainted(t *testing.T) {
	c := newTestCoordinator(t)
	a := connect(c, "a")
	b := connect(c, "b")
	join(t, c, a, 1, 0)
	join(t, c, b, 2, 100)
	drain(a)
	drain(b)

	search(t, c, a, 1)
	expectError(t, a, CodePetFainted)
	search(t, c, b, 2)

	if got := drain(b); len(got) != 0 {
		t.Fatalf("Expected no match against a fainted pet, got %v", got)
	}
	if c.BattleCount() != 0 {
		t.Errorf("Expected no battles, got %d", c.BattleCount())
	}
	if status, _ := c.PlayerStatus(1); status != StatusIdle {
		t.Errorf("Expected fainted player idle, got %s", status)
	}
	if q := c.QueuedPlayers(); len(q) != 1 || q[0] != 2 {
		t.Errorf("Expected queue [2], got %v", q)
	}
}

func TestPairingWithFaintedPlayerEndsImmediately(t *testing.T) {
	c := newTestCoordinator(t)
	a := connect(c, "a")
	b := connect(c, "b")
	join(t, c, a, 1, 100)
	join(t, c, b, 2, 100)
	search(t, c, a, 1)

	// Nothing on the wire lowers health while queued; set it directly.
	c.mu.Lock()
	p, _ := c.registry.Lookup(1)
	p.Pet.Health = 0
	c.mu.Unlock()

	search(t, c, b, 2)

	msgs := drain(b)
	expectTypes(t, msgs, MsgMatchFound, MsgBattleEnd)
	end := msgs[1].Payload.(BattleEndPayload)
	if end.WinnerID != 2 || end.LoserID != 1 || end.Reason != "knockout" {
		t.Errorf("Expected player 2 to win by knockout, got %+v", end)
	}
	if c.BattleCount() != 0 {
		t.Errorf("Expected no active battles, got %d", c.BattleCount())
	}
	for _, id := range []PlayerID{1, 2} {
		if status, _ := c.PlayerStatus(id); status != StatusIdle {
			t.Errorf("Expected player %d idle, got %s", id, status)
		}
	}
}

func TestSlowClientDoesNotBlockOpponent(t *testing.T) {
	c := newTestCoordinator(t)
	// Room for MATCH_FOUND, BATTLE_START and one presence update.
	a := NewChannelConn("a", 3)
	c.Handle(JoinedEvent{Conn: a})
	b := connect(c, "b")

	join(t, c, a, 1, 100)
	drain(a)
	join(t, c, b, 2, 100)
	drain(a)
	search(t, c, a, 1)
	drain(a)
	search(t, c, b, 2)

	msgs := drain(a)
	expectTypes(t, msgs, MsgMatchFound, MsgBattleStart)
	match := msgs[0].Payload.(MatchFoundPayload).MatchID
	drain(b)

	// a never reads again; its buffer fills on the fourth action.
	for i := 0; i < 5; i++ {
		attack(t, c, b, match, 2, 15)
	}

	got := drain(b)
	expectTypes(t, got, MsgBattleAction, MsgBattleAction, MsgBattleAction, MsgBattleAction, MsgBattleAction)
	if last := got[4].Payload.(BattleActionPayload); last.Player1HP != 25 || last.Turn != 5 {
		t.Errorf("Expected player 1 at 25 hp after turn 5, got %+v", last)
	}

	select {
	case <-a.Done():
	default:
		t.Fatal("Expected the slow connection to be closed")
	}
	if c.BattleCount() != 1 {
		t.Fatalf("Battle must stay active until the disconnect is processed, got %d", c.BattleCount())
	}
	if status, _ := c.PlayerStatus(1); status != StatusBattling {
		t.Errorf("Expected slow player still battling, got %s", status)
	}

	c.Handle(DisconnectedEvent{ConnID: a.ID()})

	got = drain(b)
	expectTypes(t, got, MsgBattleEnd)
	end := got[0].Payload.(BattleEndPayload)
	if end.WinnerID != 2 || end.LoserID != 1 || end.Reason != "disconnect" {
		t.Errorf("Unexpected result: %+v", end)
	}
	if len(end.BattleLog) != 5 {
		t.Errorf("Expected 5 logged actions, got %d", len(end.BattleLog))
	}
	if c.BattleCount() != 0 {
		t.Errorf("Expected session removed, %d remain", c.BattleCount())
	}
}

func TestEventLoop(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	cfg.BattleStartDelay = 10 * time.Millisecond
	cfg.LivenessInterval = 0
	c := NewCoordinator(cfg, nil)
	if err := c.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer c.Stop()

	a := NewChannelConn("a", 64)
	b := NewChannelConn("b", 64)
	c.Send(JoinedEvent{Conn: a})
	c.Send(JoinedEvent{Conn: b})
	c.Send(MessageEvent{ConnID: "a", Frame: frame(t, MsgPlayerJoin, map[string]any{"userId": 1, "petId": 1, "petName": "x", "level": 1, "hp": 50, "maxHp": 50})})
	c.Send(MessageEvent{ConnID: "b", Frame: frame(t, MsgPlayerJoin, map[string]any{"userId": 2, "petId": 2, "petName": "y", "level": 1, "hp": 50, "maxHp": 50})})
	c.Send(MessageEvent{ConnID: "a", Frame: frame(t, MsgSearchMatch, map[string]any{"userId": 1, "petId": 1, "level": 1})})
	c.Send(MessageEvent{ConnID: "b", Frame: frame(t, MsgSearchMatch, map[string]any{"userId": 2, "petId": 2, "level": 1})})

	want := []MessageType{MsgMatchFound, MsgBattleStart}
	timeout := time.After(2 * time.Second)
	for len(want) > 0 {
		select {
		case env := <-a.Outbox():
			if env.Type == MsgOnlinePlayers {
				continue
			}
			if env.Type != want[0] {
				t.Fatalf("Expected %s, got %s", want[0], env.Type)
			}
			want = want[1:]
		case <-timeout:
			t.Fatalf("Timed out waiting for %v", want)
		}
	}
}

type ownedPet struct {
	owner PlayerID
	snap  PetSnapshot
}

type fakePets map[PetID]ownedPet

func (f fakePets) LoadPetSnapshot(_ context.Context, owner PlayerID, id PetID) (PetSnapshot, error) {
	pet, ok := f[id]
	if !ok {
		return PetSnapshot{}, ErrPetNotFound
	}
	if pet.owner != owner {
		return PetSnapshot{}, ErrPetNotOwned
	}
	return pet.snap, nil
}

type fakeSaver struct {
	mu      sync.Mutex
	results []BattleResult
	err     error
}

func newFakeSaver() *fakeSaver {
	return &fakeSaver{}
}

func (f *fakeSaver) SaveBattleResult(_ context.Context, r BattleResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.results = append(f.results, r)
	return nil
}

func (f *fakeSaver) Results() []BattleResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]BattleResult, len(f.results))
	copy(out, f.results)
	return out
}

func TestSaveFailureDoesNotAffectClients(t *testing.T) {
	c := newTestCoordinator(t)
	saver := newFakeSaver()
	saver.err = errors.New("disk full")
	c.SetResultSaver(saver)
	a, b, match := startMatch(t, c)

	send(t, c, a, MsgSurrender, map[string]any{"matchId": match})
	expectTypes(t, drain(b), MsgBattleEnd)

	c.Stop()
	if len(saver.Results()) != 0 {
		t.Error("Expected no stored results")
	}
}
