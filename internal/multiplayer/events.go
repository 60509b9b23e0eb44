package multiplayer

// Event is a connection lifecycle or timer event consumed by the Coordinator.
// Every event is processed to completion before the next one.
type Event interface {
	coordinatorEvent()
}

// JoinedEvent is sent when a transport connection opens.
// The connection is not bound to a player until it sends PLAYER_JOIN.
type JoinedEvent struct {
	Conn Conn
}

func (JoinedEvent) coordinatorEvent() {}

// MessageEvent carries one raw inbound frame.
type MessageEvent struct {
	ConnID ConnID
	Frame  []byte
}

func (MessageEvent) coordinatorEvent() {}

// DisconnectedEvent is sent when the transport reports the connection closed.
type DisconnectedEvent struct {
	ConnID ConnID
}

func (DisconnectedEvent) coordinatorEvent() {}

// HeartbeatTimeoutEvent forces teardown of a connection that stopped answering probes.
// The liveness sweep raises it for every expired connection.
type HeartbeatTimeoutEvent struct {
	ConnID ConnID
}

func (HeartbeatTimeoutEvent) coordinatorEvent() {}

// PongEvent records a liveness probe answer from the transport.
type PongEvent struct {
	ConnID ConnID
}

func (PongEvent) coordinatorEvent() {}

// inboundEvent is a MessageEvent after decoding and snapshot loading,
// done outside the critical section.
type inboundEvent struct {
	connID ConnID
	req    Inbound
	err    error
}

func (inboundEvent) coordinatorEvent() {}

// livenessTickEvent is fired by the LivenessMonitor every interval.
type livenessTickEvent struct{}

func (livenessTickEvent) coordinatorEvent() {}

// battleStartEvent fires after the configured delay following MATCH_FOUND.
type battleStartEvent struct {
	matchID MatchID
}

func (battleStartEvent) coordinatorEvent() {}
