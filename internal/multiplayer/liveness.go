package multiplayer

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// LivenessMonitor fires a tick at a fixed interval.
// The Coordinator handles each tick by probing every connection and
// timing out the ones that missed too many probes in a row.
type LivenessMonitor struct {
	interval  time.Duration
	tick      func()
	scheduler gocron.Scheduler
}

// NewLivenessMonitor creates a monitor that calls tick every interval.
func NewLivenessMonitor(interval time.Duration, tick func()) *LivenessMonitor {
	return &LivenessMonitor{interval: interval, tick: tick}
}

// Start schedules the tick job.
func (m *LivenessMonitor) Start() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("liveness: cannot create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(m.tick),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("liveness: cannot schedule probe job: %w", err)
	}
	s.Start()
	m.scheduler = s
	return nil
}

// Stop cancels the tick job.
func (m *LivenessMonitor) Stop() error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Shutdown()
}

// sweepLiveness runs one probe cycle. Caller holds c.mu.
func (c *Coordinator) sweepLiveness() {
	var expired []ConnID
	for id, e := range c.registry.conns {
		if !e.seen {
			e.missed++
		}
		e.seen = false
		if e.missed >= c.config.MaxMissedProbes {
			expired = append(expired, id)
			continue
		}
		if err := e.conn.Ping(); err != nil {
			c.logger.Debug("probe failed", "conn", id, "error", err)
		}
	}

	for _, id := range expired {
		c.logger.Warn("connection timed out", "conn", id, "missed", c.config.MaxMissedProbes)
		c.dispatch(HeartbeatTimeoutEvent{ConnID: id})
	}
}
