// Package energy implements the stamina budget that throttles how often the
// agent may reply in a room.
//
// Replies consume a fixed cost; a background ticker restores a fixed amount
// per interval. This models conversational pacing rather than a hard
// cooldown: a quiet room saves up capacity for a lively stretch.
package energy

import (
	"log/slog"
	"sync"
	"time"
)

// Config holds the budget parameters for one gate.
type Config struct {
	// Max is the budget ceiling; the gate starts full.
	Max int
	// CostPerReply is subtracted per consumed reply.
	CostPerReply int
	// RecoveryRate is added back every RecoveryInterval, capped at Max.
	RecoveryRate int
	// RecoveryInterval is the recovery tick period.
	RecoveryInterval time.Duration
}

// DefaultConfig mirrors the documented behavior defaults.
func DefaultConfig() Config {
	return Config{
		Max:              100,
		CostPerReply:     1,
		RecoveryRate:     5,
		RecoveryInterval: 60 * time.Second,
	}
}

// Gate is the per-room energy budget. Consume and Refund are called from the
// room's single drain loop; the recovery goroutine ticks concurrently, so all
// state is guarded by a mutex.
type Gate struct {
	mu      sync.Mutex
	current int
	cfg     Config

	stopOnce sync.Once
	stop     chan struct{}
}

// NewGate creates a full gate and starts its recovery ticker. The caller owns
// the gate's lifetime and must call Stop when the room is torn down.
func NewGate(cfg Config) *Gate {
	def := DefaultConfig()
	if cfg.Max <= 0 {
		cfg.Max = def.Max
	}
	if cfg.CostPerReply <= 0 {
		cfg.CostPerReply = def.CostPerReply
	}
	if cfg.RecoveryRate <= 0 {
		cfg.RecoveryRate = def.RecoveryRate
	}
	if cfg.RecoveryInterval <= 0 {
		cfg.RecoveryInterval = def.RecoveryInterval
	}

	g := &Gate{
		current: cfg.Max,
		cfg:     cfg,
		stop:    make(chan struct{}),
	}
	go g.recoveryLoop()
	return g
}

// recoveryLoop ticks unconditionally until Stop. Recovery is stepped, not
// continuous, and does not depend on consumption timing.
func (g *Gate) recoveryLoop() {
	ticker := time.NewTicker(g.cfg.RecoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.recover()
		}
	}
}

// recover applies one recovery tick.
func (g *Gate) recover() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current >= g.cfg.Max {
		return
	}
	g.current += g.cfg.RecoveryRate
	if g.current > g.cfg.Max {
		g.current = g.cfg.Max
	}
	slog.Debug("energy: recovered", "current", g.current, "max", g.cfg.Max)
}

// CanAfford reports whether one reply is currently affordable.
func (g *Gate) CanAfford() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current >= g.cfg.CostPerReply
}

// Consume reserves the cost of one reply. It either subtracts the full cost
// and returns true, or leaves the budget untouched and returns false.
func (g *Gate) Consume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current < g.cfg.CostPerReply {
		return false
	}
	g.current -= g.cfg.CostPerReply
	return true
}

// Refund returns one reply's cost to the budget, capped at Max. It is the
// compensating transaction for a Consume whose generation produced no reply.
func (g *Gate) Refund() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current += g.cfg.CostPerReply
	if g.current > g.cfg.Max {
		g.current = g.cfg.Max
	}
}

// Current returns the current budget level.
func (g *Gate) Current() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Max returns the budget ceiling.
func (g *Gate) Max() int { return g.cfg.Max }

// Stop cancels the recovery ticker. Safe to call more than once.
func (g *Gate) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}
