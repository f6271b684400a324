package energy

import (
	"testing"
	"time"
)

// newTestGate returns a gate whose ticker will not fire during the test;
// recovery is driven directly through recover().
func newTestGate(cfg Config) *Gate {
	if cfg.RecoveryInterval == 0 {
		cfg.RecoveryInterval = time.Hour
	}
	return NewGate(cfg)
}

func TestGate_StartsFull(t *testing.T) {
	g := newTestGate(Config{Max: 100, CostPerReply: 20, RecoveryRate: 5})
	defer g.Stop()

	if g.Current() != 100 {
		t.Errorf("Current = %d, want 100", g.Current())
	}
	if !g.CanAfford() {
		t.Error("a full gate must afford a reply")
	}
}

func TestGate_ConsumeSubtractsCost(t *testing.T) {
	g := newTestGate(Config{Max: 100, CostPerReply: 20, RecoveryRate: 5})
	defer g.Stop()

	if !g.Consume() {
		t.Fatal("Consume should succeed on a full gate")
	}
	if g.Current() != 80 {
		t.Errorf("Current = %d, want 80", g.Current())
	}
}

func TestGate_ConsumeIsAllOrNothing(t *testing.T) {
	g := newTestGate(Config{Max: 30, CostPerReply: 20, RecoveryRate: 5})
	defer g.Stop()

	if !g.Consume() {
		t.Fatal("first Consume should succeed (30 >= 20)")
	}
	if g.Consume() {
		t.Error("second Consume should fail (10 < 20)")
	}
	if g.Current() != 10 {
		t.Errorf("failed Consume must not partially drain: Current = %d, want 10", g.Current())
	}
	if g.CanAfford() {
		t.Error("CanAfford should be false at 10/30 with cost 20")
	}
}

func TestGate_RefundCompensatesConsume(t *testing.T) {
	g := newTestGate(Config{Max: 100, CostPerReply: 20, RecoveryRate: 5})
	defer g.Stop()

	g.Consume()
	g.Refund()
	if g.Current() != 100 {
		t.Errorf("consume+refund should leave the budget unchanged: Current = %d", g.Current())
	}
}

func TestGate_RefundCapsAtMax(t *testing.T) {
	g := newTestGate(Config{Max: 100, CostPerReply: 20, RecoveryRate: 5})
	defer g.Stop()

	g.Refund() // refund without a matching consume
	if g.Current() != 100 {
		t.Errorf("Refund must cap at max: Current = %d", g.Current())
	}
}

func TestGate_RecoveryCapsAtMax(t *testing.T) {
	g := newTestGate(Config{Max: 100, CostPerReply: 20, RecoveryRate: 30})
	defer g.Stop()

	g.Consume() // 80
	g.recover() // 100, not 110
	if g.Current() != 100 {
		t.Errorf("recovery must cap at max: Current = %d", g.Current())
	}

	g.recover() // already full, no-op
	if g.Current() != 100 {
		t.Errorf("recovery at max must be a no-op: Current = %d", g.Current())
	}
}

func TestGate_RecoverySteps(t *testing.T) {
	g := newTestGate(Config{Max: 100, CostPerReply: 50, RecoveryRate: 10})
	defer g.Stop()

	g.Consume()
	g.Consume() // 0
	if g.CanAfford() {
		t.Fatal("empty gate should not afford a reply")
	}

	for i := 1; i <= 5; i++ {
		g.recover()
		if want := i * 10; g.Current() != want {
			t.Fatalf("after %d ticks: Current = %d, want %d", i, g.Current(), want)
		}
	}
	if !g.CanAfford() {
		t.Error("gate should afford a reply again after recovering to 50")
	}
}

func TestGate_BackgroundRecoveryTicks(t *testing.T) {
	g := NewGate(Config{Max: 100, CostPerReply: 40, RecoveryRate: 40, RecoveryInterval: 10 * time.Millisecond})
	defer g.Stop()

	g.Consume()
	g.Consume() // 20

	deadline := time.After(2 * time.Second)
	for g.Current() < 100 {
		select {
		case <-deadline:
			t.Fatalf("background recovery never refilled the gate: Current = %d", g.Current())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestGate_StopIsIdempotent(t *testing.T) {
	g := newTestGate(Config{Max: 10, CostPerReply: 1, RecoveryRate: 1})
	g.Stop()
	g.Stop() // must not panic
}

func TestGate_Defaults(t *testing.T) {
	g := NewGate(Config{})
	defer g.Stop()

	def := DefaultConfig()
	if g.Max() != def.Max {
		t.Errorf("Max = %d, want default %d", g.Max(), def.Max)
	}
	if g.Current() != def.Max {
		t.Errorf("Current = %d, want full", g.Current())
	}
}
