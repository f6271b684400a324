package agent

import (
	"fmt"

	"github.com/bdobrica/Kagami/internal/kagami/energy"
	"github.com/bdobrica/Kagami/internal/kagami/history"
)

// Policy decides whether a drain round should attempt a generation at all.
// It is consulted once per round, before any energy is reserved.
type Policy interface {
	ShouldAttemptReply(w *history.Window, g *energy.Gate) bool
}

// ActivePolicy lets the agent speak whenever the energy budget affords it.
// This is the default conversational mode.
type ActivePolicy struct{}

func (ActivePolicy) ShouldAttemptReply(_ *history.Window, g *energy.Gate) bool {
	return g.CanAfford()
}

// PassivePolicy only attempts a reply when the newest group turn mentions the
// bot. Energy is not consulted; mention-gated rooms are throttled by their
// members, not by stamina.
type PassivePolicy struct {
	BotID string
}

func (p PassivePolicy) ShouldAttemptReply(w *history.Window, _ *energy.Gate) bool {
	last, ok := w.Last()
	if !ok {
		return false
	}
	turn, ok := last.(history.GroupTurn)
	if !ok {
		return false
	}
	for _, mention := range turn.Mentions {
		if mention == p.BotID {
			return true
		}
	}
	return false
}

// PolicyFor resolves a configured policy name.
func PolicyFor(name, botID string) (Policy, error) {
	switch name {
	case "", "active":
		return ActivePolicy{}, nil
	case "passive":
		return PassivePolicy{BotID: botID}, nil
	default:
		return nil, fmt.Errorf("unknown reply policy %q", name)
	}
}
