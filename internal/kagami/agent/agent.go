// Package agent runs one conversational loop per room.
//
// Each RoomAgent serializes generation: inbound messages are appended to the
// room's history immediately, but at most one model round runs at a time. A
// burst of messages arriving mid-round collapses into a single follow-up round
// that sees all of them, so the agent answers the conversation as it stands
// rather than every message individually.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/bdobrica/Kagami/common/timefmt"
	"github.com/bdobrica/Kagami/common/trace"
	"github.com/bdobrica/Kagami/internal/kagami/energy"
	"github.com/bdobrica/Kagami/internal/kagami/history"
	"github.com/bdobrica/Kagami/internal/kagami/llm"
	"github.com/bdobrica/Kagami/internal/kagami/observability"
	"github.com/bdobrica/Kagami/internal/kagami/prompt"
	"github.com/bdobrica/Kagami/internal/kagami/protocol"
)

// Generator produces one model response for a transcript, trying configured
// models in order. *llm.Router satisfies this.
type Generator interface {
	CallWithFallback(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// PromptSource renders the system prompt for one generation attempt.
// *prompt.Template satisfies this.
type PromptSource interface {
	Render(prompt.Context) (string, error)
}

// Transport delivers a parsed reply back to the room.
type Transport interface {
	SendReply(ctx context.Context, roomID string, reply []protocol.Segment) error
}

// Inbound is one received room message, already rendered to natural language
// by the transport adapter.
type Inbound struct {
	EventID        string
	RoomID         string
	SenderID       string
	SenderNickname string
	Text           string
	// Timestamp is the formatted receive time; Enqueue fills it when empty.
	Timestamp string
	// Mentions lists the user IDs mentioned in the message.
	Mentions []string
}

// Options configures one RoomAgent.
type Options struct {
	RoomID string
	BotID  string

	// OperatorID and OperatorNickname are interpolated into the system
	// prompt; both may be empty.
	OperatorID       string
	OperatorNickname string

	// HistoryTurns is the context window capacity; zero means the default.
	HistoryTurns int

	Energy energy.Config
	// Policy defaults to ActivePolicy when nil.
	Policy Policy

	Generator Generator
	Prompt    PromptSource
	Transport Transport
}

// RoomAgent owns one room's history window, energy gate and generation loop.
type RoomAgent struct {
	roomID   string
	botID    string
	operator prompt.Context

	policy    Policy
	gate      *energy.Gate
	generator Generator
	prompt    PromptSource
	transport Transport

	// mu guards window, pending and draining. The drain goroutine releases
	// it across model calls, so enqueues never block on generation.
	mu       sync.Mutex
	window   *history.Window
	pending  bool
	draining bool
}

// New validates the options and builds an agent. The agent's recovery ticker
// starts immediately; the caller must Stop the agent when the room is torn
// down.
func New(opts Options) (*RoomAgent, error) {
	if opts.RoomID == "" {
		return nil, fmt.Errorf("agent: room ID is required")
	}
	if opts.Generator == nil || opts.Prompt == nil || opts.Transport == nil {
		return nil, fmt.Errorf("agent: room %s: generator, prompt and transport are all required", opts.RoomID)
	}
	policy := opts.Policy
	if policy == nil {
		policy = ActivePolicy{}
	}
	return &RoomAgent{
		roomID: opts.RoomID,
		botID:  opts.BotID,
		operator: prompt.Context{
			BotID:            opts.BotID,
			OperatorID:       opts.OperatorID,
			OperatorNickname: opts.OperatorNickname,
		},
		policy:    policy,
		gate:      energy.NewGate(opts.Energy),
		generator: opts.Generator,
		prompt:    opts.Prompt,
		transport: opts.Transport,
		window:    history.NewWindow(opts.HistoryTurns),
	}, nil
}

// Enqueue records an inbound message and ensures a drain loop is running.
// It never blocks on generation and is safe to call from the sync goroutine.
func (a *RoomAgent) Enqueue(in Inbound) {
	if in.Timestamp == "" {
		in.Timestamp = timefmt.Now()
	}
	turn := history.GroupTurn{
		ID:           in.EventID,
		UserID:       in.SenderID,
		UserNickname: in.SenderNickname,
		Text:         in.Text,
		Timestamp:    in.Timestamp,
		Mentions:     in.Mentions,
	}

	a.mu.Lock()
	a.window.Append(turn)
	a.pending = true
	if a.draining {
		// The running loop will observe pending on its next pass.
		a.mu.Unlock()
		return
	}
	a.draining = true
	a.mu.Unlock()

	go a.drain()
}

// drain runs generation rounds until no message arrived during the last one.
// Exactly one drain goroutine exists per room at any time.
func (a *RoomAgent) drain() {
	for {
		a.mu.Lock()
		if !a.pending {
			a.draining = false
			a.mu.Unlock()
			return
		}
		a.pending = false
		a.mu.Unlock()

		ctx := trace.WithTraceID(context.Background(), trace.GenerateID())
		if err := a.round(ctx); err != nil {
			observability.WithTrace(ctx).Error("agent: generation round failed",
				"room", a.roomID, "err", err)
		}
	}
}

// round runs one generation attempt against the current window. Round errors
// abort the attempt only; the drain loop always proceeds to its next check.
func (a *RoomAgent) round(ctx context.Context) error {
	a.mu.Lock()
	attempt := a.policy.ShouldAttemptReply(a.window, a.gate)
	a.mu.Unlock()

	if !attempt {
		// Declined without calling the model. Record the silence so the
		// model sees it once the room does warrant a reply.
		observability.WithTrace(ctx).Debug("agent: round skipped by policy", "room", a.roomID, "energy", a.gate.Current())
		a.appendBotTurn(history.BotTurn{})
		return nil
	}

	// Reserve the reply cost up front. Refunded below if the model decides
	// not to speak; kept on provider failure so broken rounds still cost.
	if !a.gate.Consume() {
		observability.WithTrace(ctx).Debug("agent: round skipped, energy exhausted", "room", a.roomID, "energy", a.gate.Current())
		a.appendBotTurn(history.BotTurn{})
		return nil
	}

	promptCtx := a.operator
	promptCtx.CurrentTime = timefmt.Now()
	system, err := a.prompt.Render(promptCtx)
	if err != nil {
		a.gate.Refund()
		return fmt.Errorf("render system prompt: %w", err)
	}

	a.mu.Lock()
	transcript := a.window.Render(system)
	a.mu.Unlock()

	resp, err := a.generator.CallWithFallback(ctx, llm.Request{
		Messages:     transcript,
		OutputFormat: llm.OutputJSON,
	})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	decision := protocol.Parse(resp.Content)
	if !decision.HasReply() {
		a.gate.Refund()
	}
	a.appendBotTurn(history.BotTurn{Thoughts: decision.Thoughts, Reply: decision.Reply})

	if !decision.HasReply() {
		observability.WithTrace(ctx).Info("agent: model declined to reply",
			"room", a.roomID, "thoughts", len(decision.Thoughts))
		return nil
	}

	if err := a.transport.SendReply(ctx, a.roomID, decision.Reply); err != nil {
		// The turn stays in history; the model believes it spoke.
		return fmt.Errorf("send reply: %w", err)
	}
	observability.WithTrace(ctx).Info("agent: replied",
		"room", a.roomID, "energy", a.gate.Current())
	return nil
}

func (a *RoomAgent) appendBotTurn(t history.BotTurn) {
	a.mu.Lock()
	a.window.Append(t)
	a.mu.Unlock()
}

// RoomID returns the room this agent serves.
func (a *RoomAgent) RoomID() string { return a.roomID }

// Stop tears down the agent's background resources. In-flight rounds finish
// on their own; no new recovery ticks occur afterwards.
func (a *RoomAgent) Stop() {
	a.gate.Stop()
}
