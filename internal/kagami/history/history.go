// Package history keeps the per-room conversation window and renders it into
// the provider-neutral transcript sent to the language model.
//
// The window is a bounded FIFO: old turns fall off the front once capacity is
// reached. It is exclusively owned by one room agent and is not safe for
// concurrent use — the agent's drain loop is the only mutator.
package history

import (
	"fmt"

	"github.com/bdobrica/Kagami/internal/kagami/llm"
	"github.com/bdobrica/Kagami/internal/kagami/protocol"
)

// Turn is a tagged variant: either a GroupTurn or a BotTurn.
type Turn interface{ isTurn() }

// GroupTurn is one transcribed inbound room message. Text is the natural
// language rendering of the raw event (mentions resolved to nicknames,
// quoted replies block-quoted); the sender line is added at render time.
type GroupTurn struct {
	ID           string
	UserID       string
	UserNickname string // empty when the transport could not resolve one
	Text         string
	Timestamp    string
	// Mentions holds the user IDs mentioned in the message, used by the
	// passive reply policy.
	Mentions []string
}

// BotTurn records what the agent decided. A BotTurn with no Reply means the
// agent chose not to speak; it is retained so the model sees its own silence.
type BotTurn struct {
	Thoughts []string
	Reply    []protocol.Segment
}

func (GroupTurn) isTurn() {}
func (BotTurn) isTurn()   {}

// DefaultCapacity is the window size used when none is configured.
const DefaultCapacity = 40

// Window is the bounded ordered log of turns for one room.
type Window struct {
	capacity int
	turns    []Turn
}

// NewWindow creates a window holding at most capacity turns.
// Non-positive capacities fall back to DefaultCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{capacity: capacity}
}

// Append pushes a turn onto the back, evicting from the front when full.
func (w *Window) Append(t Turn) {
	w.turns = append(w.turns, t)
	if len(w.turns) > w.capacity {
		// Shift rather than reslice so evicted turns are actually released.
		copy(w.turns, w.turns[1:])
		w.turns[len(w.turns)-1] = nil
		w.turns = w.turns[:len(w.turns)-1]
	}
}

// Len returns the number of turns currently held.
func (w *Window) Len() int { return len(w.turns) }

// Last returns the most recent turn, if any.
func (w *Window) Last() (Turn, bool) {
	if len(w.turns) == 0 {
		return nil, false
	}
	return w.turns[len(w.turns)-1], true
}

// Turns returns a snapshot copy of the window contents, oldest first.
func (w *Window) Turns() []Turn {
	return append([]Turn(nil), w.turns...)
}

const unknownNickname = "unknown"

// justSpokeReminder is appended as a synthetic user entry when the bot's own
// reply is the newest turn, to discourage it from immediately speaking again.
const justSpokeReminder = "[note] Your reply above was just sent to the room. " +
	"Stay quiet unless the conversation genuinely calls for another message."

// Render builds the transcript for one generation attempt: the system prompt
// first, then every turn in order, then the just-spoke reminder when the
// newest turn is a bot reply.
//
// Render is a pure function of the window contents and systemPrompt; it never
// mutates the window and may be called any number of times.
func (w *Window) Render(systemPrompt string) []llm.Message {
	messages := make([]llm.Message, 0, len(w.turns)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})

	for _, turn := range w.turns {
		switch t := turn.(type) {
		case GroupTurn:
			nickname := t.UserNickname
			if nickname == "" {
				nickname = unknownNickname
			}
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("%s(%s):\n%s", nickname, t.UserID, t.Text),
			})
		case BotTurn:
			// Bot turns are replayed in the exact output wire shape so the
			// model keeps seeing well-formed examples of the protocol.
			messages = append(messages, llm.Message{
				Role:    llm.RoleAssistant,
				Content: protocol.Encode(t.Thoughts, t.Reply),
			})
		}
	}

	if last, ok := w.Last(); ok {
		if bot, ok := last.(BotTurn); ok && len(bot.Reply) > 0 {
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: justSpokeReminder,
			})
		}
	}

	return messages
}
