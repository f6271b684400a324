package history

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bdobrica/Kagami/internal/kagami/llm"
	"github.com/bdobrica/Kagami/internal/kagami/protocol"
)

func groupTurn(i int) GroupTurn {
	return GroupTurn{
		ID:           fmt.Sprintf("msg-%d", i),
		UserID:       "@alice:example.com",
		UserNickname: "alice",
		Text:         fmt.Sprintf("message %d", i),
		Timestamp:    "2026-03-01 12:00:00",
	}
}

func TestWindow_BoundedFIFO(t *testing.T) {
	const capacity = 5
	w := NewWindow(capacity)

	for i := 0; i < capacity+3; i++ {
		w.Append(groupTurn(i))
	}

	if w.Len() != capacity {
		t.Fatalf("Len = %d, want %d", w.Len(), capacity)
	}

	turns := w.Turns()
	for i, turn := range turns {
		gt := turn.(GroupTurn)
		wantID := fmt.Sprintf("msg-%d", i+3) // first three evicted
		if gt.ID != wantID {
			t.Errorf("turns[%d].ID = %q, want %q", i, gt.ID, wantID)
		}
	}
}

func TestWindow_DefaultCapacity(t *testing.T) {
	w := NewWindow(0)
	for i := 0; i < DefaultCapacity+10; i++ {
		w.Append(groupTurn(i))
	}
	if w.Len() != DefaultCapacity {
		t.Errorf("Len = %d, want default %d", w.Len(), DefaultCapacity)
	}
}

func TestWindow_TurnsIsSnapshot(t *testing.T) {
	w := NewWindow(10)
	w.Append(groupTurn(0))

	snapshot := w.Turns()
	w.Append(groupTurn(1))

	if len(snapshot) != 1 {
		t.Errorf("snapshot grew with the window: len = %d", len(snapshot))
	}
}

func TestRender_SystemPromptFirst(t *testing.T) {
	w := NewWindow(10)
	w.Append(groupTurn(0))

	messages := w.Render("you are kagami")
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Role != llm.RoleSystem || messages[0].Content != "you are kagami" {
		t.Errorf("first entry = %+v, want the system prompt", messages[0])
	}
}

func TestRender_GroupTurnFormat(t *testing.T) {
	w := NewWindow(10)
	w.Append(GroupTurn{
		UserID:       "@bob:example.com",
		UserNickname: "bob",
		Text:         "how are you?",
	})

	messages := w.Render("sys")
	want := "bob(@bob:example.com):\nhow are you?"
	if messages[1].Role != llm.RoleUser || messages[1].Content != want {
		t.Errorf("user entry = %+v, want content %q", messages[1], want)
	}
}

func TestRender_UnknownNicknameFallback(t *testing.T) {
	w := NewWindow(10)
	w.Append(GroupTurn{UserID: "@ghost:example.com", Text: "boo"})

	messages := w.Render("sys")
	if !strings.HasPrefix(messages[1].Content, "unknown(@ghost:example.com):") {
		t.Errorf("missing nickname fallback, got %q", messages[1].Content)
	}
}

func TestRender_BotTurnReplayedAsProtocol(t *testing.T) {
	w := NewWindow(10)
	w.Append(groupTurn(0))
	w.Append(BotTurn{
		Thoughts: []string{"they greeted me"},
		Reply:    []protocol.Segment{{Type: protocol.SegmentText, Value: "hello!"}},
	})
	w.Append(groupTurn(1)) // avoid the tail reminder in this test

	messages := w.Render("sys")
	assistant := messages[2]
	if assistant.Role != llm.RoleAssistant {
		t.Fatalf("entry role = %s, want assistant", assistant.Role)
	}

	// The assistant content must be valid protocol output.
	d := protocol.Parse(assistant.Content)
	if len(d.Thoughts) != 1 || d.Thoughts[0] != "they greeted me" {
		t.Errorf("replayed thoughts = %v", d.Thoughts)
	}
	if !d.HasReply() || d.Reply[0].Value != "hello!" {
		t.Errorf("replayed reply = %v", d.Reply)
	}
}

func TestRender_SilentBotTurnRetained(t *testing.T) {
	w := NewWindow(10)
	w.Append(groupTurn(0))
	w.Append(BotTurn{Thoughts: []string{"nothing to add"}})

	messages := w.Render("sys")
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3 (no tail reminder for silence)", len(messages))
	}
	if messages[2].Role != llm.RoleAssistant {
		t.Errorf("silent bot turn should still appear as an assistant entry")
	}
}

func TestRender_JustSpokeReminder(t *testing.T) {
	w := NewWindow(10)
	w.Append(groupTurn(0))
	w.Append(BotTurn{
		Reply: []protocol.Segment{{Type: protocol.SegmentText, Value: "hi"}},
	})

	messages := w.Render("sys")
	last := messages[len(messages)-1]
	if last.Role != llm.RoleUser {
		t.Fatalf("tail entry role = %s, want user", last.Role)
	}
	if !strings.Contains(last.Content, "just sent") {
		t.Errorf("tail entry does not look like the just-spoke reminder: %q", last.Content)
	}
}

func TestRender_NoReminderWhenGroupTurnIsLast(t *testing.T) {
	w := NewWindow(10)
	w.Append(BotTurn{Reply: []protocol.Segment{{Type: protocol.SegmentText, Value: "hi"}}})
	w.Append(groupTurn(0))

	messages := w.Render("sys")
	// system + bot + group, no synthetic tail
	if len(messages) != 3 {
		t.Errorf("got %d messages, want 3", len(messages))
	}
}

func TestRender_Pure(t *testing.T) {
	w := NewWindow(10)
	w.Append(groupTurn(0))
	w.Append(BotTurn{Reply: []protocol.Segment{{Type: protocol.SegmentText, Value: "hi"}}})

	first := w.Render("sys")
	second := w.Render("sys")
	if len(first) != len(second) {
		t.Fatalf("repeated renders differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Role != second[i].Role || first[i].Content != second[i].Content {
			t.Errorf("entry %d differs between renders", i)
		}
	}
	if w.Len() != 2 {
		t.Errorf("render mutated the window: len = %d", w.Len())
	}
}
