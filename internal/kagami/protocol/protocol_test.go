package protocol

import (
	"encoding/json"
	"testing"
)

func TestParse_ThoughtsAndReply(t *testing.T) {
	raw := `[
		{"type":"thought","content":"they are asking about the weather"},
		{"type":"thought","content":"I should answer briefly"},
		{"type":"chat","content":[{"type":"text","value":"sunny today"}]}
	]`

	d := Parse(raw)
	if len(d.Thoughts) != 2 {
		t.Fatalf("got %d thoughts, want 2", len(d.Thoughts))
	}
	if d.Thoughts[0] != "they are asking about the weather" {
		t.Errorf("unexpected first thought: %q", d.Thoughts[0])
	}
	if !d.HasReply() {
		t.Fatal("expected a reply")
	}
	if d.Reply[0].Value != "sunny today" {
		t.Errorf("unexpected reply text: %q", d.Reply[0].Value)
	}
}

func TestParse_NonJSON(t *testing.T) {
	d := Parse("not json")
	if len(d.Thoughts) != 0 {
		t.Errorf("got %d thoughts, want 0", len(d.Thoughts))
	}
	if d.Reply != nil {
		t.Errorf("got reply %v, want nil", d.Reply)
	}
	if d.HasReply() {
		t.Error("HasReply should be false for unparseable input")
	}
}

func TestParse_NonArrayTopLevel(t *testing.T) {
	d := Parse(`{"type":"chat","content":[]}`)
	if d.Reply != nil || len(d.Thoughts) != 0 {
		t.Errorf("non-array input should yield empty decision, got %+v", d)
	}
}

func TestParse_FirstChatItemWins(t *testing.T) {
	raw := `[{"type":"thought","content":"x"},{"type":"chat","content":[]}, {"type":"chat","content":[{"type":"text","value":"hi"}]}]`

	d := Parse(raw)
	if len(d.Thoughts) != 1 || d.Thoughts[0] != "x" {
		t.Fatalf("got thoughts %v, want [x]", d.Thoughts)
	}
	// The first chat item had empty content; the second must be discarded.
	if d.Reply == nil {
		t.Fatal("reply should be present (the first, empty, chat item)")
	}
	if len(d.Reply) != 0 {
		t.Errorf("got reply %v, want empty slice from the first chat item", d.Reply)
	}
	if d.HasReply() {
		t.Error("an empty chat item is not a sendable reply")
	}
}

func TestParse_NoChatItem(t *testing.T) {
	d := Parse(`[{"type":"thought","content":"better to stay quiet"}]`)
	if d.Reply != nil {
		t.Errorf("got reply %v, want nil (deliberate silence)", d.Reply)
	}
	if len(d.Thoughts) != 1 {
		t.Errorf("got %d thoughts, want 1", len(d.Thoughts))
	}
}

func TestParse_SkipsMalformedItems(t *testing.T) {
	raw := `[
		{"type":"thought","content":42},
		{"type":"banana","content":"?"},
		{"type":"chat","content":"not an array"},
		{"type":"thought","content":"ok"},
		{"type":"chat","content":[{"type":"text","value":"still works"}]}
	]`

	d := Parse(raw)
	if len(d.Thoughts) != 1 || d.Thoughts[0] != "ok" {
		t.Errorf("got thoughts %v, want [ok]", d.Thoughts)
	}
	if !d.HasReply() || d.Reply[0].Value != "still works" {
		t.Errorf("got reply %v, want the valid chat item", d.Reply)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	thoughts := []string{"first", "second"}
	reply := []Segment{
		{Type: SegmentMention, UserID: "@alice:example.com"},
		{Type: SegmentText, Value: "hello"},
	}

	encoded := Encode(thoughts, reply)

	// Encoded form must itself be valid protocol output.
	d := Parse(encoded)
	if len(d.Thoughts) != 2 || d.Thoughts[1] != "second" {
		t.Errorf("round-trip thoughts: got %v", d.Thoughts)
	}
	if len(d.Reply) != 2 || d.Reply[1].Value != "hello" {
		t.Errorf("round-trip reply: got %v", d.Reply)
	}
}

func TestEncode_NoReplyOmitsChatItem(t *testing.T) {
	encoded := Encode([]string{"quiet"}, nil)

	var items []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(encoded), &items); err != nil {
		t.Fatalf("encoded output is not valid JSON: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want only the thought", len(items))
	}
}

func TestEncode_EmptyTurn(t *testing.T) {
	if got := Encode(nil, nil); got != "[]" {
		t.Errorf("empty turn should encode as [], got %q", got)
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText([]Segment{
		{Type: SegmentMention, UserID: "@bob:example.com"},
		{Type: SegmentText, Value: "take a look"},
	})
	want := "@bob:example.com take a look"
	if got != want {
		t.Errorf("PlainText = %q, want %q", got, want)
	}
}
