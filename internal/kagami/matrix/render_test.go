package matrix

import (
	"strings"
	"testing"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Kagami/internal/kagami/protocol"
)

func resolveTest(userID string) string {
	switch userID {
	case "@alice:example.com":
		return "alice"
	case "@kagami:example.com":
		return "kagami"
	}
	return ""
}

func TestStripReplyFallback(t *testing.T) {
	body := "> <@alice:example.com> earlier message\n> second quoted line\n\nthe actual reply"
	if got := stripReplyFallback(body); got != "the actual reply" {
		t.Errorf("stripReplyFallback = %q", got)
	}
}

func TestStripReplyFallback_NoFallback(t *testing.T) {
	if got := stripReplyFallback("plain message"); got != "plain message" {
		t.Errorf("stripReplyFallback = %q", got)
	}
}

func TestRenderInbound_MentionsResolved(t *testing.T) {
	got := renderInbound("hey @alice:example.com, look at this", []string{"@alice:example.com"}, nil, resolveTest)
	if got != "hey @alice(@alice:example.com), look at this" {
		t.Errorf("renderInbound = %q", got)
	}
}

func TestRenderInbound_UnknownNickname(t *testing.T) {
	got := renderInbound("ping @bob:example.com", []string{"@bob:example.com"}, nil, resolveTest)
	if !strings.Contains(got, "@unknown(@bob:example.com)") {
		t.Errorf("renderInbound = %q, want unknown fallback", got)
	}
}

func TestRenderInbound_QuoteInlined(t *testing.T) {
	quoted := &quotedMessage{
		Sender:   "@alice:example.com",
		Nickname: "alice",
		Body:     "the original\nmulti-line text",
	}
	got := renderInbound("I agree", nil, quoted, resolveTest)
	want := "> alice(@alice:example.com): the original multi-line text\nI agree"
	if got != want {
		t.Errorf("renderInbound = %q, want %q", got, want)
	}
}

func TestRenderInbound_LongQuoteTruncated(t *testing.T) {
	quoted := &quotedMessage{
		Sender:   "@alice:example.com",
		Nickname: "alice",
		Body:     strings.Repeat("x", 500),
	}
	got := renderInbound("ok", nil, quoted, resolveTest)
	firstLine := strings.SplitN(got, "\n", 2)[0]
	if len(firstLine) > maxQuoteLen+100 {
		t.Errorf("quote line not truncated: %d chars", len(firstLine))
	}
	if !strings.HasSuffix(firstLine, "…") {
		t.Errorf("truncated quote should end with ellipsis: %q", firstLine)
	}
}

func TestRenderInbound_QuoteMarkersNotNested(t *testing.T) {
	// The quoted body arrives pre-stripped; rendering must produce exactly
	// one level of quoting.
	quoted := &quotedMessage{Sender: "@alice:example.com", Nickname: "alice", Body: "original"}
	got := renderInbound("reply", nil, quoted, resolveTest)
	if strings.Contains(got, "> >") {
		t.Errorf("nested quote markers in %q", got)
	}
}

func TestRenderOutbound(t *testing.T) {
	reply := []protocol.Segment{
		{Type: protocol.SegmentMention, UserID: "@alice:example.com"},
		{Type: protocol.SegmentText, Value: "good morning"},
	}
	body, mentioned := renderOutbound(reply, resolveTest)
	if body != "@alice good morning" {
		t.Errorf("body = %q", body)
	}
	if len(mentioned) != 1 || mentioned[0] != "@alice:example.com" {
		t.Errorf("mentioned = %v", mentioned)
	}
}

func TestRenderOutbound_UnresolvedMentionUsesID(t *testing.T) {
	reply := []protocol.Segment{
		{Type: protocol.SegmentMention, UserID: "@bob:example.com"},
		{Type: protocol.SegmentText, Value: "hello"},
	}
	body, _ := renderOutbound(reply, resolveTest)
	if body != "@bob:example.com hello" {
		t.Errorf("body = %q", body)
	}
}

func TestRenderOutbound_DeduplicatesMentions(t *testing.T) {
	reply := []protocol.Segment{
		{Type: protocol.SegmentMention, UserID: "@alice:example.com"},
		{Type: protocol.SegmentText, Value: "and again "},
		{Type: protocol.SegmentMention, UserID: "@alice:example.com"},
	}
	_, mentioned := renderOutbound(reply, resolveTest)
	if len(mentioned) != 1 {
		t.Errorf("mentioned = %v, want deduplicated", mentioned)
	}
}

func TestRenderOutbound_EmptySegmentsEmptyBody(t *testing.T) {
	body, mentioned := renderOutbound(nil, resolveTest)
	if body != "" || mentioned != nil {
		t.Errorf("body=%q mentioned=%v, want empty", body, mentioned)
	}
}

func TestMentionedUserIDs(t *testing.T) {
	msg := &event.MessageEventContent{
		Mentions: &event.Mentions{UserIDs: []id.UserID{"@alice:example.com", "@kagami:example.com"}},
	}
	got := mentionedUserIDs(msg)
	if len(got) != 2 || got[0] != "@alice:example.com" {
		t.Errorf("mentionedUserIDs = %v", got)
	}

	if got := mentionedUserIDs(&event.MessageEventContent{}); got != nil {
		t.Errorf("mentionedUserIDs without block = %v, want nil", got)
	}
}

func TestReplyTarget(t *testing.T) {
	msg := &event.MessageEventContent{
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: "$orig:example.com"},
		},
	}
	if got := replyTarget(msg); got != "$orig:example.com" {
		t.Errorf("replyTarget = %q", got)
	}
	if got := replyTarget(&event.MessageEventContent{}); got != "" {
		t.Errorf("replyTarget without relation = %q, want empty", got)
	}
}
