// Package protocol implements the structured output protocol spoken between
// Kagami and its language models.
//
// The model is instructed to answer with a JSON array of items:
//
//	[
//	  {"type": "thought", "content": "the user seems upset"},
//	  {"type": "chat", "content": [{"type": "text", "value": "hi"}]}
//	]
//
// Thought items are private reasoning lines. At most one chat item carries the
// user-visible reply. An array without a chat item means the model chose not
// to speak. The same wire shape is replayed verbatim as assistant turns in the
// transcript so the model sees its own prior output format.
package protocol

import (
	"encoding/json"
	"log/slog"
)

// Segment types understood by the outbound renderer.
const (
	SegmentText    = "text"
	SegmentMention = "at"
)

// Segment is a single fragment of a user-visible reply.
type Segment struct {
	Type string `json:"type"`
	// Value is the text for "text" segments.
	Value string `json:"value,omitempty"`
	// UserID identifies the mentioned user for "at" segments.
	UserID string `json:"user_id,omitempty"`
}

// Decision is the validated result of parsing one model response.
type Decision struct {
	// Thoughts are the private reasoning lines, in emission order.
	Thoughts []string
	// Reply is the user-visible reply. nil means the model produced no chat
	// item (or the response was unparseable); an empty non-nil slice means a
	// chat item with empty content. Neither is sent to the room.
	Reply []Segment
}

// HasReply reports whether the decision carries anything worth sending.
func (d Decision) HasReply() bool {
	return len(d.Reply) > 0
}

// item is the wire shape of one response array element.
type item struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// Parse decodes raw model output into a Decision.
//
// Parse never fails: malformed input (non-JSON, non-array top level, items of
// unknown shape) collapses to an empty Decision, which the caller treats as
// "the model chose not to speak". The raw text is still logged verbatim by the
// router, so nothing is lost for forensics.
func Parse(raw string) Decision {
	var items []item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		slog.Warn("protocol: model output is not a JSON array, treating as no reply", "err", err)
		return Decision{}
	}

	var d Decision
	for _, it := range items {
		switch it.Type {
		case "thought":
			var content string
			if err := json.Unmarshal(it.Content, &content); err != nil {
				slog.Warn("protocol: skipping thought item with non-string content", "err", err)
				continue
			}
			d.Thoughts = append(d.Thoughts, content)
		case "chat":
			var segments []Segment
			if err := json.Unmarshal(it.Content, &segments); err != nil {
				slog.Warn("protocol: skipping chat item with malformed content", "err", err)
				continue
			}
			if d.Reply != nil {
				// First chat item wins; later ones are a protocol violation
				// but not worth failing the round over.
				slog.Warn("protocol: multiple chat items in response, keeping the first")
				continue
			}
			if segments == nil {
				segments = []Segment{}
			}
			d.Reply = segments
		default:
			slog.Warn("protocol: unknown item type in response", "type", it.Type)
		}
	}
	return d
}

// Encode renders thoughts and an optional reply back into the wire shape.
// It is used to replay bot turns as assistant transcript entries.
func Encode(thoughts []string, reply []Segment) string {
	items := make([]json.RawMessage, 0, len(thoughts)+1)
	for _, th := range thoughts {
		b, err := json.Marshal(struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}{"thought", th})
		if err != nil {
			continue
		}
		items = append(items, b)
	}
	if len(reply) > 0 {
		b, err := json.Marshal(struct {
			Type    string    `json:"type"`
			Content []Segment `json:"content"`
		}{"chat", reply})
		if err == nil {
			items = append(items, b)
		}
	}
	out, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(out)
}

// PlainText flattens segments into a loggable string. Mentions render as
// @user_id so log lines stay readable without room state.
func PlainText(segments []Segment) string {
	var out []byte
	for _, s := range segments {
		switch s.Type {
		case SegmentText:
			out = append(out, s.Value...)
		case SegmentMention:
			out = append(out, '@')
			out = append(out, s.UserID...)
			out = append(out, ' ')
		}
	}
	return string(out)
}
