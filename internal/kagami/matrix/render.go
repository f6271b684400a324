package matrix

// render.go converts between Matrix message events and the natural-language
// text the model sees, in both directions. Everything here is pure so the
// rendering rules can be tested without a homeserver.

import (
	"fmt"
	"strings"

	"maunium.net/go/mautrix/event"

	"github.com/bdobrica/Kagami/internal/kagami/protocol"
)

// maxQuoteLen caps how much of a quoted message is inlined into the
// transcript.
const maxQuoteLen = 200

const unknownNickname = "unknown"

// quotedMessage is the replied-to message, resolved for inlining.
type quotedMessage struct {
	Sender   string
	Nickname string
	Body     string
}

// mentionedUserIDs extracts the m.mentions user list.
func mentionedUserIDs(msg *event.MessageEventContent) []string {
	if msg.Mentions == nil {
		return nil
	}
	out := make([]string, 0, len(msg.Mentions.UserIDs))
	for _, uid := range msg.Mentions.UserIDs {
		out = append(out, uid.String())
	}
	return out
}

// replyTarget returns the replied-to event ID, or "" when the message is not
// a reply.
func replyTarget(msg *event.MessageEventContent) string {
	if msg.RelatesTo == nil {
		return ""
	}
	return msg.RelatesTo.GetReplyTo().String()
}

// stripReplyFallback removes the legacy "> quoted line" fallback prefix that
// clients prepend to reply bodies, leaving only the new message text.
func stripReplyFallback(body string) string {
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], "> ") {
		i++
	}
	// The fallback block is separated from the real body by one empty line.
	if i > 0 && i < len(lines) && lines[i] == "" {
		i++
	}
	return strings.Join(lines[i:], "\n")
}

// renderInbound produces the transcript text for one inbound message:
// mention MXIDs become "@nickname(mxid)", and a quoted reply is inlined as a
// single block-quote line above the message. Quotes are never nested; the
// quoted text itself has its own quote markers stripped.
func renderInbound(body string, mentions []string, quoted *quotedMessage, resolve func(string) string) string {
	text := stripReplyFallback(body)

	for _, uid := range mentions {
		text = strings.ReplaceAll(text, uid, mentionLabel(uid, resolve(uid)))
	}

	if quoted != nil {
		quote := strings.Join(strings.Fields(quoted.Body), " ")
		if len(quote) > maxQuoteLen {
			quote = quote[:maxQuoteLen] + "…"
		}
		nickname := quoted.Nickname
		if nickname == "" {
			nickname = unknownNickname
		}
		text = fmt.Sprintf("> %s(%s): %s\n%s", nickname, quoted.Sender, quote, text)
	}

	return text
}

// renderOutbound flattens reply segments into a plain-text body and collects
// the mentioned user IDs for the m.mentions block.
func renderOutbound(reply []protocol.Segment, resolve func(string) string) (string, []string) {
	var b strings.Builder
	var mentioned []string
	seen := make(map[string]bool)

	for _, seg := range reply {
		switch seg.Type {
		case protocol.SegmentText:
			b.WriteString(seg.Value)
		case protocol.SegmentMention:
			if seg.UserID == "" {
				continue
			}
			// Humans see the nickname; the m.mentions block carries the ID.
			if nickname := resolve(seg.UserID); nickname != "" {
				b.WriteString("@" + nickname)
			} else {
				b.WriteString(seg.UserID)
			}
			b.WriteString(" ")
			if !seen[seg.UserID] {
				seen[seg.UserID] = true
				mentioned = append(mentioned, seg.UserID)
			}
		}
	}

	return strings.TrimSpace(b.String()), mentioned
}

// mentionLabel renders a mention as "@nickname(mxid)" so the model sees both
// the human name and the stable ID.
func mentionLabel(userID, nickname string) string {
	if nickname == "" {
		nickname = unknownNickname
	}
	return fmt.Sprintf("@%s(%s)", nickname, userID)
}
