package archive

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/transport"
)

// RenderMarkdown renders a conversation as a Markdown transcript. The
// message sequence is recovered by walking the mapping from current_node up
// to the root, then reversing, which yields the active branch of the
// conversation tree.
func RenderMarkdown(body *transport.ConversationBody) string {
	var b strings.Builder

	title := body.Title
	if title == "" {
		title = body.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- id: %s\n", body.ID)
	if t := body.CreateTime.Seconds(); t > 0 {
		fmt.Fprintf(&b, "- created: %s\n", formatSeconds(t))
	}
	if t := body.UpdateTime.Seconds(); t > 0 {
		fmt.Fprintf(&b, "- updated: %s\n", formatSeconds(t))
	}
	b.WriteString("\n")

	for _, node := range activeBranch(body) {
		msg := node.Message
		if msg == nil || msg.Author.Role == "system" {
			continue
		}
		text := messageText(msg)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", msg.Author.Role, text)
	}
	return b.String()
}

// activeBranch walks parent links from current_node to the root and returns
// the chain in root-first order. A broken or cyclic mapping terminates the
// walk instead of looping.
func activeBranch(body *transport.ConversationBody) []transport.MappingNode {
	var chain []transport.MappingNode
	visited := make(map[string]bool)

	id := body.CurrentNode
	for id != "" && !visited[id] {
		visited[id] = true
		node, ok := body.Mapping[id]
		if !ok {
			break
		}
		chain = append(chain, node)
		id = node.Parent
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// messageText joins the plain-text parts of a message. Non-string parts
// (images, tool payloads) are skipped.
func messageText(msg *transport.Message) string {
	var parts []string
	for _, raw := range msg.Content.Parts {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func formatSeconds(sec float64) string {
	return time.Unix(int64(sec), 0).UTC().Format(time.RFC3339)
}
