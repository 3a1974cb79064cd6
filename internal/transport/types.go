package transport

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// UnixTime is an epoch timestamp in seconds. The remote is inconsistent
// about the encoding: some deployments return fractional seconds as a JSON
// number, others return an RFC 3339 string. Both decode to seconds here.
type UnixTime float64

func (t *UnixTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*t = 0
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			*t = UnixTime(float64(parsed.UnixNano()) / float64(time.Second))
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*t = UnixTime(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*t = UnixTime(f)
	return nil
}

func (t UnixTime) Seconds() float64 {
	return float64(t)
}

// Conversation is one entry of a listing page.
type Conversation struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	CreateTime UnixTime `json:"create_time"`
	UpdateTime UnixTime `json:"update_time"`
}

// Page is a normalized listing page. Total is 0 when the remote omits it;
// HasMoreSet records whether the remote sent an explicit more-data signal.
type Page struct {
	Items      []Conversation
	Total      int
	HasMore    bool
	HasMoreSet bool
}

// MinUpdateTime returns the smallest observed update time on the page, the
// signal the partial-pass stopping rule keys on. Items without an update
// time fall back to their create time.
func (p *Page) MinUpdateTime() float64 {
	min := 0.0
	for i, c := range p.Items {
		t := ObservedTime(c)
		if i == 0 || t < min {
			min = t
		}
	}
	return min
}

// ObservedTime is the freshest timestamp the listing exposes for an item:
// its update time, or its create time when no update time was assigned.
func ObservedTime(c Conversation) float64 {
	if c.UpdateTime > 0 {
		return c.UpdateTime.Seconds()
	}
	return c.CreateTime.Seconds()
}

// ConversationBody is a fully fetched conversation. Raw preserves the exact
// remote payload for archival; the typed fields cover what the engine and
// the Markdown renderer need.
type ConversationBody struct {
	ID          string
	Title       string
	CreateTime  UnixTime
	UpdateTime  UnixTime
	Mapping     map[string]MappingNode
	CurrentNode string
	Raw         json.RawMessage
}

type MappingNode struct {
	ID       string   `json:"id"`
	Parent   string   `json:"parent"`
	Children []string `json:"children"`
	Message  *Message `json:"message"`
}

type Message struct {
	ID         string         `json:"id"`
	Author     MessageAuthor  `json:"author"`
	CreateTime UnixTime       `json:"create_time"`
	Content    MessageContent `json:"content"`
}

type MessageAuthor struct {
	Role string `json:"role"`
}

type MessageContent struct {
	ContentType string            `json:"content_type"`
	Parts       []json.RawMessage `json:"parts"`
}
