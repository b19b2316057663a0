// Copyright 2024-2026 Aiku AI

package bridge

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"
)

// localMessageLimit is the local platform's maximum message length.
// Diagnostic dumps are truncated to fit inside a code block within it.
const localMessageLimit = 2000

// MessageEmbed is the rich message card sent to local channels.
type MessageEmbed struct {
	Title       string
	Description string
	Color       int
	AuthorName  string
	AuthorIcon  string
	ImageURL    string
	Timestamp   time.Time
	Fields      []EmbedField
}

// EmbedField is one name/value pair on an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

const (
	colorError   = 0xff0000
	colorSuccess = 0x0fff0f
)

// userColor derives a deterministic 24-bit display color from a remote
// user id, so one sender always renders with the same accent.
func userColor(userID string) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32() & 0xffffff)
}

// messageHeader builds the base embed for a relayed remote message:
// author name and avatar, per-user color and the original remote timestamp.
func messageHeader(author *RemoteUser, ts time.Time) *MessageEmbed {
	return &MessageEmbed{
		AuthorName: author.Username,
		AuthorIcon: author.AvatarURL,
		Color:      userColor(author.ID),
		Timestamp:  ts,
	}
}

// errorEmbed formats a handler failure as a red diagnostic card.
func errorEmbed(title string, err error) *MessageEmbed {
	if title == "" {
		title = "Error"
	}
	return &MessageEmbed{
		Title:       title,
		Description: truncate(fmt.Sprintf("%+v", err), localMessageLimit-len(title)-64),
		Color:       colorError,
	}
}

// rawDump pretty-prints an unrecognized payload as a JSON code block,
// truncated to the local message limit.
func rawDump(raw json.RawMessage) string {
	var pretty []byte
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		pretty, _ = json.MarshalIndent(decoded, "", "  ")
	}
	if pretty == nil {
		pretty = raw
	}
	const fence = "```json\n"
	body := truncate(string(pretty), localMessageLimit-len(fence)-4)
	return fence + body + "\n```"
}

func truncate(s string, max int) string {
	if max < 0 {
		max = 0
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// summaryEmbed formats a search hit: thread title plus member count for a
// conversation, username plus full name for a bare user.
func summaryEmbed(query string, result *SearchResult) *MessageEmbed {
	embed := &MessageEmbed{
		Title: query,
		Color: colorSuccess,
	}
	if result.Conversation != nil {
		embed.Fields = []EmbedField{
			{Name: "Thread Title", Value: result.Conversation.Title},
			{Name: "Members", Value: fmt.Sprintf("%d", len(result.Conversation.ParticipantIDs))},
		}
	} else {
		embed.Fields = []EmbedField{
			{Name: "Username", Value: result.User.Username},
			{Name: "Full Name", Value: result.User.DisplayName},
		}
	}
	return embed
}
