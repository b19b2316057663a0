// Copyright 2024-2026 Aiku AI

package bridge

import (
	"encoding/json"
	"time"
)

// RemoteUser is a cached remote platform profile. Entries live for the
// process lifetime and are refreshed in place by presence events.
type RemoteUser struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`

	LastActiveAt  time.Time     `json:"last_active_at,omitzero"`
	LastActiveGap time.Duration `json:"last_active_gap,omitempty"`
	IsActive      bool          `json:"is_active,omitempty"`
	// ActivityToken is rotated on every presence update; the previous
	// token is kept so stale notifications can be cleared.
	ActivityToken        string `json:"activity_token,omitempty"`
	ClearedActivityToken string `json:"cleared_activity_token,omitempty"`
}

// RemoteConversation is a cached remote DM thread. The ID may be empty for
// a freshly created conversation that the platform has not assigned an
// identifier to yet; such conversations are addressed by participant set.
type RemoteConversation struct {
	ID             string   `json:"id"`
	Title          string   `json:"title,omitempty"`
	ParticipantIDs []string `json:"participant_ids"`
}

// PresenceEvent reports a remote user's activity change.
type PresenceEvent struct {
	UserID       string
	LastActiveAt time.Time
	IsActive     bool
}

// MessageKind is the closed set of relayed payload kinds.
type MessageKind int

const (
	KindText MessageKind = iota
	KindMedia
	KindVoice
	KindUnknown
)

func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMedia:
		return "media"
	case KindVoice:
		return "voice"
	default:
		return "unknown"
	}
}

// MediaType distinguishes photo from video media items.
type MediaType int

const (
	MediaPhoto MediaType = 1
	MediaVideo MediaType = 2
)

// MediaVariant is one rendition of a media item. The relay always picks
// the variant with the largest width.
type MediaVariant struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
}

// MediaItem is a photo or video payload with its available renditions.
type MediaItem struct {
	ID       string         `json:"id"`
	Type     MediaType      `json:"type"`
	Variants []MediaVariant `json:"variants"`
}

// BestVariant returns the variant with the maximum width, or a zero value
// if the item has no variants.
func (m *MediaItem) BestVariant() MediaVariant {
	best := MediaVariant{Width: -1}
	for _, v := range m.Variants {
		if v.Width > best.Width {
			best = v
		}
	}
	if best.Width < 0 {
		return MediaVariant{}
	}
	return best
}

// VoiceItem is a voice note payload.
type VoiceItem struct {
	ID       string `json:"id"`
	AudioURL string `json:"audio_url"`
}

// RemoteMessage is one inbound item from the remote event stream or a
// conversation feed. Exactly one of Text/Media/Voice is meaningful,
// selected by Kind; Raw carries the undecoded payload for diagnostics.
type RemoteMessage struct {
	ID             string
	ConversationID string
	SenderID       string
	Timestamp      time.Time
	Op             string // "add" for new messages; edits/removals differ

	Kind  MessageKind
	Text  string
	Media *MediaItem
	Voice *VoiceItem
	Raw   json.RawMessage
}

// ConversationSummary is one inbox feed entry.
type ConversationSummary struct {
	Conversation *RemoteConversation
	Participants []*RemoteUser
	LastMessage  *RemoteMessage
}

// SearchResult is one ranked-search hit: either a conversation or a bare
// user, never both.
type SearchResult struct {
	Conversation *RemoteConversation
	User         *RemoteUser
}

// RemoteEventKind discriminates realtime remote events.
type RemoteEventKind int

const (
	RemoteEventMessage RemoteEventKind = iota
	RemoteEventPresence
)

// RemoteEvent is one realtime event delivered by the remote transport.
type RemoteEvent struct {
	Kind     RemoteEventKind
	Message  *RemoteMessage
	Presence *PresenceEvent
}

// LocalChannel is a text channel on the local platform.
type LocalChannel struct {
	ID       string
	Name     string
	ParentID string
}

// LocalAttachment is a file attached to a local message.
type LocalAttachment struct {
	Filename string
	URL      string
}

// LocalEmbed is a rich embed on a local message. Only the media URLs are
// relevant for relaying.
type LocalEmbed struct {
	ImageURL string
	VideoURL string
}

// LocalMessage is a message observed on the local platform.
type LocalMessage struct {
	ID          string
	ChannelID   string
	AuthorID    string
	AuthorIsBot bool
	Content     string
	Embeds      []LocalEmbed
	Attachments []LocalAttachment
}
