// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// MessageFeed is a paginated view over a conversation's history, newest
// page first. Items returns the next page; HasMore reports whether another
// page is available.
type MessageFeed interface {
	Items(ctx context.Context) ([]*RemoteMessage, error)
	HasMore() bool
}

// RemoteClient is the remote DM platform collaborator. The concrete SDK
// adapter lives outside this module; the relay core only depends on this
// surface.
type RemoteClient interface {
	// Login authenticates with the stored credentials. It returns
	// *TwoFactorRequiredError or *CheckpointRequiredError when the account
	// needs interactive verification.
	Login(ctx context.Context, username, password string) error
	SubmitTwoFactorCode(ctx context.Context, info TwoFactorInfo, mode TwoFactorMode, code string) error
	// TriggerChallenge starts the platform's automatic challenge
	// resolution after a checkpoint error.
	TriggerChallenge(ctx context.Context) error
	SubmitChallengeCode(ctx context.Context, code string) error

	// ExportState and ImportState serialize the transport session so a
	// restart can skip the login flow.
	ExportState(ctx context.Context) ([]byte, error)
	ImportState(ctx context.Context, state []byte) error
	// Verify checks that the imported session is still usable, typically
	// with a self lookup plus an inbox request.
	Verify(ctx context.Context) error

	GetUser(ctx context.Context, id string) (*RemoteUser, error)
	GetUserByName(ctx context.Context, name string) (*RemoteUser, error)
	GetConversation(ctx context.Context, id string) (*RemoteConversation, error)
	// RankedSearch returns conversation and user candidates for a query,
	// best matches first.
	RankedSearch(ctx context.Context, query string) ([]SearchResult, error)

	Inbox(ctx context.Context) ([]*ConversationSummary, error)
	PendingInbox(ctx context.Context) ([]*ConversationSummary, error)
	ConversationFeed(conversationID string) MessageFeed

	// Send primitives address a conversation by key; for a synthetic key
	// the platform creates the conversation on first delivery and the
	// returned id is its freshly assigned canonical id.
	SendText(ctx context.Context, key ConversationKey, text string) (conversationID string, err error)
	SendPhoto(ctx context.Context, key ConversationKey, jpeg []byte) (conversationID string, err error)
	SendVideo(ctx context.Context, key ConversationKey, mp4 []byte) (conversationID string, err error)
	MarkSeen(ctx context.Context, conversationID, messageID string) error

	// Events is the realtime stream of inbound messages and presence
	// updates, in platform delivery order. The channel closes when the
	// connection is torn down.
	Events() <-chan *RemoteEvent
}

// ReactionWait describes one reaction-collection race on a message.
type ReactionWait struct {
	ChannelID string
	MessageID string
	Emojis    []string
}

// LocalClient is the local guild platform collaborator.
type LocalClient interface {
	// BotUserID identifies the bridge's own account for echo rejection.
	BotUserID() string
	// DefaultChannelID is the host server's default system channel, used
	// as the initial control channel.
	DefaultChannelID() string

	CreateCategory(ctx context.Context, name string) (string, error)
	CreateChannel(ctx context.Context, name, parentID string) (*LocalChannel, error)
	DeleteChannel(ctx context.Context, channelID string) error
	ChannelName(channelID string) (string, error)

	SendText(ctx context.Context, channelID, text string) (messageID string, err error)
	SendEmbed(ctx context.Context, channelID string, embed *MessageEmbed) (messageID string, err error)
	SendFile(ctx context.Context, channelID, filename string, data []byte) (messageID string, err error)
	Reply(ctx context.Context, to *LocalMessage, text string) error
	ReplyEmbed(ctx context.Context, to *LocalMessage, embed *MessageEmbed) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	React(ctx context.Context, channelID, messageID, emoji string) error
	// AwaitReaction blocks until one of the listed emojis is added to the
	// message or ctx expires, and returns the observed per-emoji counts at
	// that moment. First reaction wins ties by arrival order.
	AwaitReaction(ctx context.Context, wait ReactionWait) (map[string]int, error)

	// CollectMessages delivers channel messages matching the filter until
	// the cancel function is called.
	CollectMessages(channelID string, filter func(*LocalMessage) bool) (<-chan *LocalMessage, func())
}

// MediaPipeline is the media transcoding/rehosting collaborator. All calls
// delegate to external encoders and hosting services.
type MediaPipeline interface {
	// FetchImage downloads an image and normalizes it to JPEG.
	FetchImage(ctx context.Context, url string) ([]byte, error)
	// TranscodeVideo downloads a video and transcodes it to H.264 MP4.
	TranscodeVideo(ctx context.Context, url string) ([]byte, error)
	// TranscodeAudio downloads a voice note and transcodes it to MP3.
	TranscodeAudio(ctx context.Context, url string) ([]byte, error)
	// RehostImage uploads an image to a public host and returns its URL.
	RehostImage(ctx context.Context, url string) (string, error)
}

// Collaborators bundles the external platform clients handed to the bridge.
type Collaborators struct {
	Remote RemoteClient
	Local  LocalClient
	Media  MediaPipeline
}

// Driver constructs the collaborator set for a config. SDK adapter
// packages register themselves in an init func, database/sql style, and
// are selected by name.
type Driver func(ctx context.Context, cfg *Config) (*Collaborators, error)

var (
	driversMu sync.Mutex
	drivers   = make(map[string]Driver)
)

// RegisterDriver makes a platform driver available under the given name.
// Panics on duplicate registration.
func RegisterDriver(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[name]; dup {
		panic("bridge: duplicate driver " + name)
	}
	drivers[name] = driver
}

// OpenDriver constructs the collaborators for the named driver.
func OpenDriver(ctx context.Context, name string, cfg *Config) (*Collaborators, error) {
	driversMu.Lock()
	driver, ok := drivers[name]
	driversMu.Unlock()
	if !ok {
		names := make([]string, 0, len(drivers))
		for n := range drivers {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, errors.Newf("unknown platform driver %q (registered: %v)", name, names)
	}
	return driver(ctx, cfg)
}

// exhaustFeedUntil drains feed pages until at least max items have been
// collected or no more pages are available.
func exhaustFeedUntil(ctx context.Context, feed MessageFeed, max int) ([]*RemoteMessage, error) {
	var items []*RemoteMessage
	for {
		page, err := feed.Items(ctx)
		if err != nil {
			return items, err
		}
		items = append(items, page...)
		if !feed.HasMore() || len(items) >= max {
			return items, nil
		}
	}
}

// sortOldestFirst orders messages by their remote timestamp ascending.
func sortOldestFirst(items []*RemoteMessage) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
}
