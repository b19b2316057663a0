// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// snowflakeNode mints ids for the fake local platform, mirroring the
// snowflake-style ids the real platform uses.
var snowflakeNode = func() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}()

func newID() string {
	return snowflakeNode.Generate().String()
}

// fakeFeed serves scripted pages through the MessageFeed contract.
type fakeFeed struct {
	pages [][]*RemoteMessage
	next  int
}

func (f *fakeFeed) Items(_ context.Context) ([]*RemoteMessage, error) {
	if f.next >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.next]
	f.next++
	return page, nil
}

func (f *fakeFeed) HasMore() bool {
	return f.next < len(f.pages)
}

// remoteSend records one outbound send to the remote platform.
type remoteSend struct {
	Key  ConversationKey
	Kind string // "text", "photo", "video"
	Text string
	Data []byte
}

// fakeRemote is a scriptable RemoteClient.
type fakeRemote struct {
	mu sync.Mutex

	usersByID   map[string]*RemoteUser
	usersByName map[string]*RemoteUser
	convsByID   map[string]*RemoteConversation
	search      map[string][]SearchResult
	inbox       []*ConversationSummary
	pending     []*ConversationSummary
	feedPages   map[string][][]*RemoteMessage

	// assignOnSend maps a synthetic key to the canonical conversation id
	// the platform assigns when the first message is delivered.
	assignOnSend map[ConversationKey]string

	loginErr      error
	verifyErr     error
	sendErr       error
	importedState []byte
	exportedState []byte

	sends          []remoteSend
	seen           [][2]string
	submittedCodes []string
	submittedMode  TwoFactorMode
	challenged     bool

	userFetches int
	convFetches int

	events chan *RemoteEvent
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		usersByID:     make(map[string]*RemoteUser),
		usersByName:   make(map[string]*RemoteUser),
		convsByID:     make(map[string]*RemoteConversation),
		search:        make(map[string][]SearchResult),
		feedPages:     make(map[string][][]*RemoteMessage),
		assignOnSend:  make(map[ConversationKey]string),
		exportedState: []byte(`"session"`),
		events:        make(chan *RemoteEvent, 16),
	}
}

func (r *fakeRemote) addUser(user *RemoteUser) {
	r.usersByID[user.ID] = user
	r.usersByName[user.Username] = user
}

func (r *fakeRemote) addConversation(conv *RemoteConversation) {
	r.convsByID[conv.ID] = conv
}

func (r *fakeRemote) Login(_ context.Context, _, _ string) error {
	return r.loginErr
}

func (r *fakeRemote) SubmitTwoFactorCode(_ context.Context, _ TwoFactorInfo, mode TwoFactorMode, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submittedMode = mode
	r.submittedCodes = append(r.submittedCodes, code)
	return nil
}

func (r *fakeRemote) TriggerChallenge(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challenged = true
	return nil
}

func (r *fakeRemote) SubmitChallengeCode(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submittedCodes = append(r.submittedCodes, code)
	return nil
}

func (r *fakeRemote) ExportState(_ context.Context) ([]byte, error) {
	return r.exportedState, nil
}

func (r *fakeRemote) ImportState(_ context.Context, state []byte) error {
	r.importedState = state
	return nil
}

func (r *fakeRemote) Verify(_ context.Context) error {
	return r.verifyErr
}

func (r *fakeRemote) GetUser(_ context.Context, id string) (*RemoteUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userFetches++
	user, ok := r.usersByID[id]
	if !ok {
		return nil, errors.Newf("no user %s", id)
	}
	return user, nil
}

func (r *fakeRemote) GetUserByName(_ context.Context, name string) (*RemoteUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userFetches++
	user, ok := r.usersByName[name]
	if !ok {
		return nil, errors.Newf("no user %q", name)
	}
	return user, nil
}

func (r *fakeRemote) GetConversation(_ context.Context, id string) (*RemoteConversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convFetches++
	conv, ok := r.convsByID[id]
	if !ok {
		return nil, errors.Newf("no conversation %s", id)
	}
	return conv, nil
}

func (r *fakeRemote) RankedSearch(_ context.Context, query string) ([]SearchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.search[query], nil
}

func (r *fakeRemote) Inbox(_ context.Context) ([]*ConversationSummary, error) {
	return r.inbox, nil
}

func (r *fakeRemote) PendingInbox(_ context.Context) ([]*ConversationSummary, error) {
	return r.pending, nil
}

func (r *fakeRemote) ConversationFeed(conversationID string) MessageFeed {
	return &fakeFeed{pages: r.feedPages[conversationID]}
}

func (r *fakeRemote) record(key ConversationKey, send remoteSend) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return "", r.sendErr
	}
	r.sends = append(r.sends, send)
	if id, ok := r.assignOnSend[key]; ok {
		return id, nil
	}
	return key.ConversationID(), nil
}

func (r *fakeRemote) SendText(_ context.Context, key ConversationKey, text string) (string, error) {
	return r.record(key, remoteSend{Key: key, Kind: "text", Text: text})
}

func (r *fakeRemote) SendPhoto(_ context.Context, key ConversationKey, jpeg []byte) (string, error) {
	return r.record(key, remoteSend{Key: key, Kind: "photo", Data: jpeg})
}

func (r *fakeRemote) SendVideo(_ context.Context, key ConversationKey, mp4 []byte) (string, error) {
	return r.record(key, remoteSend{Key: key, Kind: "video", Data: mp4})
}

func (r *fakeRemote) MarkSeen(_ context.Context, conversationID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, [2]string{conversationID, messageID})
	return nil
}

func (r *fakeRemote) Events() <-chan *RemoteEvent {
	return r.events
}

func (r *fakeRemote) Sends() []remoteSend {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]remoteSend, len(r.sends))
	copy(cp, r.sends)
	return cp
}

var _ RemoteClient = (*fakeRemote)(nil)

// localSend records one outbound send to the local platform.
type localSend struct {
	ChannelID string
	MessageID string
	Kind      string // "text", "embed", "file", "reply", "reply_embed"
	Text      string
	Embed     *MessageEmbed
	Filename  string
}

type localCollector struct {
	filter func(*LocalMessage) bool
	ch     chan *LocalMessage
	closed bool
}

// fakeLocal is a scriptable LocalClient backed by snowflake ids.
type fakeLocal struct {
	mu sync.Mutex

	botID          string
	defaultChannel string
	channels       map[string]*LocalChannel

	sends           []localSend
	deletedChannels []string
	deletedMessages [][2]string
	seededReactions []string

	// awaitCounts is returned by AwaitReaction; when nil, AwaitReaction
	// blocks until the context expires.
	awaitCounts map[string]int

	collectors map[string][]*localCollector
}

func newFakeLocal() *fakeLocal {
	l := &fakeLocal{
		botID:      "bot-user",
		channels:   make(map[string]*LocalChannel),
		collectors: make(map[string][]*localCollector),
	}
	l.defaultChannel = l.addChannel("control", "")
	return l
}

func (l *fakeLocal) addChannel(name, parentID string) string {
	id := newID()
	l.channels[id] = &LocalChannel{ID: id, Name: name, ParentID: parentID}
	return id
}

func (l *fakeLocal) BotUserID() string { return l.botID }

func (l *fakeLocal) DefaultChannelID() string { return l.defaultChannel }

func (l *fakeLocal) CreateCategory(_ context.Context, name string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addChannel(name, ""), nil
}

func (l *fakeLocal) CreateChannel(_ context.Context, name, parentID string) (*LocalChannel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.addChannel(name, parentID)
	return l.channels[id], nil
}

func (l *fakeLocal) DeleteChannel(_ context.Context, channelID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.channels, channelID)
	l.deletedChannels = append(l.deletedChannels, channelID)
	return nil
}

func (l *fakeLocal) ChannelName(channelID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	channel, ok := l.channels[channelID]
	if !ok {
		return "", errors.Newf("no channel %s", channelID)
	}
	return channel.Name, nil
}

func (l *fakeLocal) recordSend(send localSend) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	send.MessageID = newID()
	l.sends = append(l.sends, send)
	return send.MessageID
}

func (l *fakeLocal) SendText(_ context.Context, channelID, text string) (string, error) {
	return l.recordSend(localSend{ChannelID: channelID, Kind: "text", Text: text}), nil
}

func (l *fakeLocal) SendEmbed(_ context.Context, channelID string, embed *MessageEmbed) (string, error) {
	return l.recordSend(localSend{ChannelID: channelID, Kind: "embed", Embed: embed}), nil
}

func (l *fakeLocal) SendFile(_ context.Context, channelID, filename string, _ []byte) (string, error) {
	return l.recordSend(localSend{ChannelID: channelID, Kind: "file", Filename: filename}), nil
}

func (l *fakeLocal) Reply(_ context.Context, to *LocalMessage, text string) error {
	l.recordSend(localSend{ChannelID: to.ChannelID, Kind: "reply", Text: text})
	return nil
}

func (l *fakeLocal) ReplyEmbed(_ context.Context, to *LocalMessage, embed *MessageEmbed) error {
	l.recordSend(localSend{ChannelID: to.ChannelID, Kind: "reply_embed", Embed: embed})
	return nil
}

func (l *fakeLocal) DeleteMessage(_ context.Context, channelID, messageID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deletedMessages = append(l.deletedMessages, [2]string{channelID, messageID})
	return nil
}

func (l *fakeLocal) React(_ context.Context, _, _, emoji string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seededReactions = append(l.seededReactions, emoji)
	return nil
}

func (l *fakeLocal) AwaitReaction(ctx context.Context, _ ReactionWait) (map[string]int, error) {
	l.mu.Lock()
	counts := l.awaitCounts
	l.mu.Unlock()
	if counts != nil {
		return counts, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (l *fakeLocal) CollectMessages(channelID string, filter func(*LocalMessage) bool) (<-chan *LocalMessage, func()) {
	collector := &localCollector{filter: filter, ch: make(chan *LocalMessage, 16)}
	l.mu.Lock()
	l.collectors[channelID] = append(l.collectors[channelID], collector)
	l.mu.Unlock()
	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if !collector.closed {
			collector.closed = true
			close(collector.ch)
		}
	}
	return collector.ch, cancel
}

// Inject delivers a message to every live collector whose filter accepts it.
func (l *fakeLocal) Inject(msg *LocalMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, collector := range l.collectors[msg.ChannelID] {
		if !collector.closed && collector.filter(msg) {
			collector.ch <- msg
		}
	}
}

// Sends returns a snapshot of recorded sends.
func (l *fakeLocal) Sends() []localSend {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make([]localSend, len(l.sends))
	copy(cp, l.sends)
	return cp
}

// SendsTo filters recorded sends by channel.
func (l *fakeLocal) SendsTo(channelID string) []localSend {
	var out []localSend
	for _, send := range l.Sends() {
		if send.ChannelID == channelID {
			out = append(out, send)
		}
	}
	return out
}

// waitForCollectors polls until at least n live collectors are attached to
// the channel. Used to synchronize message injection with prompt setup.
func (l *fakeLocal) waitForCollectors(t *testing.T, channelID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		live := 0
		for _, collector := range l.collectors[channelID] {
			if !collector.closed {
				live++
			}
		}
		l.mu.Unlock()
		if live >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d collectors on %s", n, channelID)
}

// waitForSends polls until the channel has at least n sends or the
// deadline passes.
func (l *fakeLocal) waitForSends(t *testing.T, channelID string, n int) []localSend {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sends := l.SendsTo(channelID)
		if len(sends) >= n {
			return sends
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sends to %s (got %d)", n, channelID, len(l.SendsTo(channelID)))
	return nil
}

var _ LocalClient = (*fakeLocal)(nil)

// fakeMedia is a scriptable MediaPipeline.
type fakeMedia struct {
	mu          sync.Mutex
	calls       []string
	rehostURL   string
	rehostErr   error
	videoErr    error
	audioErr    error
}

func (m *fakeMedia) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *fakeMedia) FetchImage(_ context.Context, url string) ([]byte, error) {
	m.record("fetch_image:" + url)
	return []byte("jpeg:" + url), nil
}

func (m *fakeMedia) TranscodeVideo(_ context.Context, url string) ([]byte, error) {
	m.record("transcode_video:" + url)
	if m.videoErr != nil {
		return nil, m.videoErr
	}
	return []byte("mp4:" + url), nil
}

func (m *fakeMedia) TranscodeAudio(_ context.Context, url string) ([]byte, error) {
	m.record("transcode_audio:" + url)
	if m.audioErr != nil {
		return nil, m.audioErr
	}
	return []byte("mp3:" + url), nil
}

func (m *fakeMedia) RehostImage(_ context.Context, url string) (string, error) {
	m.record("rehost_image:" + url)
	if m.rehostErr != nil {
		return "", m.rehostErr
	}
	if m.rehostURL != "" {
		return m.rehostURL, nil
	}
	return "https://host.example/" + url, nil
}

var _ MediaPipeline = (*fakeMedia)(nil)

// testConfig returns a fast config suitable for unit tests.
func testConfig() *Config {
	return &Config{
		Driver:          "fake",
		RemoteUsername:  "relay-account",
		RemotePassword:  "hunter2",
		LocalGuildID:    "guild",
		CategoryName:    "DM MESSAGES",
		BackfillCount:   5,
		BackfillDelay:   time.Millisecond,
		CommandSentinel: ".",
		PromptTimeout:   100 * time.Millisecond,
		ChoiceTimeout:   100 * time.Millisecond,
	}
}

// testBridge bundles a bridge wired to fakes with a loaded channel map.
type testBridge struct {
	bridge *Bridge
	remote *fakeRemote
	local  *fakeLocal
	media  *fakeMedia
	store  *Store
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	remote := newFakeRemote()
	local := newFakeLocal()
	media := &fakeMedia{}
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	b := New(testConfig(), &Collaborators{Remote: remote, Local: local, Media: media}, store, zerolog.Nop())
	channels, err := LoadChannelMap(store, local.DefaultChannelID(), zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadChannelMap: %v", err)
	}
	b.channels = channels
	t.Cleanup(channels.Flush)
	t.Cleanup(b.stopCollectors)
	return &testBridge{bridge: b, remote: remote, local: local, media: media, store: store}
}

// controlLine builds a human control-channel message.
func (tb *testBridge) controlLine(content string) *LocalMessage {
	return &LocalMessage{
		ID:        newID(),
		ChannelID: tb.local.DefaultChannelID(),
		AuthorID:  "operator",
		Content:   content,
	}
}

// hasCall reports whether the media pipeline recorded a call with the
// given prefix.
func (m *fakeMedia) hasCall(prefix string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}
	return false
}
