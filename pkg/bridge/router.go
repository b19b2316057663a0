// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// sessionKeySuffix names the persisted remote session document, appended
// to the hashed account username.
const sessionKeySuffix = ".session"

// Bridge is the top-level relay orchestrator. It consumes inbound remote
// events, consumes local replies in routed channels, maintains the channel
// mapping and performs outbound sends on both platforms.
//
// Remote events are handled strictly in platform delivery order: the event
// loop is a single consumer and never starts event N+1 before event N's
// handler has returned. Local replies in different channels may interleave.
type Bridge struct {
	cfg    *Config
	remote RemoteClient
	local  LocalClient
	media  MediaPipeline

	store         *Store
	channels      *ChannelMap
	users         *IdentityCache
	conversations *ConversationCache
	commands      []command

	collectorsMu sync.Mutex
	collectors   map[string]func()

	log zerolog.Logger
}

// New assembles a bridge from its collaborators. Call Start to run it.
func New(cfg *Config, collab *Collaborators, store *Store, log zerolog.Logger) *Bridge {
	b := &Bridge{
		cfg:           cfg,
		remote:        collab.Remote,
		local:         collab.Local,
		media:         collab.Media,
		store:         store,
		users:         NewIdentityCache(collab.Remote, log),
		conversations: NewConversationCache(collab.Remote, log),
		collectors:    make(map[string]func()),
		log:           log.With().Str("component", "relay_router").Logger(),
	}
	b.commands = b.commandTable()
	return b
}

// Start boots the bridge and blocks until ctx is cancelled or the remote
// event stream ends. Failures before the control channel is known are
// returned directly (the caller exits); later failures are reported to the
// control channel.
func (b *Bridge) Start(ctx context.Context) error {
	channels, err := LoadChannelMap(b.store, b.local.DefaultChannelID(), b.log)
	if err != nil {
		return errors.Wrap(err, "failed to load channel mapping")
	}
	b.channels = channels

	if err := b.run(ctx); err != nil {
		control := b.channels.ControlChannelID()
		if control == "" {
			return err
		}
		b.log.Error().Err(err).Msg("Bridge failed, reporting to control channel")
		if _, sendErr := b.local.SendEmbed(ctx, control, errorEmbed("Bridge Error", err)); sendErr != nil {
			return errors.CombineErrors(err, sendErr)
		}
	}
	return nil
}

func (b *Bridge) run(ctx context.Context) error {
	if err := b.bootstrapSession(ctx); err != nil {
		return err
	}

	if err := b.channels.EnsureCategory(func() (string, error) {
		return b.local.CreateCategory(ctx, b.cfg.CategoryName)
	}); err != nil {
		return err
	}

	if err := b.conversations.Initialize(ctx); err != nil {
		return err
	}

	b.startCommandService(ctx)
	for key, channelID := range b.channels.Pairs() {
		b.listenToChannel(ctx, channelID)
		b.log.Debug().Stringer("key", key).Str("channel_id", channelID).Msg("Restored channel listener")
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return b.remoteEventLoop(ctx)
	})
	err := group.Wait()
	b.stopCollectors()
	b.channels.Flush()
	return err
}

// bootstrapSession restores the persisted remote session when possible and
// falls back to the interactive login flow.
func (b *Bridge) bootstrapSession(ctx context.Context) error {
	sessionKey := HashKey(b.cfg.RemoteUsername) + sessionKeySuffix

	if b.store.Has(sessionKey) {
		var state []byte
		if err := b.store.Read(sessionKey, &state); err != nil {
			b.log.Warn().Err(err).Msg("Failed to read persisted session, logging in fresh")
		} else if err := b.remote.ImportState(ctx, state); err != nil {
			b.log.Warn().Err(err).Msg("Failed to import persisted session, logging in fresh")
		} else if err := b.remote.Verify(ctx); err == nil {
			b.log.Info().Msg("Restored persisted remote session")
			return nil
		} else {
			b.log.Info().Err(err).Msg("Persisted session no longer valid")
		}
	}

	flow := NewLoginFlow(b.remote, b.local, b.channels.ControlChannelID(), b.cfg, b.log)
	if err := flow.Run(ctx); err != nil {
		return err
	}

	state, err := b.remote.ExportState(ctx)
	if err != nil {
		b.log.Warn().Err(err).Msg("Failed to export session state")
		return nil
	}
	if err := b.store.Write(sessionKey, state); err != nil {
		b.log.Warn().Err(err).Msg("Failed to persist session state")
	}
	return nil
}

// remoteEventLoop is the single ordered consumer of the realtime stream.
func (b *Bridge) remoteEventLoop(ctx context.Context) error {
	events := b.remote.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return errors.New("remote event stream closed")
			}
			b.handleRemoteEvent(ctx, evt)
		}
	}
}

// listenToChannel attaches a local message collector to a routed channel.
// Replaces any existing collector for the channel.
func (b *Bridge) listenToChannel(ctx context.Context, channelID string) {
	messages, cancel := b.local.CollectMessages(channelID, func(msg *LocalMessage) bool {
		return !msg.AuthorIsBot
	})

	b.collectorsMu.Lock()
	if old, ok := b.collectors[channelID]; ok {
		old()
	}
	b.collectors[channelID] = cancel
	b.collectorsMu.Unlock()

	go func() {
		for msg := range messages {
			b.handleLocalReply(ctx, msg)
		}
	}()
}

// stopListening cancels the collector for a channel, if any.
func (b *Bridge) stopListening(channelID string) {
	b.collectorsMu.Lock()
	defer b.collectorsMu.Unlock()
	if cancel, ok := b.collectors[channelID]; ok {
		cancel()
		delete(b.collectors, channelID)
	}
}

func (b *Bridge) stopCollectors() {
	b.collectorsMu.Lock()
	defer b.collectorsMu.Unlock()
	for id, cancel := range b.collectors {
		cancel()
		delete(b.collectors, id)
	}
}

// provisionChannel creates a local channel under the message category and
// binds it to the key. Used by both the automatic path and the add command.
func (b *Bridge) provisionChannel(ctx context.Context, key ConversationKey, name string) (*LocalChannel, error) {
	channel, err := b.local.CreateChannel(ctx, name, b.channels.CategoryID())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create channel %q", name)
	}
	if err := b.channels.Bind(key, channel.ID); err != nil {
		return nil, err
	}
	b.listenToChannel(ctx, channel.ID)
	b.log.Info().
		Stringer("key", key).
		Str("channel_id", channel.ID).
		Str("channel_name", channel.Name).
		Msg("Provisioned channel")
	return channel, nil
}
