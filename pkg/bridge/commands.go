// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
)

// command is one entry in the static control command table.
type command struct {
	Aliases []string
	Args    []ArgumentSpec
	Handler func(ctx context.Context, args map[string]string, msg *LocalMessage) error
}

func (b *Bridge) commandTable() []command {
	return []command{
		{Aliases: []string{"add"}, Args: Args("query"), Handler: b.handleAddCommand},
		{Aliases: []string{"recent", "recents", "inbox"}, Handler: b.handleRecentCommand},
		{Aliases: []string{"delete"}, Args: Args("query"), Handler: b.handleDeleteCommand},
		{Aliases: []string{"search"}, Args: Args("query"), Handler: b.handleSearchCommand},
	}
}

// startCommandService collects sentinel-prefixed lines on the control
// channel and dispatches them against the command table. Parse and handler
// failures are replied as an error embed; they never crash the router.
func (b *Bridge) startCommandService(ctx context.Context) {
	sentinel := b.cfg.CommandSentinel
	control := b.channels.ControlChannelID()
	messages, cancel := b.local.CollectMessages(control, func(msg *LocalMessage) bool {
		return msg.Content != "" && strings.HasPrefix(msg.Content, sentinel)
	})

	b.collectorsMu.Lock()
	b.collectors[control] = cancel
	b.collectorsMu.Unlock()

	go func() {
		for msg := range messages {
			b.dispatchCommand(ctx, msg)
		}
	}()
}

func (b *Bridge) dispatchCommand(ctx context.Context, msg *LocalMessage) {
	first, _, _ := strings.Cut(msg.Content, " ")
	name := strings.TrimPrefix(first, b.cfg.CommandSentinel)

	idx := slices.IndexFunc(b.commands, func(c command) bool {
		return slices.Contains(c.Aliases, name)
	})
	if idx < 0 {
		return
	}
	cmd := b.commands[idx]

	b.log.Debug().Str("command", name).Str("line", msg.Content).Msg("Dispatching control command")

	err := func() error {
		args := map[string]string{}
		if len(cmd.Args) > 0 {
			var parseErr error
			args, parseErr = ParseArguments(msg.Content, cmd.Args)
			if parseErr != nil {
				return parseErr
			}
		}
		return cmd.Handler(ctx, args, msg)
	}()
	if err != nil {
		b.log.Warn().Err(err).Str("command", name).Msg("Command failed")
		if replyErr := b.local.ReplyEmbed(ctx, msg, errorEmbed(errorTitle(err), err)); replyErr != nil {
			b.log.Error().Err(replyErr).Msg("Failed to reply with command error")
		}
	}
}

// errorTitle picks a short embed title for a command failure.
func errorTitle(err error) string {
	if errors.Is(err, ErrNotFound) {
		return "Not Found"
	}
	var invalid *InvalidArgumentError
	if errors.As(err, &invalid) {
		return "Invalid Argument"
	}
	return "Error"
}

// handleAddCommand creates and binds a channel for an exactly matching
// conversation or user, then backfills recent history.
func (b *Bridge) handleAddCommand(ctx context.Context, args map[string]string, msg *LocalMessage) error {
	result, err := b.conversations.FindByExactTitleOrUsername(ctx, args["query"])
	if err != nil {
		return err
	}
	if result == nil {
		return errors.Wrap(ErrNotFound, "user or thread not found")
	}

	var key ConversationKey
	var name string
	if result.Conversation != nil {
		key = CanonicalKey(result.Conversation.ID)
		name = result.Conversation.Title
	} else {
		key = SyntheticKey(result.User.ID)
		name = result.User.Username
	}

	channel, err := b.provisionChannel(ctx, key, name)
	if err != nil {
		return err
	}
	if err := b.local.Reply(ctx, msg, fmt.Sprintf("created channel for %s", channel.Name)); err != nil {
		b.log.Warn().Err(err).Msg("Failed to confirm channel creation")
	}

	// Bare users have no conversation yet, so there is nothing to replay.
	if !key.IsSynthetic() {
		if err := b.backfillChannel(ctx, key.ConversationID(), channel.ID); err != nil {
			return err
		}
	}
	return nil
}

// handleRecentCommand replies with an inbox summary card: one field per
// conversation.
func (b *Bridge) handleRecentCommand(ctx context.Context, _ map[string]string, msg *LocalMessage) error {
	inbox, err := b.remote.Inbox(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to fetch inbox")
	}

	embed := &MessageEmbed{Title: "Inbox"}
	for _, summary := range inbox {
		name := summary.Conversation.Title
		if name == "" {
			names := make([]string, len(summary.Participants))
			for i, user := range summary.Participants {
				names[i] = user.Username
			}
			name = strings.Join(names, ", ")
		}
		value := "(empty)"
		if last := summary.LastMessage; last != nil {
			if last.Kind == KindText && last.Text != "" {
				value = last.Text
			} else {
				value = last.Kind.String()
			}
		}
		embed.Fields = append(embed.Fields, EmbedField{Name: name, Value: value, Inline: true})
	}
	return b.local.ReplyEmbed(ctx, msg, embed)
}

// handleDeleteCommand removes the channel whose display name equals the
// query, on both sides of the mapping.
func (b *Bridge) handleDeleteCommand(ctx context.Context, args map[string]string, msg *LocalMessage) error {
	query := args["query"]
	for key, channelID := range b.channels.Pairs() {
		name, err := b.local.ChannelName(channelID)
		if err != nil {
			// Stale binding; keep scanning.
			continue
		}
		if name != query {
			continue
		}
		if err := b.local.DeleteChannel(ctx, channelID); err != nil {
			return errors.Wrapf(err, "failed to delete channel %s", channelID)
		}
		b.stopListening(channelID)
		b.channels.UnbindKey(key)
		return b.local.Reply(ctx, msg, "deleted.")
	}
	return b.local.Reply(ctx, msg, "could not find channel")
}

// handleSearchCommand replies with a summary card for the best fuzzy match.
func (b *Bridge) handleSearchCommand(ctx context.Context, args map[string]string, msg *LocalMessage) error {
	result, err := b.conversations.FindByFuzzyMatch(ctx, args["query"])
	if err != nil {
		return err
	}
	if result == nil {
		return b.local.Reply(ctx, msg, "no thread or user found")
	}
	return b.local.ReplyEmbed(ctx, msg, summaryEmbed(args["query"], result))
}
