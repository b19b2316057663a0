// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// handleLocalReply relays a human reply in a routed channel to the remote
// conversation, then deletes the original so the channel only shows the
// relayed history.
func (b *Bridge) handleLocalReply(ctx context.Context, msg *LocalMessage) {
	key, ok := b.channels.KeyForChannel(msg.ChannelID)
	if !ok {
		// Collector outlived its binding; drop the message.
		b.log.Debug().Str("channel_id", msg.ChannelID).Msg("Reply in unbound channel")
		return
	}

	if err := b.relayReply(ctx, key, msg); err != nil {
		b.log.Error().Err(err).
			Str("channel_id", msg.ChannelID).
			Str("message_id", msg.ID).
			Msg("Failed to relay local reply")
		if sendErr := b.local.ReplyEmbed(ctx, msg, errorEmbed("Relay Error", err)); sendErr != nil {
			b.log.Warn().Err(sendErr).Msg("Failed to post relay diagnostic")
		}
		return
	}

	if err := b.local.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		b.log.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to delete relayed reply")
	}
}

// relayReply performs the outbound sends: embeds, else attachments, then
// text; afterwards it rekeys a synthetic binding if the remote assigned a
// canonical conversation id during delivery.
func (b *Bridge) relayReply(ctx context.Context, key ConversationKey, msg *LocalMessage) error {
	var conversationID string

	record := func(id string, err error) error {
		if err != nil {
			return &RelayDeliveryError{Direction: "remote", Cause: err}
		}
		if id != "" {
			conversationID = id
		}
		return nil
	}

	if len(msg.Embeds) > 0 {
		for _, embed := range msg.Embeds {
			if err := b.relayEmbed(ctx, key, embed, record); err != nil {
				return err
			}
		}
	} else if len(msg.Attachments) > 0 {
		for _, attachment := range msg.Attachments {
			if err := b.relayAttachment(ctx, key, attachment, record); err != nil {
				return err
			}
		}
	}

	if msg.Content != "" {
		if err := record(b.remote.SendText(ctx, key, msg.Content)); err != nil {
			return err
		}
	}

	// The auto-provision path for bare users binds a synthetic key; the
	// first delivered message makes the platform assign the canonical id.
	if key.IsSynthetic() && conversationID != "" {
		b.channels.Rekey(key, CanonicalKey(conversationID))
	}
	return nil
}

func (b *Bridge) relayEmbed(ctx context.Context, key ConversationKey, embed LocalEmbed, record func(string, error) error) error {
	switch {
	case embed.ImageURL != "":
		jpeg, err := b.media.FetchImage(ctx, embed.ImageURL)
		if err != nil {
			return errors.Wrap(err, "failed to fetch embed image")
		}
		return record(b.remote.SendPhoto(ctx, key, jpeg))
	case embed.VideoURL != "":
		mp4, err := b.media.TranscodeVideo(ctx, embed.VideoURL)
		if err != nil {
			return errors.Wrap(err, "failed to transcode embed video")
		}
		return record(b.remote.SendVideo(ctx, key, mp4))
	default:
		b.log.Debug().Msg("Embed carries no relayable media")
		return nil
	}
}

func (b *Bridge) relayAttachment(ctx context.Context, key ConversationKey, attachment LocalAttachment, record func(string, error) error) error {
	switch attachmentExt(attachment.Filename) {
	case "png", "jpg", "jpeg":
		jpeg, err := b.media.FetchImage(ctx, attachment.URL)
		if err != nil {
			return errors.Wrap(err, "failed to fetch attachment image")
		}
		return record(b.remote.SendPhoto(ctx, key, jpeg))
	case "webm", "mp4":
		mp4, err := b.media.TranscodeVideo(ctx, attachment.URL)
		if err != nil {
			return errors.Wrap(err, "failed to transcode attachment video")
		}
		return record(b.remote.SendVideo(ctx, key, mp4))
	default:
		b.log.Debug().Str("filename", attachment.Filename).Msg("Unknown attachment type")
		return nil
	}
}

func attachmentExt(filename string) string {
	parts := strings.Split(filename, ".")
	return strings.ToLower(parts[len(parts)-1])
}
