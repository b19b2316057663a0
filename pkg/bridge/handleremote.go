// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
)

// handleRemoteEvent dispatches one realtime remote event. Errors never
// escape: each handler converts failures into a diagnostic post on the
// affected channel, and the message is considered lost on that hop.
func (b *Bridge) handleRemoteEvent(ctx context.Context, evt *RemoteEvent) {
	switch evt.Kind {
	case RemoteEventPresence:
		if _, err := b.users.UpdateActivity(ctx, evt.Presence); err != nil {
			b.log.Warn().Err(err).Str("user_id", evt.Presence.UserID).Msg("Failed to apply presence update")
		}
	case RemoteEventMessage:
		b.handleRemoteMessage(ctx, evt.Message)
	default:
		b.log.Debug().Int("kind", int(evt.Kind)).Msg("Unhandled remote event kind")
	}
}

func (b *Bridge) handleRemoteMessage(ctx context.Context, msg *RemoteMessage) {
	// Only additions are mirrored; edits and removals are logged and
	// dropped.
	if msg.Op != "add" {
		b.log.Debug().
			Str("op", msg.Op).
			Str("message_id", msg.ID).
			Str("conversation_id", msg.ConversationID).
			Msg("Ignoring non-add remote operation")
		return
	}

	key := CanonicalKey(msg.ConversationID)
	channelID, routed := b.channels.ResolveLocalChannel(key)
	if !routed {
		var err error
		channelID, err = b.autoProvision(ctx, msg.ConversationID)
		if err != nil {
			b.log.Error().Err(err).
				Str("conversation_id", msg.ConversationID).
				Msg("Failed to auto-provision channel")
			return
		}
	}

	if err := b.deliverMessage(ctx, msg, channelID); err != nil {
		b.log.Error().Err(err).
			Str("message_id", msg.ID).
			Str("channel_id", channelID).
			Msg("Failed to deliver remote message")
		if _, sendErr := b.local.SendText(ctx, channelID, deliveryErrorDump(err)); sendErr != nil {
			b.log.Warn().Err(sendErr).Msg("Failed to post delivery diagnostic")
		}
		return
	}

	if err := b.remote.MarkSeen(ctx, msg.ConversationID, msg.ID); err != nil {
		b.log.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to mark message as seen")
	}
}

// autoProvision creates and binds a local channel for a conversation first
// seen via an inbound message, titled after the conversation.
func (b *Bridge) autoProvision(ctx context.Context, conversationID string) (string, error) {
	conv, err := b.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return "", err
	}
	name := conv.Title
	if name == "" {
		name = conversationID
	}
	channel, err := b.provisionChannel(ctx, CanonicalKey(conversationID), name)
	if err != nil {
		return "", err
	}
	return channel.ID, nil
}

// deliverMessage relays one remote message into its local channel,
// dispatching on the payload kind.
func (b *Bridge) deliverMessage(ctx context.Context, msg *RemoteMessage, channelID string) error {
	author, err := b.users.GetByID(ctx, msg.SenderID)
	if err != nil {
		return err
	}
	header := messageHeader(author, msg.Timestamp)

	switch msg.Kind {
	case KindText:
		header.Description = msg.Text
		if _, err := b.local.SendEmbed(ctx, channelID, header); err != nil {
			return &RelayDeliveryError{Direction: "local", Cause: err}
		}
	case KindMedia:
		return b.deliverMedia(ctx, msg, header, channelID)
	case KindVoice:
		return b.deliverVoice(ctx, msg, channelID)
	default:
		if _, err := b.local.SendText(ctx, channelID, rawDump(msg.Raw)); err != nil {
			return &RelayDeliveryError{Direction: "local", Cause: err}
		}
	}
	return nil
}

// deliverMedia relays the highest-resolution variant of a photo or video.
// Rehosting and transcoding are delegated to the media pipeline; when the
// pipeline cannot serve, the source URL is posted as is.
func (b *Bridge) deliverMedia(ctx context.Context, msg *RemoteMessage, header *MessageEmbed, channelID string) error {
	if msg.Media == nil || len(msg.Media.Variants) == 0 {
		return errors.New("media payload has no variants")
	}
	best := msg.Media.BestVariant()

	switch msg.Media.Type {
	case MediaPhoto:
		url, err := b.media.RehostImage(ctx, best.URL)
		if err != nil {
			b.log.Warn().Err(err).Str("url", best.URL).Msg("Image rehost failed, using source URL")
			url = best.URL
		}
		header.Description = msg.Text
		header.ImageURL = url
		if _, err := b.local.SendEmbed(ctx, channelID, header); err != nil {
			return &RelayDeliveryError{Direction: "local", Cause: err}
		}
	case MediaVideo:
		data, err := b.media.TranscodeVideo(ctx, best.URL)
		if err != nil {
			b.log.Warn().Err(err).Str("url", best.URL).Msg("Video transcode failed, using source URL")
			if _, err := b.local.SendText(ctx, channelID, best.URL); err != nil {
				return &RelayDeliveryError{Direction: "local", Cause: err}
			}
			return nil
		}
		name := fmt.Sprintf("dm-video-%s.mp4", msg.Media.ID)
		if _, err := b.local.SendFile(ctx, channelID, name, data); err != nil {
			return &RelayDeliveryError{Direction: "local", Cause: err}
		}
	default:
		return errors.Newf("unknown media type: %d", msg.Media.Type)
	}
	return nil
}

// deliverVoice relays a voice note through the audio pipeline.
func (b *Bridge) deliverVoice(ctx context.Context, msg *RemoteMessage, channelID string) error {
	if msg.Voice == nil {
		return errors.New("voice payload missing audio item")
	}
	data, err := b.media.TranscodeAudio(ctx, msg.Voice.AudioURL)
	if err != nil {
		return &RelayDeliveryError{Direction: "local", Cause: err}
	}
	name := fmt.Sprintf("dm-audio-%s.mp3", msg.Voice.ID)
	if _, err := b.local.SendFile(ctx, channelID, name, data); err != nil {
		return &RelayDeliveryError{Direction: "local", Cause: err}
	}
	return nil
}

// deliveryErrorDump formats a delivery failure as a JSON code block for
// the affected channel.
func deliveryErrorDump(err error) string {
	const fence = "```json\n"
	body := fmt.Sprintf("{\n  \"error\": %q\n}", err.Error())
	return fence + truncate(body, localMessageLimit-len(fence)-4) + "\n```"
}
