// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"time"
)

// backfillChannel replays the most recent history of a conversation into a
// freshly bound channel, oldest first, pausing between sends to respect
// local platform rate limits. Individual delivery failures are posted to
// the channel and do not stop the replay.
func (b *Bridge) backfillChannel(ctx context.Context, conversationID, channelID string) error {
	feed := b.remote.ConversationFeed(conversationID)
	items, err := exhaustFeedUntil(ctx, feed, b.cfg.BackfillCount)
	if err != nil {
		b.log.Warn().Err(err).
			Str("conversation_id", conversationID).
			Int("fetched", len(items)).
			Msg("Backfill feed ended early")
	}
	sortOldestFirst(items)

	b.log.Info().
		Str("conversation_id", conversationID).
		Str("channel_id", channelID).
		Int("count", len(items)).
		Msg("Backfilling channel")

	for i, item := range items {
		if err := b.deliverMessage(ctx, item, channelID); err != nil {
			b.log.Warn().Err(err).Str("message_id", item.ID).Msg("Failed to backfill message")
			if _, sendErr := b.local.SendText(ctx, channelID, deliveryErrorDump(err)); sendErr != nil {
				b.log.Warn().Err(sendErr).Msg("Failed to post backfill diagnostic")
			}
		}
		if i == len(items)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.cfg.BackfillDelay):
		}
	}
	return nil
}
