// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// choiceOption is one selectable entry in a reaction multiple choice.
type choiceOption struct {
	Emoji       string
	Description string
	ID          int
}

// multipleChoice posts a prompt embed with one reaction per option and
// waits for the user's pick: the option whose reaction has the highest
// observed count when the first reaction lands, ties broken by option
// order. The wait is bounded by timeout; elapsing it fails with
// ErrPromptTimeout.
func multipleChoice(ctx context.Context, local LocalClient, channelID, title, message string, options []choiceOption, timeout time.Duration) (int, error) {
	var lines []string
	for _, opt := range options {
		lines = append(lines, fmt.Sprintf("%s - %s", opt.Emoji, opt.Description))
	}
	msgID, err := local.SendEmbed(ctx, channelID, &MessageEmbed{
		Title:       title,
		Description: message + "\n\n" + strings.Join(lines, "\n"),
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to post choice prompt")
	}

	emojis := make([]string, len(options))
	for i, opt := range options {
		emojis[i] = opt.Emoji
		if err := local.React(ctx, channelID, msgID, opt.Emoji); err != nil {
			return 0, errors.Wrap(err, "failed to seed prompt reaction")
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	counts, err := local.AwaitReaction(waitCtx, ReactionWait{
		ChannelID: channelID,
		MessageID: msgID,
		Emojis:    emojis,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, errors.Wrap(ErrPromptTimeout, "choice prompt")
		}
		return 0, err
	}

	best := options[0]
	bestCount := -1
	for _, opt := range options {
		if counts[opt.Emoji] > bestCount {
			best = opt
			bestCount = counts[opt.Emoji]
		}
	}
	return best.ID, nil
}

// textInputOptions configures one control-channel text prompt.
type textInputOptions struct {
	ChannelID string
	Title     string
	Message   string
	// Prefix must lead the reply, e.g. ".2fa "; it is stripped from the
	// returned value.
	Prefix string
	// Validate checks the reply after prefix stripping.
	Validate func(string) bool
	Timeout  time.Duration
}

// textInput posts an instructional prompt and waits for the first matching
// control-channel message within the deadline. Returns the validated value
// with the prefix removed, or ErrPromptTimeout.
func textInput(ctx context.Context, local LocalClient, opts textInputOptions) (string, error) {
	if _, err := local.SendEmbed(ctx, opts.ChannelID, &MessageEmbed{
		Title:       opts.Title,
		Description: opts.Message,
	}); err != nil {
		return "", errors.Wrap(err, "failed to post input prompt")
	}

	validate := opts.Validate
	if validate == nil {
		validate = func(string) bool { return true }
	}

	messages, cancelCollect := local.CollectMessages(opts.ChannelID, func(msg *LocalMessage) bool {
		if msg.AuthorIsBot {
			return false
		}
		if !strings.HasPrefix(msg.Content, opts.Prefix) {
			return false
		}
		return validate(strings.TrimPrefix(msg.Content, opts.Prefix))
	})
	defer cancelCollect()

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	select {
	case msg, ok := <-messages:
		if !ok {
			return "", errors.New("input collector closed")
		}
		return strings.TrimPrefix(msg.Content, opts.Prefix), nil
	case <-waitCtx.Done():
		return "", errors.Wrap(ErrPromptTimeout, "input prompt")
	}
}
