// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ConversationCache memoizes remote conversation lookups and layers exact
// and fuzzy title/username search on top of the platform's ranked search.
type ConversationCache struct {
	remote RemoteClient

	mu            sync.Mutex
	conversations map[string]*RemoteConversation

	log zerolog.Logger
}

// NewConversationCache creates an empty cache backed by the remote client.
func NewConversationCache(remote RemoteClient, log zerolog.Logger) *ConversationCache {
	return &ConversationCache{
		remote:        remote,
		conversations: make(map[string]*RemoteConversation),
		log:           log.With().Str("component", "conversation_cache").Logger(),
	}
}

// Initialize warms the cache from the primary inbox and the pending
// requests feed so name lookups mostly hit locally.
func (c *ConversationCache) Initialize(ctx context.Context) error {
	inbox, err := c.remote.Inbox(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to fetch inbox")
	}
	pending, err := c.remote.PendingInbox(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to fetch pending inbox")
	}
	for _, summary := range inbox {
		c.put(summary.Conversation)
	}
	for _, summary := range pending {
		c.put(summary.Conversation)
	}
	c.log.Info().
		Int("inbox", len(inbox)).
		Int("pending", len(pending)).
		Msg("Conversation cache initialized")
	return nil
}

// GetByID returns the conversation, fetching and memoizing it on a miss.
func (c *ConversationCache) GetByID(ctx context.Context, id string) (*RemoteConversation, error) {
	c.mu.Lock()
	if conv, ok := c.conversations[id]; ok {
		c.mu.Unlock()
		return conv, nil
	}
	c.mu.Unlock()

	conv, err := c.remote.GetConversation(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(ErrNotFound, "conversation %s: %v", id, err)
	}
	c.put(conv)
	return conv, nil
}

// FindByExactTitleOrUsername scans the cache for an exact title match, then
// performs one ranked-search fetch and returns the first candidate whose
// title or username equals the query. Returns nil when nothing matches.
func (c *ConversationCache) FindByExactTitleOrUsername(ctx context.Context, query string) (*SearchResult, error) {
	c.mu.Lock()
	for _, conv := range c.conversations {
		if conv.Title != "" && conv.Title == query {
			c.mu.Unlock()
			return &SearchResult{Conversation: conv}, nil
		}
	}
	c.mu.Unlock()

	results, err := c.remote.RankedSearch(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "ranked search for %q failed", query)
	}
	for _, result := range results {
		if result.Conversation != nil && result.Conversation.Title == query {
			c.put(result.Conversation)
			return &result, nil
		}
		if result.User != nil && result.User.Username == query {
			return &result, nil
		}
	}
	return nil, nil
}

// FindByFuzzyMatch tries an exact match first, then a substring match over
// a fresh ranked-search fetch. Conversations sort before bare users; within
// a kind, the candidate with the shortest remainder after removing the
// query substring wins. Returns nil when no candidate contains the query.
func (c *ConversationCache) FindByFuzzyMatch(ctx context.Context, query string) (*SearchResult, error) {
	exact, err := c.FindByExactTitleOrUsername(ctx, query)
	if err != nil {
		return nil, err
	}
	if exact != nil {
		return exact, nil
	}

	query = strings.ToLower(query)
	results, err := c.remote.RankedSearch(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "ranked search for %q failed", query)
	}

	var candidates []SearchResult
	for _, result := range results {
		if strings.Contains(strings.ToLower(result.candidateString()), query) {
			candidates = append(candidates, result)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	for _, candidate := range candidates[1:] {
		if fuzzyLess(candidate, best, query) {
			best = candidate
		}
	}
	if best.Conversation != nil {
		c.put(best.Conversation)
	}
	return &best, nil
}

// candidateString is the searchable string of a result: the conversation
// title, or the bare user's username.
func (r SearchResult) candidateString() string {
	if r.Conversation != nil {
		return r.Conversation.Title
	}
	if r.User != nil {
		return r.User.Username
	}
	return ""
}

// fuzzyLess reports whether a ranks strictly better than b for the query.
// The remaining-length metric is a deliberate approximation of closeness,
// not edit distance; it is user-observable via the search command and must
// stay as is.
func fuzzyLess(a, b SearchResult, query string) bool {
	aConv := a.Conversation != nil
	bConv := b.Conversation != nil
	if aConv != bConv {
		return aConv
	}
	return remainingLength(a.candidateString(), query) < remainingLength(b.candidateString(), query)
}

// remainingLength is the length of the candidate after lowercasing and
// removing the first occurrence of the query substring.
func remainingLength(candidate, query string) int {
	return len(strings.Replace(strings.ToLower(candidate), query, "", 1))
}

func (c *ConversationCache) put(conv *RemoteConversation) {
	if conv == nil || conv.ID == "" {
		return
	}
	c.mu.Lock()
	c.conversations[conv.ID] = conv
	c.mu.Unlock()
}
