// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestConversationCacheInitialize(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.inbox = []*ConversationSummary{
		{Conversation: &RemoteConversation{ID: "1", Title: "Weekend Trip"}},
	}
	remote.pending = []*ConversationSummary{
		{Conversation: &RemoteConversation{ID: "2", Title: "Book Club"}},
	}
	cache := NewConversationCache(remote, zerolog.Nop())
	ctx := context.Background()

	if err := cache.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	for _, id := range []string{"1", "2"} {
		if _, err := cache.GetByID(ctx, id); err != nil {
			t.Errorf("GetByID(%s) after warm-up: %v", id, err)
		}
	}
	if remote.convFetches != 0 {
		t.Errorf("remote conversation fetches = %d, want 0", remote.convFetches)
	}
}

func TestConversationCacheGetByIDFetchesOnMiss(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.addConversation(&RemoteConversation{ID: "34007", Title: "Weekend Trip"})
	cache := NewConversationCache(remote, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		conv, err := cache.GetByID(ctx, "34007")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if conv.Title != "Weekend Trip" {
			t.Errorf("Title = %q", conv.Title)
		}
	}
	if remote.convFetches != 1 {
		t.Errorf("remote fetches = %d, want 1", remote.convFetches)
	}
}

func TestFindByExactTitleOrUsername(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.search["ada"] = []SearchResult{
		{User: &RemoteUser{ID: "9", Username: "adaline"}},
		{User: &RemoteUser{ID: "10", Username: "ada"}},
	}
	remote.search["nope"] = []SearchResult{
		{User: &RemoteUser{ID: "9", Username: "adaline"}},
	}
	cache := NewConversationCache(remote, zerolog.Nop())
	ctx := context.Background()

	result, err := cache.FindByExactTitleOrUsername(ctx, "ada")
	if err != nil {
		t.Fatalf("FindByExactTitleOrUsername: %v", err)
	}
	if result == nil || result.User == nil || result.User.ID != "10" {
		t.Fatalf("result = %+v, want exact user ada", result)
	}

	result, err = cache.FindByExactTitleOrUsername(ctx, "nope")
	if err != nil {
		t.Fatalf("FindByExactTitleOrUsername: %v", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil for no exact match", result)
	}
}

func TestFindByExactTitleHitsCacheFirst(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.inbox = []*ConversationSummary{
		{Conversation: &RemoteConversation{ID: "1", Title: "Weekend Trip"}},
	}
	cache := NewConversationCache(remote, zerolog.Nop())
	ctx := context.Background()
	if err := cache.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	// No search results are scripted; a cache hit must not need any.
	result, err := cache.FindByExactTitleOrUsername(ctx, "Weekend Trip")
	if err != nil {
		t.Fatalf("FindByExactTitleOrUsername: %v", err)
	}
	if result == nil || result.Conversation == nil || result.Conversation.ID != "1" {
		t.Fatalf("result = %+v, want cached conversation 1", result)
	}
}

func TestFindByFuzzyMatchPrefersConversations(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.search["week"] = []SearchResult{
		{User: &RemoteUser{ID: "9", Username: "weekender"}},
		{Conversation: &RemoteConversation{ID: "1", Title: "Weekend Trip"}},
	}
	cache := NewConversationCache(remote, zerolog.Nop())

	result, err := cache.FindByFuzzyMatch(context.Background(), "week")
	if err != nil {
		t.Fatalf("FindByFuzzyMatch: %v", err)
	}
	if result == nil || result.Conversation == nil || result.Conversation.ID != "1" {
		t.Fatalf("result = %+v, want conversation over bare user", result)
	}
}

func TestFindByFuzzyMatchRemainingLength(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.search["week"] = []SearchResult{
		{User: &RemoteUser{ID: "9", Username: "weekender"}},
		{User: &RemoteUser{ID: "10", Username: "myweek"}},
	}
	cache := NewConversationCache(remote, zerolog.Nop())

	result, err := cache.FindByFuzzyMatch(context.Background(), "week")
	if err != nil {
		t.Fatalf("FindByFuzzyMatch: %v", err)
	}
	if result == nil || result.User == nil || result.User.ID != "10" {
		t.Fatalf("result = %+v, want the shorter-remainder candidate", result)
	}
}

func TestFindByFuzzyMatchCaseInsensitive(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.search["trip"] = []SearchResult{
		{Conversation: &RemoteConversation{ID: "1", Title: "Weekend TRIP"}},
	}
	cache := NewConversationCache(remote, zerolog.Nop())

	result, err := cache.FindByFuzzyMatch(context.Background(), "trip")
	if err != nil {
		t.Fatalf("FindByFuzzyMatch: %v", err)
	}
	if result == nil || result.Conversation == nil {
		t.Fatalf("result = %+v, want case-insensitive substring match", result)
	}
}

func TestFindByFuzzyMatchNoCandidates(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.search["zzz"] = []SearchResult{
		{User: &RemoteUser{ID: "9", Username: "weekender"}},
	}
	cache := NewConversationCache(remote, zerolog.Nop())

	result, err := cache.FindByFuzzyMatch(context.Background(), "zzz")
	if err != nil {
		t.Fatalf("FindByFuzzyMatch: %v", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil when nothing contains the query", result)
	}
}
