// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IdentityCache memoizes remote user profile lookups by id and username.
// Entries are created on first miss and live for the process lifetime; the
// working set is bounded by the number of active conversations, so a
// linear scan for name lookups is fine and there is no eviction.
type IdentityCache struct {
	remote RemoteClient

	mu    sync.Mutex
	users map[string]*RemoteUser

	log zerolog.Logger
}

// NewIdentityCache creates an empty cache backed by the remote client.
func NewIdentityCache(remote RemoteClient, log zerolog.Logger) *IdentityCache {
	return &IdentityCache{
		remote: remote,
		users:  make(map[string]*RemoteUser),
		log:    log.With().Str("component", "identity_cache").Logger(),
	}
}

// GetByID returns the user profile, fetching and memoizing it on a cache
// miss. Fails with ErrNotFound only after the remote fetch also missed.
func (c *IdentityCache) GetByID(ctx context.Context, id string) (*RemoteUser, error) {
	c.mu.Lock()
	if user, ok := c.users[id]; ok {
		c.mu.Unlock()
		return user, nil
	}
	c.mu.Unlock()

	user, err := c.remote.GetUser(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(ErrNotFound, "user %s: %v", id, err)
	}
	c.put(user)
	return user, nil
}

// GetByName returns the user with the given username, scanning the cache
// first and falling back to one remote lookup.
func (c *IdentityCache) GetByName(ctx context.Context, name string) (*RemoteUser, error) {
	c.mu.Lock()
	for _, user := range c.users {
		if user.Username == name {
			c.mu.Unlock()
			return user, nil
		}
	}
	c.mu.Unlock()

	user, err := c.remote.GetUserByName(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(ErrNotFound, "user %q: %v", name, err)
	}
	c.put(user)
	return user, nil
}

// NameByID is a convenience wrapper over GetByID.
func (c *IdentityCache) NameByID(ctx context.Context, id string) (string, error) {
	user, err := c.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// IDByName is a convenience wrapper over GetByName.
func (c *IdentityCache) IDByName(ctx context.Context, name string) (string, error) {
	user, err := c.GetByName(ctx, name)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// UpdateActivity applies a presence event to the cached profile, fetching
// it first if needed. The activity token is rotated on every update; the
// previous token moves to ClearedActivityToken so stale notifications can
// be dismissed.
func (c *IdentityCache) UpdateActivity(ctx context.Context, evt *PresenceEvent) (*RemoteUser, error) {
	user, err := c.GetByID(ctx, evt.UserID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !user.LastActiveAt.IsZero() {
		user.LastActiveGap = time.Since(user.LastActiveAt)
	}
	if user.ActivityToken != "" {
		user.ClearedActivityToken = user.ActivityToken
	}
	user.ActivityToken = uuid.NewString()
	user.LastActiveAt = evt.LastActiveAt
	user.IsActive = evt.IsActive
	return user, nil
}

func (c *IdentityCache) put(user *RemoteUser) {
	c.mu.Lock()
	c.users[user.ID] = user
	c.mu.Unlock()
	c.log.Debug().Str("user_id", user.ID).Str("username", user.Username).Msg("Cached user profile")
}
