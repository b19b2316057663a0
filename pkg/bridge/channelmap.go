// Copyright 2024-2026 Aiku AI

package bridge

import (
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// channelMapKey is the store document key for the persisted mapping.
const channelMapKey = "channelMapping"

// ChannelMap is the persistent bidirectional mapping between remote
// conversation keys and local channel ids. It is the single source of truth
// for routing. Pairs are injective: no two conversation keys share a local
// channel.
//
// Every mutating call schedules an asynchronous persistence write. Writes
// are debounced to at most one in flight plus one pending (last writer
// wins) and never block the caller.
type ChannelMap struct {
	mu               sync.Mutex
	controlChannelID string
	categoryID       string
	pairs            map[ConversationKey]string
	byChannel        map[string]ConversationKey

	writer *debouncedWriter
	log    zerolog.Logger
}

// channelMapDocument is the on-disk form. Pairs serialize as a list of
// [key, channel] tuples for portability; readers also accept a legacy
// object form where pairs was a plain id-to-channel map.
type channelMapDocument struct {
	ControlChannelID string          `json:"callback_channel"`
	CategoryID       string          `json:"message_category,omitempty"`
	Pairs            json.RawMessage `json:"pairs"`
}

type channelMapPair struct {
	Key     ConversationKey
	Channel string
}

func (p channelMapPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Key, p.Channel})
}

func (p *channelMapPair) UnmarshalJSON(data []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[0], &p.Key); err != nil {
		return err
	}
	return json.Unmarshal(tuple[1], &p.Channel)
}

// LoadChannelMap reads the persisted mapping from the store. When no
// document exists, the control channel is initialized to
// defaultControlChannel and category creation is deferred to
// EnsureCategory.
func LoadChannelMap(store *Store, defaultControlChannel string, log zerolog.Logger) (*ChannelMap, error) {
	cm := &ChannelMap{
		controlChannelID: defaultControlChannel,
		pairs:            make(map[ConversationKey]string),
		byChannel:        make(map[string]ConversationKey),
		log:              log.With().Str("component", "channel_map").Logger(),
	}
	cm.writer = newDebouncedWriter(func() {
		if err := store.Write(channelMapKey, cm.document()); err != nil {
			cm.log.Error().Err(err).Msg("Failed to persist channel mapping")
		}
	})

	if !store.Has(channelMapKey) {
		return cm, nil
	}

	var doc channelMapDocument
	if err := store.Read(channelMapKey, &doc); err != nil {
		return nil, err
	}
	if doc.ControlChannelID != "" {
		cm.controlChannelID = doc.ControlChannelID
	}
	cm.categoryID = doc.CategoryID

	pairs, err := decodePairs(doc.Pairs)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		cm.pairs[p.Key] = p.Channel
		cm.byChannel[p.Channel] = p.Key
	}
	return cm, nil
}

// decodePairs accepts the tuple-list form and the legacy object form.
func decodePairs(raw json.RawMessage) ([]channelMapPair, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var pairs []channelMapPair
	if err := json.Unmarshal(raw, &pairs); err == nil {
		return pairs, nil
	}
	var legacy map[string]string
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, errors.Wrap(err, "channel mapping pairs are neither a tuple list nor an object")
	}
	pairs = make([]channelMapPair, 0, len(legacy))
	for id, channel := range legacy {
		pairs = append(pairs, channelMapPair{Key: CanonicalKey(id), Channel: channel})
	}
	return pairs, nil
}

// document snapshots the current state for persistence. Caller-side
// locking is not required; the snapshot takes the map lock itself.
func (cm *ChannelMap) document() *channelMapDocument {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	pairs := make([]channelMapPair, 0, len(cm.pairs))
	for key, channel := range cm.pairs {
		pairs = append(pairs, channelMapPair{Key: key, Channel: channel})
	}
	encoded, err := json.Marshal(pairs)
	if err != nil {
		cm.log.Error().Err(err).Msg("Failed to encode channel mapping pairs")
		encoded = []byte("[]")
	}
	return &channelMapDocument{
		ControlChannelID: cm.controlChannelID,
		CategoryID:       cm.categoryID,
		Pairs:            encoded,
	}
}

// ControlChannelID returns the distinguished control channel.
func (cm *ChannelMap) ControlChannelID() string {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.controlChannelID
}

// CategoryID returns the container category for relayed channels, or ""
// before EnsureCategory has run.
func (cm *ChannelMap) CategoryID() string {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.categoryID
}

// EnsureCategory creates the container category exactly once. createFn is
// only invoked when no category id is persisted yet.
func (cm *ChannelMap) EnsureCategory(createFn func() (string, error)) error {
	cm.mu.Lock()
	if cm.categoryID != "" {
		cm.mu.Unlock()
		return nil
	}
	cm.mu.Unlock()

	id, err := createFn()
	if err != nil {
		return errors.Wrap(err, "failed to create message category")
	}

	cm.mu.Lock()
	cm.categoryID = id
	cm.mu.Unlock()
	cm.writer.Schedule()
	return nil
}

// ResolveLocalChannel returns the local channel bound to the key. Pure
// lookup, no side effects.
func (cm *ChannelMap) ResolveLocalChannel(key ConversationKey) (string, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	channel, ok := cm.pairs[key]
	return channel, ok
}

// KeyForChannel returns the conversation key bound to the local channel.
func (cm *ChannelMap) KeyForChannel(channelID string) (ConversationKey, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	key, ok := cm.byChannel[channelID]
	return key, ok
}

// Bind inserts a pair. It fails with ErrDuplicateBinding when the channel
// is already bound to a different key.
func (cm *ChannelMap) Bind(key ConversationKey, channelID string) error {
	cm.mu.Lock()
	if existing, ok := cm.byChannel[channelID]; ok && existing != key {
		cm.mu.Unlock()
		return errors.Wrapf(ErrDuplicateBinding, "channel %s is bound to %s", channelID, existing)
	}
	if old, ok := cm.pairs[key]; ok {
		delete(cm.byChannel, old)
	}
	cm.pairs[key] = channelID
	cm.byChannel[channelID] = key
	cm.mu.Unlock()
	cm.writer.Schedule()
	return nil
}

// Rekey atomically moves the binding from oldKey to newKey, preserving the
// local channel. Used when a synthetic participant-set key is superseded by
// the canonical conversation id. No-op when oldKey has no binding.
func (cm *ChannelMap) Rekey(oldKey, newKey ConversationKey) {
	cm.mu.Lock()
	channel, ok := cm.pairs[oldKey]
	if !ok {
		cm.mu.Unlock()
		return
	}
	delete(cm.pairs, oldKey)
	cm.pairs[newKey] = channel
	cm.byChannel[channel] = newKey
	cm.mu.Unlock()
	cm.log.Debug().
		Stringer("old_key", oldKey).
		Stringer("new_key", newKey).
		Str("channel_id", channel).
		Msg("Rekeyed conversation binding")
	cm.writer.Schedule()
}

// UnbindKey removes the pair for the conversation key, if any.
func (cm *ChannelMap) UnbindKey(key ConversationKey) {
	cm.mu.Lock()
	if channel, ok := cm.pairs[key]; ok {
		delete(cm.pairs, key)
		delete(cm.byChannel, channel)
	}
	cm.mu.Unlock()
	cm.writer.Schedule()
}

// UnbindChannel removes the pair for the local channel, if any.
func (cm *ChannelMap) UnbindChannel(channelID string) {
	cm.mu.Lock()
	if key, ok := cm.byChannel[channelID]; ok {
		delete(cm.byChannel, channelID)
		delete(cm.pairs, key)
	}
	cm.mu.Unlock()
	cm.writer.Schedule()
}

// Pairs returns a snapshot of the current bindings.
func (cm *ChannelMap) Pairs() map[ConversationKey]string {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	snapshot := make(map[ConversationKey]string, len(cm.pairs))
	for key, channel := range cm.pairs {
		snapshot[key] = channel
	}
	return snapshot
}

// Flush blocks until all scheduled writes have completed. Intended for
// shutdown and tests.
func (cm *ChannelMap) Flush() {
	cm.writer.Flush()
}

// debouncedWriter runs a write function on a background goroutine with a
// single pending slot: scheduling while a write is in flight marks the
// slot and returns immediately; scheduling while the slot is already
// marked collapses into it.
type debouncedWriter struct {
	write func()

	mu       sync.Mutex
	cond     *sync.Cond
	inFlight bool
	pending  bool
}

func newDebouncedWriter(write func()) *debouncedWriter {
	w := &debouncedWriter{write: write}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Schedule requests a write. Never blocks.
func (w *debouncedWriter) Schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight {
		w.pending = true
		return
	}
	w.inFlight = true
	go w.drain()
}

func (w *debouncedWriter) drain() {
	for {
		w.write()
		w.mu.Lock()
		if w.pending {
			w.pending = false
			w.mu.Unlock()
			continue
		}
		w.inFlight = false
		w.cond.Broadcast()
		w.mu.Unlock()
		return
	}
}

// Flush blocks until no write is in flight or pending.
func (w *debouncedWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.inFlight || w.pending {
		w.cond.Wait()
	}
}
