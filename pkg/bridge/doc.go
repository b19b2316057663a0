// Copyright 2024-2026 Aiku AI

// Package bridge mirrors direct-message conversations from a remote DM
// platform into per-conversation channels on a local guild platform, and
// relays replies back.
//
// # Core Types
//
// [Bridge] is the relay router: it consumes the remote realtime stream,
// watches routed local channels, and performs the outbound sends on both
// sides. Inbound remote events are processed strictly in delivery order.
//
// [ChannelMap] holds the persistent bidirectional mapping between
// conversation keys and local channel ids. Conversation keys are a sum
// of canonical (platform-assigned id) and synthetic (participant set)
// forms; [ChannelMap.Rekey] is the only legal transition between them.
//
// [IdentityCache] and [ConversationCache] memoize remote profile and
// conversation lookups for the process lifetime; the conversation cache
// additionally layers exact and fuzzy title/username search on the
// platform's ranked search.
//
// [LoginFlow] drives credential login through the optional two-factor and
// checkpoint branches via interactive prompts on the control channel.
//
// # Collaborators
//
// The platform SDKs stay outside this package: [RemoteClient],
// [LocalClient] and [MediaPipeline] describe the required surfaces, and
// adapter packages register a [Driver] to supply the concrete clients.
package bridge
