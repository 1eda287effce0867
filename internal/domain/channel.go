package domain

import "context"

// ChannelCapabilities describes what a channel implementation supports.
type ChannelCapabilities struct {
	Buttons   bool `json:"buttons"`
	Documents bool `json:"documents"`
	Delete    bool `json:"delete"`
}

// ChannelStatus reports the runtime state of a channel.
type ChannelStatus struct {
	ChannelID string `json:"channelId"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// Channel is the interface that all transport implementations must satisfy.
type Channel interface {
	// ID returns the channel identifier (e.g., "irc", "web"). It is also the
	// prefix of every user id the channel produces.
	ID() string

	// Capabilities returns what this channel supports.
	Capabilities() ChannelCapabilities

	// Start connects the channel and begins listening for events.
	Start(ctx context.Context) error

	// Stop gracefully disconnects the channel.
	Stop(ctx context.Context) error

	// Send delivers one outbound action to the user identified by the native id.
	Send(ctx context.Context, native string, action Action) error

	// OnEvent registers a handler for decoded inbound events.
	OnEvent(handler func(ev Event))
}
