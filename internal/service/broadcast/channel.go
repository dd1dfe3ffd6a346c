// Package broadcast fans admitted messages out to per-conversation channels.
package broadcast

import "echowaves-backend/internal/domain"

// ChannelPrefix starts every conversation channel name
const ChannelPrefix = "CONVERSATION_CHANNEL_"

// ChannelName is the topic a conversation's messages are published on.
// Private conversations use their uuid so the numeric id cannot be guessed.
func ChannelName(conv *domain.Conversation) string {
	return ChannelForKey(conv.ChannelKey())
}

// ChannelForKey builds the channel name from an already resolved key
func ChannelForKey(key string) string {
	return ChannelPrefix + key
}
