// ABOUTME: Messaging-platform boundary types and collaborator interfaces.
// ABOUTME: The gateway core talks to the chat platform only through these.

package platform

import (
	"context"
	"time"
)

// Message is a platform message as seen by the gateway core.
type Message struct {
	ID        uint64
	ChannelID uint64
	AuthorID  uint64
	GroupID   uint64 // 0 when the message has no group context (DMs)
	Content   string
	SentAt    time.Time

	// Attachment holds the first attachment's content and declared
	// language, when present. Empty Language means no attachment worth
	// inspecting.
	Attachment Attachment
}

// Attachment is the decoded content of a message attachment.
type Attachment struct {
	Content  string
	Language string
}

// Reaction identifies an emoji reaction. Custom emoji carry a non-zero ID;
// unicode emoji carry only a Name.
type Reaction struct {
	ID   uint64
	Name string
}

// Matches reports whether two reactions refer to the same emoji.
func (r Reaction) Matches(other Reaction) bool {
	if r.ID != 0 || other.ID != 0 {
		return r.ID == other.ID
	}
	return r.Name == other.Name
}

// ReactionEvent is a reaction added to a message by some user.
type ReactionEvent struct {
	MessageID uint64
	ChannelID uint64
	UserID    uint64
	Reaction  Reaction
}

// Payload is a renderable outbound message. The core only supplies
// semantic content; the platform layer decides presentation.
type Payload struct {
	Title       string
	Description string
	Color       int
	ReplyTo     uint64 // message ID to reference, 0 for none
}

// Messenger sends and manipulates platform messages. Implementations live
// outside the core; tests use fakes.
type Messenger interface {
	// Send posts a payload to a channel and returns the sent message.
	Send(ctx context.Context, channelID uint64, payload Payload) (Message, error)

	// Delete removes a message. Best-effort callers swallow the error.
	Delete(ctx context.Context, channelID, messageID uint64) error

	// Edit replaces the payload of a previously sent message.
	Edit(ctx context.Context, channelID, messageID uint64, payload Payload) error

	// React adds a reaction to a message.
	React(ctx context.Context, channelID, messageID uint64, reaction Reaction) error

	// ClearReactions strips all reactions from a message.
	ClearReactions(ctx context.Context, channelID, messageID uint64) error

	// UpdatePresence sets the global presence line across all shards.
	UpdatePresence(ctx context.Context, groupCount uint64) error
}

// Renderer turns domain results into platform payloads.
type Renderer interface {
	JoinNotice(groupName string, groupID uint64) Payload
	LeaveNotice(groupID uint64) Payload
	Welcome() Payload
	Failure(authorID uint64, reason string) Payload
	Result(output string) Payload
}
