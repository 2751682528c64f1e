package chatsdk

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type ChannelType string

const (
	ChannelPublic  ChannelType = "public"
	ChannelPrivate ChannelType = "private"
	ChannelDirect  ChannelType = "direct"
)

type UserRole string

const (
	RoleOwner  UserRole = "owner"
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type UserProfile struct {
	User
	Name       string `json:"name,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	InsertedAt string `json:"inserted_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

type Workspace struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsPublic    bool   `json:"is_public"`
	OwnerID     string `json:"owner_id,omitempty"`
	MemberCount int    `json:"member_count"`
	InsertedAt  string `json:"inserted_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type WorkspaceMember struct {
	ID       string      `json:"id"`
	User     UserProfile `json:"user"`
	Role     UserRole    `json:"role"`
	JoinedAt string      `json:"joined_at"`
}

type Channel struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Type          ChannelType `json:"type"`
	WorkspaceID   string      `json:"workspace_id"`
	CreatedBy     string      `json:"created_by"`
	MemberCount   int         `json:"member_count"`
	UnreadCount   int         `json:"unread_count"`
	Description   string      `json:"description,omitempty"`
	Topic         string      `json:"topic,omitempty"`
	LastMessageAt string      `json:"last_message_at,omitempty"`
	InsertedAt    string      `json:"inserted_at,omitempty"`
	UpdatedAt     string      `json:"updated_at,omitempty"`
}

type ChannelMember struct {
	ID       string      `json:"id"`
	User     UserProfile `json:"user"`
	Role     UserRole    `json:"role"`
	JoinedAt string      `json:"joined_at"`
}

type Attachment struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

type Reaction struct {
	ID         string      `json:"id"`
	Emoji      string      `json:"emoji"`
	MessageID  string      `json:"message_id"`
	UserID     string      `json:"user_id"`
	User       UserProfile `json:"user"`
	InsertedAt string      `json:"inserted_at"`
}

type ReactionSummary struct {
	Emoji       string        `json:"emoji"`
	Count       int           `json:"count"`
	Users       []UserProfile `json:"users"`
	UserReacted bool          `json:"user_reacted"`
}

type Message struct {
	ID              string            `json:"id"`
	Content         string            `json:"content"`
	ChannelID       string            `json:"channel_id"`
	UserID          string            `json:"user_id"`
	User            UserProfile       `json:"user"`
	ReplyCount      int               `json:"reply_count"`
	IsEdited        bool              `json:"is_edited"`
	ThreadID        string            `json:"thread_id,omitempty"`
	ParentMessageID string            `json:"parent_message_id,omitempty"`
	Attachments     []Attachment      `json:"attachments"`
	Reactions       []ReactionSummary `json:"reactions"`
	Mentions        []string          `json:"mentions"`
	EditedAt        string            `json:"edited_at,omitempty"`
	InsertedAt      string            `json:"inserted_at,omitempty"`
	UpdatedAt       string            `json:"updated_at,omitempty"`
}

// UnmarshalJSON keeps Attachments, Reactions and Mentions non-nil.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Attachments == nil {
		p.Attachments = []Attachment{}
	}
	if p.Reactions == nil {
		p.Reactions = []ReactionSummary{}
	}
	if p.Mentions == nil {
		p.Mentions = []string{}
	}
	*m = Message(p)
	return nil
}

type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	TotalCount int `json:"total_count"`
}

type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type MessagePage struct {
	Data    []Message `json:"data"`
	HasMore bool      `json:"has_more"`
	Cursor  string    `json:"cursor,omitempty"`
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

// decodeData extracts the "data" member of an API response.
func decodeData[T any](raw json.RawMessage) (T, error) {
	var env dataEnvelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		var zero T
		return zero, errors.Wrap(err, "cannot decode response")
	}
	return env.Data, nil
}
