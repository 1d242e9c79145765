// Package protocol defines the DarkRelay wire protocol: the tagged
// message variants exchanged between client and server, the shared
// payload types, and the length-prefixed frame codec.
//
// Both directions are closed sums. Every variant carries a MessageMeta
// and must round-trip bit-exactly through Encode/Decode; the tag set and
// field layouts are part of the interface and must stay wire-compatible.
package protocol

import (
	"fmt"
	"time"
)

// Identifier aliases shared across the protocol. All are 64-bit counters,
// monotonic per server lifetime; values are never reused.
type (
	UserID    = uint64
	ChannelID = uint64
	MessageID = uint64
)

// MessageMeta identifies one message on the wire. The id is monotonic per
// sender and used for correlation and debugging only; the receiver never
// trusts it for ordering.
type MessageMeta struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMeta stamps a meta with the given id and the current UTC time.
func NewMeta(id uint64) MessageMeta {
	return MessageMeta{ID: id, Timestamp: time.Now().UTC()}
}

// UserInfo is the public view of a registered user.
type UserInfo struct {
	ID       UserID    `json:"id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

// ChannelInfo is the public view of a channel.
type ChannelInfo struct {
	ID          ChannelID   `json:"id"`
	Name        string      `json:"name"`
	IsPublic    bool        `json:"is_public"`
	ChannelType ChannelType `json:"channel_type"`
}

// KV is one ordered metadata pair on a chat message. The server treats
// metadata as opaque except for the "nonce" key, which carries the
// hex-encoded AES-GCM nonce of the content.
type KV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ChatMessage is one stored channel message. Content is opaque ciphertext;
// the server never inspects or logs it.
type ChatMessage struct {
	ID        MessageID `json:"id"`
	UserID    UserID    `json:"user_id"`
	Username  string    `json:"username"`
	Content   []byte    `json:"content"`
	Nonce     []byte    `json:"nonce,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  []KV      `json:"metadata"`
}

// MetadataValue returns the value for key in the message metadata, if set.
func (m *ChatMessage) MetadataValue(key string) (string, bool) {
	for _, kv := range m.Metadata {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// AdminInfo is one entry of an AdminList reply.
type AdminInfo struct {
	UserID   UserID `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// BanInfo is one entry of a BanList reply. A nil BannedUntil means the ban
// is permanent.
type BanInfo struct {
	UserID      UserID     `json:"user_id"`
	Username    string     `json:"username"`
	BannedUntil *time.Time `json:"banned_until,omitempty"`
	BannedBy    string     `json:"banned_by"`
	Reason      *string    `json:"reason,omitempty"`
}

// LogEntry is one audit log record of a LogList reply.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    UserID    `json:"user_id"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Details   string    `json:"details"`
}

// StoredDM is one direct message as delivered or replayed by the server.
// Content and nonce are opaque to the server.
type StoredDM struct {
	DMID        uint64    `json:"dm_id"`
	SenderID    UserID    `json:"sender_id"`
	RecipientID UserID    `json:"recipient_id"`
	Content     []byte    `json:"content"`
	Nonce       []byte    `json:"nonce"`
	Timestamp   time.Time `json:"timestamp"`
	IsRead      bool      `json:"is_read"`
}

// FileOffer describes a pending file transfer to its recipient.
type FileOffer struct {
	TransferID uint64 `json:"transfer_id"`
	SenderID   UserID `json:"sender_id"`
	SenderName string `json:"sender_name"`
	FileName   string `json:"file_name"`
	FileSize   uint64 `json:"file_size"`
	FileHash   []byte `json:"file_hash"`
}

// Role is a channel-scoped capability level. Higher roles hold strict
// supersets of lower roles' permissions.
type Role uint8

const (
	RoleUser Role = iota
	RoleModerator
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleUser:       "User",
	RoleModerator:  "Moderator",
	RoleAdmin:      "Admin",
	RoleSuperAdmin: "SuperAdmin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// ParseRole converts a wire name into a Role.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return RoleUser, fmt.Errorf("unknown role %q", s)
}

// MarshalJSON encodes the role as its wire name.
func (r Role) MarshalJSON() ([]byte, error) {
	name, ok := roleNames[r]
	if !ok {
		return nil, fmt.Errorf("unknown role %d", uint8(r))
	}
	return []byte(`"` + name + `"`), nil
}

// UnmarshalJSON decodes a role wire name.
func (r *Role) UnmarshalJSON(data []byte) error {
	s, err := unquote(data)
	if err != nil {
		return fmt.Errorf("role: %w", err)
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ChannelType controls who may post to a channel.
type ChannelType uint8

const (
	ChannelPublic ChannelType = iota
	ChannelPrivate
	ChannelAdminOnly
	ChannelReadOnly
	ChannelAnnouncement
)

var channelTypeNames = map[ChannelType]string{
	ChannelPublic:       "Public",
	ChannelPrivate:      "Private",
	ChannelAdminOnly:    "AdminOnly",
	ChannelReadOnly:     "ReadOnly",
	ChannelAnnouncement: "Announcement",
}

func (t ChannelType) String() string {
	if name, ok := channelTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ChannelType(%d)", uint8(t))
}

// ParseChannelType converts a wire name into a ChannelType.
func ParseChannelType(s string) (ChannelType, error) {
	for t, name := range channelTypeNames {
		if name == s {
			return t, nil
		}
	}
	return ChannelPublic, fmt.Errorf("unknown channel type %q", s)
}

// MarshalJSON encodes the channel type as its wire name.
func (t ChannelType) MarshalJSON() ([]byte, error) {
	name, ok := channelTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown channel type %d", uint8(t))
	}
	return []byte(`"` + name + `"`), nil
}

// UnmarshalJSON decodes a channel type wire name.
func (t *ChannelType) UnmarshalJSON(data []byte) error {
	s, err := unquote(data)
	if err != nil {
		return fmt.Errorf("channel type: %w", err)
	}
	parsed, err := ParseChannelType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func unquote(data []byte) (string, error) {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return "", fmt.Errorf("expected JSON string, got %s", data)
	}
	return string(data[1 : len(data)-1]), nil
}

// Permission is one capability from the default role permission table.
type Permission string

const (
	PermSendMessage   Permission = "SendMessage"
	PermDeleteMessage Permission = "DeleteMessage"
	PermManageChannel Permission = "ManageChannel"
	PermBanUser       Permission = "BanUser"
	PermKickUser      Permission = "KickUser"
	PermMuteUser      Permission = "MuteUser"
	PermPromoteUser   Permission = "PromoteUser"
	PermViewLogs      Permission = "ViewLogs"
	PermManageRoles   Permission = "ManageRoles"
)

// minRoleFor maps each permission to the lowest role that holds it.
var minRoleFor = map[Permission]Role{
	PermSendMessage:   RoleUser,
	PermDeleteMessage: RoleModerator,
	PermKickUser:      RoleModerator,
	PermMuteUser:      RoleModerator,
	PermManageChannel: RoleAdmin,
	PermBanUser:       RoleAdmin,
	PermPromoteUser:   RoleAdmin,
	PermViewLogs:      RoleAdmin,
	PermManageRoles:   RoleSuperAdmin,
}

// HasPermission reports whether role holds perm under the default table.
func HasPermission(role Role, perm Permission) bool {
	min, ok := minRoleFor[perm]
	return ok && role >= min
}

// DefaultPermissions returns the permissions granted to role.
func DefaultPermissions(role Role) []Permission {
	var perms []Permission
	for perm, min := range minRoleFor {
		if role >= min {
			perms = append(perms, perm)
		}
	}
	return perms
}

// CanSend reports whether a user with role may post to a channel of the
// given type. AdminOnly and ReadOnly channels accept posts from Admin and
// above; Announcement channels from SuperAdmin only.
func CanSend(role Role, channelType ChannelType) bool {
	switch channelType {
	case ChannelAdminOnly, ChannelReadOnly:
		return role >= RoleAdmin
	case ChannelAnnouncement:
		return role >= RoleSuperAdmin
	default:
		return HasPermission(role, PermSendMessage)
	}
}
