package protocol

import "time"

// ServerMessage is one tagged message sent from server to client. The set
// of variants is closed; Type returns the wire tag.
type ServerMessage interface {
	Type() string
	serverMessage()
}

// AuthChallenge is sent unconditionally after TLS accept; the client must
// answer with Auth.
type AuthChallenge struct {
	Meta    MessageMeta `json:"meta"`
	Message string      `json:"message"`
}

// AuthSuccess confirms registration or login. GeneratedPassword is set
// only for registration.
type AuthSuccess struct {
	Meta              MessageMeta `json:"meta"`
	User              UserInfo    `json:"user"`
	GeneratedPassword *string     `json:"generated_password,omitempty"`
}

// AuthFailure reports a failed gate, registration, or login attempt.
type AuthFailure struct {
	Meta   MessageMeta `json:"meta"`
	Reason string      `json:"reason"`
}

// EcdhAck returns the server's 32-byte X25519 public key.
type EcdhAck struct {
	Meta      MessageMeta `json:"meta"`
	PublicKey []byte      `json:"public_key"`
}

// ChannelList carries the public channels, sorted by name.
type ChannelList struct {
	Meta     MessageMeta   `json:"meta"`
	Channels []ChannelInfo `json:"channels"`
}

// JoinSuccess confirms a join; a HistoryChunk follows.
type JoinSuccess struct {
	Meta    MessageMeta `json:"meta"`
	Channel ChannelInfo `json:"channel"`
}

// JoinFailure reports a rejected join (ban, bad password, name policy).
type JoinFailure struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
	Reason  string      `json:"reason"`
}

// MessageReceived fans one stored message out to channel members.
type MessageReceived struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
	Message ChatMessage `json:"message"`
}

// HistoryChunk carries stored messages, oldest first.
type HistoryChunk struct {
	Meta     MessageMeta   `json:"meta"`
	Channel  string        `json:"channel"`
	Messages []ChatMessage `json:"messages"`
}

// UserJoined is broadcast to channel members on a join.
type UserJoined struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
	User    UserInfo    `json:"user"`
}

// UserLeft is broadcast to channel members on a leave or disconnect.
type UserLeft struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
	User    UserInfo    `json:"user"`
}

// SystemMessage carries informational text for the requesting client.
type SystemMessage struct {
	Meta MessageMeta `json:"meta"`
	Text string      `json:"text"`
}

// ProtocolError reports a state or malformed-field violation; the
// connection stays open.
type ProtocolError struct {
	Meta MessageMeta `json:"meta"`
	Text string      `json:"text"`
}

// MessageDeleted is broadcast after a successful DeleteMessage.
type MessageDeleted struct {
	Meta      MessageMeta `json:"meta"`
	Channel   string      `json:"channel"`
	MessageID MessageID   `json:"message_id"`
	DeletedBy string      `json:"deleted_by"`
}

// UserPromoted is broadcast after a successful PromoteUser.
type UserPromoted struct {
	Meta       MessageMeta `json:"meta"`
	Channel    string      `json:"channel"`
	UserID     UserID      `json:"user_id"`
	Username   string      `json:"username"`
	Role       Role        `json:"role"`
	PromotedBy string      `json:"promoted_by"`
}

// UserDemoted is broadcast after a successful DemoteUser.
type UserDemoted struct {
	Meta      MessageMeta `json:"meta"`
	Channel   string      `json:"channel"`
	UserID    UserID      `json:"user_id"`
	Username  string      `json:"username"`
	Role      Role        `json:"role"`
	DemotedBy string      `json:"demoted_by"`
}

// UserBanned is broadcast after a successful BanUser. A nil BannedUntil
// means the ban is permanent.
type UserBanned struct {
	Meta        MessageMeta `json:"meta"`
	Channel     string      `json:"channel"`
	UserID      UserID      `json:"user_id"`
	Username    string      `json:"username"`
	BannedUntil *time.Time  `json:"banned_until,omitempty"`
	BannedBy    string      `json:"banned_by"`
	Reason      *string     `json:"reason,omitempty"`
}

// UserUnbanned is broadcast after a successful UnbanUser.
type UserUnbanned struct {
	Meta       MessageMeta `json:"meta"`
	Channel    string      `json:"channel"`
	UserID     UserID      `json:"user_id"`
	Username   string      `json:"username"`
	UnbannedBy string      `json:"unbanned_by"`
}

// UserKicked is broadcast after a successful KickUser.
type UserKicked struct {
	Meta     MessageMeta `json:"meta"`
	Channel  string      `json:"channel"`
	UserID   UserID      `json:"user_id"`
	Username string      `json:"username"`
	KickedBy string      `json:"kicked_by"`
	Reason   *string     `json:"reason,omitempty"`
}

// AdminList answers ListAdmins.
type AdminList struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
	Admins  []AdminInfo `json:"admins"`
}

// BanList answers ListBans with the active bans.
type BanList struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
	Bans    []BanInfo   `json:"bans"`
}

// LogList answers ViewLogs, newest entries first.
type LogList struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
	Entries []LogEntry  `json:"entries"`
}

// ChannelTypeChanged is broadcast after a successful ChangeChannelType.
type ChannelTypeChanged struct {
	Meta        MessageMeta `json:"meta"`
	Channel     string      `json:"channel"`
	ChannelType ChannelType `json:"channel_type"`
	ChangedBy   string      `json:"changed_by"`
}

// ChannelDeleted is broadcast to members before the channel is dropped.
type ChannelDeleted struct {
	Meta      MessageMeta `json:"meta"`
	Channel   string      `json:"channel"`
	DeletedBy string      `json:"deleted_by"`
}

// AdminError reports an authorization denial; no state changed.
type AdminError struct {
	Meta   MessageMeta `json:"meta"`
	Reason string      `json:"reason"`
}

// DMReceived delivers a direct message to the recipient's connections,
// and replays undelivered DMs on login.
type DMReceived struct {
	Meta MessageMeta `json:"meta"`
	DM   StoredDM    `json:"dm"`
}

// DMSent acknowledges a stored direct message to its sender.
type DMSent struct {
	Meta        MessageMeta `json:"meta"`
	DMID        uint64      `json:"dm_id"`
	RecipientID UserID      `json:"recipient_id"`
	Timestamp   time.Time   `json:"timestamp"`
}

// DMHistory answers GetDMHistory, newest first.
type DMHistory struct {
	Meta     MessageMeta `json:"meta"`
	UserID   UserID      `json:"user_id"`
	Messages []StoredDM  `json:"messages"`
}

// FileOffered notifies the recipient of a pending transfer.
type FileOffered struct {
	Meta  MessageMeta `json:"meta"`
	Offer FileOffer   `json:"offer"`
}

// FileOfferAck confirms an offer to its sender.
type FileOfferAck struct {
	Meta        MessageMeta `json:"meta"`
	TransferID  uint64      `json:"transfer_id"`
	RecipientID UserID      `json:"recipient_id"`
}

// FileAccepted tells the sender to start sending chunks.
type FileAccepted struct {
	Meta       MessageMeta `json:"meta"`
	TransferID uint64      `json:"transfer_id"`
}

// FileDeclined tells the sender the recipient declined.
type FileDeclined struct {
	Meta       MessageMeta `json:"meta"`
	TransferID uint64      `json:"transfer_id"`
}

// FileChunkReceived relays one chunk to the recipient.
type FileChunkReceived struct {
	Meta       MessageMeta `json:"meta"`
	TransferID uint64      `json:"transfer_id"`
	ChunkIndex uint32      `json:"chunk_index"`
	Data       []byte      `json:"data"`
	ChunkHash  []byte      `json:"chunk_hash"`
}

// FileCompleted reports the transfer result to both parties. Verified is
// true when the reassembled chunks match the offered file hash.
type FileCompleted struct {
	Meta       MessageMeta `json:"meta"`
	TransferID uint64      `json:"transfer_id"`
	Verified   bool        `json:"verified"`
}

// FileFailed reports an aborted or failed transfer to both parties.
type FileFailed struct {
	Meta       MessageMeta `json:"meta"`
	TransferID uint64      `json:"transfer_id"`
	Reason     string      `json:"reason"`
}

func (*AuthChallenge) Type() string      { return "AuthChallenge" }
func (*AuthSuccess) Type() string        { return "AuthSuccess" }
func (*AuthFailure) Type() string        { return "AuthFailure" }
func (*EcdhAck) Type() string            { return "EcdhAck" }
func (*ChannelList) Type() string        { return "ChannelList" }
func (*JoinSuccess) Type() string        { return "JoinSuccess" }
func (*JoinFailure) Type() string        { return "JoinFailure" }
func (*MessageReceived) Type() string    { return "MessageReceived" }
func (*HistoryChunk) Type() string       { return "HistoryChunk" }
func (*UserJoined) Type() string         { return "UserJoined" }
func (*UserLeft) Type() string           { return "UserLeft" }
func (*SystemMessage) Type() string      { return "SystemMessage" }
func (*ProtocolError) Type() string      { return "ProtocolError" }
func (*MessageDeleted) Type() string     { return "MessageDeleted" }
func (*UserPromoted) Type() string       { return "UserPromoted" }
func (*UserDemoted) Type() string        { return "UserDemoted" }
func (*UserBanned) Type() string         { return "UserBanned" }
func (*UserUnbanned) Type() string       { return "UserUnbanned" }
func (*UserKicked) Type() string         { return "UserKicked" }
func (*AdminList) Type() string          { return "AdminList" }
func (*BanList) Type() string            { return "BanList" }
func (*LogList) Type() string            { return "LogList" }
func (*ChannelTypeChanged) Type() string { return "ChannelTypeChanged" }
func (*ChannelDeleted) Type() string     { return "ChannelDeleted" }
func (*AdminError) Type() string         { return "AdminError" }
func (*DMReceived) Type() string         { return "DMReceived" }
func (*DMSent) Type() string             { return "DMSent" }
func (*DMHistory) Type() string          { return "DMHistory" }
func (*FileOffered) Type() string        { return "FileOffered" }
func (*FileOfferAck) Type() string       { return "FileOfferAck" }
func (*FileAccepted) Type() string       { return "FileAccepted" }
func (*FileDeclined) Type() string       { return "FileDeclined" }
func (*FileChunkReceived) Type() string  { return "FileChunkReceived" }
func (*FileCompleted) Type() string      { return "FileCompleted" }
func (*FileFailed) Type() string         { return "FileFailed" }

func (*AuthChallenge) serverMessage()      {}
func (*AuthSuccess) serverMessage()        {}
func (*AuthFailure) serverMessage()        {}
func (*EcdhAck) serverMessage()            {}
func (*ChannelList) serverMessage()        {}
func (*JoinSuccess) serverMessage()        {}
func (*JoinFailure) serverMessage()        {}
func (*MessageReceived) serverMessage()    {}
func (*HistoryChunk) serverMessage()       {}
func (*UserJoined) serverMessage()         {}
func (*UserLeft) serverMessage()           {}
func (*SystemMessage) serverMessage()      {}
func (*ProtocolError) serverMessage()      {}
func (*MessageDeleted) serverMessage()     {}
func (*UserPromoted) serverMessage()       {}
func (*UserDemoted) serverMessage()        {}
func (*UserBanned) serverMessage()         {}
func (*UserUnbanned) serverMessage()       {}
func (*UserKicked) serverMessage()         {}
func (*AdminList) serverMessage()          {}
func (*BanList) serverMessage()            {}
func (*LogList) serverMessage()            {}
func (*ChannelTypeChanged) serverMessage() {}
func (*ChannelDeleted) serverMessage()     {}
func (*AdminError) serverMessage()         {}
func (*DMReceived) serverMessage()         {}
func (*DMSent) serverMessage()             {}
func (*DMHistory) serverMessage()          {}
func (*FileOffered) serverMessage()        {}
func (*FileOfferAck) serverMessage()       {}
func (*FileAccepted) serverMessage()       {}
func (*FileDeclined) serverMessage()       {}
func (*FileChunkReceived) serverMessage()  {}
func (*FileCompleted) serverMessage()      {}
func (*FileFailed) serverMessage()         {}

// serverFactories maps wire tags to variant constructors for decoding.
var serverFactories = map[string]func() ServerMessage{
	"AuthChallenge":      func() ServerMessage { return new(AuthChallenge) },
	"AuthSuccess":        func() ServerMessage { return new(AuthSuccess) },
	"AuthFailure":        func() ServerMessage { return new(AuthFailure) },
	"EcdhAck":            func() ServerMessage { return new(EcdhAck) },
	"ChannelList":        func() ServerMessage { return new(ChannelList) },
	"JoinSuccess":        func() ServerMessage { return new(JoinSuccess) },
	"JoinFailure":        func() ServerMessage { return new(JoinFailure) },
	"MessageReceived":    func() ServerMessage { return new(MessageReceived) },
	"HistoryChunk":       func() ServerMessage { return new(HistoryChunk) },
	"UserJoined":         func() ServerMessage { return new(UserJoined) },
	"UserLeft":           func() ServerMessage { return new(UserLeft) },
	"SystemMessage":      func() ServerMessage { return new(SystemMessage) },
	"ProtocolError":      func() ServerMessage { return new(ProtocolError) },
	"MessageDeleted":     func() ServerMessage { return new(MessageDeleted) },
	"UserPromoted":       func() ServerMessage { return new(UserPromoted) },
	"UserDemoted":        func() ServerMessage { return new(UserDemoted) },
	"UserBanned":         func() ServerMessage { return new(UserBanned) },
	"UserUnbanned":       func() ServerMessage { return new(UserUnbanned) },
	"UserKicked":         func() ServerMessage { return new(UserKicked) },
	"AdminList":          func() ServerMessage { return new(AdminList) },
	"BanList":            func() ServerMessage { return new(BanList) },
	"LogList":            func() ServerMessage { return new(LogList) },
	"ChannelTypeChanged": func() ServerMessage { return new(ChannelTypeChanged) },
	"ChannelDeleted":     func() ServerMessage { return new(ChannelDeleted) },
	"AdminError":         func() ServerMessage { return new(AdminError) },
	"DMReceived":         func() ServerMessage { return new(DMReceived) },
	"DMSent":             func() ServerMessage { return new(DMSent) },
	"DMHistory":          func() ServerMessage { return new(DMHistory) },
	"FileOffered":        func() ServerMessage { return new(FileOffered) },
	"FileOfferAck":       func() ServerMessage { return new(FileOfferAck) },
	"FileAccepted":       func() ServerMessage { return new(FileAccepted) },
	"FileDeclined":       func() ServerMessage { return new(FileDeclined) },
	"FileChunkReceived":  func() ServerMessage { return new(FileChunkReceived) },
	"FileCompleted":      func() ServerMessage { return new(FileCompleted) },
	"FileFailed":         func() ServerMessage { return new(FileFailed) },
}
