package protocol

// ClientMessage is one tagged message sent from client to server. The set
// of variants is closed; Type returns the wire tag.
type ClientMessage interface {
	Type() string
	clientMessage()
}

// Connect announces the client before any authentication. The server
// currently treats it as a no-op.
type Connect struct {
	Meta          MessageMeta `json:"meta"`
	ClientName    *string     `json:"client_name,omitempty"`
	ClientVersion *string     `json:"client_version,omitempty"`
}

// Auth presents the deployment gate key. Must be the first authenticated
// step; a wrong key closes the connection.
type Auth struct {
	Meta MessageMeta `json:"meta"`
	Key  string      `json:"key"`
}

// EcdhPublicKey carries the client's 32-byte X25519 public key.
type EcdhPublicKey struct {
	Meta      MessageMeta `json:"meta"`
	PublicKey []byte      `json:"public_key"`
}

// RegisterUser creates a new user; the server generates the password.
type RegisterUser struct {
	Meta     MessageMeta `json:"meta"`
	Username string      `json:"username"`
}

// Login authenticates an existing user.
type Login struct {
	Meta     MessageMeta `json:"meta"`
	Username string      `json:"username"`
	Password string      `json:"password"`
}

// JoinChannel joins (and auto-creates) a channel. A non-empty password on
// creation makes the channel private.
type JoinChannel struct {
	Meta     MessageMeta `json:"meta"`
	Name     string      `json:"name"`
	Password *string     `json:"password,omitempty"`
}

// SendMessage posts opaque content to the sender's current channel. The
// metadata key "nonce" carries the hex-encoded content nonce.
type SendMessage struct {
	Meta     MessageMeta `json:"meta"`
	Channel  string      `json:"channel"`
	Content  []byte      `json:"content"`
	Metadata []KV        `json:"metadata"`
}

// ListChannels requests the public channel list.
type ListChannels struct {
	Meta MessageMeta `json:"meta"`
}

// GetHistory requests up to Limit most recent messages of a channel.
type GetHistory struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
	Limit   uint16      `json:"limit"`
}

// DeleteMessage removes one stored message. Requires the DeleteMessage
// permission in the channel.
type DeleteMessage struct {
	Meta      MessageMeta `json:"meta"`
	Channel   string      `json:"channel"`
	MessageID MessageID   `json:"message_id"`
}

// PromoteUser raises a user's role in a channel.
type PromoteUser struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
	UserID  UserID      `json:"user_id"`
	Role    Role        `json:"role"`
}

// DemoteUser lowers a user's role in a channel.
type DemoteUser struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
	UserID  UserID      `json:"user_id"`
	Role    Role        `json:"role"`
}

// BanUser bans a user from a channel. A nil DurationSeconds means the ban
// is permanent.
type BanUser struct {
	Meta            MessageMeta `json:"meta"`
	Channel         string      `json:"channel"`
	UserID          UserID      `json:"user_id"`
	DurationSeconds *uint64     `json:"duration_seconds,omitempty"`
	Reason          *string     `json:"reason,omitempty"`
}

// UnbanUser lifts a ban.
type UnbanUser struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
	UserID  UserID      `json:"user_id"`
}

// KickUser removes a user's connections from a channel without banning.
type KickUser struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
	UserID  UserID      `json:"user_id"`
	Reason  *string     `json:"reason,omitempty"`
}

// ListAdmins requests the channel's moderators and admins. Unprivileged.
type ListAdmins struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
}

// ListBans requests the channel's active bans. Requires ViewLogs.
type ListBans struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
}

// ViewLogs requests up to Limit most recent audit log entries. Requires
// ViewLogs.
type ViewLogs struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
	Limit   uint16      `json:"limit"`
}

// ChangeChannelType switches a channel's posting policy. Requires
// ManageChannel.
type ChangeChannelType struct {
	Meta        MessageMeta `json:"meta"`
	Channel     string      `json:"channel"`
	ChannelType ChannelType `json:"channel_type"`
}

// DeleteChannel drops a channel and all of its state. Requires SuperAdmin
// in that channel.
type DeleteChannel struct {
	Meta    MessageMeta `json:"meta"`
	Channel string      `json:"channel"`
}

// Disconnect closes the session cleanly.
type Disconnect struct {
	Meta MessageMeta `json:"meta"`
}

// SendDM sends an opaque direct message to another user.
type SendDM struct {
	Meta        MessageMeta `json:"meta"`
	RecipientID UserID      `json:"recipient_id"`
	Content     []byte      `json:"content"`
	Nonce       []byte      `json:"nonce"`
}

// GetDMHistory requests up to Limit most recent DMs with another user.
type GetDMHistory struct {
	Meta   MessageMeta `json:"meta"`
	UserID UserID      `json:"user_id"`
	Limit  uint16      `json:"limit"`
}

// MarkDMRead marks a received DM as read. Only the recipient may mark.
type MarkDMRead struct {
	Meta MessageMeta `json:"meta"`
	DMID uint64      `json:"dm_id"`
}

// OfferFile opens a file transfer towards another user.
type OfferFile struct {
	Meta        MessageMeta `json:"meta"`
	RecipientID UserID      `json:"recipient_id"`
	FileName    string      `json:"file_name"`
	FileSize    uint64      `json:"file_size"`
	FileHash    []byte      `json:"file_hash"`
}

// AcceptFile accepts a pending transfer. Recipient only.
type AcceptFile struct {
	Meta       MessageMeta `json:"meta"`
	TransferID uint64      `json:"transfer_id"`
}

// DeclineFile declines a pending transfer. Recipient only.
type DeclineFile struct {
	Meta       MessageMeta `json:"meta"`
	TransferID uint64      `json:"transfer_id"`
}

// FileChunk carries one chunk of an accepted transfer. Sender only.
type FileChunk struct {
	Meta       MessageMeta `json:"meta"`
	TransferID uint64      `json:"transfer_id"`
	ChunkIndex uint32      `json:"chunk_index"`
	Data       []byte      `json:"data"`
	ChunkHash  []byte      `json:"chunk_hash"`
}

// CompleteFile finishes a transfer; the server verifies the file hash.
type CompleteFile struct {
	Meta       MessageMeta `json:"meta"`
	TransferID uint64      `json:"transfer_id"`
}

// CancelFile aborts a transfer from either side.
type CancelFile struct {
	Meta       MessageMeta `json:"meta"`
	TransferID uint64      `json:"transfer_id"`
}

func (*Connect) Type() string           { return "Connect" }
func (*Auth) Type() string              { return "Auth" }
func (*EcdhPublicKey) Type() string     { return "EcdhPublicKey" }
func (*RegisterUser) Type() string      { return "RegisterUser" }
func (*Login) Type() string             { return "Login" }
func (*JoinChannel) Type() string       { return "JoinChannel" }
func (*SendMessage) Type() string       { return "SendMessage" }
func (*ListChannels) Type() string      { return "ListChannels" }
func (*GetHistory) Type() string        { return "GetHistory" }
func (*DeleteMessage) Type() string     { return "DeleteMessage" }
func (*PromoteUser) Type() string       { return "PromoteUser" }
func (*DemoteUser) Type() string        { return "DemoteUser" }
func (*BanUser) Type() string           { return "BanUser" }
func (*UnbanUser) Type() string         { return "UnbanUser" }
func (*KickUser) Type() string          { return "KickUser" }
func (*ListAdmins) Type() string        { return "ListAdmins" }
func (*ListBans) Type() string          { return "ListBans" }
func (*ViewLogs) Type() string          { return "ViewLogs" }
func (*ChangeChannelType) Type() string { return "ChangeChannelType" }
func (*DeleteChannel) Type() string     { return "DeleteChannel" }
func (*Disconnect) Type() string        { return "Disconnect" }
func (*SendDM) Type() string            { return "SendDM" }
func (*GetDMHistory) Type() string      { return "GetDMHistory" }
func (*MarkDMRead) Type() string        { return "MarkDMRead" }
func (*OfferFile) Type() string         { return "OfferFile" }
func (*AcceptFile) Type() string        { return "AcceptFile" }
func (*DeclineFile) Type() string       { return "DeclineFile" }
func (*FileChunk) Type() string         { return "FileChunk" }
func (*CompleteFile) Type() string      { return "CompleteFile" }
func (*CancelFile) Type() string        { return "CancelFile" }

func (*Connect) clientMessage()           {}
func (*Auth) clientMessage()              {}
func (*EcdhPublicKey) clientMessage()     {}
func (*RegisterUser) clientMessage()      {}
func (*Login) clientMessage()             {}
func (*JoinChannel) clientMessage()       {}
func (*SendMessage) clientMessage()       {}
func (*ListChannels) clientMessage()      {}
func (*GetHistory) clientMessage()        {}
func (*DeleteMessage) clientMessage()     {}
func (*PromoteUser) clientMessage()       {}
func (*DemoteUser) clientMessage()        {}
func (*BanUser) clientMessage()           {}
func (*UnbanUser) clientMessage()         {}
func (*KickUser) clientMessage()          {}
func (*ListAdmins) clientMessage()        {}
func (*ListBans) clientMessage()          {}
func (*ViewLogs) clientMessage()          {}
func (*ChangeChannelType) clientMessage() {}
func (*DeleteChannel) clientMessage()     {}
func (*Disconnect) clientMessage()        {}
func (*SendDM) clientMessage()            {}
func (*GetDMHistory) clientMessage()      {}
func (*MarkDMRead) clientMessage()        {}
func (*OfferFile) clientMessage()         {}
func (*AcceptFile) clientMessage()        {}
func (*DeclineFile) clientMessage()       {}
func (*FileChunk) clientMessage()         {}
func (*CompleteFile) clientMessage()      {}
func (*CancelFile) clientMessage()        {}

// clientFactories maps wire tags to variant constructors for decoding.
var clientFactories = map[string]func() ClientMessage{
	"Connect":           func() ClientMessage { return new(Connect) },
	"Auth":              func() ClientMessage { return new(Auth) },
	"EcdhPublicKey":     func() ClientMessage { return new(EcdhPublicKey) },
	"RegisterUser":      func() ClientMessage { return new(RegisterUser) },
	"Login":             func() ClientMessage { return new(Login) },
	"JoinChannel":       func() ClientMessage { return new(JoinChannel) },
	"SendMessage":       func() ClientMessage { return new(SendMessage) },
	"ListChannels":      func() ClientMessage { return new(ListChannels) },
	"GetHistory":        func() ClientMessage { return new(GetHistory) },
	"DeleteMessage":     func() ClientMessage { return new(DeleteMessage) },
	"PromoteUser":       func() ClientMessage { return new(PromoteUser) },
	"DemoteUser":        func() ClientMessage { return new(DemoteUser) },
	"BanUser":           func() ClientMessage { return new(BanUser) },
	"UnbanUser":         func() ClientMessage { return new(UnbanUser) },
	"KickUser":          func() ClientMessage { return new(KickUser) },
	"ListAdmins":        func() ClientMessage { return new(ListAdmins) },
	"ListBans":          func() ClientMessage { return new(ListBans) },
	"ViewLogs":          func() ClientMessage { return new(ViewLogs) },
	"ChangeChannelType": func() ClientMessage { return new(ChangeChannelType) },
	"DeleteChannel":     func() ClientMessage { return new(DeleteChannel) },
	"Disconnect":        func() ClientMessage { return new(Disconnect) },
	"SendDM":            func() ClientMessage { return new(SendDM) },
	"GetDMHistory":      func() ClientMessage { return new(GetDMHistory) },
	"MarkDMRead":        func() ClientMessage { return new(MarkDMRead) },
	"OfferFile":         func() ClientMessage { return new(OfferFile) },
	"AcceptFile":        func() ClientMessage { return new(AcceptFile) },
	"DeclineFile":       func() ClientMessage { return new(DeclineFile) },
	"FileChunk":         func() ClientMessage { return new(FileChunk) },
	"CompleteFile":      func() ClientMessage { return new(CompleteFile) },
	"CancelFile":        func() ClientMessage { return new(CancelFile) },
}
