package protocol

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func u64Ptr(v uint64) *uint64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func testMeta(id uint64) MessageMeta {
	return MessageMeta{ID: id, Timestamp: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func testTime() time.Time {
	return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
}

func TestClientMessageRoundTrip(t *testing.T) {
	messages := []ClientMessage{
		&Connect{Meta: testMeta(1), ClientName: strPtr("darkrelay-cli"), ClientVersion: strPtr("0.3.0")},
		&Connect{Meta: testMeta(2)},
		&Auth{Meta: testMeta(3), Key: "darkrelay-dev-key"},
		&EcdhPublicKey{Meta: testMeta(4), PublicKey: make([]byte, 32)},
		&RegisterUser{Meta: testMeta(5), Username: "alice"},
		&Login{Meta: testMeta(6), Username: "alice", Password: "dr-1700000000-1"},
		&JoinChannel{Meta: testMeta(7), Name: "general"},
		&JoinChannel{Meta: testMeta(8), Name: "secret", Password: strPtr("hunter2")},
		&SendMessage{Meta: testMeta(9), Channel: "general", Content: []byte{0xde, 0xad, 0xbe, 0xef}, Metadata: []KV{{Key: "nonce", Value: "000000000000000000000001"}}},
		&ListChannels{Meta: testMeta(10)},
		&GetHistory{Meta: testMeta(11), Channel: "general", Limit: 50},
		&DeleteMessage{Meta: testMeta(12), Channel: "general", MessageID: 42},
		&PromoteUser{Meta: testMeta(13), Channel: "general", UserID: 2, Role: RoleModerator},
		&DemoteUser{Meta: testMeta(14), Channel: "general", UserID: 2, Role: RoleUser},
		&BanUser{Meta: testMeta(15), Channel: "general", UserID: 2, DurationSeconds: u64Ptr(3600), Reason: strPtr("spam")},
		&BanUser{Meta: testMeta(16), Channel: "general", UserID: 3},
		&UnbanUser{Meta: testMeta(17), Channel: "general", UserID: 2},
		&KickUser{Meta: testMeta(18), Channel: "general", UserID: 2, Reason: strPtr("afk")},
		&ListAdmins{Meta: testMeta(19), Channel: "general"},
		&ListBans{Meta: testMeta(20), Channel: "general"},
		&ViewLogs{Meta: testMeta(21), Channel: "general", Limit: 100},
		&ChangeChannelType{Meta: testMeta(22), Channel: "general", ChannelType: ChannelAnnouncement},
		&DeleteChannel{Meta: testMeta(23), Channel: "general"},
		&Disconnect{Meta: testMeta(24)},
		&SendDM{Meta: testMeta(25), RecipientID: 2, Content: []byte{1, 2, 3}, Nonce: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}},
		&GetDMHistory{Meta: testMeta(26), UserID: 2, Limit: 20},
		&MarkDMRead{Meta: testMeta(27), DMID: 7},
		&OfferFile{Meta: testMeta(28), RecipientID: 2, FileName: "notes.txt", FileSize: 1024, FileHash: []byte{0xaa, 0xbb}},
		&AcceptFile{Meta: testMeta(29), TransferID: 1},
		&DeclineFile{Meta: testMeta(30), TransferID: 1},
		&FileChunk{Meta: testMeta(31), TransferID: 1, ChunkIndex: 0, Data: []byte{9, 8, 7}, ChunkHash: []byte{0xcc}},
		&CompleteFile{Meta: testMeta(32), TransferID: 1},
		&CancelFile{Meta: testMeta(33), TransferID: 1},
	}

	for _, msg := range messages {
		t.Run(msg.Type(), func(t *testing.T) {
			data, err := EncodeClient(msg)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := DecodeClient(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(got, msg) {
				t.Errorf("round trip mismatch:\n got %#v\nwant %#v", got, msg)
			}
		})
	}
}

func TestServerMessageRoundTrip(t *testing.T) {
	user := UserInfo{ID: 1, Username: "alice", JoinedAt: testTime()}
	channel := ChannelInfo{ID: 1, Name: "general", IsPublic: true, ChannelType: ChannelPublic}
	chat := ChatMessage{
		ID:        1,
		UserID:    1,
		Username:  "alice",
		Content:   []byte("ciphertext"),
		Nonce:     []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
		Timestamp: testTime(),
		Metadata:  []KV{{Key: "nonce", Value: "000000000000000000000001"}},
	}
	dm := StoredDM{DMID: 1, SenderID: 1, RecipientID: 2, Content: []byte{5}, Nonce: []byte{6}, Timestamp: testTime()}

	messages := []ServerMessage{
		&AuthChallenge{Meta: testMeta(1), Message: "special auth key required"},
		&AuthSuccess{Meta: testMeta(2), User: user, GeneratedPassword: strPtr("dr-1700000000-1")},
		&AuthSuccess{Meta: testMeta(3), User: user},
		&AuthFailure{Meta: testMeta(4), Reason: "invalid special key"},
		&EcdhAck{Meta: testMeta(5), PublicKey: make([]byte, 32)},
		&ChannelList{Meta: testMeta(6), Channels: []ChannelInfo{channel}},
		&JoinSuccess{Meta: testMeta(7), Channel: channel},
		&JoinFailure{Meta: testMeta(8), Channel: "secret", Reason: "invalid channel password"},
		&MessageReceived{Meta: testMeta(9), Channel: "general", Message: chat},
		&HistoryChunk{Meta: testMeta(10), Channel: "general", Messages: []ChatMessage{chat}},
		&UserJoined{Meta: testMeta(11), Channel: "general", User: user},
		&UserLeft{Meta: testMeta(12), Channel: "general", User: user},
		&SystemMessage{Meta: testMeta(13), Text: "special key accepted; send ECDH public key"},
		&ProtocolError{Meta: testMeta(14), Text: "login/register required"},
		&MessageDeleted{Meta: testMeta(15), Channel: "general", MessageID: 42, DeletedBy: "alice"},
		&UserPromoted{Meta: testMeta(16), Channel: "general", UserID: 2, Username: "bob", Role: RoleModerator, PromotedBy: "alice"},
		&UserDemoted{Meta: testMeta(17), Channel: "general", UserID: 2, Username: "bob", Role: RoleUser, DemotedBy: "alice"},
		&UserBanned{Meta: testMeta(18), Channel: "general", UserID: 2, Username: "bob", BannedUntil: timePtr(testTime()), BannedBy: "alice", Reason: strPtr("spam")},
		&UserBanned{Meta: testMeta(19), Channel: "general", UserID: 3, Username: "carol", BannedBy: "alice"},
		&UserUnbanned{Meta: testMeta(20), Channel: "general", UserID: 2, Username: "bob", UnbannedBy: "alice"},
		&UserKicked{Meta: testMeta(21), Channel: "general", UserID: 2, Username: "bob", KickedBy: "alice"},
		&AdminList{Meta: testMeta(22), Channel: "general", Admins: []AdminInfo{{UserID: 1, Username: "alice", Role: RoleAdmin}}},
		&BanList{Meta: testMeta(23), Channel: "general", Bans: []BanInfo{{UserID: 2, Username: "bob", BannedBy: "alice"}}},
		&LogList{Meta: testMeta(24), Channel: "general", Entries: []LogEntry{{Timestamp: testTime(), UserID: 1, Username: "alice", Action: "ban", Target: "bob", Details: "spam"}}},
		&ChannelTypeChanged{Meta: testMeta(25), Channel: "general", ChannelType: ChannelReadOnly, ChangedBy: "alice"},
		&ChannelDeleted{Meta: testMeta(26), Channel: "general", DeletedBy: "alice"},
		&AdminError{Meta: testMeta(27), Reason: "you lack permission to ban users"},
		&DMReceived{Meta: testMeta(28), DM: dm},
		&DMSent{Meta: testMeta(29), DMID: 1, RecipientID: 2, Timestamp: testTime()},
		&DMHistory{Meta: testMeta(30), UserID: 2, Messages: []StoredDM{dm}},
		&FileOffered{Meta: testMeta(31), Offer: FileOffer{TransferID: 1, SenderID: 1, SenderName: "alice", FileName: "notes.txt", FileSize: 1024, FileHash: []byte{0xaa}}},
		&FileOfferAck{Meta: testMeta(32), TransferID: 1, RecipientID: 2},
		&FileAccepted{Meta: testMeta(33), TransferID: 1},
		&FileDeclined{Meta: testMeta(34), TransferID: 1},
		&FileChunkReceived{Meta: testMeta(35), TransferID: 1, ChunkIndex: 0, Data: []byte{9}, ChunkHash: []byte{0xcc}},
		&FileCompleted{Meta: testMeta(36), TransferID: 1, Verified: true},
		&FileFailed{Meta: testMeta(37), TransferID: 1, Reason: "cancelled by peer"},
	}

	for _, msg := range messages {
		t.Run(msg.Type(), func(t *testing.T) {
			data, err := EncodeServer(msg)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := DecodeServer(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(got, msg) {
				t.Errorf("round trip mismatch:\n got %#v\nwant %#v", got, msg)
			}
		})
	}
}

func TestDecodeUnknownType(t *testing.T) {
	payload := []byte(`{"type":"SelfDestruct","data":{}}`)

	if _, err := DecodeClient(payload); !errors.Is(err, ErrUnknownType) {
		t.Errorf("DecodeClient error = %v, want ErrUnknownType", err)
	}
	if _, err := DecodeServer(payload); !errors.Is(err, ErrUnknownType) {
		t.Errorf("DecodeServer error = %v, want ErrUnknownType", err)
	}
}

func TestDecodeDirectionsAreDisjoint(t *testing.T) {
	// A server tag must not decode as a client message and vice versa.
	data, err := EncodeServer(&AuthChallenge{Meta: testMeta(1), Message: "x"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeClient(data); !errors.Is(err, ErrUnknownType) {
		t.Errorf("DecodeClient(AuthChallenge) error = %v, want ErrUnknownType", err)
	}

	data, err = EncodeClient(&Auth{Meta: testMeta(2), Key: "k"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeServer(data); !errors.Is(err, ErrUnknownType) {
		t.Errorf("DecodeServer(Auth) error = %v, want ErrUnknownType", err)
	}
}

func TestDecodeMalformedEnvelope(t *testing.T) {
	for _, payload := range [][]byte{
		[]byte(``),
		[]byte(`not json`),
		[]byte(`{"type":"Auth","data":"not an object"}`),
	} {
		if _, err := DecodeClient(payload); err == nil {
			t.Errorf("DecodeClient(%q) succeeded, want error", payload)
		}
	}
}

func TestFactoryTagsMatchVariants(t *testing.T) {
	for tag, factory := range clientFactories {
		if got := factory().Type(); got != tag {
			t.Errorf("client factory %q constructs variant with tag %q", tag, got)
		}
	}
	for tag, factory := range serverFactories {
		if got := factory().Type(); got != tag {
			t.Errorf("server factory %q constructs variant with tag %q", tag, got)
		}
	}
}
