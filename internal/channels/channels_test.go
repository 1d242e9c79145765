package channels

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/darkrelay/darkrelay/pkg/protocol"
)

func strPtr(s string) *string { return &s }

func TestJoinCreatesChannel(t *testing.T) {
	s := NewStore("*")

	info, created, err := s.Join(1, "general", nil)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !created {
		t.Error("created = false, want true on first join")
	}
	if info.Name != "general" || !info.IsPublic || info.ID == 0 {
		t.Errorf("info = %+v", info)
	}

	_, created, err = s.Join(2, "general", nil)
	if err != nil {
		t.Fatalf("second Join: %v", err)
	}
	if created {
		t.Error("created = true on second join")
	}
	if got := len(s.Members("general")); got != 2 {
		t.Errorf("members = %d, want 2", got)
	}
}

func TestJoinPrivateChannelPassword(t *testing.T) {
	s := NewStore("*")

	info, _, err := s.Join(1, "vault", strPtr("sekrit"))
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if info.IsPublic {
		t.Error("channel with password is public")
	}

	if _, _, err := s.Join(2, "vault", nil); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("join without password error = %v, want ErrInvalidPassword", err)
	}
	if _, _, err := s.Join(2, "vault", strPtr("wrong")); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("join with wrong password error = %v, want ErrInvalidPassword", err)
	}
	if _, _, err := s.Join(2, "vault", strPtr("sekrit")); err != nil {
		t.Errorf("join with right password error = %v", err)
	}
}

func TestJoinNamePattern(t *testing.T) {
	s := NewStore("team-*")

	if _, _, err := s.Join(1, "random", nil); !errors.Is(err, ErrNameNotAllowed) {
		t.Errorf("disallowed name error = %v, want ErrNameNotAllowed", err)
	}
	if _, _, err := s.Join(1, "team-infra", nil); err != nil {
		t.Errorf("allowed name error = %v", err)
	}
	if _, _, err := s.Join(1, "  ", nil); !errors.Is(err, ErrNameNotAllowed) {
		t.Errorf("blank name error = %v, want ErrNameNotAllowed", err)
	}

	// Existing channels stay joinable even if the pattern would reject them.
	s.Ensure("general")
	if _, _, err := s.Join(2, "general", nil); err != nil {
		t.Errorf("join of ensured channel error = %v", err)
	}
}

func TestEnsureIdempotent(t *testing.T) {
	s := NewStore("*")

	first := s.Ensure("general")
	second := s.Ensure("general")
	if first.ID != second.ID {
		t.Errorf("Ensure allocated a new channel: %d vs %d", first.ID, second.ID)
	}
	if !first.IsPublic {
		t.Error("ensured channel not public")
	}
}

func TestLeaveRemovesMember(t *testing.T) {
	s := NewStore("*")
	s.Join(7, "general", nil)
	s.Join(8, "general", nil)

	s.Leave(7, "general")
	got := s.Members("general")
	if !reflect.DeepEqual(got, []uint64{8}) {
		t.Errorf("Members = %v, want [8]", got)
	}

	// Leaving twice or leaving an unknown channel is a no-op.
	s.Leave(7, "general")
	s.Leave(7, "nowhere")
}

func TestAddMessageStampsAndCaps(t *testing.T) {
	s := NewStore("*")
	s.Ensure("general")

	var lastID protocol.MessageID
	for i := 0; i < MessageCap+10; i++ {
		msg, err := s.AddMessage("general", protocol.ChatMessage{
			UserID:   1,
			Username: "alice",
			Content:  []byte(fmt.Sprintf("m%d", i)),
		})
		if err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
		if msg.ID <= lastID {
			t.Fatalf("message id %d not monotonic after %d", msg.ID, lastID)
		}
		if msg.Timestamp.IsZero() {
			t.Fatal("message timestamp not stamped")
		}
		lastID = msg.ID
	}

	history := s.History("general", MessageCap*2)
	if len(history) != MessageCap {
		t.Fatalf("history length = %d, want %d", len(history), MessageCap)
	}
	if got := string(history[0].Content); got != "m10" {
		t.Errorf("oldest retained = %q, want m10", got)
	}
	if got := string(history[len(history)-1].Content); got != fmt.Sprintf("m%d", MessageCap+9) {
		t.Errorf("newest retained = %q", got)
	}
}

func TestHistoryLimitAndOrder(t *testing.T) {
	s := NewStore("*")
	s.Ensure("general")
	for i := 0; i < 5; i++ {
		s.AddMessage("general", protocol.ChatMessage{Content: []byte(fmt.Sprintf("m%d", i))})
	}

	got := s.History("general", 3)
	if len(got) != 3 {
		t.Fatalf("history length = %d, want 3", len(got))
	}
	for i, want := range []string{"m2", "m3", "m4"} {
		if string(got[i].Content) != want {
			t.Errorf("history[%d] = %q, want %q", i, got[i].Content, want)
		}
	}

	if got := s.History("nowhere", 10); len(got) != 0 {
		t.Errorf("unknown channel history length = %d, want 0", len(got))
	}
}

func TestAddMessageUnknownChannel(t *testing.T) {
	s := NewStore("*")
	if _, err := s.AddMessage("nowhere", protocol.ChatMessage{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddMessage error = %v, want ErrNotFound", err)
	}
}

func TestDeleteMessage(t *testing.T) {
	s := NewStore("*")
	s.Ensure("general")
	msg, _ := s.AddMessage("general", protocol.ChatMessage{Content: []byte("target")})
	s.AddMessage("general", protocol.ChatMessage{Content: []byte("keep")})

	if err := s.DeleteMessage("general", msg.ID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if err := s.DeleteMessage("general", msg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("second delete error = %v, want ErrMessageNotFound", err)
	}
	if err := s.DeleteMessage("nowhere", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown channel delete error = %v, want ErrNotFound", err)
	}

	history := s.History("general", 10)
	if len(history) != 1 || string(history[0].Content) != "keep" {
		t.Errorf("history after delete = %+v", history)
	}
}

func TestListPublicSortedAndFiltered(t *testing.T) {
	s := NewStore("*")
	s.Join(1, "zulu", nil)
	s.Join(1, "alpha", nil)
	s.Join(1, "vault", strPtr("pw"))

	list := s.ListPublic()
	if len(list) != 2 {
		t.Fatalf("public list length = %d, want 2", len(list))
	}
	if list[0].Name != "alpha" || list[1].Name != "zulu" {
		t.Errorf("public list order = %s, %s", list[0].Name, list[1].Name)
	}
}

func TestDeleteChannel(t *testing.T) {
	s := NewStore("*")
	s.Join(1, "doomed", nil)
	s.Join(2, "doomed", nil)

	members, ok := s.Delete("doomed")
	if !ok {
		t.Fatal("Delete returned ok = false")
	}
	if len(members) != 2 {
		t.Errorf("member snapshot = %v", members)
	}
	if _, ok := s.Info("doomed"); ok {
		t.Error("channel still present after delete")
	}
	if _, ok := s.Delete("doomed"); ok {
		t.Error("second delete returned ok = true")
	}
}
