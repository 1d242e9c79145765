package registry

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/darkrelay/darkrelay/pkg/protocol"
)

func TestAddSendRemove(t *testing.T) {
	r := New()
	q := r.Add(1)

	if !r.Send(1, &protocol.SystemMessage{Text: "hello"}) {
		t.Fatal("Send to registered connection failed")
	}
	msg, ok := q.Pop(context.Background())
	if !ok {
		t.Fatal("Pop failed")
	}
	if got := msg.(*protocol.SystemMessage).Text; got != "hello" {
		t.Errorf("delivered = %q", got)
	}

	r.Remove(1)
	if r.Send(1, &protocol.SystemMessage{Text: "late"}) {
		t.Error("Send succeeded after Remove")
	}
	if got := r.Len(); got != 0 {
		t.Errorf("Len = %d, want 0", got)
	}
}

func TestRemoveKeepsQueuedMessagesPoppable(t *testing.T) {
	r := New()
	q := r.Add(1)
	r.Send(1, &protocol.SystemMessage{Text: "flush me"})
	r.Remove(1)

	msg, ok := q.Pop(context.Background())
	if !ok {
		t.Fatal("queued message lost on Remove")
	}
	if got := msg.(*protocol.SystemMessage).Text; got != "flush me" {
		t.Errorf("delivered = %q", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, ok := q.Pop(ctx); ok {
		t.Error("drained closed queue returned another message")
	}
}

func TestUserBinding(t *testing.T) {
	r := New()
	r.Add(1)

	if _, ok := r.User(1); ok {
		t.Error("unbound connection reported a user")
	}

	alice := protocol.UserInfo{ID: 42, Username: "alice"}
	r.SetUser(1, alice)
	got, ok := r.User(1)
	if !ok || got.ID != 42 || got.Username != "alice" {
		t.Errorf("User = %+v, %v", got, ok)
	}

	// Re-login rebinds the same connection.
	r.SetUser(1, protocol.UserInfo{ID: 43, Username: "bob"})
	if got, _ := r.User(1); got.ID != 43 {
		t.Errorf("rebound user ID = %d, want 43", got.ID)
	}
}

func TestChannelTracking(t *testing.T) {
	r := New()
	r.Add(1)

	if got := r.Channel(1); got != "" {
		t.Errorf("initial channel = %q, want empty", got)
	}
	r.SetChannel(1, "general")
	if got := r.Channel(1); got != "general" {
		t.Errorf("channel = %q, want general", got)
	}
	r.SetChannel(1, "")
	if got := r.Channel(1); got != "" {
		t.Errorf("cleared channel = %q, want empty", got)
	}
	if got := r.Channel(99); got != "" {
		t.Errorf("unknown connection channel = %q, want empty", got)
	}
}

func TestFindByUserID(t *testing.T) {
	r := New()
	r.Add(1)
	r.Add(2)
	r.Add(3)
	r.SetUser(1, protocol.UserInfo{ID: 42, Username: "alice"})
	r.SetUser(2, protocol.UserInfo{ID: 42, Username: "alice"})
	r.SetUser(3, protocol.UserInfo{ID: 7, Username: "bob"})

	conns := r.FindByUserID(42)
	sort.Slice(conns, func(i, j int) bool { return conns[i] < conns[j] })
	if len(conns) != 2 || conns[0] != 1 || conns[1] != 2 {
		t.Errorf("FindByUserID(42) = %v, want [1 2]", conns)
	}
	if got := r.FindByUserID(999); got != nil {
		t.Errorf("FindByUserID(999) = %v, want nil", got)
	}
}

func TestSendMany(t *testing.T) {
	r := New()
	q1 := r.Add(1)
	q2 := r.Add(2)

	sent := r.SendMany([]uint64{1, 2, 99}, &protocol.SystemMessage{Text: "fanout"})
	if sent != 2 {
		t.Errorf("SendMany = %d, want 2", sent)
	}
	for _, q := range []*Queue{q1, q2} {
		if got := q.Len(); got != 1 {
			t.Errorf("queue depth = %d, want 1", got)
		}
	}
}

func TestTotalQueueDepth(t *testing.T) {
	r := New()
	r.Add(1)
	r.Add(2)
	r.Send(1, &protocol.SystemMessage{Text: "a"})
	r.Send(1, &protocol.SystemMessage{Text: "b"})
	r.Send(2, &protocol.SystemMessage{Text: "c"})

	if got := r.TotalQueueDepth(); got != 3 {
		t.Errorf("TotalQueueDepth = %v, want 3", got)
	}
}
