package ws

import (
	"sync"
	"testing"

	"github.com/cwrk-planet/roomchat/internal/domain"

	"github.com/stretchr/testify/assert"
)

type fakeConn struct {
	id     string
	cap    int
	mu     sync.Mutex
	got    []domain.Event
	closed bool
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Enqueue(ev domain.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cap > 0 && len(f.got) >= f.cap {
		return false
	}
	f.got = append(f.got, ev)
	return true
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) events() []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Event(nil), f.got...)
}

func TestHub_BroadcastAndExcept(t *testing.T) {
	h := NewHub()
	a, b, c := &fakeConn{id: "a"}, &fakeConn{id: "b"}, &fakeConn{id: "c"}
	for _, fc := range []*fakeConn{a, b, c} {
		h.Attach(fc)
	}
	h.Subscribe("r1", "a")
	h.Subscribe("r1", "b")
	h.Subscribe("r2", "c")

	h.Broadcast("r1", domain.RoomStatusChanged{RoomID: "r1", Status: domain.RoomLive})
	h.BroadcastExcept("r1", "a", domain.UserJoined{RoomID: "r1"})

	assert.Len(t, a.events(), 1)
	assert.Len(t, b.events(), 2)
	assert.Empty(t, c.events())
	assert.Equal(t, []string{"a", "b"}, h.Subscribers("r1"))
}

func TestHub_OrderPerConnection(t *testing.T) {
	h := NewHub()
	a := &fakeConn{id: "a"}
	h.Attach(a)
	h.Subscribe("r1", "a")

	for i := 0; i < 20; i++ {
		h.Broadcast("r1", domain.MessagePosted{Message: domain.Message{Content: string(rune('a' + i))}})
	}

	got := a.events()
	assert.Len(t, got, 20)
	for i, ev := range got {
		assert.Equal(t, string(rune('a'+i)), ev.(domain.MessagePosted).Message.Content)
	}
}

func TestHub_SubscribeRequiresAttach(t *testing.T) {
	h := NewHub()
	h.Subscribe("r1", "ghost")
	assert.Empty(t, h.Subscribers("r1"))
}

func TestHub_DetachDropsSubscriptions(t *testing.T) {
	h := NewHub()
	a := &fakeConn{id: "a"}
	h.Attach(a)
	h.Subscribe("r1", "a")
	h.Subscribe("r2", "a")

	h.Detach("a")
	h.Detach("a")

	assert.Empty(t, h.Subscribers("r1"))
	assert.Empty(t, h.Subscribers("r2"))
	h.Send("a", domain.UserJoined{})
	assert.Empty(t, a.events())
}

func TestHub_SlowConsumerClosed(t *testing.T) {
	h := NewHub()
	slow := &fakeConn{id: "slow", cap: 1}
	fast := &fakeConn{id: "fast"}
	h.Attach(slow)
	h.Attach(fast)
	h.Subscribe("r1", "slow")
	h.Subscribe("r1", "fast")

	h.Broadcast("r1", domain.UserJoined{RoomID: "r1"})
	h.Broadcast("r1", domain.UserJoined{RoomID: "r1"})

	assert.True(t, slow.closed)
	assert.False(t, fast.closed)
	assert.Len(t, fast.events(), 2)
}

func TestHub_CloseAll(t *testing.T) {
	h := NewHub()
	a, b := &fakeConn{id: "a"}, &fakeConn{id: "b"}
	h.Attach(a)
	h.Attach(b)

	assert.Equal(t, 2, h.CloseAll())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
