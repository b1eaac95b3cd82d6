package realtime

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	id     string
	userID uuid.UUID
	fail   bool

	mu       sync.Mutex
	received [][]byte
}

func newFakeClient(id string) *fakeClient {
	return &fakeClient{id: id, userID: uuid.New()}
}

func (c *fakeClient) ID() string {
	return c.id
}

func (c *fakeClient) UserID() uuid.UUID {
	return c.userID
}

func (c *fakeClient) Send(payload []byte) error {
	if c.fail {
		return errors.New("closed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, payload)
	return nil
}

func (c *fakeClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

func TestHub_JoinRequiresRegistration(t *testing.T) {
	h := NewHub()
	c := newFakeClient("a")
	room := uuid.New()

	assert.False(t, h.Join(room, c))
	assert.Equal(t, 0, h.Members(room))

	h.Register(c)
	assert.True(t, h.Join(room, c))
	assert.True(t, h.IsMember(room, c))
	assert.Equal(t, 1, h.Members(room))
}

func TestHub_BroadcastReachesOnlyRoomMembers(t *testing.T) {
	h := NewHub()
	a, b, outsider := newFakeClient("a"), newFakeClient("b"), newFakeClient("c")
	room := uuid.New()
	for _, c := range []*fakeClient{a, b, outsider} {
		h.Register(c)
	}
	require.True(t, h.Join(room, a))
	require.True(t, h.Join(room, b))
	require.True(t, h.Join(uuid.New(), outsider))

	delivered := h.Broadcast(room, []byte(`{"event":"newMessage"}`))

	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, 0, outsider.count())
}

func TestHub_FailedSendIsNotCounted(t *testing.T) {
	h := NewHub()
	ok, broken := newFakeClient("ok"), newFakeClient("broken")
	broken.fail = true
	room := uuid.New()
	h.Register(ok)
	h.Register(broken)
	h.Join(room, ok)
	h.Join(room, broken)

	assert.Equal(t, 1, h.Broadcast(room, []byte("x")))
}

func TestHub_LeaveAndUnregister(t *testing.T) {
	h := NewHub()
	c := newFakeClient("a")
	r1, r2 := uuid.New(), uuid.New()
	h.Register(c)
	h.Join(r1, c)
	h.Join(r2, c)

	h.Leave(r1, c)
	assert.False(t, h.IsMember(r1, c))
	assert.Equal(t, 0, h.Members(r1))
	assert.Equal(t, 1, h.Members(r2))

	h.Unregister(c)
	assert.Equal(t, 0, h.Members(r2))
	assert.Equal(t, 0, h.ClientCount())
	assert.Equal(t, 0, h.Broadcast(r2, []byte("x")))
	assert.False(t, h.Join(r2, c))
}

func TestHub_ConcurrentUse(t *testing.T) {
	h := NewHub()
	room := uuid.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newFakeClient(uuid.NewString())
			h.Register(c)
			h.Join(room, c)
			h.Broadcast(room, []byte("ping"))
			if i%2 == 0 {
				h.Unregister(c)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, h.Members(room))
}
