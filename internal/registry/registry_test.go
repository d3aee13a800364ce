package registry

import (
	"errors"
	"sync"
	"testing"
)

type fakeConn struct {
	mu     sync.Mutex
	closed bool
	sent   [][]byte
	fail   bool
}

func (c *fakeConn) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("queue full")
	}
	c.sent = append(c.sent, p)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func TestPutAndGet(t *testing.T) {
	r := New()
	k := Key{RoomCode: "ABCD", ParticipantID: "p1"}
	c := &fakeConn{}

	if r.Has(k) {
		t.Fatal("empty registry should not have key")
	}
	r.Put(k, c)
	got, ok := r.Get(k)
	if !ok || got != c {
		t.Fatalf("Get = %v, %v; want registered conn", got, ok)
	}
	if r.ConnCount("ABCD") != 1 || r.RoomCount() != 1 {
		t.Errorf("counts = %d/%d, want 1/1", r.ConnCount("ABCD"), r.RoomCount())
	}
}

func TestPutClosesPriorConnection(t *testing.T) {
	r := New()
	k := Key{RoomCode: "ABCD", ParticipantID: "p1"}
	old, replacement := &fakeConn{}, &fakeConn{}

	r.Put(k, old)
	r.Put(k, replacement)

	if old.Open() {
		t.Error("prior connection should be closed on replace")
	}
	if !replacement.Open() {
		t.Error("replacement should stay open")
	}
	if got, _ := r.Get(k); got != replacement {
		t.Error("registry should hold the replacement")
	}
}

func TestPutSameConnDoesNotClose(t *testing.T) {
	r := New()
	k := Key{RoomCode: "ABCD", ParticipantID: "p1"}
	c := &fakeConn{}
	r.Put(k, c)
	r.Put(k, c)
	if !c.Open() {
		t.Error("re-putting the same connection must not close it")
	}
}

func TestRemove(t *testing.T) {
	r := New()
	k := Key{RoomCode: "ABCD", ParticipantID: "p1"}
	r.Put(k, &fakeConn{})

	if !r.Remove(k) {
		t.Error("Remove existing = false, want true")
	}
	if r.Remove(k) {
		t.Error("Remove missing = true, want false")
	}
	if r.Active("ABCD") || r.RoomCount() != 0 {
		t.Error("empty room should be dropped")
	}
}

func TestCompareAndRemove(t *testing.T) {
	r := New()
	k := Key{RoomCode: "ABCD", ParticipantID: "p1"}
	old, current := &fakeConn{}, &fakeConn{}
	r.Put(k, old)
	r.Put(k, current)

	if r.CompareAndRemove(k, old) {
		t.Error("stale connection must not remove the current entry")
	}
	if !r.Has(k) {
		t.Fatal("entry should survive a stale compare")
	}
	if !r.CompareAndRemove(k, current) {
		t.Error("current connection should remove its entry")
	}
	if r.Has(k) {
		t.Error("entry should be gone")
	}
}

func TestForRoomIsolatesRooms(t *testing.T) {
	r := New()
	r.Put(Key{RoomCode: "AAAA", ParticipantID: "p1"}, &fakeConn{})
	r.Put(Key{RoomCode: "AAAA", ParticipantID: "p2"}, &fakeConn{})
	r.Put(Key{RoomCode: "BBBB", ParticipantID: "p1"}, &fakeConn{})

	if n := len(r.ForRoom("AAAA")); n != 2 {
		t.Errorf("ForRoom(AAAA) = %d, want 2", n)
	}
	if n := len(r.ForRoom("BBBB")); n != 1 {
		t.Errorf("ForRoom(BBBB) = %d, want 1", n)
	}
	if n := len(r.ForRoom("CCCC")); n != 0 {
		t.Errorf("ForRoom(CCCC) = %d, want 0", n)
	}
}

func TestBroadcastSkipsFailedAndClosed(t *testing.T) {
	r := New()
	ok1, ok2 := &fakeConn{}, &fakeConn{}
	failing := &fakeConn{fail: true}
	closed := &fakeConn{closed: true}
	r.Put(Key{RoomCode: "ABCD", ParticipantID: "a"}, ok1)
	r.Put(Key{RoomCode: "ABCD", ParticipantID: "b"}, ok2)
	r.Put(Key{RoomCode: "ABCD", ParticipantID: "c"}, failing)
	r.Put(Key{RoomCode: "ABCD", ParticipantID: "d"}, closed)

	if sent := r.Broadcast("ABCD", []byte("hi")); sent != 2 {
		t.Errorf("Broadcast sent = %d, want 2", sent)
	}
	if len(ok1.sent) != 1 || len(ok2.sent) != 1 {
		t.Error("open connections should each receive one message")
	}
	if len(closed.sent) != 0 {
		t.Error("closed connection should be skipped")
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := Key{RoomCode: "ABCD", ParticipantID: string(rune('a' + i%26))}
			c := &fakeConn{}
			r.Put(k, c)
			r.Broadcast("ABCD", []byte("x"))
			r.CompareAndRemove(k, c)
		}(i)
	}
	wg.Wait()
}
