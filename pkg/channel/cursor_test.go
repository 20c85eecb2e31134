package channel_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/filebus-org/go-filebus/pkg/channel"
)

func TestUnreadScenario(t *testing.T) {
	// create c; send alice hi; send bob hello; unread(alice) returns
	// exactly bob's message; a second unread(alice) returns nothing.
	path := newChannel(t)
	if _, err := channel.Send(path, "alice", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := channel.Send(path, "bob", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	unread, err := channel.ReadUnread(path, "alice")
	if err != nil {
		t.Fatalf("ReadUnread failed: %v", err)
	}
	if len(unread) != 1 || unread[0].Handle != "bob" || unread[0].Content != "hello" {
		t.Fatalf("unread(alice) = %v, want [bob: hello]", unread)
	}

	again, err := channel.ReadUnread(path, "alice")
	if err != nil {
		t.Fatalf("second ReadUnread failed: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second unread(alice) = %v, want empty", again)
	}
}

func TestUnreadNeverSkipsOrRepeats(t *testing.T) {
	path := newChannel(t)

	var seen []string
	for round := 0; round < 4; round++ {
		channel.Send(path, "bob", "r"+string(rune('0'+round)))
		unread, err := channel.ReadUnread(path, "alice")
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		for _, m := range unread {
			seen = append(seen, m.Content)
		}
	}

	if len(seen) != 4 {
		t.Fatalf("saw %d messages across rounds, want 4: %v", len(seen), seen)
	}
	for i, c := range seen {
		want := "r" + string(rune('0'+i))
		if c != want {
			t.Errorf("message %d = %q, want %q", i, c, want)
		}
	}
}

func TestSenderDoesNotSeeOwnPostAsUnread(t *testing.T) {
	path := newChannel(t)
	if _, err := channel.Send(path, "alice", "my own message"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Cursor-on-write placed alice's cursor at her own message.
	unread, err := channel.ReadUnread(path, "alice")
	if err != nil {
		t.Fatalf("ReadUnread failed: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("alice sees her own post as unread: %v", unread)
	}

	// But a post-only participant still sees others' messages: bob has
	// only posted, never read, and must not miss alice's reply.
	channel.Send(path, "bob", "question")
	channel.Send(path, "alice", "answer")
	unread, err = channel.ReadUnread(path, "bob")
	if err != nil {
		t.Fatalf("ReadUnread(bob) failed: %v", err)
	}
	if len(unread) != 1 || unread[0].Content != "answer" {
		t.Fatalf("unread(bob) = %v, want [answer]", unread)
	}
}

func TestCursorMonotonic(t *testing.T) {
	path := newChannel(t)
	for i := 0; i < 5; i++ {
		channel.Send(path, "bob", "m")
	}

	if err := channel.AdvanceCursor(path, "alice", 4); err != nil {
		t.Fatalf("AdvanceCursor failed: %v", err)
	}
	// A stale advance must not move the cursor back.
	if err := channel.AdvanceCursor(path, "alice", 1); err != nil {
		t.Fatalf("stale AdvanceCursor failed: %v", err)
	}

	cursor, ok, err := channel.Cursor(path, "alice")
	if err != nil || !ok {
		t.Fatalf("Cursor failed: %v ok=%v", err, ok)
	}
	if cursor != 4 {
		t.Errorf("cursor = %d, want 4", cursor)
	}
}

func TestCursorClampsPastEnd(t *testing.T) {
	path := newChannel(t)
	channel.Send(path, "bob", "one")
	channel.Send(path, "bob", "two")

	// Simulate a stale cursor from a longer, since-recreated log.
	if err := channel.AdvanceCursor(path, "alice", 50); err != nil {
		t.Fatalf("AdvanceCursor failed: %v", err)
	}

	unread, err := channel.ReadUnread(path, "alice")
	if err != nil {
		t.Fatalf("ReadUnread failed: %v", err)
	}
	if len(unread) != 0 {
		t.Errorf("clamped cursor returned %v, want empty", unread)
	}

	// The clamp must reach the sidecar: a stored value still past the
	// end would block every future advance.
	cursor, ok, err := channel.Cursor(path, "alice")
	if err != nil || !ok {
		t.Fatalf("Cursor failed: %v ok=%v", err, ok)
	}
	if cursor != 1 {
		t.Errorf("stored cursor after clamp = %d, want 1", cursor)
	}

	// New messages after the clamp are seen normally.
	channel.Send(path, "bob", "three")
	unread, err = channel.ReadUnread(path, "alice")
	if err != nil {
		t.Fatalf("ReadUnread failed: %v", err)
	}
	if len(unread) != 1 || unread[0].Content != "three" {
		t.Errorf("unread after clamp = %v, want [three]", unread)
	}
}

func TestUnreadStaleCursorOnEmptyChannel(t *testing.T) {
	path := newChannel(t)

	// A sidecar left over from a longer, since-recreated log.
	if err := os.WriteFile(path+".cursors", []byte("alice=7\n"), 0o600); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	unread, err := channel.ReadUnread(path, "alice")
	if err != nil {
		t.Fatalf("ReadUnread failed: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("empty channel returned %v", unread)
	}

	// The first message on the recreated log must not be swallowed by
	// the leftover cursor.
	channel.Send(path, "bob", "first")
	unread, err = channel.ReadUnread(path, "alice")
	if err != nil {
		t.Fatalf("ReadUnread failed: %v", err)
	}
	if len(unread) != 1 || unread[0].Content != "first" {
		t.Fatalf("unread = %v, want [first]", unread)
	}
}

func TestMissingChannelLeavesNoLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.chat")

	if _, err := channel.ReadUnread(path, "alice"); !errors.Is(err, channel.ErrNotFound) {
		t.Fatalf("ReadUnread on missing channel = %v, want ErrNotFound", err)
	}
	if err := channel.AdvanceCursor(path, "alice", 3); !errors.Is(err, channel.ErrNotFound) {
		t.Fatalf("AdvanceCursor on missing channel = %v, want ErrNotFound", err)
	}

	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Errorf("stray lock file left behind for a missing channel")
	}
	if _, err := os.Stat(path + ".cursors"); !os.IsNotExist(err) {
		t.Errorf("stray cursor file left behind for a missing channel")
	}
}

func TestConcurrentUnreadSharedHandle(t *testing.T) {
	path := newChannel(t)
	for i := 0; i < 10; i++ {
		channel.Send(path, "bob", "m")
	}

	// Misused shared handle: concurrent unread reads must not corrupt
	// the stored position; afterwards the cursor sits at the true end.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := channel.ReadUnread(path, "shared"); err != nil {
				t.Errorf("ReadUnread: %v", err)
			}
		}()
	}
	wg.Wait()

	cursor, ok, err := channel.Cursor(path, "shared")
	if err != nil || !ok {
		t.Fatalf("Cursor failed: %v ok=%v", err, ok)
	}
	if cursor != 9 {
		t.Errorf("cursor = %d, want 9", cursor)
	}
}
