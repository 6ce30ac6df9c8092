package indexsync

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kernpunkt/llm-mem/internal/index"
	"github.com/kernpunkt/llm-mem/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, id, _ string) {
	r.mu.Lock()
	r.events = append(r.events, kind+":"+id)
	r.mu.Unlock()
}

func (r *recorder) saw(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.events, event)
}

func startWatch(t *testing.T, e *env, cb EventCallback) {
	t.Helper()
	// initialize before watching so the first event does not race the
	// initial rebuild
	if _, err := e.h.Size(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := Watch(ctx, e.h, testutil.Logger(), cb); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	e := newEnv(t)
	var rec recorder
	startWatch(t, e, rec.record)

	ext := externalMemory("0190b0e0-0000-7000-8000-000000000010", "Watched Arrival", "dropped while watching")
	writeExternal(t, e.dir, "arrival-"+ext.ID+".md", ext, time.Time{})

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return len(searchIDs(t, e.h, "dropped while watching")) == 1
	}, "new file not indexed by watcher")
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.saw(EventCreated+":"+ext.ID) || rec.saw(EventUpdated+":"+ext.ID)
	}, "expected a callback for the new memory")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	e := newEnv(t)
	startWatch(t, e, nil)

	if err := os.MkdirAll(filepath.Join(e.dir, "fresh"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	ext := externalMemory("0190b0e0-0000-7000-8000-000000000011", "Deep", "inside a new category")
	writeExternal(t, e.dir, "fresh/deep-"+ext.ID+".md", ext, time.Time{})

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return len(searchIDs(t, e.h, "inside a new category")) == 1
	}, "file in new directory not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	e := newEnv(t)
	m := e.create(t, "Doomed", "deleted by hand")
	var rec recorder
	startWatch(t, e, rec.record)

	if err := os.Remove(filepath.Join(e.dir, filepath.FromSlash(m.Path))); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return len(searchIDs(t, e.h, "deleted by hand")) == 0
	}, "deleted file still indexed")
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.saw(EventDeleted + ":" + m.ID)
	}, "expected deleted callback")
}

func TestWatcher_RenameMovesIndexEntry(t *testing.T) {
	e := newEnv(t)
	m := e.create(t, "Mover", "renamed on disk")
	startWatch(t, e, nil)

	newRel := "notes/moved-" + m.ID + ".md"
	if err := os.Rename(
		filepath.Join(e.dir, filepath.FromSlash(m.Path)),
		filepath.Join(e.dir, filepath.FromSlash(newRel)),
	); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		results, err := e.h.Search(context.Background(), "renamed on disk", index.SearchOptions{})
		return err == nil && len(results) == 1 && results[0].Path == newRel
	}, "renamed file not re-indexed at its new path")
}

func TestWatcher_IgnoresHiddenDirs(t *testing.T) {
	e := newEnv(t)
	startWatch(t, e, nil)

	ext := externalMemory("0190b0e0-0000-7000-8000-000000000012", "Hidden", "under a dot directory")
	writeExternal(t, e.dir, ".cache/hidden-"+ext.ID+".md", ext, time.Time{})
	time.Sleep(500 * time.Millisecond)

	if got := searchIDs(t, e.h, "under a dot directory"); len(got) != 0 {
		t.Errorf("hidden file indexed: %v", got)
	}
}

func TestHidden(t *testing.T) {
	root := filepath.FromSlash("/store")
	cases := map[string]bool{
		"/store":                 false,
		"/store/a/b.md":          false,
		"/store/.index/index.db": true,
		"/store/a/.tmp/x.md":     true,
	}
	for p, want := range cases {
		if got := hidden(root, filepath.FromSlash(p)); got != want {
			t.Errorf("hidden(%q) = %v, want %v", p, got, want)
		}
	}
}
