package session

import (
	"testing"
	"time"

	"vtcode/internal/core"
)

func TestStorePutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	snap := Snapshot{
		ID:            "sess-1",
		WorkspaceRoot: dir,
		History: []core.Message{
			{Role: core.RoleUser, Parts: []core.MessagePart{{Kind: core.PartText, Text: "hi"}}},
		},
	}
	if err := store.Put(snap); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "sess-1" || len(got.History) != 1 || got.History[0].Text() != "hi" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be set: %+v", got)
	}
}

func TestStoreGetMissingReturnsErrNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get("does-not-exist"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get("../../etc/passwd"); err == nil {
		t.Fatal("expected an error for an escaping session id")
	}
}

func TestStoreListAndDel(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(Snapshot{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(Snapshot{ID: "b"}); err != nil {
		t.Fatal(err)
	}

	ids, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions, got %v", ids)
	}

	if err := store.Del("a"); err != nil {
		t.Fatal(err)
	}
	ids, err = store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("expected only 'b' to remain, got %v", ids)
	}
}

func TestTrajectoryLogAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	log, err := NewTrajectoryLog(dir)
	if err != nil {
		t.Fatal(err)
	}

	emitter := core.NewEmitter(log, "thread-1")
	emitter.ThreadStarted()
	emitter.TurnStarted("turn-1")
	emitter.TurnCompleted("turn-1", core.Usage{PromptTokens: 10, CompletionTokens: 5})

	events, err := log.Replay()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 replayed events, got %d", len(events))
	}
	if events[0].Type != core.EventThreadStarted || events[2].Type != core.EventTurnCompleted {
		t.Fatalf("unexpected event sequence: %+v", events)
	}
	if events[1].Seq >= events[2].Seq {
		t.Fatalf("expected strictly increasing sequence numbers: %+v", events)
	}
}

func TestTrajectoryLogReplayEmptyBeforeAnyAppend(t *testing.T) {
	dir := t.TempDir()
	log, err := NewTrajectoryLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	events, err := log.Replay()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
}

func TestCachePutGetAndExpiry(t *testing.T) {
	cache, err := NewCache(10, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	cache.Put("k1", "v1")
	if v, ok := cache.Get("k1"); !ok || v != "v1" {
		t.Fatalf("expected hit with v1, got %q ok=%v", v, ok)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := cache.Get("k1"); ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestCacheEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	cache, err := NewCache(2, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	cache.Put("a", "1")
	cache.Put("b", "2")
	cache.Put("c", "3") // evicts "a" at capacity 2

	if _, ok := cache.Get("a"); ok {
		t.Fatal("expected 'a' to have been evicted")
	}
	if cache.Len() != 2 {
		t.Fatalf("expected cache to stay bounded at 2 entries, got %d", cache.Len())
	}
}

func TestDiskMirrorStoreAndLoad(t *testing.T) {
	dir := t.TempDir()
	mirror, err := NewDiskMirror(dir)
	if err != nil {
		t.Fatal(err)
	}
	hash := ContentHash("package main\n")
	if err := mirror.Store(hash, "# parsed summary\n"); err != nil {
		t.Fatal(err)
	}
	got, ok := mirror.Load(hash)
	if !ok || got != "# parsed summary\n" {
		t.Fatalf("expected mirrored content, got %q ok=%v", got, ok)
	}
}

func TestDiskMirrorLoadMissing(t *testing.T) {
	dir := t.TempDir()
	mirror, err := NewDiskMirror(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mirror.Load("nonexistent"); ok {
		t.Fatal("expected no content for an unknown hash")
	}
}
