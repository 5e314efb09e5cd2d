package storage

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"colist-api/collab"
	"colist-api/domain"
)

func newTestLive(t *testing.T, base backend) *Live {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { rc.Close() })
	return NewLive(base, NewEvents(rc, "changes", nil), nil)
}

func recvListsSnapshot(t *testing.T, w collab.ListWatch) collab.ListsSnapshot {
	t.Helper()
	select {
	case snap, ok := <-w.Snapshots():
		if !ok {
			t.Fatal("snapshot channel closed")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lists snapshot")
	}
	return collab.ListsSnapshot{}
}

func recvTasksSnapshot(t *testing.T, w collab.TaskWatch) collab.TasksSnapshot {
	t.Helper()
	select {
	case snap, ok := <-w.Snapshots():
		if !ok {
			t.Fatal("snapshot channel closed")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks snapshot")
	}
	return collab.TasksSnapshot{}
}

func recvDocSnapshot(t *testing.T, w collab.ListDocWatch) collab.ListDocSnapshot {
	t.Helper()
	select {
	case snap, ok := <-w.Snapshots():
		if !ok {
			t.Fatal("snapshot channel closed")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for doc snapshot")
	}
	return collab.ListDocSnapshot{}
}

func TestWatchListsDeliversInitialSnapshot(t *testing.T) {
	base := newStubBackend()
	base.lists = []domain.TodoList{{ID: "L1", Title: "Groceries", OwnerID: "u1"}}
	live := newTestLive(t, base)

	w, err := live.WatchLists(context.Background())
	if err != nil {
		t.Fatalf("watch lists: %v", err)
	}
	defer w.Close()

	snap := recvListsSnapshot(t, w)
	if snap.Err != nil {
		t.Fatalf("unexpected snapshot error: %v", snap.Err)
	}
	if len(snap.Lists) != 1 || snap.Lists[0].ID != "L1" {
		t.Fatalf("unexpected snapshot: %+v", snap.Lists)
	}
}

func TestWriteRedeliversToWatchers(t *testing.T) {
	base := newStubBackend()
	live := newTestLive(t, base)

	w, err := live.WatchLists(context.Background())
	if err != nil {
		t.Fatalf("watch lists: %v", err)
	}
	defer w.Close()

	snap := recvListsSnapshot(t, w)
	if len(snap.Lists) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", snap.Lists)
	}

	id, err := live.CreateList(context.Background(), domain.TodoList{Title: "Groceries", OwnerID: "u1"})
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	snap = recvListsSnapshot(t, w)
	if len(snap.Lists) != 1 || snap.Lists[0].Title != "Groceries" {
		t.Fatalf("expected re-delivered snapshot with the new list, got %+v", snap.Lists)
	}
}

func TestWatchListReportsDeletion(t *testing.T) {
	base := newStubBackend()
	base.lists = []domain.TodoList{{ID: "L1", Title: "Groceries", OwnerID: "u1"}}
	live := newTestLive(t, base)

	w, err := live.WatchList(context.Background(), "L1")
	if err != nil {
		t.Fatalf("watch list: %v", err)
	}
	defer w.Close()

	snap := recvDocSnapshot(t, w)
	if !snap.Exists || snap.List.ID != "L1" {
		t.Fatalf("unexpected initial doc snapshot: %+v", snap)
	}

	if err := live.DeleteList(context.Background(), "L1"); err != nil {
		t.Fatalf("delete list: %v", err)
	}

	snap = recvDocSnapshot(t, w)
	if snap.Exists {
		t.Fatalf("expected deletion to surface as a missing document, got %+v", snap)
	}
}

func TestWatchTasksIgnoresOtherLists(t *testing.T) {
	base := newStubBackend()
	base.tasks["L1"] = []domain.Task{{ID: "T1", Title: "Milk"}}
	live := newTestLive(t, base)

	w, err := live.WatchTasks(context.Background(), "L1")
	if err != nil {
		t.Fatalf("watch tasks: %v", err)
	}
	defer w.Close()

	snap := recvTasksSnapshot(t, w)
	if len(snap.Tasks) != 1 || snap.Tasks[0].ID != "T1" {
		t.Fatalf("unexpected initial snapshot: %+v", snap.Tasks)
	}

	// Churn on an unrelated list must not wake this watch.
	if _, err := live.CreateTask(context.Background(), "L2", domain.Task{Title: "Other"}); err != nil {
		t.Fatalf("create unrelated task: %v", err)
	}
	select {
	case snap, ok := <-w.Snapshots():
		if ok {
			t.Fatalf("unexpected snapshot for unrelated list churn: %+v", snap)
		}
		t.Fatal("snapshot channel closed")
	case <-time.After(200 * time.Millisecond):
	}

	if err := live.SetTaskCompleted(context.Background(), "L1", "T1", true); err != nil {
		t.Fatalf("set completed: %v", err)
	}
	snap = recvTasksSnapshot(t, w)
	if len(snap.Tasks) != 1 || !snap.Tasks[0].Completed {
		t.Fatalf("expected completed task in re-delivered snapshot, got %+v", snap.Tasks)
	}
}

func TestWatchCloseStopsDelivery(t *testing.T) {
	base := newStubBackend()
	live := newTestLive(t, base)

	w, err := live.WatchLists(context.Background())
	if err != nil {
		t.Fatalf("watch lists: %v", err)
	}
	recvListsSnapshot(t, w)
	w.Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-w.Snapshots():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("snapshot channel did not close after Close")
		}
	}
}
