package repo

import (
	"context"
	"testing"
)

func TestThreadsStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	count, maxAt, err := ThreadsStats(ctx, db, 1)
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("empty stats = (%d, %v, %v); want (0, nil, nil)", count, maxAt, err)
	}

	if _, err := CreateThread(ctx, db, 1, "a"); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if _, err := CreateThread(ctx, db, 1, "b"); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	count, maxAt, err = ThreadsStats(ctx, db, 1)
	if err != nil {
		t.Fatalf("ThreadsStats: %v", err)
	}
	if count != 2 || maxAt == nil || maxAt.IsZero() {
		t.Fatalf("stats = (%d, %v); want count 2 and a timestamp", count, maxAt)
	}
}

func TestMessagesStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	th, _ := CreateThread(ctx, db, 1, "t")

	count, maxAt, err := MessagesStats(ctx, db, th.ID)
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("empty stats = (%d, %v, %v); want (0, nil, nil)", count, maxAt, err)
	}

	if _, err := CreateMessage(db, th.ID, "user", "hi", "", 0); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	count, maxAt, err = MessagesStats(ctx, db, th.ID)
	if err != nil || count != 1 || maxAt == nil {
		t.Fatalf("stats = (%d, %v, %v); want (1, timestamp, nil)", count, maxAt, err)
	}
}
