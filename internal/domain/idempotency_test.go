package domain

import (
	"testing"
	"time"
)

func TestIdempotency_TableName(t *testing.T) {
	if (Idempotency{}).TableName() != "idempotency" {
		t.Fatalf("TableName() = %q; want %q", (Idempotency{}).TableName(), "idempotency")
	}
}

func TestIdempotency_Migration_UniqueKey(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	now := time.Now().UTC()
	rec := Idempotency{
		ID: "i1", AccountID: 1, ThreadID: "t1", Key: "k1",
		MessageID: "m1", Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := Idempotency{
		ID: "i2", AccountID: 1, ThreadID: "t1", Key: "k1",
		MessageID: "m2", Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("expected unique violation for duplicate (account, thread, key)")
	}
}
