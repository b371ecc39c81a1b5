package cache

import (
	"context"
	"testing"
	"time"
)

func TestEntryIsExpired(t *testing.T) {
	fresh := Entry{Expires: time.Now().Add(time.Minute)}
	if fresh.IsExpired() {
		t.Error("entry expiring in a minute should not be expired")
	}

	stale := Entry{Expires: time.Now().Add(-time.Second)}
	if !stale.IsExpired() {
		t.Error("entry past its deadline should be expired")
	}
}

func TestEntryTTL(t *testing.T) {
	fresh := Entry{Expires: time.Now().Add(time.Minute)}
	ttl := fresh.TTL()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL() = %v, want in (0, 1m]", ttl)
	}

	stale := Entry{Expires: time.Now().Add(-time.Minute)}
	if got := stale.TTL(); got != 0 {
		t.Errorf("TTL() for expired entry = %v, want 0", got)
	}
}

func TestNilManagerMisses(t *testing.T) {
	var m *Manager
	ctx := context.Background()
	key := Key{Mailbox: "a@b.c", Offset: 0, PageSize: 50}

	if _, err := m.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("nil manager Get() error = %v, want ErrCacheMiss", err)
	}
	if err := m.Set(ctx, key, []byte("x")); err != nil {
		t.Errorf("nil manager Set() = %v, want nil", err)
	}
	if err := m.Delete(ctx, key); err != nil {
		t.Errorf("nil manager Delete() = %v, want nil", err)
	}
}
