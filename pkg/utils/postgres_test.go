package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolDefaults(t *testing.T) {
	c := PostgresPoolConfig{MaxOpenConns: 5}.withDefaults()
	if c.MaxOpenConns != 5 {
		t.Fatalf("explicit value must be kept, got %d", c.MaxOpenConns)
	}
	if c.MaxIdleConns != 25 || c.ConnMaxLifetime != 30*time.Minute || c.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestApplySchemaSignature(t *testing.T) {
	// Needs a live database to exercise; keep the signature pinned.
	var _ = ApplySchema
	var _ TxFunc = nil
}
