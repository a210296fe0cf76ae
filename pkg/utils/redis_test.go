package utils

import (
	"context"
	"testing"
	"time"
)

func TestRedisConfigDefaults(t *testing.T) {
	c := RedisConfig{Addr: "localhost:6379", MinIdleConns: -1}.withDefaults()
	if c.PoolSize != 20 || c.DialTimeout != 3*time.Second || c.PingTimeout != 2*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.MinIdleConns != 0 {
		t.Fatalf("expected negative idle conns to clamp to 0, got %d", c.MinIdleConns)
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
