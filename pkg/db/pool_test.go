package db

import (
	"context"
	"testing"
	"time"
)

const poolTestPrefix = "db:pool_test"

func TestNewPool_InvalidURL(t *testing.T) {
	ctx := context.Background()
	pool, err := NewPool(ctx, "invalid://not-a-valid-database-url", PoolOpts{})
	if err == nil {
		if pool != nil {
			pool.Close()
		}
		t.Fatalf("%s - expected error for invalid URL", poolTestPrefix)
	}
	if pool != nil {
		t.Errorf("%s - expected nil pool on error", poolTestPrefix)
	}
}

func TestNewPool_EmptyURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pool, err := NewPool(ctx, "", PoolOpts{})
	if err == nil {
		if pool != nil {
			pool.Close()
		}
		t.Fatalf("%s - expected error for empty URL", poolTestPrefix)
	}
}

func TestPoolOpts_Defaults(t *testing.T) {
	tests := []struct {
		name    string
		in      PoolOpts
		wantMax int32
		wantMin int32
	}{
		{"zero", PoolOpts{}, 10, 2},
		{"explicit", PoolOpts{MaxConns: 4, MinConns: 1}, 4, 1},
		{"min clamped to max", PoolOpts{MaxConns: 1, MinConns: 5}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.withDefaults()
			if got.MaxConns != tt.wantMax || got.MinConns != tt.wantMin {
				t.Errorf("%s - withDefaults() = %+v, want max=%d min=%d", poolTestPrefix, got, tt.wantMax, tt.wantMin)
			}
		})
	}
}

func TestPing_NilPool(t *testing.T) {
	if err := Ping(context.Background(), nil, time.Second); err == nil {
		t.Errorf("%s - expected error for nil pool", poolTestPrefix)
	}
}
