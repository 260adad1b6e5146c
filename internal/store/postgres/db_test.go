package postgres

import (
	"testing"
	"time"
)

func TestPoolConfigDefaults(t *testing.T) {
	t.Run("zero values fall back to defaults", func(t *testing.T) {
		got := PoolConfig{}.withDefaults()
		want := PoolConfig{
			MaxOpenConns:    defaultMaxOpenConns,
			MaxIdleConns:    defaultMaxIdleConns,
			ConnMaxLifetime: defaultConnMaxLifetime,
			ConnMaxIdleTime: defaultConnMaxIdleTime,
		}
		if got != want {
			t.Fatalf("withDefaults() = %+v, want %+v", got, want)
		}
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		in := PoolConfig{
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Minute,
			ConnMaxIdleTime: time.Minute,
		}
		if got := in.withDefaults(); got != in {
			t.Fatalf("withDefaults() = %+v, want %+v", got, in)
		}
	})
}
