package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		name         string
		env          string
		want         time.Duration
		wantFallback bool
	}{
		{name: "unset uses default", env: "", want: 30 * time.Second},
		{name: "valid value", env: "2m", want: 2 * time.Minute},
		{name: "whitespace trimmed", env: " 45s ", want: 45 * time.Second},
		{name: "unparseable", env: "soon", want: 30 * time.Second, wantFallback: true},
		{name: "below range", env: "1s", want: 30 * time.Second, wantFallback: true},
		{name: "above range", env: "1h", want: 30 * time.Second, wantFallback: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INTERVAL", tt.env)
			r := Duration("TEST_INTERVAL", 30*time.Second, Between(5*time.Second, 10*time.Minute))
			assert.Equal(t, tt.want, r.Value)
			assert.Equal(t, tt.wantFallback, r.FallbackApplied)
			if tt.wantFallback {
				assert.Contains(t, r.Warning, "TEST_INTERVAL")
			} else {
				assert.Empty(t, r.Warning)
			}
		})
	}
}

func TestInt(t *testing.T) {
	t.Setenv("TEST_PORT", "8081")
	assert.Equal(t, Result[int]{Value: 8081}, Int("TEST_PORT", 9091, IntBetween(1024, 65535)))

	t.Setenv("TEST_PORT", "80")
	r := Int("TEST_PORT", 9091, IntBetween(1024, 65535))
	assert.Equal(t, 9091, r.Value)
	assert.True(t, r.FallbackApplied)

	t.Setenv("TEST_PORT", "9k")
	r = Int("TEST_PORT", 9091, nil)
	assert.Equal(t, 9091, r.Value)
	assert.Contains(t, r.Warning, "not an integer")
}

func TestBool(t *testing.T) {
	for env, want := range map[string]bool{"true": true, "1": true, "FALSE": false, "f": false} {
		t.Setenv("TEST_ENABLED", env)
		r := Bool("TEST_ENABLED", !want)
		assert.Equal(t, want, r.Value, env)
		assert.False(t, r.FallbackApplied, env)
	}

	t.Setenv("TEST_ENABLED", "yes")
	r := Bool("TEST_ENABLED", true)
	assert.True(t, r.Value)
	assert.True(t, r.FallbackApplied)
}

func TestTextAndString(t *testing.T) {
	t.Setenv("TEST_SCHEDULE", "@every 5m")
	assert.Equal(t, "@every 5m", Text("TEST_SCHEDULE", "*/5 * * * *", ValidateCronSchedule).Value)

	t.Setenv("TEST_SCHEDULE", "every five minutes")
	r := Text("TEST_SCHEDULE", "*/5 * * * *", ValidateCronSchedule)
	assert.Equal(t, "*/5 * * * *", r.Value)
	assert.True(t, r.FallbackApplied)

	t.Setenv("TEST_URL", "")
	assert.Equal(t, "fallback", String("TEST_URL", "fallback"))
	t.Setenv("TEST_URL", "https://hooks.example.com")
	assert.Equal(t, "https://hooks.example.com", String("TEST_URL", "fallback"))
}
