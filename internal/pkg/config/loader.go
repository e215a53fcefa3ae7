package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of loading one variable.
type Result[T any] struct {
	Value T
	// Warning explains why the default was used. Empty unless FallbackApplied.
	Warning         string
	FallbackApplied bool
}

// Load reads key, parses it and validates the parsed value. An unset or
// blank variable yields def without a warning. validate may be nil.
func Load[T any](key string, def T, parse func(string) (T, error), validate func(T) error) Result[T] {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return Result[T]{Value: def}
	}

	v, err := parse(raw)
	if err == nil && validate != nil {
		err = validate(v)
	}
	if err != nil {
		return Result[T]{
			Value:           def,
			Warning:         fmt.Sprintf("invalid %s=%q: %v, using default %v", key, raw, err, def),
			FallbackApplied: true,
		}
	}
	return Result[T]{Value: v}
}

// String returns the variable or def when unset.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Text loads a string that must satisfy validate.
func Text(key, def string, validate func(string) error) Result[string] {
	return Load(key, def, func(s string) (string, error) { return s, nil }, validate)
}

// Duration loads a Go duration string such as "30s" or "1h30m".
func Duration(key string, def time.Duration, validate func(time.Duration) error) Result[time.Duration] {
	return Load(key, def, time.ParseDuration, validate)
}

// Int loads a base-10 integer.
func Int(key string, def int, validate func(int) error) Result[int] {
	return Load(key, def, func(s string) (int, error) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, errors.New("not an integer")
		}
		return n, nil
	}, validate)
}

// Bool loads anything strconv.ParseBool accepts.
func Bool(key string, def bool) Result[bool] {
	return Load(key, def, func(s string) (bool, error) {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return false, errors.New("expected true or false")
		}
		return b, nil
	}, nil)
}
