package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts five-field expressions and descriptors like "@every 5m".
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCronSchedule rejects expressions robfig/cron cannot schedule.
func ValidateCronSchedule(schedule string) error {
	if schedule == "" {
		return errors.New("cron schedule is empty")
	}
	if _, err := scheduleParser.Parse(schedule); err != nil {
		return fmt.Errorf("cron schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidateTimezone checks that name is a loadable IANA zone.
func ValidateTimezone(name string) error {
	if name == "" {
		return errors.New("timezone is empty")
	}
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("timezone %q: %w", name, err)
	}
	return nil
}

// ValidateDuration checks min <= d <= max.
func ValidateDuration(d, min, max time.Duration) error {
	return inRange(d, min, max)
}

// ValidateIntRange checks min <= v <= max.
func ValidateIntRange(v, min, max int) error {
	return inRange(v, min, max)
}

// Between adapts ValidateDuration for Duration.
func Between(min, max time.Duration) func(time.Duration) error {
	return func(d time.Duration) error { return ValidateDuration(d, min, max) }
}

// IntBetween adapts ValidateIntRange for Int.
func IntBetween(min, max int) func(int) error {
	return func(v int) error { return ValidateIntRange(v, min, max) }
}

func inRange[T int | time.Duration](v, min, max T) error {
	switch {
	case min > max:
		return fmt.Errorf("invalid range [%v, %v]", min, max)
	case v < min:
		return fmt.Errorf("%v is below minimum %v", v, min)
	case v > max:
		return fmt.Errorf("%v exceeds maximum %v", v, max)
	}
	return nil
}
