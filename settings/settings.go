package settings

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Store keys.
const (
	KeyActive    = "extension-active"
	KeyInterval  = "update-interval"
	KeyCountMode = "count-mode"
)

// Keys returns all known keys in a stable order.
func Keys() []string {
	return []string{KeyActive, KeyInterval, KeyCountMode}
}

// CountMode selects the secondary metric shown next to the token count.
type CountMode string

// Count modes.
const (
	ModeWords      CountMode = "words"
	ModeCharacters CountMode = "characters"
)

// Interval bounds and defaults, in milliseconds.
const (
	DefaultIntervalMs = 1000
	MinIntervalMs     = 10
	MaxIntervalMs     = 10000
)

// Defaults.
const (
	DefaultActive    = true
	DefaultCountMode = ModeWords
)

var (
	// ErrUnknownKey is returned for keys outside Keys().
	ErrUnknownKey = errors.New("unknown settings key")

	// ErrInvalidValue is returned when a value cannot be converted to the
	// type of its key.
	ErrInvalidValue = errors.New("invalid settings value")

	// ErrNotFound is returned by Get when the key has never been set.
	ErrNotFound = errors.New("settings key not set")
)

// Settings is the typed view of the store.
type Settings struct {
	Active         bool      `json:"extension-active" yaml:"extension-active" toml:"extension-active" jsonschema:"title=Active,description=Whether the counter polls for changes,default=true"`
	UpdateInterval int       `json:"update-interval" yaml:"update-interval" toml:"update-interval" jsonschema:"title=Update interval,description=Poll period in milliseconds,minimum=10,maximum=10000,default=1000"`
	CountMode      CountMode `json:"count-mode" yaml:"count-mode" toml:"count-mode" jsonschema:"title=Count mode,description=Secondary metric shown next to tokens,enum=words,enum=characters,default=words"`
}

// Defaults returns the settings used on install and whenever the store
// cannot be read.
func Defaults() Settings {
	return Settings{
		Active:         DefaultActive,
		UpdateInterval: DefaultIntervalMs,
		CountMode:      DefaultCountMode,
	}
}

// Interval returns the poll period. It is always positive.
func (s Settings) Interval() time.Duration {
	return time.Duration(ClampInterval(s.UpdateInterval)) * time.Millisecond
}

// Get returns the value of a key from the typed view.
func (s Settings) Get(key string) (any, error) {
	switch key {
	case KeyActive:
		return s.Active, nil
	case KeyInterval:
		return s.UpdateInterval, nil
	case KeyCountMode:
		return s.CountMode, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
}

// ClampInterval returns ms clamped to [MinIntervalMs, MaxIntervalMs].
// Non-positive values select DefaultIntervalMs.
func ClampInterval(ms int) int {
	switch {
	case ms <= 0:
		return DefaultIntervalMs
	case ms < MinIntervalMs:
		return MinIntervalMs
	case ms > MaxIntervalMs:
		return MaxIntervalMs
	default:
		return ms
	}
}

// ParseCountMode parses a count mode name, case-insensitively.
// "chars" is accepted for characters.
func ParseCountMode(s string) (CountMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ModeWords), "word":
		return ModeWords, nil
	case string(ModeCharacters), "character", "chars":
		return ModeCharacters, nil
	default:
		return "", fmt.Errorf("%w: count mode %q (want words or characters)", ErrInvalidValue, s)
	}
}

// Normalize converts value to the canonical type of key: bool for
// KeyActive, int milliseconds for KeyInterval and CountMode for
// KeyCountMode. Strings are parsed, so values taken from flags or decoded
// from files are accepted.
func Normalize(key string, value any) (any, error) {
	switch key {
	case KeyActive:
		return toBool(value)
	case KeyInterval:
		ms, err := toMillis(value)
		if err != nil {
			return nil, err
		}
		return ClampInterval(ms), nil
	case KeyCountMode:
		switch v := value.(type) {
		case CountMode:
			return ParseCountMode(string(v))
		case string:
			return ParseCountMode(v)
		default:
			return nil, fmt.Errorf("%w: count mode %v (%T)", ErrInvalidValue, value, value)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%w: active %q", ErrInvalidValue, v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: active %v (%T)", ErrInvalidValue, value, value)
	}
}

func toMillis(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint64:
		if v > math.MaxInt32 {
			return MaxIntervalMs, nil
		}
		return int(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: interval %v", ErrInvalidValue, v)
		}
		if v > math.MaxInt32 {
			return MaxIntervalMs, nil
		}
		return int(v), nil
	case time.Duration:
		return int(v / time.Millisecond), nil
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
		if d, err := time.ParseDuration(s); err == nil {
			return int(d / time.Millisecond), nil
		}
		return 0, fmt.Errorf("%w: interval %q", ErrInvalidValue, v)
	default:
		return 0, fmt.Errorf("%w: interval %v (%T)", ErrInvalidValue, value, value)
	}
}
