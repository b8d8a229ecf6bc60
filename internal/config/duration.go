package config

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Duration is a time.Duration that decodes from a number of seconds or
// from a Go duration string such as "90s" or "2m".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		if val < 0 {
			return fmt.Errorf("duration must not be negative: %v", val)
		}
		if val*float64(time.Second) >= math.MaxInt64 {
			return fmt.Errorf("duration too large: %v", val)
		}
		*d = Duration(val * float64(time.Second))
		return nil
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		if parsed < 0 {
			return fmt.Errorf("duration must not be negative: %s", val)
		}
		*d = Duration(parsed)
		return nil
	case nil:
		*d = 0
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(data))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
