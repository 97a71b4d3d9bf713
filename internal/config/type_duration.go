package config

import (
	"encoding/json"
	"fmt"
	"time"
)

type TypeDuration struct {
	Value time.Duration
}

func (t *TypeDuration) Set(value string) error {
	v, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("value is not duration (%s): %w", value, err)
	}

	if v < 0 {
		return fmt.Errorf("duration has to be positive (%s)", value)
	}

	t.Value = v

	return nil
}

func (t TypeDuration) Get(defaultValue time.Duration) time.Duration {
	if t.Value == 0 {
		return defaultValue
	}

	return t.Value
}

func (t *TypeDuration) UnmarshalJSON(data []byte) error {
	var str string

	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot parse duration: %w", err)
	}

	return t.Set(str)
}

func (t TypeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String()) //nolint: wrapcheck
}

func (t TypeDuration) String() string {
	return t.Value.String()
}
