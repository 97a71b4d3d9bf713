package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

type TypeHTTPPath struct {
	Value string
}

func (t *TypeHTTPPath) Set(value string) error {
	if value == "" || !strings.HasPrefix(value, "/") {
		return fmt.Errorf("incorrect http path (%s)", value)
	}

	t.Value = value

	return nil
}

func (t TypeHTTPPath) Get(defaultValue string) string {
	if t.Value == "" {
		return defaultValue
	}

	return t.Value
}

func (t *TypeHTTPPath) UnmarshalJSON(data []byte) error {
	var str string

	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot parse http path: %w", err)
	}

	return t.Set(str)
}

func (t TypeHTTPPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value) //nolint: wrapcheck
}

func (t TypeHTTPPath) String() string {
	return t.Value
}
