package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

type TypeStatsdTagFormat struct {
	Value string
}

func (t *TypeStatsdTagFormat) Set(value string) error {
	switch strings.ToLower(value) {
	case "datadog", "influxdb", "graphite":
		t.Value = strings.ToLower(value)
	default:
		return fmt.Errorf("unknown tag format (%s), expected 'datadog', 'influxdb' or 'graphite'", value)
	}

	return nil
}

func (t TypeStatsdTagFormat) Get(defaultValue string) string {
	if t.Value == "" {
		return defaultValue
	}

	return t.Value
}

func (t *TypeStatsdTagFormat) UnmarshalJSON(data []byte) error {
	var str string

	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot parse tag format: %w", err)
	}

	return t.Set(str)
}

func (t TypeStatsdTagFormat) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value) //nolint: wrapcheck
}

func (t TypeStatsdTagFormat) String() string {
	return t.Value
}
