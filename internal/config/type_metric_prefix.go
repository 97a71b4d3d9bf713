package config

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var typeMetricPrefixRegexp = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)

type TypeMetricPrefix struct {
	Value string
}

func (t *TypeMetricPrefix) Set(value string) error {
	if !typeMetricPrefixRegexp.MatchString(value) {
		return fmt.Errorf("incorrect metric prefix (%s)", value)
	}

	t.Value = value

	return nil
}

func (t TypeMetricPrefix) Get(defaultValue string) string {
	if t.Value == "" {
		return defaultValue
	}

	return t.Value
}

func (t *TypeMetricPrefix) UnmarshalJSON(data []byte) error {
	var str string

	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot parse metric prefix: %w", err)
	}

	return t.Set(str)
}

func (t TypeMetricPrefix) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value) //nolint: wrapcheck
}

func (t TypeMetricPrefix) String() string {
	return t.Value
}
