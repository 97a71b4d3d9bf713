package config

import (
	"encoding/json"
	"fmt"
	"net/url"
)

type TypeURL struct {
	Value string
}

func (t *TypeURL) Set(value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("incorrect url (%s): %w", value, err)
	}

	switch parsed.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("unsupported url scheme (%s)", value)
	}

	if parsed.Host == "" {
		return fmt.Errorf("url has to have a host (%s)", value)
	}

	t.Value = parsed.String()

	return nil
}

func (t TypeURL) Get(defaultValue string) string {
	if t.Value == "" {
		return defaultValue
	}

	return t.Value
}

func (t *TypeURL) UnmarshalJSON(data []byte) error {
	var str string

	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot parse url: %w", err)
	}

	return t.Set(str)
}

func (t TypeURL) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value) //nolint: wrapcheck
}

func (t TypeURL) String() string {
	return t.Value
}
