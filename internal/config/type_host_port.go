package config

import (
	"encoding/json"
	"fmt"
	"net"
)

type TypeHostPort struct {
	Value string
}

func (t *TypeHostPort) Set(value string) error {
	host, port, err := net.SplitHostPort(value)
	if err != nil {
		return fmt.Errorf("incorrect host:port value (%s): %w", value, err)
	}

	if port == "" {
		return fmt.Errorf("value has to have a port (%s)", value)
	}

	t.Value = net.JoinHostPort(host, port)

	return nil
}

func (t TypeHostPort) Get(defaultValue string) string {
	if t.Value == "" {
		return defaultValue
	}

	return t.Value
}

func (t *TypeHostPort) UnmarshalJSON(data []byte) error {
	var str string

	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot parse host:port: %w", err)
	}

	return t.Set(str)
}

func (t TypeHostPort) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value) //nolint: wrapcheck
}

func (t TypeHostPort) String() string {
	return t.Value
}
