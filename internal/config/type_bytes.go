package config

import (
	"encoding/json"
	"fmt"

	"github.com/alecthomas/units"
)

type TypeBytes struct {
	Value units.Base2Bytes
}

func (t *TypeBytes) Set(value string) error {
	v, err := units.ParseBase2Bytes(value)
	if err != nil {
		return fmt.Errorf("value is not bytes (%s): %w", value, err)
	}

	if v < 0 {
		return fmt.Errorf("byte size has to be positive (%s)", value)
	}

	t.Value = v

	return nil
}

func (t TypeBytes) Get(defaultValue uint) uint {
	if t.Value == 0 {
		return defaultValue
	}

	return uint(t.Value)
}

func (t *TypeBytes) UnmarshalJSON(data []byte) error {
	var str string

	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot parse bytes: %w", err)
	}

	return t.Set(str)
}

func (t TypeBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String()) //nolint: wrapcheck
}

func (t TypeBytes) String() string {
	return t.Value.String()
}
