package utils

import (
	"fmt"
	"os"

	"github.com/quillvault/syncwire/internal/config"
)

// ReadConfig reads and validates a JSON config file.
func ReadConfig(path string) (*config.Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	conf, err := config.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}

	return conf, nil
}
