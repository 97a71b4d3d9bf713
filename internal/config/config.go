package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Optional struct {
	Enabled TypeBool `json:"enabled"`
}

type Config struct {
	Debug    TypeBool     `json:"debug"`
	BindTo   TypeHostPort `json:"bindTo"`
	Identity struct {
		Endpoint TypeURL      `json:"endpoint"`
		Timeout  TypeDuration `json:"timeout"`
	} `json:"identity"`
	Database struct {
		Optional

		DSN string `json:"dsn"`
	} `json:"database"`
	WebSocket struct {
		MaxFrameSize          TypeBytes       `json:"maxFrameSize"`
		AuthTimeout           TypeDuration    `json:"authTimeout"`
		WriteTimeout          TypeDuration    `json:"writeTimeout"`
		MaxConnectionsPerUser TypeConcurrency `json:"maxConnectionsPerUser"`
		Concurrency           TypeConcurrency `json:"concurrency"`
		RateLimit             struct {
			Max    TypeConcurrency `json:"max"`
			Window TypeDuration    `json:"window"`
		} `json:"rateLimit"`
		// AcceptRateLimit caps websocket upgrade attempts per client IP.
		AcceptRateLimit struct {
			Optional

			PerSecond TypeRateLimit   `json:"perSecond"`
			Burst     TypeConcurrency `json:"burst"`
		} `json:"acceptRateLimit"`
	} `json:"websocket"`
	Replay struct {
		Window     TypeDuration    `json:"window"`
		FutureSkew TypeDuration    `json:"futureSkew"`
		MaxEntries TypeConcurrency `json:"maxEntries"`
		SweepEach  TypeDuration    `json:"sweepEach"`
	} `json:"replay"`
	Stats struct {
		StatsD struct {
			Optional

			Address      TypeHostPort        `json:"address"`
			MetricPrefix TypeMetricPrefix    `json:"metricPrefix"`
			TagFormat    TypeStatsdTagFormat `json:"tagFormat"`
		} `json:"statsd"`
		Prometheus struct {
			Optional

			BindTo       TypeHostPort     `json:"bindTo"`
			HTTPPath     TypeHTTPPath     `json:"httpPath"`
			MetricPrefix TypeMetricPrefix `json:"metricPrefix"`
		} `json:"prometheus"`
	} `json:"stats"`
}

func (c *Config) Validate() error {
	if c.BindTo.Get("") == "" {
		return fmt.Errorf("incorrect bind-to parameter %s", c.BindTo.String())
	}

	if c.Identity.Endpoint.Get("") == "" {
		return fmt.Errorf("identity.endpoint is required")
	}

	if c.Database.Enabled.Get(false) && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when database is enabled")
	}

	if c.WebSocket.AcceptRateLimit.Enabled.Get(false) && c.WebSocket.AcceptRateLimit.PerSecond.Value > 0 {
		if c.WebSocket.AcceptRateLimit.Burst.Value == 0 {
			return fmt.Errorf("acceptRateLimit.burst must be > 0 when rate limiting is enabled")
		}
	}

	if c.Stats.Prometheus.Enabled.Get(false) {
		if c.Stats.Prometheus.BindTo.Get("") == "" {
			return fmt.Errorf("prometheus.bindTo is required when prometheus is enabled")
		}
	}

	if c.Stats.StatsD.Enabled.Get(false) {
		if c.Stats.StatsD.Address.Get("") == "" {
			return fmt.Errorf("statsd.address is required when statsd is enabled")
		}
	}

	return nil
}

func (c *Config) String() string {
	// The DSN may carry a password, never log it.
	safe := *c
	safe.Database.DSN = ""

	buf := &bytes.Buffer{}
	encoder := json.NewEncoder(buf)

	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(safe); err != nil {
		return "{}"
	}

	return buf.String()
}

// Parse reads and validates a JSON config.
func Parse(rawData []byte) (*Config, error) {
	conf := &Config{}

	if err := json.Unmarshal(rawData, conf); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("cannot validate config: %w", err)
	}

	return conf, nil
}
