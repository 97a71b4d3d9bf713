package cli

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/quillvault/syncwire/internal/utils"
)

// healthCheckTimeout keeps docker healthchecks from flapping on a slow
// but alive process.
const healthCheckTimeout = 5 * time.Second

// Health probes a running engine. It prefers the Prometheus metrics
// endpoint and falls back to a TCP connect against the main bind
// address when metrics are disabled.
type Health struct {
	ConfigPath string `kong:"arg,required,type='existingfile',help='Path to config file.',name='config-path'"` //nolint: lll
}

func (h Health) Run(_ *CLI, _ string) error {
	conf, err := utils.ReadConfig(h.ConfigPath)
	if err != nil {
		return fmt.Errorf("cannot parse config: %w", err)
	}

	if conf.Stats.Prometheus.Enabled.Get(false) {
		bindTo := conf.Stats.Prometheus.BindTo.Get(defaultPrometheusBindTo)
		httpPath := conf.Stats.Prometheus.HTTPPath.Get(defaultPrometheusHTTPPath)

		// Healthchecks always run on the same host.
		_, port, _ := net.SplitHostPort(bindTo)

		return checkHTTP(fmt.Sprintf("http://127.0.0.1:%s%s", port, httpPath))
	}

	bindTo := conf.BindTo.Get("")
	if bindTo == "" {
		return fmt.Errorf("prometheus not enabled and no bind address configured")
	}

	return checkTCP(bindTo)
}

func checkHTTP(url string) error {
	client := &http.Client{
		Timeout: healthCheckTimeout,
	}

	resp, err := client.Get(url) //nolint: noctx
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	io.Copy(io.Discard, resp.Body) //nolint: errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	return nil
}

func checkTCP(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, healthCheckTimeout)
	if err != nil {
		return fmt.Errorf("health check TCP connect failed: %w", err)
	}

	conn.Close()

	return nil
}
