// Package config loads the reference command-line embeddings' .env
// style configuration file, following the teacher's flat key=value
// parser but producing the host.Settings/logging.Config pair this
// module's sessions need rather than Nest/Cloudflare credentials.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ethan/webrtc-whip-whep-core/pkg/host"
	"github.com/ethan/webrtc-whip-whep-core/pkg/logging"
)

// Config is the reference cmd/ embeddings' top-level configuration.
type Config struct {
	Session host.Settings
	Logging LoggingConfig
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputFile string
}

// Load reads a flat KEY=VALUE file (blank lines and #-comments
// skipped, values percent-decoded) the way the teacher's config.go
// reads its .env file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	cfg := &Config{
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			decoded = value
		}

		switch key {
		case "WHIP_ENDPOINT_URL", "WHEP_ENDPOINT_URL", "ENDPOINT_URL":
			cfg.Session.EndpointURL = decoded
		case "BEARER_TOKEN":
			cfg.Session.BearerToken = decoded
		case "LOG_LEVEL":
			cfg.Logging.Level = decoded
		case "LOG_FORMAT":
			cfg.Logging.Format = decoded
		case "LOG_FILE":
			cfg.Logging.OutputFile = decoded
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the endpoint URL is present; the bearer token
// is optional per spec.md (unauthenticated endpoints are valid).
func (c *Config) Validate() error {
	if c.Session.EndpointURL == "" {
		return fmt.Errorf("missing endpoint url")
	}
	return nil
}

// ToLoggingConfig builds a logging.Config from the parsed section.
func (c *Config) ToLoggingConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	cfg := logging.NewConfig()
	cfg.Level = level
	cfg.OutputFile = c.Logging.OutputFile
	if c.Logging.Format == "json" {
		cfg.Format = logging.FormatJSON
	}
	return cfg, nil
}
