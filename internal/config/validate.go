package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateFandom(); err != nil {
		return err
	}
	if err := c.validateRelay(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateFandom() error {
	for slug, base := range c.Fandom.AllowedWikis {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme != "https" || parsed.Host == "" {
			return fmt.Errorf("fandom.allowed_wikis[%q] must be an https URL, got %q", slug, base)
		}
		if !strings.HasSuffix(parsed.Host, ".fandom.com") {
			return fmt.Errorf("fandom.allowed_wikis[%q] must point at a fandom.com host, got %q", slug, parsed.Host)
		}
	}
	return nil
}

func (c *Config) validateRelay() error {
	for _, ms := range c.Relay.StartupBurstMs {
		if ms <= 0 {
			return errors.New("relay.startup_burst_ms entries must be positive")
		}
	}
	return nil
}
