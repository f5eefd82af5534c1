// Package config loads the JSON configuration documents the worker reads
// at startup: settings.json, preloaders.json, the event-filter definitions,
// and the address-union "projects" file the event filter's target address
// set is seeded from.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

const eventFilterConfigPathEnv = "EVENT_FILTER_CONFIG_PATH"

// LoadSettings reads and parses settings.json from path.
func LoadSettings(path string) (*Settings, error) {
	var s Settings
	if err := readJSON(path, &s); err != nil {
		return nil, errors.Wrap(err, "load settings")
	}
	if s.Processor.RedisQueueKey == "" {
		s.Processor.RedisQueueKey = "pending_transactions"
	}
	return &s, nil
}

// LoadPreloaderConfig reads and parses preloaders.json from path. Order is
// preserved: the hook manager instantiates hooks in the order they appear
// here.
func LoadPreloaderConfig(path string) (*PreloaderConfig, error) {
	var c PreloaderConfig
	if err := readJSON(path, &c); err != nil {
		return nil, errors.Wrap(err, "load preloader config")
	}
	return &c, nil
}

// EventFilterConfigPath resolves the event-filter config document's path:
// the EVENT_FILTER_CONFIG_PATH environment variable takes precedence over
// the fallback passed in, mirroring the original deployment's ability to
// swap filter sets per environment without touching settings.json.
func EventFilterConfigPath(fallback string) string {
	if v := os.Getenv(eventFilterConfigPathEnv); v != "" {
		return v
	}
	return fallback
}

// LoadEventFiltersConfig reads and parses the event-filter definitions
// document. Each filter's AddressSource.ConfigFile is parsed but not
// resolved; cmd/txprocessor passes the --projects flag's path to
// LoadProjectAddresses instead.
func LoadEventFiltersConfig(path string) (*EventFiltersConfig, error) {
	var c EventFiltersConfig
	if err := readJSON(path, &c); err != nil {
		return nil, errors.Wrap(err, "load event filter config")
	}
	return &c, nil
}

// LoadProjectAddresses reads a projects address file and returns the union
// of every project's address list, normalized to lowercase 0x-prefixed
// form. An empty path is not an error and yields an empty (nil) set; a
// static address gate built from an empty set admits no address.
func LoadProjectAddresses(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	var pc ProjectsConfig
	if err := readJSON(path, &pc); err != nil {
		return nil, errors.Wrap(err, "load project addresses")
	}
	seen := make(map[string]struct{})
	var out []string
	for _, group := range pc.Config {
		for _, addr := range group.Projects {
			norm := normalizeAddress(addr)
			if _, ok := seen[norm]; ok {
				continue
			}
			seen[norm] = struct{}{}
			out = append(out, norm)
		}
	}
	return out, nil
}

func normalizeAddress(addr string) string {
	b := []byte(addr)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	s := string(b)
	if len(s) >= 2 && s[:2] == "0x" {
		return s
	}
	return "0x" + s
}

func readJSON(path string, dst interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(dst); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}
