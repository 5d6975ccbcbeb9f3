// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/devcam/internal/log"
)

// EnvPrefix prefixes every environment key the loader reads.
const EnvPrefix = "DEVCAM_"

// parseEnv reads key and converts it with parse. An unset or empty variable
// and an unparsable value yield def; the chosen source is logged.
func parseEnv[T any](lookup func(string) (string, bool), key string, def T, parse func(string) (T, error)) T {
	logger := log.WithComponent("config")
	v, ok := lookup(key)
	if !ok || v == "" {
		logger.Debug().Str("key", key).Interface("default", def).Str("source", "default").Msg("using default value")
		return def
	}
	out, err := parse(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Interface("default", def).Msg("invalid environment value, using default")
		return def
	}
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if !sensitive(key) {
		ev = ev.Str("value", v)
	}
	ev.Msg("using environment variable")
	return out
}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "secret")
}

func parseString(s string) (string, error) { return s, nil }

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(strings.TrimSpace(s), 64) }

func parseInt(s string) (int, error) { return strconv.Atoi(strings.TrimSpace(s)) }

func parseDuration(s string) (time.Duration, error) { return time.ParseDuration(strings.TrimSpace(s)) }

// ParseLevel maps a level name to zerolog, accepting "warning".
func ParseLevel(s string) (zerolog.Level, error) {
	if strings.EqualFold(s, "warning") {
		s = "warn"
	}
	return zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
}

// osLookup is os.LookupEnv; tests replace the loader's lookup instead.
var osLookup = os.LookupEnv
