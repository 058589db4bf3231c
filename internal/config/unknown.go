package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each section. Lists are sorted so
// suggestions are deterministic when two candidates tie.
var knownKeys = map[string][]string{
	"client": {"base_url", "call_timeout", "cookie_name", "dedup_window", "user_agent"},
	"auth": {
		"login_path", "logout_path", "oauth2", "refresh_mode", "refresh_path",
		"refresh_timeout", "register_path",
	},
	"auth.oauth2": {"client_id", "scopes", "token_url"},
	"session": {
		"login_route", "public_routes", "redis_addr", "redis_key", "redis_ttl",
		"sqlite_path", "store", "token_path", "watch",
	},
	"logging": {"log_format", "log_level"},
	"metrics": {"listen"},
}

// knownSections is the sorted list of top-level sections.
var knownSections = []string{"auth", "client", "logging", "metrics", "session"}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		if err := unknownKeyError(key); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	if len(key) == 1 {
		if suggestion := closestMatch(key[0], knownSections); suggestion != "" {
			return fmt.Errorf("unknown config key %q, did you mean [%s]?", key[0], suggestion)
		}

		return fmt.Errorf("unknown config key %q", key[0])
	}

	section := strings.Join(key[:len(key)-1], ".")
	leaf := key[len(key)-1]

	known, ok := knownKeys[section]
	if !ok {
		// The unknown table itself is reported as its own undecoded key.
		return nil
	}

	if slices.Contains(known, leaf) {
		return nil
	}

	if suggestion := closestMatch(leaf, known); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s], did you mean %q?", leaf, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", leaf, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings using a
// single-row table.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
