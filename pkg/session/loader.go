package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

const loaderLogPrefix = "session:loader"

// LoadProfile loads an endpoint profile from file paths or environment.
// It tries paths in order: first any paths passed in, then RELAY_PROFILE_FILE
// env, then defaults. An explicit path is tried before the env var. When no
// file is found, a profile is assembled from RELAY_ENDPOINT_URL /
// RELAY_AUTH_TOKEN / RELAY_API_VERSION; absence of an endpoint URL means no
// profile (and therefore no active session).
func LoadProfile(paths ...string) (*Profile, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("RELAY_PROFILE_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/profile.json", "profile.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var profile Profile
		if err := json.Unmarshal(data, &profile); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse profile file %s: %v", loaderLogPrefix, p, err))
			continue
		}
		if profile.BaseURL == "" {
			slog.Warn(fmt.Sprintf("%s - Profile file %s has no baseUrl, skipping", loaderLogPrefix, p))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded endpoint profile from %s", loaderLogPrefix, p))
		return &profile, nil
	}

	if url := os.Getenv("RELAY_ENDPOINT_URL"); url != "" {
		slog.Info(fmt.Sprintf("%s - Using endpoint profile from environment", loaderLogPrefix))
		return &Profile{
			BaseURL:    url,
			AuthToken:  os.Getenv("RELAY_AUTH_TOKEN"),
			APIVersion: os.Getenv("RELAY_API_VERSION"),
		}, nil
	}

	slog.Info(fmt.Sprintf("%s - No endpoint profile configured", loaderLogPrefix))
	return nil, nil
}
