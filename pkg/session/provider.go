package session

import (
	"fmt"
	"log/slog"

	"github.com/Masterminds/semver/v3"
)

const providerLogPrefix = "session:provider"

// StaticProvider serves a fixed connection established at startup.
type StaticProvider struct {
	conn *Connection
}

// NewProvider builds a provider from a profile, gating on API version
// compatibility. A nil profile yields a provider with no active session. A
// profile whose APIVersion does not satisfy the constraint is rejected: the
// provider yields no connection rather than talking to an incompatible
// endpoint. An empty constraint disables the gate.
func NewProvider(profile *Profile, constraint string) (*StaticProvider, error) {
	if profile == nil {
		return &StaticProvider{}, nil
	}

	if constraint != "" && profile.APIVersion != "" {
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid API constraint %q: %w", providerLogPrefix, constraint, err)
		}
		v, err := semver.NewVersion(profile.APIVersion)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid profile apiVersion %q: %w", providerLogPrefix, profile.APIVersion, err)
		}
		if !c.Check(v) {
			slog.Warn(fmt.Sprintf("%s - Endpoint API version %s does not satisfy %s, session disabled",
				providerLogPrefix, profile.APIVersion, constraint))
			return &StaticProvider{}, nil
		}
	}

	return &StaticProvider{conn: &Connection{
		BaseURL:    profile.BaseURL,
		AuthToken:  profile.AuthToken,
		APIVersion: profile.APIVersion,
	}}, nil
}

// CurrentConnection returns the active connection, or nil when none exists.
func (p *StaticProvider) CurrentConnection() *Connection {
	if p == nil {
		return nil
	}
	return p.conn
}
