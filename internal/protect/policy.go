// Package protect provides the protected-operation coordinator: the
// composition contract every cached-reading or mutating route follows,
// tying the tagged cache, resource lock, and idempotency ledger together
// with fixed ordering and failure semantics.
package protect

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CachePolicy configures the read-through behavior of a cacheable route.
type CachePolicy struct {
	// TTL is the server-side cache lifetime of an entry.
	TTL time.Duration `yaml:"ttl"`
	// Shared marks responses identical for every caller. Unshared responses
	// are keyed and tagged per acting user.
	Shared bool `yaml:"shared"`
	// ClientMaxAge, when positive, lets clients store the response for that
	// long. Zero emits a must-revalidate posture instead.
	ClientMaxAge time.Duration `yaml:"client_max_age"`
}

// UnmarshalYAML accepts Go duration notation ("90s", "5m") for the TTL
// fields.
func (p *CachePolicy) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		TTL          string `yaml:"ttl"`
		Shared       bool   `yaml:"shared"`
		ClientMaxAge string `yaml:"client_max_age"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	p.Shared = raw.Shared
	if raw.TTL != "" {
		d, err := time.ParseDuration(raw.TTL)
		if err != nil {
			return fmt.Errorf("invalid cache ttl %q: %w", raw.TTL, err)
		}
		p.TTL = d
	}
	if raw.ClientMaxAge != "" {
		d, err := time.ParseDuration(raw.ClientMaxAge)
		if err != nil {
			return fmt.Errorf("invalid client_max_age %q: %w", raw.ClientMaxAge, err)
		}
		p.ClientMaxAge = d
	}
	return nil
}

// Policy declares which protections apply to a route. Policies are read at
// startup; nothing is discovered per-request.
type Policy struct {
	// Cache enables the read-through protocol; nil means uncached.
	Cache *CachePolicy `yaml:"cache"`
	// Lock serializes mutations per resource via the distributed lease.
	Lock bool `yaml:"lock"`
	// Idempotent requires an Idempotency-Key header and deduplicates via the
	// ledger.
	Idempotent bool `yaml:"idempotent"`
	// Tags are the base cache tags this route reads under or invalidates.
	// The first tag names the resource type and is used to derive
	// per-instance tags.
	Tags []string `yaml:"tags"`
	// OwnerPaths are JSON paths into a mutation's result payload whose values
	// identify users whose cached views must also be invalidated (e.g. the
	// complaint's citizen and assignee).
	OwnerPaths []string `yaml:"owner_paths"`
}

// DefaultPolicies returns the compiled-in protection policy per route name.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		"complaints.list": {
			Cache: &CachePolicy{TTL: 60 * time.Second},
			Tags:  []string{"complaints"},
		},
		"complaints.get": {
			Cache: &CachePolicy{TTL: 60 * time.Second},
			Tags:  []string{"complaints"},
		},
		"complaints.create": {
			Idempotent: true,
			Tags:       []string{"complaints"},
			OwnerPaths: []string{"citizen_id"},
		},
		"complaints.status": {
			Lock:       true,
			Idempotent: true,
			Tags:       []string{"complaints"},
			OwnerPaths: []string{"citizen_id", "assignee_id"},
		},
		"complaints.assign": {
			Lock:       true,
			Idempotent: true,
			Tags:       []string{"complaints"},
			OwnerPaths: []string{"citizen_id", "assignee_id"},
		},
		"complaints.note": {
			Lock:       true,
			Idempotent: true,
			Tags:       []string{"complaints"},
			OwnerPaths: []string{"citizen_id", "assignee_id"},
		},
	}
}

// LoadPolicies reads route policies from a YAML file and overlays them on the
// defaults. Routes absent from the file keep their compiled-in policy.
func LoadPolicies(path string) (map[string]Policy, error) {
	policies := DefaultPolicies()
	if path == "" {
		return policies, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var loaded map[string]Policy
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	for name, pol := range loaded {
		policies[name] = pol
	}
	return policies, nil
}
