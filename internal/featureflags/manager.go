// Package featureflags evaluates runtime toggles from FEATURE_FLAGS.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// Known flags.
const (
	// Events gates domain event publishing to the message broker.
	Events = "events"
	// PageCache gates caching of the index page.
	PageCache = "page_cache"
)

// rule is one parsed flag value: fully on, fully off, or a percentage rollout.
type rule struct {
	raw     string
	percent int
}

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "events=on,page_cache=off,new_feed=25%"
type Manager struct {
	rules map[string]rule
}

// NewManager creates a feature-flag manager from a comma-separated config string.
// Pairs that cannot be parsed are ignored.
func NewManager(raw string) *Manager {
	out := make(map[string]rule)

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		r, ok := parseRule(value)
		if !ok {
			continue
		}
		out[key] = r
	}

	return &Manager{rules: out}
}

func parseRule(value string) (rule, bool) {
	switch value {
	case "on", "true", "1":
		return rule{raw: value, percent: 100}, true
	case "off", "false", "0":
		return rule{raw: value, percent: 0}, true
	}
	if pctRaw, ok := strings.CutSuffix(value, "%"); ok {
		pct, err := strconv.Atoi(pctRaw)
		if err != nil {
			return rule{}, false
		}
		return rule{raw: value, percent: min(max(pct, 0), 100)}, true
	}
	return rule{}, false
}

// Enabled returns whether a flag is enabled for a given user. Unknown flags are off.
// Percentage rollouts are deterministic per user and never include anonymous users.
func (m *Manager) Enabled(name string, userID uint) bool {
	return m.EnabledOr(name, userID, false)
}

// EnabledOr is Enabled with an explicit result for flags that are not configured.
func (m *Manager) EnabledOr(name string, userID uint, fallback bool) bool {
	if m == nil {
		return fallback
	}
	r, ok := m.rules[normalize(name)]
	if !ok {
		return fallback
	}
	switch {
	case r.percent <= 0:
		return false
	case r.percent >= 100:
		return true
	case userID == 0:
		return false
	default:
		return rolloutBucket(name, userID) < r.percent
	}
}

// Raw returns a copy of configured flag values.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.rules))
	for k, r := range m.rules {
		out[k] = r.raw
	}
	return out
}

// Snapshot returns evaluated flag status for one user.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.rules))
	for name := range m.rules {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

// Names lists configured flags in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.rules))
	for name := range m.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s:%d", normalize(name), userID)))
	return int(h.Sum32() % 100)
}
