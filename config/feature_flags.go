package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
)

// Flag names.
const (
	// Report update/delete stays allowed once the application is COMPLETED.
	FeatureReportsEditableAfterCompletion = "reports.editable_after_completion"

	FeatureDashboardCache  = "dashboard.cache"     // Redis-cached artisan counts
	FeatureEventFanout     = "events.redis_fanout" // events reach every replica
	FeatureEventForwarding = "events.forwarding"   // events go to Kafka
	FeatureHTTPMetrics     = "http.metrics"
	FeatureRateLimit       = "http.rate_limit"
)

// defaultFeatures lists every known flag.
var defaultFeatures = map[string]bool{
	FeatureReportsEditableAfterCompletion: false,
	FeatureDashboardCache:                 true,
	FeatureEventFanout:                    true,
	FeatureEventForwarding:                true,
	FeatureHTTPMetrics:                    true,
	FeatureRateLimit:                      true,
}

// legacyEnvKeys are plain variable names operators already set.
var legacyEnvKeys = map[string]string{
	FeatureReportsEditableAfterCompletion: "REPORTS_EDITABLE_AFTER_COMPLETION",
}

// FeatureFlags switches optional components and policies on or off. Each
// flag is read once from FEATURE_<NAME> and is read-only afterwards.
type FeatureFlags struct {
	on map[string]bool
}

// NewFeatureFlags returns every known flag at its default.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{on: make(map[string]bool, len(defaultFeatures))}
	for name, on := range defaultFeatures {
		ff.on[name] = on
	}
	return ff
}

func loadFeatureFlags(e *envReader) *FeatureFlags {
	ff := NewFeatureFlags()
	for name, def := range defaultFeatures {
		key := featureNameToEnvKey(name)
		if os.Getenv(key) == "" {
			if legacy, ok := legacyEnvKeys[name]; ok {
				key = legacy
			}
		}
		ff.on[name] = e.boolean(key, def)
	}
	return ff
}

// featureNameToEnvKey maps "dashboard.cache" to "FEATURE_DASHBOARD_CACHE".
func featureNameToEnvKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

// Enabled is false for unknown names.
func (ff *FeatureFlags) Enabled(name string) bool {
	return ff.on[name]
}

// String lists flags as name=bool sorted by name, for the startup log.
func (ff *FeatureFlags) String() string {
	names := make([]string, 0, len(ff.on))
	for n := range ff.on {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(n + "=" + strconv.FormatBool(ff.on[n]))
	}
	return b.String()
}
