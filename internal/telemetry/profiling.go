package telemetry

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// ProfilingConfig configures Pyroscope continuous profiling of the
// engine.
type ProfilingConfig struct {
	// Enabled controls whether profiling runs at all.
	Enabled bool

	// ServiceName is the application name shown in Pyroscope.
	ServiceName string

	// ServiceVersion is stamped onto every profile as a tag.
	ServiceVersion string

	// Endpoint is the Pyroscope server URL, e.g. "http://localhost:4040".
	Endpoint string

	// ProfileTypes selects what to collect. Empty means the engine
	// default set: cpu and alloc_space for the parse/format hot path,
	// goroutines because the engine runs one per session, and
	// mutex_duration for store and registry contention.
	ProfileTypes []string
}

// profileTypesByName maps config names to Pyroscope profile types.
var profileTypesByName = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

// defaultProfileTypes is the engine's default collection set. The
// session model (one goroutine per counterparty) makes the goroutine
// profile the first thing to look at when the engine misbehaves;
// mutex_duration surfaces store append contention under load.
var defaultProfileTypes = []string{"cpu", "alloc_space", "goroutines", "mutex_duration"}

var (
	profiler         *pyroscope.Profiler
	profilingEnabled bool
)

// InitProfiling starts continuous profiling. The returned stop
// function flushes and detaches the profiler.
func InitProfiling(cfg ProfilingConfig) (stop func() error, err error) {
	if !cfg.Enabled {
		profilingEnabled = false
		return func() error { return nil }, nil
	}

	names := cfg.ProfileTypes
	if len(names) == 0 {
		names = defaultProfileTypes
	}

	types := make([]pyroscope.ProfileType, 0, len(names))
	for _, name := range names {
		pt, ok := profileTypesByName[name]
		if !ok {
			return nil, fmt.Errorf("unknown profile type %q (valid: %s)", name, validProfileTypes())
		}
		types = append(types, pt)

		// Mutex and block profiling are off by default in the runtime;
		// a sampling fraction of 5 keeps the message-path overhead
		// negligible.
		switch name {
		case "mutex_count", "mutex_duration":
			runtime.SetMutexProfileFraction(5)
		case "block_count", "block_duration":
			runtime.SetBlockProfileRate(5)
		}
	}

	profiler, err = pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.Endpoint,
		Tags: map[string]string{
			"version": cfg.ServiceVersion,
			"role":    "fix-acceptor",
		},
		ProfileTypes: types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	profilingEnabled = true

	return func() error {
		if profiler == nil {
			return nil
		}
		return profiler.Stop()
	}, nil
}

// IsProfilingEnabled reports whether profiling is active.
func IsProfilingEnabled() bool {
	return profilingEnabled
}

func validProfileTypes() string {
	names := make([]string, 0, len(profileTypesByName))
	for name := range profileTypesByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
