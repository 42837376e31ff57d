package telemetry

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig holds Pyroscope continuous profiling configuration.
type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string // e.g. http://pyroscope:4040
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	// ProfileTypes names the profiles to collect: cpu, alloc_objects,
	// alloc_space, inuse_objects, inuse_space, goroutines, mutex, block.
	// Empty means cpu plus the in-use heap.
	ProfileTypes []string
}

var profileTypesByName = map[string][]pyroscope.ProfileType{
	"cpu":           {pyroscope.ProfileCPU},
	"alloc_objects": {pyroscope.ProfileAllocObjects},
	"alloc_space":   {pyroscope.ProfileAllocSpace},
	"inuse_objects": {pyroscope.ProfileInuseObjects},
	"inuse_space":   {pyroscope.ProfileInuseSpace},
	"goroutines":    {pyroscope.ProfileGoroutines},
	"mutex":         {pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration},
	"block":         {pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration},
}

// runtimeSampleRate applies to mutex and block profiling when requested
const runtimeSampleRate = 5

// ParseProfileTypes resolves profile names. Unknown names are an error.
func ParseProfileTypes(names []string) ([]pyroscope.ProfileType, error) {
	if len(names) == 0 {
		names = []string{"cpu", "inuse_objects", "inuse_space"}
	}
	var types []pyroscope.ProfileType
	for _, name := range names {
		t, ok := profileTypesByName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown profile type %q", name)
		}
		types = append(types, t...)
	}
	return types, nil
}

// Profiler owns the Pyroscope session. The zero value and a disabled profiler
// are both safe to Stop.
type Profiler struct {
	mu       sync.Mutex
	profiler *pyroscope.Profiler
	logger   *zap.Logger
}

// NewProfiler starts continuous profiling when cfg.Enabled is set.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Profiler{logger: logger}
	if !cfg.Enabled {
		return p, nil
	}
	if cfg.ServerAddress == "" || cfg.ApplicationName == "" {
		return nil, fmt.Errorf("profiler needs a server address and an application name")
	}

	types, err := ParseProfileTypes(cfg.ProfileTypes)
	if err != nil {
		return nil, err
	}
	for _, t := range types {
		switch t {
		case pyroscope.ProfileMutexCount:
			runtime.SetMutexProfileFraction(runtimeSampleRate)
		case pyroscope.ProfileBlockCount:
			runtime.SetBlockProfileRate(runtimeSampleRate)
		}
	}

	tags := map[string]string{}
	if host, err := os.Hostname(); err == nil {
		tags["hostname"] = host
	}

	p.profiler, err = pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.ApplicationName,
		ServerAddress:     cfg.ServerAddress,
		BasicAuthUser:     cfg.BasicAuthUser,
		BasicAuthPassword: cfg.BasicAuthPassword,
		Logger:            logger.Named("pyroscope").Sugar(),
		Tags:              tags,
		ProfileTypes:      types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start profiler: %w", err)
	}
	logger.Info("Continuous profiling enabled",
		zap.String("server_address", cfg.ServerAddress),
		zap.Int("profile_types", len(types)),
	)
	return p, nil
}

// IsEnabled returns whether profiles are being uploaded.
func (p *Profiler) IsEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profiler != nil
}

// Stop uploads the last profiles and ends the session. Later calls are no-ops.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profiler == nil {
		return nil
	}
	err := p.profiler.Stop()
	p.profiler = nil
	if err != nil {
		return fmt.Errorf("failed to stop profiler: %w", err)
	}
	return nil
}

// Profile label keys
const (
	ProfilingLabelOperation = "operation"
	ProfilingLabelMethod    = "method"
	ProfilingLabelRoute     = "route"
	ProfilingLabelResource  = "resource"
)

// WithProfilingLabels runs fn with the key/value pprof label pairs added to ctx.
// kv must hold an even number of strings. Labels apply whether or not a
// profiler is running.
func WithProfilingLabels(ctx context.Context, fn func(context.Context), kv ...string) {
	pyroscope.TagWrapper(ctx, pyroscope.Labels(kv...), fn)
}

// ProfileOperation runs fn under an "operation" label, so CPU samples taken
// inside fn can be filtered by ledger operation.
func ProfileOperation(ctx context.Context, operation string, fn func(context.Context)) {
	WithProfilingLabels(ctx, fn, ProfilingLabelOperation, operation)
}
