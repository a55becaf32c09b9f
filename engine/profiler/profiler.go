// Package profiler times frame builds and render batches with a high resolution clock and
// periodically logs throughput alongside heap and GC statistics.
package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/tracey"
	"github.com/loov/hrtime"
)

// Stats is a snapshot of everything the profiler has observed.
type Stats struct {
	Builds     int
	Batches    int
	Rays       uint64
	LastBuild  time.Duration
	LastRender time.Duration
	// BuildTime and RenderTime are cumulative.
	BuildTime  time.Duration
	RenderTime time.Duration
}

// RaysPerSecond is the average trace throughput over every observed batch.
func (s Stats) RaysPerSecond() float64 {
	if s.RenderTime <= 0 {
		return 0
	}
	return float64(s.Rays) / s.RenderTime.Seconds()
}

// Profiler accumulates build and render timings. Safe for concurrent use.
type Profiler struct {
	mu             sync.Mutex
	stats          Stats
	lastTime       time.Duration
	updateInterval time.Duration

	windowRays     uint64
	windowRender   time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// NewProfiler creates a Profiler. The log interval defaults to 1 second.
//
// Parameters:
//   - options: functional options (WithInterval)
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		lastTime:       hrtime.Now(),
		updateInterval: time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Start returns the current high resolution timestamp for a later Observe call.
func (p *Profiler) Start() time.Duration {
	return hrtime.Now()
}

// ObserveBuild records a frame build that began at start.
//
// Parameters:
//   - start: the value returned by Start
//
// Returns:
//   - time.Duration: the build duration
func (p *Profiler) ObserveBuild(start time.Duration) time.Duration {
	d := hrtime.Since(start)
	p.mu.Lock()
	p.stats.Builds++
	p.stats.LastBuild = d
	p.stats.BuildTime += d
	p.mu.Unlock()
	return d
}

// ObserveRender records a render batch that began at start and traced rays primary rays.
//
// Parameters:
//   - start: the value returned by Start
//   - rays: width * height * samples per pixel
//
// Returns:
//   - time.Duration: the batch duration
func (p *Profiler) ObserveRender(start time.Duration, rays uint64) time.Duration {
	d := hrtime.Since(start)
	p.mu.Lock()
	p.stats.Batches++
	p.stats.Rays += rays
	p.stats.LastRender = d
	p.stats.RenderTime += d
	p.windowRays += rays
	p.windowRender += d
	p.mu.Unlock()
	return d
}

// Snapshot returns the accumulated statistics.
func (p *Profiler) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Tick logs throughput and memory statistics once the update interval has elapsed since the
// previous report.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := hrtime.Now()
	elapsed := now - p.lastTime
	if elapsed < p.updateInterval {
		return false
	}

	var raysPerSec float64
	if p.windowRender > 0 {
		raysPerSec = float64(p.windowRays) / p.windowRender.Seconds()
	}

	runtime.ReadMemStats(&p.memStats)
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a ring of the last 256 pauses.
	gcCount := p.memStats.NumGC
	var lastPause, maxPause uint64
	if gcCount > 0 {
		lastPause = p.memStats.PauseNs[(gcCount-1)%256]
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPause = max(maxPause, p.memStats.PauseNs[i%256])
		}
	}

	tracey.Logger().Info("profiler",
		"rays_per_sec", raysPerSec,
		"builds", p.stats.Builds,
		"batches", p.stats.Batches,
		"heap_mb", float64(p.memStats.Alloc)/1024/1024,
		"alloc_rate_mb", allocRateMB,
		"gc", gcCount,
		"gc_last", time.Duration(lastPause),
		"gc_max", time.Duration(maxPause),
		"sys_mb", float64(p.memStats.Sys)/1024/1024,
	)

	p.lastTime = now
	p.windowRays = 0
	p.windowRender = 0
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
