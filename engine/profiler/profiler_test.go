package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObserveAccumulates(t *testing.T) {
	p := NewProfiler(WithInterval(time.Hour))

	p.ObserveBuild(p.Start())
	p.ObserveRender(p.Start(), 100)
	p.ObserveRender(p.Start(), 50)

	s := p.Snapshot()
	assert.Equal(t, 1, s.Builds)
	assert.Equal(t, 2, s.Batches)
	assert.Equal(t, uint64(150), s.Rays)
	assert.GreaterOrEqual(t, s.RenderTime, s.LastRender)
	assert.False(t, p.Tick())
}

func TestTickAfterInterval(t *testing.T) {
	p := NewProfiler(WithInterval(0))
	p.ObserveRender(p.Start(), 10)
	assert.True(t, p.Tick())
}

func TestRaysPerSecond(t *testing.T) {
	assert.Zero(t, Stats{}.RaysPerSecond())
	s := Stats{Rays: 1000, RenderTime: 2 * time.Second}
	assert.InDelta(t, 500, s.RaysPerSecond(), 1e-9)
}
