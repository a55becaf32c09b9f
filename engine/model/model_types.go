package model

import (
	"errors"

	"github.com/Carmen-Shannon/tracey/engine/cache"
	"github.com/Carmen-Shannon/tracey/engine/profiler"
	"github.com/Carmen-Shannon/tracey/engine/scene"
)

var (
	// ErrNoFrame is returned by Render before the first successful Build.
	ErrNoFrame = errors.New("no frame built")
	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("model closed")
	// ErrRunning is returned by a second Run.
	ErrRunning = errors.New("model already running")
)

// SceneLoaded is published after Load replaces the project graph.
type SceneLoaded struct {
	Path  string
	Scene *scene.Summary
}

// NodeAdded is published after CreateBasicShape attaches a node.
type NodeAdded struct {
	Node scene.NodeSummary
}

// ProjectCreated is published after NewProject.
type ProjectCreated struct {
	Name string
	Path string
}

// Events groups the model's broadcasters.
type Events struct {
	SceneLoaded    *Broadcaster[SceneLoaded]
	NodeAdded      *Broadcaster[NodeAdded]
	ProjectCreated *Broadcaster[ProjectCreated]
}

func newEvents() *Events {
	return &Events{
		SceneLoaded:    NewBroadcaster[SceneLoaded]("sceneLoaded"),
		NodeAdded:      NewBroadcaster[NodeAdded]("nodeAdded"),
		ProjectCreated: NewBroadcaster[ProjectCreated]("projectCreated"),
	}
}

func (e *Events) close() {
	e.SceneLoaded.Close()
	e.NodeAdded.Close()
	e.ProjectCreated.Close()
}

// Stats describes the model's current contents.
type Stats struct {
	Project   string
	Resources int
	Nodes     int
	// Instances is the instance count of the current frame, zero without one.
	Instances int
	Batch     uint32
	Device    string
	Cache     cache.Stats
	Profile   profiler.Stats
}
