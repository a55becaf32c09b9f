package server

import (
	"strconv"
	"time"

	"github.com/Carmen-Shannon/tracey/engine/model"
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/Carmen-Shannon/tracey/engine/scene"
	"github.com/graph-gophers/graphql-go"
)

type sceneResolver struct {
	s *scene.Summary
}

func (r *sceneResolver) Name() string {
	return r.s.Name
}

func (r *sceneResolver) Root() int32 {
	return int32(r.s.Root)
}

func (r *sceneResolver) Nodes() []*nodeResolver {
	nodes := make([]*nodeResolver, len(r.s.Nodes))
	for i, n := range r.s.Nodes {
		nodes[i] = &nodeResolver{n: n}
	}
	return nodes
}

type nodeResolver struct {
	n scene.NodeSummary
}

func (r *nodeResolver) ID() int32 {
	return int32(r.n.Index)
}

func (r *nodeResolver) Name() string {
	return r.n.Name
}

func (r *nodeResolver) Parent() *int32 {
	if r.n.Parent == scene.NoParent {
		return nil
	}
	p := int32(r.n.Parent)
	return &p
}

func (r *nodeResolver) Children() []int32 {
	children := make([]int32, len(r.n.Children))
	for i, c := range r.n.Children {
		children[i] = int32(c)
	}
	return children
}

func (r *nodeResolver) Mesh() *graphql.ID {
	return resourceID(r.n.Mesh)
}

func (r *nodeResolver) Material() *graphql.ID {
	return resourceID(r.n.Material)
}

func (r *nodeResolver) Transform() []float64 {
	t := make([]float64, len(r.n.Global))
	for i, v := range r.n.Global {
		t[i] = float64(v)
	}
	return t
}

func resourceID(id *resource.ID) *graphql.ID {
	if id == nil {
		return nil
	}
	gid := graphql.ID(strconv.FormatUint(uint64(*id), 10))
	return &gid
}

type projectResolver struct {
	p model.ProjectCreated
}

func (r *projectResolver) Name() string {
	return r.p.Name
}

func (r *projectResolver) Path() string {
	return r.p.Path
}

type statsResolver struct {
	s model.Stats
}

func (r *statsResolver) Project() string  { return r.s.Project }
func (r *statsResolver) Device() string   { return r.s.Device }
func (r *statsResolver) Resources() int32 { return int32(r.s.Resources) }
func (r *statsResolver) Nodes() int32     { return int32(r.s.Nodes) }
func (r *statsResolver) Instances() int32 { return int32(r.s.Instances) }
func (r *statsResolver) Batch() int32     { return int32(r.s.Batch) }
func (r *statsResolver) Meshes() int32    { return int32(r.s.Cache.Meshes) }
func (r *statsResolver) Textures() int32  { return int32(r.s.Cache.Textures) }
func (r *statsResolver) Materials() int32 { return int32(r.s.Cache.Materials) }
func (r *statsResolver) Builds() int32    { return int32(r.s.Profile.Builds) }
func (r *statsResolver) Batches() int32   { return int32(r.s.Profile.Batches) }
func (r *statsResolver) BytesUploaded() float64 {
	return float64(r.s.Cache.BytesUploaded)
}

func (r *statsResolver) LastBuildMs() float64 {
	return millis(r.s.Profile.LastBuild)
}

func (r *statsResolver) LastRenderMs() float64 {
	return millis(r.s.Profile.LastRender)
}

func (r *statsResolver) RaysPerSecond() float64 {
	return r.s.Profile.RaysPerSecond()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
