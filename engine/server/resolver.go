package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/common"
	"github.com/Carmen-Shannon/tracey/engine/model"
	"github.com/Carmen-Shannon/tracey/engine/shapes"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/graph-gophers/graphql-go"
)

// resolver is the root of the query, mutation and subscription types.
type resolver struct {
	model model.Model
}

func (r *resolver) Scene(ctx context.Context) (*sceneResolver, error) {
	s, err := r.model.Scene(ctx)
	if err != nil {
		return nil, err
	}
	return &sceneResolver{s: s}, nil
}

func (r *resolver) Image(ctx context.Context, args struct{ Thumbnail *int32 }) (string, error) {
	size := 0
	if args.Thumbnail != nil {
		size = int(*args.Thumbnail)
	}
	data, err := encodeImage(ctx, r.model, size)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (r *resolver) Width() int32 {
	return int32(r.model.Width())
}

func (r *resolver) Height() int32 {
	return int32(r.model.Height())
}

func (r *resolver) GetNode(ctx context.Context, args struct{ NodeID int32 }) (*nodeResolver, error) {
	n, err := r.model.GetNode(ctx, int(args.NodeID))
	if err != nil {
		return nil, err
	}
	return &nodeResolver{n: n}, nil
}

func (r *resolver) Stats(ctx context.Context) (*statsResolver, error) {
	s, err := r.model.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &statsResolver{s: s}, nil
}

func (r *resolver) Load(ctx context.Context, args struct{ Path string }) (bool, error) {
	if _, err := r.model.Load(ctx, args.Path); err != nil {
		return false, err
	}
	return true, nil
}

func (r *resolver) Build(ctx context.Context) (bool, error) {
	if err := r.model.Build(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *resolver) Render(ctx context.Context, args struct{ Batches int32 }) (bool, error) {
	if args.Batches < 0 {
		return false, fmt.Errorf("render: negative batch count %d", args.Batches)
	}
	if err := r.model.Render(ctx, uint32(args.Batches)); err != nil {
		return false, err
	}
	return true, nil
}

func (r *resolver) CreateBasicShape(ctx context.Context, args struct {
	Shape  string
	Parent int32
}) (int32, error) {
	shape, err := shapes.ParseShape(strings.ReplaceAll(args.Shape, "_", ""))
	if err != nil {
		return 0, err
	}
	idx, err := r.model.CreateBasicShape(ctx, shape, int(args.Parent))
	if err != nil {
		return 0, err
	}
	return int32(idx), nil
}

func (r *resolver) Import(ctx context.Context, args struct{ Path string }) (*graphql.ID, error) {
	id, err := r.model.Import(ctx, args.Path)
	if err != nil {
		return nil, err
	}
	gid := graphql.ID(strconv.FormatUint(uint64(id), 10))
	return &gid, nil
}

func (r *resolver) NewProject(ctx context.Context, args struct{ Name string }) (bool, error) {
	if _, err := r.model.NewProject(ctx, args.Name); err != nil {
		return false, err
	}
	return true, nil
}

func (r *resolver) LookAt(ctx context.Context, args struct{ X, Y, Z float64 }) (bool, error) {
	if err := r.model.LookAt(ctx, vec3(args.X, args.Y, args.Z)); err != nil {
		return false, err
	}
	return true, nil
}

func (r *resolver) MoveCamera(ctx context.Context, args struct{ Dx, Dy, Dz float64 }) ([]float64, error) {
	p, err := r.model.MoveCamera(ctx, vec3(args.Dx, args.Dy, args.Dz))
	if err != nil {
		return nil, err
	}
	return []float64{float64(p[0]), float64(p[1]), float64(p[2])}, nil
}

func (r *resolver) SetCameraPosition(ctx context.Context, args struct{ X, Y, Z float64 }) (bool, error) {
	if err := r.model.SetCameraPosition(ctx, vec3(args.X, args.Y, args.Z)); err != nil {
		return false, err
	}
	return true, nil
}

func (r *resolver) SceneLoaded(ctx context.Context) <-chan *sceneResolver {
	events, cancel := r.model.Events().SceneLoaded.Subscribe()
	return forward(ctx, events, cancel, func(e model.SceneLoaded) *sceneResolver {
		return &sceneResolver{s: e.Scene}
	})
}

func (r *resolver) NodeAdded(ctx context.Context) <-chan *nodeResolver {
	events, cancel := r.model.Events().NodeAdded.Subscribe()
	return forward(ctx, events, cancel, func(e model.NodeAdded) *nodeResolver {
		return &nodeResolver{n: e.Node}
	})
}

func (r *resolver) ProjectCreated(ctx context.Context) <-chan *projectResolver {
	events, cancel := r.model.Events().ProjectCreated.Subscribe()
	return forward(ctx, events, cancel, func(e model.ProjectCreated) *projectResolver {
		return &projectResolver{p: e}
	})
}

// forward converts events until ctx is done or the broadcaster closes, then unsubscribes.
func forward[E, R any](ctx context.Context, events <-chan E, cancel func(), convert func(E) R) <-chan R {
	out := make(chan R)
	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				select {
				case out <- convert(e):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func vec3(x, y, z float64) mgl32.Vec3 {
	return mgl32.Vec3{float32(x), float32(y), float32(z)}
}

// encodeImage downloads the output and encodes it as PNG, scaled to fit size when size > 0.
func encodeImage(ctx context.Context, m model.Model, size int) ([]byte, error) {
	img, err := m.Image(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, common.Thumbnail(img, size)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	tracey.Logger().Debug("image encoded", "bytes", buf.Len(), "thumbnail", size)
	return buf.Bytes(), nil
}
