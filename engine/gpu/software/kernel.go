package software

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/common"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/gpu/bvh"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// kernel is the bound state of one TraceRays dispatch.
type kernel struct {
	dev       *deviceImpl
	tlas      *tlasImpl
	output    *imageImpl
	accum     *imageImpl
	camera    gpu.GPUCameraUniform
	scene     gpu.GPUSceneUniform
	meshes    gpu.Buffer
	textures  []gpu.SampledImage
	push      gpu.PushConstants
	width     uint32
	height    uint32
	errOnce   sync.Once
	err       error
}

type hitRecord struct {
	instance *tlasInstance
	triangle uint32
	t, u, v  float32
}

type surface struct {
	point     mgl32.Vec3
	normal    mgl32.Vec3
	baseColor mgl32.Vec3
	emission  mgl32.Vec3
	roughness float32
	metallic  float32
	sheen     float32
	clearCoat float32
}

func (d *deviceImpl) TraceRays(ctx context.Context, sets []gpu.DescriptorSet, push gpu.PushConstants, width, height uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.WaitIdle(); err != nil {
		return err
	}
	if err := gpu.ValidateSets(sets); err != nil {
		return fmt.Errorf("trace rays: %w", err)
	}
	k, err := d.bind(sets, push, width, height)
	if err != nil {
		return fmt.Errorf("trace rays: %w", err)
	}

	done := make(chan struct{})
	d.mu.Lock()
	d.pending = done
	d.counters.Dispatches++
	d.mu.Unlock()

	var wg sync.WaitGroup
	tile := d.tileSize
	taskID := 0
	for y0 := uint32(0); y0 < height; y0 += tile {
		for x0 := uint32(0); x0 < width; x0 += tile {
			wg.Add(1)
			x0, y0, id := x0, y0, taskID
			taskID++
			d.pool.SubmitTask(worker.Task{
				ID: id,
				Do: func() (any, error) {
					defer wg.Done()
					k.runTile(x0, y0, min(x0+tile, width), min(y0+tile, height), uint64(id))
					return nil, nil
				},
			})
		}
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	tracey.Logger().Debug("trace rays", "width", width, "height", height, "spp", push.SamplesPerPixel, "batch", push.CurrentBatch, "tiles", taskID)
	return k.err
}

func (d *deviceImpl) bind(sets []gpu.DescriptorSet, push gpu.PushConstants, width, height uint32) (*kernel, error) {
	rt, sc := sets[0], sets[1]
	tlas, ok := rt.AccelerationStructure(gpu.BindingTLAS).(*tlasImpl)
	if !ok {
		return nil, fmt.Errorf("TLAS does not belong to the software device")
	}
	out, ok := rt.Image(gpu.BindingOutputImage).(*imageImpl)
	if !ok || out.format != gpu.ImageFormatRGBA8 {
		return nil, fmt.Errorf("output image must be a software RGBA8 image")
	}
	acc, ok := rt.Image(gpu.BindingAccumulationImage).(*imageImpl)
	if !ok || acc.format != gpu.ImageFormatRGBA32F {
		return nil, fmt.Errorf("accumulation image must be a software RGBA32F image")
	}
	if out.width < width || out.height < height || acc.width < width || acc.height < height {
		return nil, fmt.Errorf("launch %dx%d exceeds the bound images", width, height)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if out.freed || acc.freed {
		return nil, fmt.Errorf("render target used after free")
	}
	camBuf, err := d.own(sc.Buffer(gpu.BindingCamera))
	if err != nil {
		return nil, err
	}
	cam, err := gpu.UnmarshalGPUCameraUniform(camBuf.data)
	if err != nil {
		return nil, err
	}
	sceneBuf, err := d.own(sc.Buffer(gpu.BindingSceneUniform))
	if err != nil {
		return nil, err
	}
	su, err := gpu.UnmarshalGPUSceneUniform(sceneBuf.data)
	if err != nil {
		return nil, err
	}
	meshes, err := d.own(sc.Buffer(gpu.BindingMeshAddresses))
	if err != nil {
		return nil, err
	}

	return &kernel{
		dev:      d,
		tlas:     tlas,
		output:   out,
		accum:    acc,
		camera:   cam,
		scene:    su,
		meshes:   meshes,
		textures: sc.SampledImages(gpu.BindingTextures),
		push:     push,
		width:    width,
		height:   height,
	}, nil
}

func (k *kernel) fail(err error) {
	k.errOnce.Do(func() { k.err = err })
}

func (k *kernel) runTile(x0, y0, x1, y1 uint32, tile uint64) {
	rng := rand.New(rand.NewPCG(k.dev.seed^tile, uint64(k.push.CurrentBatch)))
	spp := max(k.push.SamplesPerPixel, 1)
	batch := float32(k.push.CurrentBatch)

	k.dev.mu.RLock()
	defer k.dev.mu.RUnlock()
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			var sum mgl32.Vec3
			for range spp {
				sum = sum.Add(k.trace(k.primaryRay(x, y, rng), rng))
			}
			sample := sum.Mul(1 / float32(spp)).Vec4(1)

			prev := k.accum.texel(x, y)
			acc := prev.Mul(batch).Add(sample).Mul(1 / (batch + 1))
			k.accum.store(x, y, acc)
			k.output.store(x, y, mgl32.Vec4{gamma(acc[0]), gamma(acc[1]), gamma(acc[2]), 1})
		}
	}
}

func gamma(v float32) float32 {
	return math32.Pow(min(max(v, 0), 1), 1/2.2)
}

func (k *kernel) primaryRay(x, y uint32, rng *rand.Rand) bvh.Ray {
	px := (float32(x) + rng.Float32()) / float32(k.width)
	py := (float32(y) + rng.Float32()) / float32(k.height)
	target := k.camera.ProjectionInverse.Mul4x1(mgl32.Vec4{px*2 - 1, 1 - py*2, 1, 1})
	dir := target.Vec3().Mul(1 / target[3]).Normalize()
	origin := k.camera.ViewInverse.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
	world := k.camera.ViewInverse.Mul4x1(dir.Vec4(0)).Vec3().Normalize()
	return bvh.NewRay(origin, world)
}

func (k *kernel) trace(r bvh.Ray, rng *rand.Rand) mgl32.Vec3 {
	throughput := mgl32.Vec3{1, 1, 1}
	var radiance mgl32.Vec3
	bounces := max(k.push.MaxBounces, 1)
	for range bounces {
		hit, ok := k.intersect(&r)
		if !ok {
			radiance = radiance.Add(mulVec(throughput, sky(r.Direction)))
			break
		}
		s, err := k.surface(hit, r)
		if err != nil {
			k.fail(err)
			break
		}
		radiance = radiance.Add(mulVec(throughput, s.emission))
		dir, atten := scatter(s, r.Direction, rng)
		throughput = mulVec(throughput, atten)
		if throughput.LenSqr() < 1e-8 {
			break
		}
		r = bvh.NewRay(s.point.Add(s.normal.Mul(1e-4)), dir)
	}
	return radiance
}

func (k *kernel) intersect(r *bvh.Ray) (hitRecord, bool) {
	var best hitRecord
	found := k.tlas.tree.Traverse(r, func(id uint32, wr *bvh.Ray) (bool, bool) {
		inst := &k.tlas.instances[id]
		or := wr.Transform(inst.inverse)
		h, ok := inst.blas.tris.Closest(&or)
		if !ok {
			return false, false
		}
		wr.TMax = h.T
		best = hitRecord{instance: inst, triangle: h.Triangle, t: h.T, u: h.U, v: h.V}
		return true, false
	})
	return best, found
}

func (k *kernel) surface(h hitRecord, r bvh.Ray) (surface, error) {
	idx := h.instance.customIndex
	rec, err := k.dev.resolve(k.meshes.DeviceAddress()+uint64(idx)*gpu.MeshAddressSize, gpu.MeshAddressSize)
	if err != nil {
		return surface{}, err
	}
	mesh, err := gpu.UnmarshalMeshAddress(rec)
	if err != nil {
		return surface{}, err
	}
	mrec, err := k.dev.resolve(k.scene.MaterialAddress+uint64(idx)*gpu.GPUMaterialSize, gpu.GPUMaterialSize)
	if err != nil {
		return surface{}, err
	}
	mat, err := gpu.UnmarshalGPUMaterial(mrec)
	if err != nil {
		return surface{}, err
	}

	ib, err := k.dev.resolve(mesh.Index+uint64(h.triangle)*12, 12)
	if err != nil {
		return surface{}, err
	}
	var i [3]uint64
	for c := range 3 {
		i[c] = uint64(binary.LittleEndian.Uint32(ib[c*4:]))
	}
	w := [3]float32{1 - h.u - h.v, h.u, h.v}

	p, err := k.attribute3(mesh.Position, i)
	if err != nil {
		return surface{}, err
	}
	n, err := k.attribute3(mesh.Normal, i)
	if err != nil {
		return surface{}, err
	}
	tg, err := k.attribute3(mesh.Tangent, i)
	if err != nil {
		return surface{}, err
	}
	uv, err := k.attribute2(mesh.Texcoord, i)
	if err != nil {
		return surface{}, err
	}

	geo := p[1].Sub(p[0]).Cross(p[2].Sub(p[0]))
	normal := n[0].Mul(w[0]).Add(n[1].Mul(w[1])).Add(n[2].Mul(w[2]))
	if normal.LenSqr() < 1e-12 {
		normal = geo
	}
	normal = h.instance.normal.Mul4x1(normal.Vec4(0)).Vec3().Normalize()
	tangent := h.instance.transform.Mul4x1(tg[0].Mul(w[0]).Add(tg[1].Mul(w[1])).Add(tg[2].Mul(w[2])).Vec4(0)).Vec3()
	texcoord := uv[0].Mul(w[0]).Add(uv[1].Mul(w[1])).Add(uv[2].Mul(w[2]))

	s := surface{
		point:     r.At(h.t),
		baseColor: mgl32.Vec3{mat.BaseColor[0], mat.BaseColor[1], mat.BaseColor[2]},
		emission:  mgl32.Vec3{mat.Emission[0], mat.Emission[1], mat.Emission[2]},
		roughness: mat.Params[0],
		metallic:  mat.Params[1],
		sheen:     mat.Params[2],
		clearCoat: mat.Params[3],
	}
	if c, ok := k.sample(mat.Maps[0], texcoord); ok {
		s.baseColor = mulVec(s.baseColor, srgbToLinear(c.Vec3()))
	}
	if c, ok := k.sample(mat.Maps[1], texcoord); ok {
		s.roughness *= c[1]
		s.metallic *= c[2]
	}
	if c, ok := k.sample(mat.Maps[2], texcoord); ok && tangent.LenSqr() > 1e-12 {
		t := tangent.Sub(normal.Mul(normal.Dot(tangent))).Normalize()
		b := normal.Cross(t)
		m := c.Vec3().Mul(2).Sub(mgl32.Vec3{1, 1, 1})
		if perturbed := t.Mul(m[0]).Add(b.Mul(m[1])).Add(normal.Mul(m[2])); perturbed.LenSqr() > 1e-12 {
			normal = perturbed.Normalize()
		}
	}
	if c, ok := k.sample(mat.Maps[3], texcoord); ok {
		s.emission = mulVec(s.emission, srgbToLinear(c.Vec3()))
	}

	if normal.Dot(r.Direction) > 0 {
		normal = normal.Mul(-1)
	}
	s.normal = normal
	return s, nil
}

func (k *kernel) attribute3(base uint64, idx [3]uint64) ([3]mgl32.Vec3, error) {
	var out [3]mgl32.Vec3
	for c, i := range idx {
		b, err := k.dev.resolve(base+i*12, 12)
		if err != nil {
			return out, err
		}
		out[c] = mgl32.Vec3{common.Float32At(b, 0), common.Float32At(b, 4), common.Float32At(b, 8)}
	}
	return out, nil
}

func (k *kernel) attribute2(base uint64, idx [3]uint64) ([3]mgl32.Vec2, error) {
	var out [3]mgl32.Vec2
	for c, i := range idx {
		b, err := k.dev.resolve(base+i*8, 8)
		if err != nil {
			return out, err
		}
		out[c] = mgl32.Vec2{common.Float32At(b, 0), common.Float32At(b, 4)}
	}
	return out, nil
}

func (k *kernel) sample(slot int32, uv mgl32.Vec2) (mgl32.Vec4, bool) {
	if slot < 0 || int(slot) >= len(k.textures) {
		return mgl32.Vec4{}, false
	}
	si := k.textures[slot]
	img, ok := si.Image.(*imageImpl)
	if !ok {
		return mgl32.Vec4{}, false
	}
	return sampleImage(img, si.Sampler.Descriptor(), uv), true
}

func scatter(s surface, in mgl32.Vec3, rng *rand.Rand) (mgl32.Vec3, mgl32.Vec3) {
	if s.clearCoat > 0 && rng.Float32() < s.clearCoat*0.5 {
		return reflect(in, s.normal), mgl32.Vec3{1, 1, 1}
	}
	if rng.Float32() < s.metallic {
		refl := reflect(in, s.normal)
		dir := refl.Add(randomUnitVector(rng).Mul(s.roughness))
		if dir.Dot(s.normal) <= 0 || dir.LenSqr() < 1e-12 {
			dir = refl
		}
		return dir.Normalize(), s.baseColor
	}

	dir := s.normal.Add(randomUnitVector(rng))
	if dir.LenSqr() < 1e-12 {
		dir = s.normal
	}
	dir = dir.Normalize()
	atten := s.baseColor
	if s.sheen > 0 {
		grazing := math32.Pow(1-math32.Abs(dir.Dot(s.normal)), 5)
		atten = atten.Add(mgl32.Vec3{1, 1, 1}.Mul(s.sheen * grazing))
	}
	return dir, atten
}

func reflect(v, n mgl32.Vec3) mgl32.Vec3 {
	return v.Sub(n.Mul(2 * v.Dot(n))).Normalize()
}

func randomUnitVector(rng *rand.Rand) mgl32.Vec3 {
	z := rng.Float32()*2 - 1
	a := rng.Float32() * 2 * math32.Pi
	r := math32.Sqrt(max(1-z*z, 0))
	return mgl32.Vec3{r * math32.Cos(a), r * math32.Sin(a), z}
}

func sky(dir mgl32.Vec3) mgl32.Vec3 {
	t := 0.5 * (dir.Normalize()[1] + 1)
	return mgl32.Vec3{1, 1, 1}.Mul(1 - t).Add(mgl32.Vec3{0.5, 0.7, 1}.Mul(t))
}

func mulVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
