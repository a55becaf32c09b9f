package software

import (
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

func wrap(c float32, mode gpu.AddressMode) float32 {
	switch mode {
	case gpu.AddressClampToEdge:
		return min(max(c, 0), 1)
	case gpu.AddressMirrorRepeat:
		f := math32.Mod(math32.Abs(c), 2)
		if f > 1 {
			return 2 - f
		}
		return f
	default:
		return c - math32.Floor(c)
	}
}

func texelIndex(i int, n uint32, mode gpu.AddressMode) uint32 {
	if i >= 0 && i < int(n) {
		return uint32(i)
	}
	if mode == gpu.AddressRepeat {
		return uint32(((i % int(n)) + int(n)) % int(n))
	}
	return uint32(min(max(i, 0), int(n)-1))
}

// sampleImage reads img at uv with the sampler's filtering and addressing.
func sampleImage(img *imageImpl, desc gpu.SamplerDescriptor, uv mgl32.Vec2) mgl32.Vec4 {
	u := wrap(uv[0], desc.AddressModeU) * float32(img.width)
	v := wrap(uv[1], desc.AddressModeV) * float32(img.height)

	if desc.MagFilter == gpu.FilterNearest {
		x := texelIndex(int(math32.Floor(u)), img.width, desc.AddressModeU)
		y := texelIndex(int(math32.Floor(v)), img.height, desc.AddressModeV)
		return img.texel(x, y)
	}

	u -= 0.5
	v -= 0.5
	x0f, y0f := math32.Floor(u), math32.Floor(v)
	fx, fy := u-x0f, v-y0f
	x0 := texelIndex(int(x0f), img.width, desc.AddressModeU)
	x1 := texelIndex(int(x0f)+1, img.width, desc.AddressModeU)
	y0 := texelIndex(int(y0f), img.height, desc.AddressModeV)
	y1 := texelIndex(int(y0f)+1, img.height, desc.AddressModeV)

	top := img.texel(x0, y0).Mul(1 - fx).Add(img.texel(x1, y0).Mul(fx))
	bottom := img.texel(x0, y1).Mul(1 - fx).Add(img.texel(x1, y1).Mul(fx))
	return top.Mul(1 - fy).Add(bottom.Mul(fy))
}

func srgbToLinear(c mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{math32.Pow(c[0], 2.2), math32.Pow(c[1], 2.2), math32.Pow(c[2], 2.2)}
}
