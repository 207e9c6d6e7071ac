package gpu

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/draw"
)

// ErrEmptyImage is returned when uploading an image with no pixels.
var ErrEmptyImage = errors.New("gpu: image has no pixels")

// Texture2D is a sampled RGBA8 texture owned by the pipeline, such as the
// neutral fallback or an uploaded random mask.
type Texture2D struct {
	Label  string
	Width  uint32
	Height uint32

	tex  hal.Texture
	view hal.TextureView
}

// View returns the sampling view.
func (t *Texture2D) View() hal.TextureView { return t.view }

// Destroy releases the texture. Safe to call more than once.
func (t *Texture2D) Destroy(device hal.Device) {
	if t.view != nil {
		device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.tex != nil {
		device.DestroyTexture(t.tex)
		t.tex = nil
	}
}

// NewNeutralTexture creates the 1x1 opaque white texture substituted for
// missing noise samples and random masks.
func NewNeutralTexture(device hal.Device, queue hal.Queue) (*Texture2D, error) {
	white := image.NewRGBA(image.Rect(0, 0, 1, 1))
	copy(white.Pix, []byte{0xFF, 0xFF, 0xFF, 0xFF})
	return uploadRGBA(device, queue, "neutral_white", white)
}

// UploadImage converts img to RGBA8 and uploads it as a new texture.
func UploadImage(device hal.Device, queue hal.Queue, label string, img image.Image) (*Texture2D, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%s: %w", label, ErrEmptyImage)
	}
	return uploadRGBA(device, queue, label, toRGBA(img))
}

// toRGBA returns img as a tightly packed *image.RGBA anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func uploadRGBA(device hal.Device, queue hal.Queue, label string, img *image.RGBA) (*Texture2D, error) {
	w := uint32(img.Bounds().Dx()) //nolint:gosec // image bounds are non-negative
	h := uint32(img.Bounds().Dy()) //nolint:gosec // image bounds are non-negative
	size := hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s texture: %w", label, err)
	}
	t := &Texture2D{Label: label, Width: w, Height: h, tex: tex}

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		t.Destroy(device)
		return nil, fmt.Errorf("create %s view: %w", label, err)
	}
	t.view = view

	err = queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex, Aspect: gputypes.TextureAspectAll},
		img.Pix,
		&hal.ImageDataLayout{BytesPerRow: 4 * w, RowsPerImage: h},
		&size,
	)
	if err != nil {
		t.Destroy(device)
		return nil, fmt.Errorf("upload %s: %w", label, err)
	}
	return t, nil
}
