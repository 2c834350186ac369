// Package preprocess turns uploaded images into model input tensors.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
)

var (
	ErrUnsupportedFormat = errors.New("invalid image format. Supported: JPEG, PNG, GIF")
	ErrInvalidOptions    = errors.New("invalid preprocessing options")
)

// Layout is the memory order of the input tensor.
type Layout string

const (
	// NHWC is batch, height, width, channels (TensorFlow / Keras exports).
	NHWC Layout = "nhwc"
	// NCHW is batch, channels, height, width (PyTorch exports).
	NCHW Layout = "nchw"
)

// Interpolation selects the resampling filter used when resizing.
type Interpolation string

const (
	Nearest  Interpolation = "nearest"
	Bilinear Interpolation = "bilinear"
	Lanczos3 Interpolation = "lanczos3"
)

// Options describe the tensor the model expects.
type Options struct {
	Size          int
	Layout        Layout
	Interpolation Interpolation
}

func (o Options) filter() (resize.InterpolationFunction, error) {
	switch o.Interpolation {
	case Nearest, "":
		return resize.NearestNeighbor, nil
	case Bilinear:
		return resize.Bilinear, nil
	case Lanczos3:
		return resize.Lanczos3, nil
	default:
		return 0, fmt.Errorf("%w: unknown interpolation %q", ErrInvalidOptions, o.Interpolation)
	}
}

// Decode reads a JPEG, PNG or GIF image and reports its format name.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return img, format, nil
}

// Tensor resizes img to Size×Size, scales each RGB channel into [0, 1] and
// flattens the result in the requested layout with an implied batch of one.
// Alpha is discarded after un-premultiplying.
func Tensor(img image.Image, opts Options) ([]float32, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidOptions, opts.Size)
	}
	if opts.Layout != NHWC && opts.Layout != NCHW {
		return nil, fmt.Errorf("%w: unknown layout %q", ErrInvalidOptions, opts.Layout)
	}
	filter, err := opts.filter()
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedFormat)
	}

	size := uint(opts.Size)
	resized := resize.Resize(size, size, img, filter)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			r := float32(c.R) / 255.0
			g := float32(c.G) / 255.0
			b := float32(c.B) / 255.0

			pixel := y*width + x
			if opts.Layout == NCHW {
				data[pixel] = r
				data[plane+pixel] = g
				data[2*plane+pixel] = b
			} else {
				data[3*pixel] = r
				data[3*pixel+1] = g
				data[3*pixel+2] = b
			}
		}
	}

	return data, nil
}
