// Package imaging turns uploaded radiographs into model input tensors.
package imaging

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/xray-api/internal/model"
)

// MaxPixels bounds the declared size of an image accepted for decoding.
const MaxPixels = 89_478_485

// Decode converts encoded image bytes into a [1,224,224,3] RGB tensor with
// values in [0,1].
func Decode(data []byte) (*model.Tensor, error) {
	return DecodeReader(bytes.NewReader(data))
}

// DecodeReader is Decode for a stream.
func DecodeReader(r io.Reader) (*model.Tensor, error) {
	var head bytes.Buffer
	cfg, format, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, &model.Error{Kind: model.ErrDecode, Err: err}
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > MaxPixels {
		return nil, model.Errorf(model.ErrDecode, "%s image is %dx%d, exceeds %d pixels",
			format, cfg.Width, cfg.Height, MaxPixels)
	}

	img, _, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, &model.Error{Kind: model.ErrDecode, Err: err}
	}
	if img.Bounds().Empty() {
		return nil, model.Errorf(model.ErrDecode, "image has no pixels")
	}

	resized := resize.Resize(model.ImageSize, model.ImageSize, toRGB(img), resize.Bicubic)
	return toTensor(resized), nil
}

// toRGB drops alpha and expands gray so every pixel is opaque RGB.
func toRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				v := src.GrayAt(b.Min.X+x, b.Min.Y+y).Y
				i := dst.PixOffset(x, y)
				dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = v, v, v, 0xff
			}
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				i := dst.PixOffset(x, y)
				dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = c.R, c.G, c.B, 0xff
			}
		}
	}
	return dst
}

func toTensor(img image.Image) *model.Tensor {
	b := img.Bounds()
	data := make([]float32, model.ImageSize*model.ImageSize*model.Channels)
	for y := 0; y < model.ImageSize; y++ {
		for x := 0; x < model.ImageSize; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := (y*model.ImageSize + x) * model.Channels
			data[i] = float32(float64(c.R) / 255.0)
			data[i+1] = float32(float64(c.G) / 255.0)
			data[i+2] = float32(float64(c.B) / 255.0)
		}
	}
	return &model.Tensor{
		Shape: append([]int64(nil), model.InputShape...),
		Data:  data,
	}
}
