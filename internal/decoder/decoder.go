package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNoCode is returned when a frame holds no readable code. It is the
// steady-state outcome for most frames and is not a failure.
var ErrNoCode = errors.New("no code in frame")

// Decoder extracts text from a single frame.
type Decoder interface {
	DecodeImage(img image.Image) (string, error)
	DecodeJPEG(frame []byte) (string, error)
}

// Options controls the preprocessing applied before decoding.
type Options struct {
	// BoxWidth/BoxHeight crop the centre of the frame to the scan box.
	// Zero uses the whole frame.
	BoxWidth  int
	BoxHeight int
	// MaxEdge downscales the cropped region so its longest side is at
	// most MaxEdge pixels. Zero disables scaling.
	MaxEdge   int
	TryHarder bool
}

// QRDecoder decodes QR codes with gozxing.
type QRDecoder struct {
	opts  Options
	hints map[gozxing.DecodeHintType]interface{}
}

// NewQRDecoder creates a QR decoder.
func NewQRDecoder(opts Options) *QRDecoder {
	hints := map[gozxing.DecodeHintType]interface{}{}
	if opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return &QRDecoder{opts: opts, hints: hints}
}

// DecodeJPEG decodes a JPEG-encoded frame.
func (d *QRDecoder) DecodeJPEG(frame []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(frame))
	if err != nil {
		return "", fmt.Errorf("failed to decode frame: %w", err)
	}
	return d.DecodeImage(img)
}

// DecodeImage decodes the scan box of img.
func (d *QRDecoder) DecodeImage(img image.Image) (string, error) {
	region := d.prepare(img)

	bmp, err := gozxing.NewBinaryBitmapFromImage(region)
	if err != nil {
		return "", fmt.Errorf("failed to binarize frame: %w", err)
	}

	// QRCodeReader keeps no state between calls that matters here, but
	// a fresh reader keeps DecodeImage safe for concurrent callers.
	result, err := qrcode.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		var readerErr gozxing.ReaderException
		if errors.As(err, &readerErr) {
			return "", ErrNoCode
		}
		return "", fmt.Errorf("failed to decode qr code: %w", err)
	}

	return result.GetText(), nil
}

func (d *QRDecoder) prepare(img image.Image) image.Image {
	bounds := img.Bounds()
	out := img

	w, h := d.opts.BoxWidth, d.opts.BoxHeight
	if w > 0 && h > 0 && (w < bounds.Dx() || h < bounds.Dy()) {
		out = imaging.CropCenter(out, min(w, bounds.Dx()), min(h, bounds.Dy()))
	}

	if edge := d.opts.MaxEdge; edge > 0 {
		b := out.Bounds()
		if b.Dx() > edge || b.Dy() > edge {
			out = imaging.Fit(out, edge, edge, imaging.Box)
		}
	}

	return imaging.Grayscale(out)
}

var _ Decoder = (*QRDecoder)(nil)
