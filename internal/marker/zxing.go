package marker

import (
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/multi"
	"github.com/makiuchi-d/gozxing/multi/qrcode"

	"github.com/kestrel-robotics/gatekeeper/internal/geom"
)

// ZXingDecoder decodes QR symbols with the pure-Go zxing port. Only the QR
// symbology is attempted; other barcode families the library knows about are
// never tried.
type ZXingDecoder struct {
	reader multi.MultipleBarcodeReader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewZXingDecoder returns a ready-to-use QR decoder.
func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{
		reader: qrcode.NewQRCodeMultiReader(),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_POSSIBLE_FORMATS: []gozxing.BarcodeFormat{
				gozxing.BarcodeFormat_QR_CODE,
			},
		},
	}
}

// Decode implements Decoder. A frame with no QR code returns an empty slice:
// the library's NotFoundException is an expected outcome, not an error worth
// reporting upstream.
func (z *ZXingDecoder) Decode(img *image.Gray) ([]Decoded, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, err
	}

	results, err := z.reader.DecodeMultiple(bmp, z.hints)
	if err != nil {
		if _, notFound := err.(gozxing.NotFoundException); notFound {
			return nil, nil
		}
		return nil, err
	}

	decoded := make([]Decoded, 0, len(results))
	for _, r := range results {
		decoded = append(decoded, Decoded{
			Payload: r.GetText(),
			Box:     boxFromPoints(r.GetResultPoints()),
		})
	}
	return decoded, nil
}

// boxFromPoints bounds the reported finder-pattern points. The points sit at
// the pattern centers rather than the symbol corners, so the rect is slightly
// tight; callers wanting a looser box can grow it with Box.WithPadding.
func boxFromPoints(points []gozxing.ResultPoint) geom.Box {
	if len(points) == 0 {
		return geom.Box{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxX = math.Max(maxX, p.GetX())
		maxY = math.Max(maxY, p.GetY())
	}
	return geom.Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
