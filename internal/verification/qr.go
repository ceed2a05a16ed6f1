package verification

import (
	"github.com/skip2/go-qrcode"

	dErrors "custody/pkg/domain-errors"
)

// DefaultQRSize is the PNG edge length in pixels.
const DefaultQRSize = 320

// RenderQR projects an encoded token into a PNG QR code. Output is a pure
// function of token and size.
func RenderQR(token string, size int) ([]byte, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeFormat, "empty token")
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(token, qrcode.Medium, size)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeFormat, "token too large for a QR code")
	}
	return png, nil
}
