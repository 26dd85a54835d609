package render

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSizePixels = 256

// VerificationQR encodes the public verification URL for a certificate into a
// scannable PNG image.
func VerificationQR(verifyURL string) ([]byte, error) {
	if verifyURL == "" {
		return nil, fmt.Errorf("empty verification url")
	}
	png, err := qrcode.Encode(verifyURL, qrcode.Medium, qrSizePixels)
	if err != nil {
		return nil, fmt.Errorf("encode verification qr: %w", err)
	}
	return png, nil
}
