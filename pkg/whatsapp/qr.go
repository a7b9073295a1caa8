package whatsapp

import (
	"encoding/base64"
	"fmt"

	"wabridge/internal/constants"

	"github.com/skip2/go-qrcode"
)

// QRDataURL renders a pairing code as a PNG data URL suitable for direct
// embedding in an <img> tag.
func QRDataURL(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, constants.DefaultQRCodeSizePx)
	if err != nil {
		return "", fmt.Errorf("failed to render QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
