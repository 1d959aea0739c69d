package auth

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// ChallengeImageDataURL renders a challenge code as a scannable QR image,
// returned as a PNG data URL for embedding in a client response.
func ChallengeImageDataURL(code string) (string, error) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create challenge image: %w", err)
	}

	png, err := qr.PNG(200)
	if err != nil {
		return "", fmt.Errorf("failed to encode challenge image: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// EnrollmentImageDataURL renders a TOTP provisioning URL as a QR data URL.
func EnrollmentImageDataURL(provisioningURL string) (string, error) {
	qr, err := qrcode.New(provisioningURL, qrcode.Highest)
	if err != nil {
		return "", fmt.Errorf("failed to create enrollment QR code: %w", err)
	}

	png, err := qr.PNG(200)
	if err != nil {
		return "", fmt.Errorf("failed to encode enrollment QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
