// Package qr renders payment URLs as QR code PNG images.
package qr

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultSize  = 256
	DefaultLevel = qrcode.Medium
)

type Renderer struct {
	size  int
	level qrcode.RecoveryLevel
}

func NewRenderer() *Renderer {
	return &Renderer{size: DefaultSize, level: DefaultLevel}
}

// Render encodes content as a PNG QR code with a quiet zone. The output is
// deterministic for a given content.
func (r *Renderer) Render(content string) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("qr content is empty")
	}

	code, err := qrcode.New(content, r.level)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	code.DisableBorder = false

	png, err := code.PNG(r.size)
	if err != nil {
		return nil, fmt.Errorf("render qr png: %w", err)
	}
	return png, nil
}
