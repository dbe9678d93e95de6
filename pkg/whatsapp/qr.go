package whatsapp

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/mdp/qrterminal/v3"
	qrCode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// QRPNG renders a QR payload as a PNG image.
func QRPNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = qrImageSize
	}
	return qrCode.Encode(payload, qrCode.Medium, size)
}

// QRDataURL renders a QR payload as an inline data URL for <img src>.
func QRDataURL(payload string) (string, error) {
	png, err := QRPNG(payload, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// TerminalQR returns an OnQR callback that prints every QR to w.
func TerminalQR(w io.Writer) func(string, string) {
	return func(dir string, payload string) {
		fmt.Fprintf(w, "Scan to pair session %s:\n", dir)
		qrterminal.GenerateHalfBlock(payload, qrterminal.L, w)
	}
}
