package tui

import (
	"strings"

	"github.com/mdp/qrterminal/v3"
)

// RenderQR draws link as a half-block QR code.
func RenderQR(link string) string {
	var b strings.Builder
	qrterminal.GenerateWithConfig(link, qrterminal.Config{
		Level:          qrterminal.L,
		Writer:         &b,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
		QuietZone:      1,
	})
	return b.String()
}
