package condrv

import (
	"unicode/utf16"
	"unicode/utf8"

	"github.com/danielgatis/go-ansicode"
)

// VTDecoder adapts go-ansicode's byte-oriented Decoder to condrv's UTF-16
// pipeline. WriteConsole payloads arrive as UTF-16 units (already converted
// from the handle's active code page by ByteCodec); go-ansicode's decoder
// consumes UTF-8 bytes, so WriteUTF16 re-encodes before handing bytes to
// it. One VTDecoder is created per OutputHandle and reused across
// WriteConsole calls, so a multi-byte escape sequence split across two
// WriteConsole calls still decodes correctly.
type VTDecoder struct {
	decoder *ansicode.Decoder
}

// NewVTDecoder wraps h in a fresh go-ansicode decoder.
func NewVTDecoder(h *ConsoleHandler) *VTDecoder {
	return &VTDecoder{decoder: ansicode.NewDecoder(h)}
}

// WriteUTF16 feeds units through the underlying VT state machine.
func (d *VTDecoder) WriteUTF16(units []uint16) {
	if len(units) == 0 {
		return
	}
	runes := utf16.Decode(units)
	buf := make([]byte, 0, len(runes)*2)
	tmp := make([]byte, utf8.UTFMax)
	for _, r := range runes {
		n := utf8.EncodeRune(tmp, r)
		buf = append(buf, tmp[:n]...)
	}
	d.decoder.Write(buf)
}
