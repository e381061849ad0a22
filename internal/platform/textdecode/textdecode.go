// Package textdecode turns uploaded RIPS blobs into UTF-8 text. Exports from
// billing systems arrive as UTF-8, UTF-16 with a byte order mark, or legacy
// Windows-1252 ("ANSI").
package textdecode

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Encoding names reported by Detect.
const (
	UTF8        = "utf-8"
	UTF16       = "utf-16"
	Windows1252 = "windows-1252"
)

// Detect guesses the encoding of b.
func Detect(b []byte) string {
	switch {
	case bytes.HasPrefix(b, bomUTF8):
		return UTF8
	case bytes.HasPrefix(b, bomUTF16LE), bytes.HasPrefix(b, bomUTF16BE):
		return UTF16
	case utf8.Valid(b):
		return UTF8
	default:
		return Windows1252
	}
}

// Decode returns b as UTF-8 text with any byte order mark removed.
func Decode(b []byte) (string, error) {
	var dec *encoding.Decoder
	switch Detect(b) {
	case UTF8:
		return string(bytes.TrimPrefix(b, bomUTF8)), nil
	case UTF16:
		dec = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	default:
		dec = charmap.Windows1252.NewDecoder()
	}
	out, _, err := transform.Bytes(dec, b)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return string(out), nil
}
