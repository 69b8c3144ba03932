// Package sniff identifies a file's real format from its leading bytes,
// independent of file name or declared content type.
package sniff

import (
	"bytes"
	"io"
	"os"
)

// Canonical MIME types returned by Detect
const (
	PNG        = "image/png"
	JPEG       = "image/jpeg"
	WebP       = "image/webp"
	TIFF       = "image/tiff"
	PDF        = "application/pdf"
	PSD        = "image/vnd.adobe.photoshop"
	SVG        = "image/svg+xml"
	PostScript = "application/postscript"
	Unknown    = "application/octet-stream"
)

// PrefixLen is the number of leading bytes inspected
const PrefixLen = 16

// Signature is a byte pattern at a fixed offset
type Signature struct {
	MIME   string
	Offset int
	Magic  []byte
}

// signatures is checked in order; first match wins
var signatures = []Signature{
	{MIME: PNG, Offset: 0, Magic: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{MIME: JPEG, Offset: 0, Magic: []byte{0xFF, 0xD8, 0xFF}},
	// WEBP fourcc sits after the RIFF size field
	{MIME: WebP, Offset: 8, Magic: []byte("WEBP")},
	// II*\0 and MM\0* both map to TIFF
	{MIME: TIFF, Offset: 0, Magic: []byte{0x49, 0x49, 0x2A, 0x00}},
	{MIME: TIFF, Offset: 0, Magic: []byte{0x4D, 0x4D, 0x00, 0x2A}},
	{MIME: PDF, Offset: 0, Magic: []byte("%PDF")},
	{MIME: PSD, Offset: 0, Magic: []byte("8BPS")},
	{MIME: SVG, Offset: 0, Magic: []byte("<?xml")},
}

// Detect reads the first PrefixLen bytes of the file at path and classifies them.
// Unreadable, empty and truncated files yield Unknown.
func Detect(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return Unknown
	}
	defer f.Close()

	buf := make([]byte, PrefixLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return Unknown
	}
	return DetectBytes(buf[:n])
}

// DetectBytes classifies a byte prefix. Only the first PrefixLen bytes matter.
func DetectBytes(data []byte) string {
	if len(data) > PrefixLen {
		data = data[:PrefixLen]
	}
	if len(data) == 0 {
		return Unknown
	}

	for _, sig := range signatures {
		end := sig.Offset + len(sig.Magic)
		if end > len(data) {
			continue
		}
		if sig.MIME == WebP && !bytes.HasPrefix(data, []byte("RIFF")) {
			continue
		}
		if bytes.Equal(data[sig.Offset:end], sig.Magic) {
			return sig.MIME
		}
	}

	return detectText(data)
}

// detectText applies the textual fallbacks: SVG root or XML prolog, then PostScript
func detectText(data []byte) string {
	if len(data) >= 4 {
		head := string(data[:4])
		if head == "<svg" || head == "<?xm" {
			return SVG
		}
	}
	if len(data) >= 2 && string(data[:2]) == "%!" {
		return PostScript
	}
	return Unknown
}
