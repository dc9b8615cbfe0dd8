package fetching

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// Kind is the resolved type of a fetched document
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

var sniffedImages = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// classify resolves a document's kind from its bytes. The declared
// Content-Type is only trusted for HEIC/HEIF, which has no stable signature
// in every encoder's output.
func classify(data []byte, declared string) (Kind, string, error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("empty document")
	}

	// Only a BOM or whitespace may precede the header
	head := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), " \t\r\n\f\x00")
	if bytes.HasPrefix(head, []byte("%PDF-")) {
		return KindPDF, "application/pdf", nil
	}
	if brand, ok := heicBrand(data); ok {
		if brand == "mif1" || brand == "msf1" || brand == "heif" {
			return KindImage, "image/heif", nil
		}
		return KindImage, "image/heic", nil
	}

	sniffed := http.DetectContentType(data)
	if sniffedImages[sniffed] {
		return KindImage, sniffed, nil
	}

	mediaType, _, _ := mime.ParseMediaType(declared)
	mediaType = strings.ToLower(mediaType)
	if mediaType == "image/heic" || mediaType == "image/heif" {
		return KindImage, mediaType, nil
	}

	if mediaType == "" {
		mediaType = sniffed
	}
	return "", "", fmt.Errorf("unsupported content type %s", mediaType)
}

// heicBrand checks for an ftyp box with a HEIC-related brand at offset 4
func heicBrand(data []byte) (string, bool) {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return "", false
	}
	brand := string(data[8:12])
	switch brand {
	case "heic", "heix", "hevc", "hevx", "heif", "mif1", "msf1":
		return brand, true
	}
	return "", false
}
