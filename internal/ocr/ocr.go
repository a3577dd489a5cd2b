package ocr

import "context"

// TextExtractor pulls the raw text out of a stored document, given a URL
// the OCR provider can fetch it from.
type TextExtractor interface {
	ExtractText(ctx context.Context, fileURL string) (string, error)
}
