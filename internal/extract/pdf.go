// Package extract turns uploaded documents into plain text for prompting.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

var (
	ErrUnsupportedType = errors.New("extract: unsupported document type")
	ErrNoText          = errors.New("extract: document contains no extractable text")
)

// Func extracts plain text from a document's raw bytes.
type Func func(ctx context.Context, data []byte) (string, error)

// PDF extracts the text of every page of a PDF document.
func PDF(ctx context.Context, data []byte) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if mime := mimetype.Detect(data); !mime.Is("application/pdf") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mime.String())
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract: malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract: open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract: read pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("extract: read pdf text: %w", err)
	}

	text = strings.TrimSpace(string(raw))
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
