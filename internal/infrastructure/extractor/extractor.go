// Package extractor turns stored source files into plain text by file type.
package extractor

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/spreadsheet"
)

type Decoder func(raw []byte) (string, error)

// Extractor implements ports.TextExtractor over object storage.
type Extractor struct {
	storage  ports.ObjectStorage
	decoders map[string]Decoder
	maxBytes int64
}

func New(storage ports.ObjectStorage, maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &Extractor{
		storage:  storage,
		maxBytes: maxBytes,
		decoders: map[string]Decoder{
			"txt":      plaintext.Decode,
			"md":       plaintext.Decode,
			"markdown": plaintext.Decode,
			"html":     plaintext.DecodeHTML,
			"htm":      plaintext.DecodeHTML,
			"pdf":      pdf.Decode,
			"xlsx":     spreadsheet.DecodeXLSX,
			"csv":      spreadsheet.DecodeCSV,
		},
	}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if int64(len(raw)) > e.maxBytes {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("%s exceeds %d bytes", doc.Filename, e.maxBytes))
	}

	decode, ok := e.decoders[doc.FileType]
	if !ok {
		// Unknown extensions are accepted when they are readable text.
		if !utf8.Valid(raw) {
			return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("unsupported file type %q", doc.FileType))
		}
		decode = plaintext.Decode
	}

	text, err := decode(raw)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("%s: %w", doc.Filename, err))
	}
	return text, nil
}
