package pdf

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ErrInvalidPDF is returned when a provider hands back bytes that are not a readable PDF.
var ErrInvalidPDF = errors.New("invalid pdf")

// Validate checks that data opens as a PDF with at least one page.
func Validate(data []byte) (err error) {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty document", ErrInvalidPDF)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return fmt.Errorf("%w: missing header", ErrInvalidPDF)
	}

	// The reader panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if reader.NumPage() == 0 {
		return fmt.Errorf("%w: no pages", ErrInvalidPDF)
	}

	return nil
}
