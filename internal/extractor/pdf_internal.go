package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// internalPDF parses PDFs in-process with pdfcpu. It only understands
// literal-string text operators, which covers most generated documents.
type internalPDF struct{}

// NewInternalPDF returns the pdfcpu-backed PDFTools
func NewInternalPDF() PDFTools {
	// keep pdfcpu from writing a config directory into $HOME
	disableConfigDir.Do(api.DisableConfigDir)
	return internalPDF{}
}

func (internalPDF) readContext(path string) (pdfCtx *model.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	pdfCtx, err = api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return pdfCtx, nil
}

func (p internalPDF) PageCount(ctx context.Context, path string) (int, error) {
	pdfCtx, err := p.readContext(path)
	if err != nil {
		return 0, err
	}
	return pdfCtx.PageCount, nil
}

func (p internalPDF) PageText(ctx context.Context, path string, pages []int) (text string, err error) {
	pdfCtx, err := p.readContext(path)
	if err != nil {
		return "", err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	var parts []string
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if page < 1 || page > pdfCtx.PageCount {
			continue
		}
		r, err := pdfcpu.ExtractPageContent(pdfCtx, page)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil || len(data) == 0 {
			continue
		}
		if t := textFromContentStream(data); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// pdfStringRe matches PDF string literals in parentheses
var pdfStringRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// textFromContentStream collects the operands of the Tj, TJ and ' text
// operators of a page content stream
func textFromContentStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteByte('\n')
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case bytes.Equal(line, []byte("T*")), bytes.Equal(line, []byte("ET")):
			sb.WriteByte('\n')
		}
	}

	return cleanPDFText(sb.String())
}

// decodePDFString resolves the escape sequences of a PDF literal string
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			// octal escape, up to three digits
			val := int(raw[i] - '0')
			for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// cleanPDFText collapses whitespace runs but keeps line breaks
func cleanPDFText(text string) string {
	var sb strings.Builder
	pending := rune(0)
	for _, r := range text {
		switch {
		case r == '\n':
			pending = '\n'
		case unicode.IsSpace(r):
			if pending == 0 {
				pending = ' '
			}
		case unicode.IsPrint(r):
			if pending != 0 && sb.Len() > 0 {
				sb.WriteRune(pending)
			}
			pending = 0
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}
