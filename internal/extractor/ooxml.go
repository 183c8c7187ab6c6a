package extractor

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// maxXMLPartBytes bounds how much of one decompressed XML part is read
const maxXMLPartBytes = 256 << 20

var errBudget = errors.New("text budget reached")

func openPart(r *zip.ReadCloser, name string) (io.ReadCloser, error) {
	for _, f := range r.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", name, err)
			}
			return struct {
				io.Reader
				io.Closer
			}{io.LimitReader(rc, maxXMLPartBytes), rc}, nil
		}
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

// readDocx returns the paragraph text of word/document.xml, one paragraph
// per line. Reading stops once budget characters were collected.
func readDocx(path string, budget int) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}
	defer func() { _ = r.Close() }()

	rc, err := openPart(r, "word/document.xml")
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	var out strings.Builder
	var para strings.Builder
	inText := false

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if out.Len() > 0 {
				// keep what was read from a damaged document
				break
			}
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				if text == "" {
					continue
				}
				if out.Len() > 0 {
					out.WriteByte('\n')
				}
				out.WriteString(text)
				if budget > 0 && out.Len() >= budget*4 {
					return out.String(), nil
				}
			}
		}
	}
	return out.String(), nil
}

// readXlsx returns the cell values of every worksheet, one row per line
// with tab-separated cells. Shared strings are resolved. At most maxCells
// non-empty cells are read.
func readXlsx(path string, maxCells, budget int) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}
	defer func() { _ = r.Close() }()

	shared, err := readSharedStrings(r)
	if err != nil {
		return "", err
	}

	sheets := worksheetNames(r)
	if len(sheets) == 0 {
		return "", fmt.Errorf("no worksheets in archive")
	}

	w := &sheetWriter{shared: shared, maxCells: maxCells, budget: budget}
	for _, name := range sheets {
		if err := w.readSheet(r, name); err != nil {
			if errors.Is(err, errBudget) {
				break
			}
			return "", err
		}
	}
	return w.out.String(), nil
}

func readSharedStrings(r *zip.ReadCloser) ([]string, error) {
	rc, err := openPart(r, "xl/sharedStrings.xml")
	if err != nil {
		// workbooks with only numbers have no shared string table
		return nil, nil
	}
	defer func() { _ = rc.Close() }()

	var shared []string
	var cur strings.Builder
	inSI, inText := false, false

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse sharedStrings.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				inSI = true
				cur.Reset()
			case "t":
				inText = inSI
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "si":
				inSI = false
				shared = append(shared, cur.String())
			}
		}
	}
	return shared, nil
}

// worksheetNames lists xl/worksheets/sheetN.xml in numeric order
func worksheetNames(r *zip.ReadCloser) []string {
	type sheet struct {
		name string
		n    int
	}
	var sheets []sheet
	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, "xl/worksheets/sheet") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(f.Name, "xl/worksheets/sheet"), ".xml")
		n, err := strconv.Atoi(num)
		if err != nil {
			n = 1 << 30
		}
		sheets = append(sheets, sheet{name: f.Name, n: n})
	}
	sort.Slice(sheets, func(i, j int) bool {
		if sheets[i].n != sheets[j].n {
			return sheets[i].n < sheets[j].n
		}
		return sheets[i].name < sheets[j].name
	})
	names := make([]string, len(sheets))
	for i, s := range sheets {
		names[i] = s.name
	}
	return names
}

type sheetWriter struct {
	shared   []string
	maxCells int
	budget   int
	cells    int
	out      strings.Builder
}

func (w *sheetWriter) readSheet(r *zip.ReadCloser, name string) error {
	rc, err := openPart(r, name)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	var row []string
	var val strings.Builder
	cellType := ""
	inValue := false

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "row":
				row = row[:0]
			case "c":
				cellType = ""
				val.Reset()
				for _, a := range t.Attr {
					if a.Name.Local == "t" {
						cellType = a.Value
					}
				}
			case "v", "t":
				inValue = true
			}
		case xml.CharData:
			if inValue {
				val.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "v", "t":
				inValue = false
			case "c":
				if v := w.cellValue(cellType, val.String()); v != "" {
					row = append(row, v)
					w.cells++
				}
			case "row":
				w.writeRow(row)
				if w.full() {
					return errBudget
				}
			}
		}
	}
}

func (w *sheetWriter) cellValue(cellType, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	switch cellType {
	case "s":
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 || idx >= len(w.shared) {
			return ""
		}
		return strings.TrimSpace(w.shared[idx])
	case "b":
		if raw == "1" {
			return "TRUE"
		}
		return "FALSE"
	default:
		return raw
	}
}

func (w *sheetWriter) writeRow(row []string) {
	if len(row) == 0 {
		return
	}
	if w.out.Len() > 0 {
		w.out.WriteByte('\n')
	}
	w.out.WriteString(strings.Join(row, "\t"))
}

func (w *sheetWriter) full() bool {
	if w.maxCells > 0 && w.cells >= w.maxCells {
		return true
	}
	return w.budget > 0 && w.out.Len() >= w.budget*4
}
