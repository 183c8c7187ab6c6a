package extractor

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkangelpraha/dropindex/internal/config"
	"github.com/darkangelpraha/dropindex/pkg/types"
)

type fakePDF struct {
	pages    []string
	countErr error
	textErr  error
	asked    []int
}

func (f *fakePDF) PageCount(ctx context.Context, path string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.pages), nil
}

func (f *fakePDF) PageText(ctx context.Context, path string, pages []int) (string, error) {
	if f.textErr != nil {
		return "", f.textErr
	}
	f.asked = append(f.asked, pages...)
	var parts []string
	for _, p := range pages {
		parts = append(parts, f.pages[p-1])
	}
	return strings.Join(parts, "\n"), nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SidecarDir = filepath.Join(t.TempDir(), "sidecars")
	cfg.ChunkSize = 100
	cfg.ChunkOverlap = 10
	cfg.MaxChunksPerFile = 4
	cfg.MaxChars = 300
	cfg.MaxBytes = 1000
	cfg.PDFMinChars = 20
	cfg.PDFMaxPages = 3
	return cfg
}

func writeFile(t *testing.T, dir, name, content string) (string, os.FileInfo) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return path, info
}

func TestExtractSmallText(t *testing.T) {
	e := New(testConfig(t), nil, WithPDFTools(&fakePDF{}))
	path, info := writeFile(t, t.TempDir(), "notes.md", "hello world")

	res := e.Extract(context.Background(), path, info)
	assert.Equal(t, Extracted, res.Outcome)
	assert.Equal(t, []string{"hello world"}, res.Chunks)
	assert.Equal(t, types.ProvenanceText, res.Provenance)
	assert.False(t, res.Truncated)
}

func TestExtractTextBudgetAndCap(t *testing.T) {
	cfg := testConfig(t)
	e := New(cfg, nil)
	// budget = max(300, 100*4) = 400 chars, so at most 4 chunks
	path, info := writeFile(t, t.TempDir(), "long.txt", strings.Repeat("abcdefghij", 90))

	res := e.Extract(context.Background(), path, info)
	assert.Equal(t, Extracted, res.Outcome)
	assert.Len(t, res.Chunks, 4)
	assert.True(t, res.Truncated)
	for _, c := range res.Chunks {
		assert.LessOrEqual(t, len([]rune(c)), 100)
	}
}

func TestExtractEmptyTextFallsBackToName(t *testing.T) {
	e := New(testConfig(t), nil)
	path, info := writeFile(t, t.TempDir(), "empty.txt", "   \n")

	res := e.Extract(context.Background(), path, info)
	assert.Equal(t, Extracted, res.Outcome)
	assert.Equal(t, types.ProvenanceFilename, res.Provenance)
	require.Len(t, res.Chunks, 1)
	assert.Contains(t, res.Chunks[0], "empty.txt")
}

func TestExtractLargeTextSamplesWindows(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxBytes = 64 * 1024
	cfg.SampleWindows = 3
	cfg.ChunkSize = 1000
	cfg.ChunkOverlap = 0
	cfg.MaxChunksPerFile = 6
	e := New(cfg, nil)

	// three distinct regions, each larger than one window
	region := 100 * 1024
	content := strings.Repeat("A", region) + strings.Repeat("B", region) + strings.Repeat("C", region)
	path, info := writeFile(t, t.TempDir(), "huge.log", content)

	res := e.Extract(context.Background(), path, info)
	assert.Equal(t, Extracted, res.Outcome)
	assert.Equal(t, types.ProvenanceTextSampled, res.Provenance)
	require.Len(t, res.Chunks, 6)
	assert.True(t, res.Truncated)

	// round-robin: first chunk of each window comes first
	assert.True(t, strings.HasPrefix(res.Chunks[0], "A"))
	assert.True(t, strings.HasPrefix(res.Chunks[1], "B"))
	assert.True(t, strings.HasPrefix(res.Chunks[2], "C"))
}

func TestExtractLargeTextStaysWithinByteCap(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxBytes = 1000
	cfg.SampleWindows = 5
	cfg.ChunkSize = 1000
	cfg.ChunkOverlap = 0
	cfg.MaxChunksPerFile = 10
	e := New(cfg, nil)

	path, info := writeFile(t, t.TempDir(), "big.log", strings.Repeat("0123456789", 10_000))

	res := e.Extract(context.Background(), path, info)
	assert.Equal(t, types.ProvenanceTextSampled, res.Provenance)
	require.Len(t, res.Chunks, 5)
	read := 0
	for _, c := range res.Chunks {
		read += len(c)
	}
	assert.LessOrEqual(t, read, 1000)
	assert.Equal(t, 200, len(res.Chunks[0]))
}

func TestSampleOffsets(t *testing.T) {
	assert.Equal(t, []int64{0}, SampleOffsets(1000, 100, 1))
	assert.Equal(t, []int64{0, 450, 900}, SampleOffsets(1000, 100, 3))
	assert.Equal(t, []int64{0, 0}, SampleOffsets(50, 100, 2))
}

func TestInterleave(t *testing.T) {
	out, total := interleave([][]string{{"a1", "a2", "a3"}, {"b1"}, {"c1", "c2"}}, 5)
	assert.Equal(t, []string{"a1", "b1", "c1", "a2", "c2"}, out)
	assert.Equal(t, 6, total)

	out, total = interleave(nil, 5)
	assert.Empty(t, out)
	assert.Zero(t, total)
}

func TestExtractPDF(t *testing.T) {
	cfg := testConfig(t)
	cfg.PDFMaxPages = 3
	pdf := &fakePDF{pages: []string{"Invoice 42", "Total: 1200 CZK", "Thank you"}}
	e := New(cfg, nil, WithPDFTools(pdf), WithPDFFallback(nil))
	path, info := writeFile(t, t.TempDir(), "invoice.pdf", "%PDF-1.4")

	res := e.Extract(context.Background(), path, info)
	assert.Equal(t, Extracted, res.Outcome)
	assert.Equal(t, types.ProvenancePDFText, res.Provenance)
	joined := strings.Join(res.Chunks, " ")
	assert.Contains(t, joined, "Invoice 42")
	assert.Contains(t, joined, "Total: 1200 CZK")
	assert.Contains(t, joined, "Thank you")
	assert.Equal(t, []int{1, 2, 3}, pdf.asked)
}

func TestExtractPDFSamplesPages(t *testing.T) {
	cfg := testConfig(t)
	cfg.PDFMaxPages = 3
	pages := make([]string, 9)
	for i := range pages {
		pages[i] = strings.Repeat("page text ", 5)
	}
	pdf := &fakePDF{pages: pages}
	e := New(cfg, nil, WithPDFTools(pdf))
	path, info := writeFile(t, t.TempDir(), "long.pdf", "%PDF")

	e.Extract(context.Background(), path, info)
	assert.Equal(t, []int{1, 5, 9}, pdf.asked)
}

func TestExtractPDFFallsBackToInternalParser(t *testing.T) {
	cfg := testConfig(t)
	primary := &fakePDF{countErr: errors.New("pdfinfo crashed")}
	backup := &fakePDF{pages: []string{"recovered text from the internal parser"}}
	e := New(cfg, nil, WithPDFTools(primary), WithPDFFallback(backup))
	path, info := writeFile(t, t.TempDir(), "odd.pdf", "%PDF")

	res := e.Extract(context.Background(), path, info)
	assert.Equal(t, Extracted, res.Outcome)
	assert.Equal(t, types.ProvenancePDFInternal, res.Provenance)
}

func TestExtractPDFFailure(t *testing.T) {
	cfg := testConfig(t)
	e := New(cfg, nil,
		WithPDFTools(&fakePDF{countErr: errors.New("broken")}),
		WithPDFFallback(&fakePDF{countErr: errors.New("also broken")}))
	path, info := writeFile(t, t.TempDir(), "Scans/bad.pdf", "junk")

	res := e.Extract(context.Background(), path, info)
	assert.Equal(t, Failed, res.Outcome)
	assert.Contains(t, res.Reason, "broken")
	require.Len(t, res.Chunks, 1)
	assert.Contains(t, res.Chunks[0], "bad.pdf")
}

func TestExtractScannedPDFDefersThenUsesSidecar(t *testing.T) {
	cfg := testConfig(t)
	e := New(cfg, nil, WithPDFTools(&fakePDF{pages: []string{"", " "}}))
	path, info := writeFile(t, t.TempDir(), "scan.pdf", "%PDF")

	res := e.Extract(context.Background(), path, info)
	assert.Equal(t, Deferred, res.Outcome)
	assert.Equal(t, types.ProvenanceFilename, res.Provenance)
	assert.Equal(t, "ocr needed", res.Reason)
	assert.Equal(t, "", SidecarSignature(cfg.SidecarDir, path))

	_, err := WriteSidecar(cfg.SidecarDir, path, "recognized invoice text from the scan")
	require.NoError(t, err)
	assert.NotEmpty(t, SidecarSignature(cfg.SidecarDir, path))

	res = e.Extract(context.Background(), path, info)
	assert.Equal(t, Extracted, res.Outcome)
	assert.Equal(t, types.ProvenanceOCRSidecar, res.Provenance)
	assert.Equal(t, []string{"recognized invoice text from the scan"}, res.Chunks)
}

func TestExtractImage(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	path, info := writeFile(t, dir, "photo.JPG", "\xff\xd8")

	res := New(cfg, nil).Extract(context.Background(), path, info)
	assert.Equal(t, Extracted, res.Outcome)
	assert.Equal(t, types.ProvenanceFilename, res.Provenance)

	cfg.ImageOCR = true
	res = New(cfg, nil).Extract(context.Background(), path, info)
	assert.Equal(t, Deferred, res.Outcome)

	_, err := WriteSidecar(cfg.SidecarDir, path, "receipt 99")
	require.NoError(t, err)
	res = New(cfg, nil).Extract(context.Background(), path, info)
	assert.Equal(t, Extracted, res.Outcome)
	assert.Equal(t, types.ProvenanceOCRSidecar, res.Provenance)
}

func TestExtractUnknownFormat(t *testing.T) {
	e := New(testConfig(t), nil)
	path, info := writeFile(t, t.TempDir(), "Projects/archive.bin", "\x00\x01")

	res := e.Extract(context.Background(), path, info)
	assert.Equal(t, Extracted, res.Outcome)
	assert.Equal(t, types.ProvenanceUnknownFormat, res.Provenance)
	require.Len(t, res.Chunks, 1)
	assert.Contains(t, res.Chunks[0], "Projects / archive.bin")
}

func TestFilenameContext(t *testing.T) {
	assert.Equal(t, "b / c / d / faktura_2023-42.pdf\nfaktura 2023 42", FilenameContext("/a/b/c/d/faktura_2023-42.pdf"))
	assert.Equal(t, "x.txt\nx", FilenameContext("/x.txt"))
}

func TestIsTextFile(t *testing.T) {
	assert.True(t, IsTextFile("/a/b.MD"))
	assert.True(t, IsTextFile("/a/data.csv"))
	assert.False(t, IsTextFile("/a/b.pdf"))
	assert.False(t, IsTextFile("/a/Makefile"))
}

func writeZip(t *testing.T, path string, files map[string]string) os.FileInfo {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info
}

const docxBody = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:pPr><w:pStyle w:val="Title"/></w:pPr><w:r><w:t>Quarterly</w:t></w:r><w:r><w:t xml:space="preserve"> report</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t>Revenue</w:t></w:r><w:r><w:tab/><w:t>1200</w:t></w:r></w:p>
</w:body></w:document>`

func TestExtractDocx(t *testing.T) {
	e := New(testConfig(t), nil)
	path := filepath.Join(t.TempDir(), "report.docx")
	info := writeZip(t, path, map[string]string{"word/document.xml": docxBody})

	res := e.Extract(context.Background(), path, info)
	assert.Equal(t, Extracted, res.Outcome)
	assert.Equal(t, types.ProvenanceDocument, res.Provenance)
	assert.Equal(t, []string{"Quarterly report\nRevenue\t1200"}, res.Chunks)
}

func TestExtractCorruptDocx(t *testing.T) {
	e := New(testConfig(t), nil)
	path, info := writeFile(t, t.TempDir(), "broken.docx", "not a zip")

	res := e.Extract(context.Background(), path, info)
	assert.Equal(t, Failed, res.Outcome)
	assert.Contains(t, res.Reason, "zip")
}

const sharedStrings = `<?xml version="1.0" encoding="UTF-8"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<si><t>Name</t></si><si><t>Amount</t></si><si><r><t>Ali</t></r><r><t>ce</t></r></si>
</sst>`

const sheet1 = `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>
<row r="2"><c r="A2" t="s"><v>2</v></c><c r="B2"><v>42.5</v></c><c r="C2" t="b"><v>1</v></c></row>
</sheetData></worksheet>`

const sheet2 = `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="inlineStr"><is><t>second sheet</t></is></c></row>
</sheetData></worksheet>`

func TestExtractXlsx(t *testing.T) {
	e := New(testConfig(t), nil)
	path := filepath.Join(t.TempDir(), "book.xlsx")
	info := writeZip(t, path, map[string]string{
		"xl/sharedStrings.xml":     sharedStrings,
		"xl/worksheets/sheet1.xml": sheet1,
		"xl/worksheets/sheet2.xml": sheet2,
	})

	res := e.Extract(context.Background(), path, info)
	assert.Equal(t, Extracted, res.Outcome)
	assert.Equal(t, types.ProvenanceSpreadsheet, res.Provenance)
	assert.Equal(t, []string{"Name\tAmount\nAlice\t42.5\tTRUE\nsecond sheet"}, res.Chunks)
}

func TestReadXlsxCellCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	writeZip(t, path, map[string]string{
		"xl/sharedStrings.xml":     sharedStrings,
		"xl/worksheets/sheet1.xml": sheet1,
		"xl/worksheets/sheet2.xml": sheet2,
	})

	text, err := readXlsx(path, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, "Name\tAmount", text)
}

func TestWorksheetOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	writeZip(t, path, map[string]string{
		"xl/worksheets/sheet10.xml": sheet2,
		"xl/worksheets/sheet2.xml":  sheet2,
		"xl/worksheets/sheet1.xml":  sheet1,
	})
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{
		"xl/worksheets/sheet1.xml",
		"xl/worksheets/sheet2.xml",
		"xl/worksheets/sheet10.xml",
	}, worksheetNames(r))
}
