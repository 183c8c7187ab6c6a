// Package ocr drains the OCR queue filled by the indexer.
//
// Each run fetches up to OCR_MAX_FILES jobs (PDFs first, then the oldest),
// renders a sampled subset of PDF pages with pdftoppm, runs tesseract per
// page and writes the text to a sidecar file named after the source path.
// The next indexing run notices the sidecar through its size and mtime.
//
// Job status moves pending -> running -> done | error | missing, and the
// attempt counter grows with every try.
package ocr
