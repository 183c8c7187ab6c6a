// Package extractor turns files into ordered text chunks.
//
// Extract never fails. Each call returns a Result whose Outcome is one of
// Extracted, Failed or Deferred, and whose Chunks are never empty: when the
// content cannot be read the file is described by its name and the last few
// directories above it.
//
// Supported content:
//   - plain text, read whole up to the byte cap or sampled in evenly spaced
//     windows when larger
//   - PDF, via pdfinfo/pdftotext with an in-process pdfcpu fallback; pages
//     are sampled evenly when the document is long, and scans are deferred
//     to OCR unless a sidecar already holds their text
//   - DOCX and XLSX, read straight from the zipped XML
//   - images, through OCR sidecars only
package extractor
