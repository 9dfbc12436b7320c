package livepager

import (
	"bytes"
	"io"
	"os"
)

// Result holds an exported PDF together with the pagination the live
// preview computed for the same document. Comparing Geometry().PageCount
// with the PDF's page count shows whether the on-screen break lines matched
// the printed output.
type Result struct {
	data     []byte
	geometry Geometry
}

// Bytes returns the raw PDF content.
func (r *Result) Bytes() []byte {
	return r.data
}

// Geometry returns the pagination computed for the exported document.
func (r *Result) Geometry() Geometry {
	return r.geometry
}

// Reader returns an [*bytes.Reader] over the PDF content.
func (r *Result) Reader() *bytes.Reader {
	return bytes.NewReader(r.data)
}

// WriteTo writes the full PDF content to w. It implements [io.WriterTo].
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.data)
	return int64(n), err
}

// WriteToFile writes the PDF to the file at path, creating it if needed.
func (r *Result) WriteToFile(path string, perm os.FileMode) error {
	return os.WriteFile(path, r.data, perm)
}

// Len returns the size of the PDF in bytes.
func (r *Result) Len() int {
	return len(r.data)
}
