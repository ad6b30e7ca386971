package docstore

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/erazemk/kataster/internal/imaging"
)

// NormalizeSignature re-encodes image signatures as downscaled JPEG. Other
// files (signed PDFs) pass through unchanged.
func NormalizeSignature(f File) (File, error) {
	br := bufio.NewReader(f.Body)
	head, _ := br.Peek(512)
	if !imaging.AllowedMIME[http.DetectContentType(head)] {
		f.Body = br
		return f, nil
	}

	res, err := imaging.Process(br)
	if err != nil {
		return File{}, fmt.Errorf("processing signature image: %w", err)
	}

	f.Body = bytes.NewReader(res.Data)
	f.ContentType = res.MIME
	f.Name = strings.TrimSuffix(f.Name, path.Ext(f.Name)) + ".jpg"
	return f, nil
}
