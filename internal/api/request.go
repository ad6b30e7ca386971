package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/erazemk/kataster/internal/docstore"
)

// maxUploadMemory bounds the in-memory part of a multipart body; larger files
// spill to temporary files.
const maxUploadMemory = 32 << 20

// upload holds the files of a multipart request.
type upload struct {
	Documents []docstore.File
	Signature *docstore.File
	closers   []io.Closer
}

// Close releases opened file parts.
func (u *upload) Close() {
	for _, c := range u.closers {
		c.Close()
	}
}

// bind decodes and validates a request body into dst. Multipart bodies carry
// the JSON payload in the "data" field and files in "documents" (with
// optional parallel "document_types") and "signature". Other bodies are
// decoded as JSON. The caller must Close the returned upload.
func bind(r *http.Request, dst any) (*upload, error) {
	up := &upload{}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			return up, fmt.Errorf("invalid multipart body: %w", err)
		}
		if data := r.FormValue("data"); data != "" {
			if err := json.Unmarshal([]byte(data), dst); err != nil {
				return up, errors.New("invalid data field")
			}
		}
		if err := up.collect(r.MultipartForm); err != nil {
			return up, err
		}
	} else if r.ContentLength != 0 {
		if err := decodeJSON(r, dst); err != nil && !errors.Is(err, io.EOF) {
			return up, errors.New("invalid request body")
		}
	}

	if err := validate.Struct(dst); err != nil {
		return up, errors.New(validationMessage(err))
	}
	return up, nil
}

func (u *upload) collect(form *multipart.Form) error {
	types := form.Value["document_types"]
	for i, fh := range form.File["documents"] {
		f, err := u.open(fh)
		if err != nil {
			return err
		}
		if i < len(types) {
			f.Type = types[i]
		}
		u.Documents = append(u.Documents, f)
	}

	if sigs := form.File["signature"]; len(sigs) > 0 {
		f, err := u.open(sigs[0])
		if err != nil {
			return err
		}
		u.Signature = &f
	}
	return nil
}

func (u *upload) open(fh *multipart.FileHeader) (docstore.File, error) {
	body, err := fh.Open()
	if err != nil {
		return docstore.File{}, fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	u.closers = append(u.closers, body)
	return docstore.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
