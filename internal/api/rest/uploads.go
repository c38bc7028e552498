package rest

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	domainErrors "github.com/davidleathers/deepguard-backend/internal/domain/errors"
)

const maxFormValueBytes = 1024

// uploadedFile is a multipart file part spooled to a temporary file
type uploadedFile struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

// uploadForm holds the parts of a multipart request. Callers own the files
// and must call RemoveAll unless ownership is handed to the service.
type uploadForm struct {
	Files  map[string]*uploadedFile
	Values map[string]string
}

func (f *uploadForm) RemoveAll() {
	for _, file := range f.Files {
		_ = os.Remove(file.Path)
	}
}

// Take hands the named file to the caller; RemoveAll no longer removes it.
func (f *uploadForm) Take(field string) *uploadedFile {
	file := f.Files[field]
	delete(f.Files, field)
	return file
}

// readUploads streams the multipart body into temporary files. Only the
// listed file fields are accepted; other file parts are discarded.
func readUploads(r *http.Request, maxBytes int64, tempDir string, fileFields ...string) (*uploadForm, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, &ValidationError{Message: "Content-Type must be multipart/form-data"}
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, &ValidationError{Message: "invalid multipart body"}
	}

	accepted := make(map[string]bool, len(fileFields))
	for _, f := range fileFields {
		accepted[f] = true
	}

	form := &uploadForm{
		Files:  make(map[string]*uploadedFile),
		Values: make(map[string]string),
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			form.RemoveAll()
			return nil, uploadError(err)
		}

		if err := form.consume(part, accepted, tempDir); err != nil {
			part.Close()
			form.RemoveAll()
			return nil, err
		}
		part.Close()
	}
	return form, nil
}

func (f *uploadForm) consume(part *multipart.Part, accepted map[string]bool, tempDir string) error {
	name := part.FormName()
	if name == "" {
		return nil
	}

	if part.FileName() == "" {
		value, err := io.ReadAll(io.LimitReader(part, maxFormValueBytes+1))
		if err != nil {
			return uploadError(err)
		}
		if len(value) > maxFormValueBytes {
			return &ValidationError{Message: fmt.Sprintf("form field %q is too long", name)}
		}
		f.Values[name] = strings.TrimSpace(string(value))
		return nil
	}

	if !accepted[name] {
		_, err := io.Copy(io.Discard, part)
		return uploadError(err)
	}
	if _, dup := f.Files[name]; dup {
		return &ValidationError{Message: fmt.Sprintf("file field %q given more than once", name)}
	}

	ext := strings.ToLower(filepath.Ext(part.FileName()))
	tmp, err := os.CreateTemp(tempDir, "upload-*"+sanitizeExt(ext))
	if err != nil {
		return domainErrors.NewInternalError("create temporary file").WithCause(err)
	}

	size, copyErr := io.Copy(tmp, part)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr != nil {
			return uploadError(copyErr)
		}
		return domainErrors.NewInternalError("write temporary file").WithCause(closeErr)
	}
	if size == 0 {
		_ = os.Remove(tmp.Name())
		return &ValidationError{Message: fmt.Sprintf("file field %q is empty", name)}
	}

	f.Files[name] = &uploadedFile{
		Path:        tmp.Name(),
		Filename:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Size:        size,
	}
	return nil
}

// sanitizeExt keeps short alphanumeric extensions so media tools can
// sniff the container from the file name.
func sanitizeExt(ext string) string {
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

func uploadError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return err
	}
	return &ValidationError{Message: "failed to read multipart body"}
}
