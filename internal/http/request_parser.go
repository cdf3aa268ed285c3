package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"tripstats/internal/services"
	"tripstats/internal/trips"
)

// uploadField is the multipart form field carrying the workbooks.
const uploadField = "file"

var (
	ErrNoFiles     = errors.New("no files uploaded")
	ErrUploadLarge = errors.New("upload too large")
	ErrInvalidTopN = errors.New("n must be a positive integer")
)

// ParseUserID reads and validates the {userID} path segment.
func ParseUserID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("userID")), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", trips.ErrInvalidUser, r.PathValue("userID"))
	}
	if err := trips.CheckUser(id); err != nil {
		return 0, err
	}
	return id, nil
}

// ParseTopN reads the optional n query parameter. A missing value returns 0,
// which selects the configured default.
func ParseTopN(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("n"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, ErrInvalidTopN
	}
	return n, nil
}

// ParseUploads reads every file of the multipart upload field. The caller
// is expected to have capped the body with http.MaxBytesReader.
func ParseUploads(r *http.Request, maxMemory int64) ([]services.Upload, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		if isTooLarge(err) {
			return nil, ErrUploadLarge
		}
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		return nil, ErrNoFiles
	}

	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			if isTooLarge(err) {
				return nil, ErrUploadLarge
			}
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, services.Upload{Name: uploadName(fh.Filename), Data: data})
	}
	return uploads, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// uploadName strips any client supplied directories from a file name.
func uploadName(name string) string {
	name = sanitizeInput(strings.ReplaceAll(name, "\\", "/"))
	return filepath.Base(name)
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || errors.Is(err, multipart.ErrMessageTooLarge)
}
