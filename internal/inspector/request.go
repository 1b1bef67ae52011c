package inspector

import (
	"bytes"
	"io"
	"net/http"
	"strings"
)

// DefaultMaxBody is the largest request body inspected
const DefaultMaxBody = 64 * 1024

// Inspectable reports whether a body with this content type is inspected.
// Only form posts, JSON and requests without a declared type qualify.
func Inspectable(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return ct == "" ||
		strings.Contains(ct, "application/x-www-form-urlencoded") ||
		strings.Contains(ct, "application/json")
}

// ReadBody returns up to limit bytes of an inspectable body and restores
// r.Body so the handler still sees the full payload. Bodies that declare a
// length above limit are skipped.
func ReadBody(r *http.Request, limit int64) (string, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody || limit <= 0 {
		return "", nil
	}
	if !Inspectable(r.Header.Get("Content-Type")) || r.ContentLength > limit {
		return "", nil
	}

	chunk, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(chunk), r.Body))
	if int64(len(chunk)) > limit {
		return "", nil
	}
	return string(chunk), nil
}

// Haystack joins the inspected parts of a request
func Haystack(path, rawQuery, body string) string {
	return path + " " + rawQuery + " " + body
}
