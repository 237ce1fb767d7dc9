// Package storage validates and stores complaint attachments.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"slices"
	"strings"

	"github.com/tellus/tellus/internal/token"
)

// MaxAttachmentSize is the largest accepted attachment (5 MB).
const MaxAttachmentSize = 5 << 20

// randomNameLen is the length of generated object names.
const randomNameLen = 11

// AllowedContentTypes lists the accepted attachment MIME types.
var AllowedContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/jpg",
	"image/webp",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

var (
	ErrTooLarge        = errors.New("attachment exceeds 5MB")
	ErrContentType     = errors.New("attachment type not allowed")
	ErrEmptyAttachment = errors.New("attachment is empty")
	ErrInvalidKey      = errors.New("invalid object key")
	ErrObjectNotFound  = errors.New("object not found")
)

// Store persists attachment objects.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// Upload is an attachment received from a submitter.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Validate checks the size and content type of an upload before anything
// is written.
func (u *Upload) Validate() error {
	if u.Size <= 0 {
		return ErrEmptyAttachment
	}
	if u.Size > MaxAttachmentSize {
		return ErrTooLarge
	}
	if !IsAllowedContentType(u.ContentType) {
		return ErrContentType
	}
	return nil
}

// IsAllowedContentType reports whether ct (parameters ignored) is accepted.
func IsAllowedContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return slices.Contains(AllowedContentTypes, strings.ToLower(mediaType))
}

// extensions maps each accepted media type to the extension its objects are
// stored under. The served type is derived back from the extension.
var extensions = map[string]string{
	"image/jpeg":         "jpg",
	"image/jpg":          "jpg",
	"image/png":          "png",
	"image/webp":         "webp",
	"application/pdf":    "pdf",
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
}

// servedTypes is the inverse of extensions.
var servedTypes = map[string]string{
	"jpg":  "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// AttachmentKey returns the object key {trackingToken}/{randomName}.{ext}.
// The extension is derived from the validated content type; the submitter's
// file name never reaches the key.
func AttachmentKey(trackingToken, contentType string) (string, error) {
	if trackingToken == "" || strings.ContainsAny(trackingToken, "/\\.") {
		return "", ErrInvalidKey
	}
	ext, ok := extensionFor(contentType)
	if !ok {
		return "", ErrContentType
	}
	name, err := token.RandomName(randomNameLen)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s.%s", trackingToken, name, ext), nil
}

func extensionFor(contentType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	ext, ok := extensions[strings.ToLower(mediaType)]
	return ext, ok
}

// ServedType returns the content type an object key is served with.
// Keys without an accepted extension are served as opaque downloads.
func ServedType(key string) (contentType string, inline bool) {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(key)), ".")
	if ct, ok := servedTypes[ext]; ok {
		return ct, strings.HasPrefix(ct, "image/") || ct == "application/pdf"
	}
	return "application/octet-stream", false
}
