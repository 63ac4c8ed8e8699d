package wa

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Attachment is a file sent along with a message.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// ContentType returns the declared MIME type, falling back to the file
// extension and then to content sniffing.
func (a Attachment) ContentType() string {
	if a.MIMEType != "" && a.MIMEType != "application/octet-stream" {
		return a.MIMEType
	}
	if ext := filepath.Ext(a.Name); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	return http.DetectContentType(a.Data)
}

// IsImage reports whether the attachment is sent as an image rather than a document.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType(), "image/")
}
