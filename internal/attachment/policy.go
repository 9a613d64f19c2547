package attachment

import (
	"mime"
	"path"
	"slices"
	"strings"
	"unicode"
)

const (
	OctetStream    = "application/octet-stream"
	maxFilenameLen = 120
	defaultName    = "attachment"
)

var allowedMimeTypes = []string{
	"application/pdf",
	"text/plain",
	"text/markdown",
	"text/x-markdown",
	OctetStream,
}

// AllowedMimeTypes lists the accepted types, image/* matches any image subtype.
func AllowedMimeTypes() []string {
	return append([]string{"image/*"}, allowedMimeTypes...)
}

// CheckMime normalizes a declared type and reports whether it is accepted.
// An empty type is treated as application/octet-stream.
func CheckMime(declared string) (string, bool) {
	if strings.TrimSpace(declared) == "" {
		return OctetStream, true
	}

	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(declared)), false
	}

	if sub, ok := strings.CutPrefix(mediaType, "image/"); ok && sub != "" {
		return mediaType, true
	}

	return mediaType, slices.Contains(allowedMimeTypes, mediaType)
}

var extensions = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
	"text/markdown":   ".md",
	"text/x-markdown": ".md",
}

func fallbackExt(mediaType string) string {
	if ext, ok := extensions[mediaType]; ok {
		return ext
	}

	if sub, ok := strings.CutPrefix(mediaType, "image/"); ok {
		sub, _, _ = strings.Cut(sub, "+")
		if sub = sanitize(sub); sub != "" {
			return "." + sub
		}
	}

	return ".bin"
}

func sanitize(name string) string {
	var b strings.Builder
	space := false
	for _, r := range name {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteByte('_')
			}
			space = true
			continue
		}
		space = false

		if r < unicode.MaxASCII && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '_' || r == '-') {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// SanitizeFilename returns a name matching ^[A-Za-z0-9._-]{1,120}$ with an extension.
func SanitizeFilename(name, mediaType string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = strings.TrimLeft(sanitize(strings.TrimSpace(name)), ".")
	if strings.Trim(name, "._-") == "" {
		name = defaultName
	}

	if ext := path.Ext(name); ext == "" || ext == "." {
		name = strings.TrimRight(name, ".") + fallbackExt(mediaType)
	}

	if len(name) > maxFilenameLen {
		ext := path.Ext(name)
		if len(ext) > maxFilenameLen/2 {
			ext = ""
		}
		name = name[:maxFilenameLen-len(ext)] + ext
	}

	return name
}
