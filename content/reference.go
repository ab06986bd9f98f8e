package content

import (
	"maps"
	"path"
	"strings"
)

// Reference is a location-transparent handle to a binary payload.
//
// The URI scheme decides which Handler implementations declare support for
// the reference. The media type is fixed at construction.
type Reference struct {
	uri        string
	mediaType  string
	size       *int64
	attributes map[string]string
}

// NewReference creates a reference to a location the caller already knows.
func NewReference(uri, mediaType string) Reference {
	return Reference{uri: uri, mediaType: mediaType}
}

// URI returns the scheme-prefixed location string.
func (r Reference) URI() string {
	return r.uri
}

// MediaType returns the MIME type of the payload.
func (r Reference) MediaType() string {
	return r.mediaType
}

// Size returns the payload size in bytes and whether it is known.
func (r Reference) Size() (int64, bool) {
	if r.size == nil {
		return 0, false
	}
	return *r.size, true
}

// WithSize returns a copy of the reference with the size set.
func (r Reference) WithSize(size int64) Reference {
	r.size = &size
	return r
}

// Attributes returns a copy of the reference attributes.
func (r Reference) Attributes() map[string]string {
	return maps.Clone(r.attributes)
}

// Attribute returns a single attribute value.
func (r Reference) Attribute(key string) (string, bool) {
	v, ok := r.attributes[key]
	return v, ok
}

// WithAttribute returns a copy of the reference with the attribute set.
func (r Reference) WithAttribute(key, value string) Reference {
	attrs := maps.Clone(r.attributes)
	if attrs == nil {
		attrs = make(map[string]string, 1)
	}
	attrs[key] = value
	r.attributes = attrs
	return r
}

// Scheme returns the URI scheme without the trailing colon, lower-cased.
func (r Reference) Scheme() string {
	idx := strings.Index(r.uri, ":")
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(r.uri[:idx])
}

// IsZero reports whether the reference has no location.
func (r Reference) IsZero() bool {
	return r.uri == ""
}

// String returns the URI.
func (r Reference) String() string {
	return r.uri
}

// SplitName splits a file name into the prefix and suffix kept by handlers
// when generating backing locations: "my.file.txt" gives "my.file" and ".txt".
func SplitName(name string) (prefix, suffix string) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return "", ""
	}
	ext := path.Ext(base)
	if ext == base {
		return base, ""
	}
	return strings.TrimSuffix(base, ext), ext
}
