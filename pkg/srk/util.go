package srk

// Utility functions common to all storage services

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/serverlessresearch/srkstore/pkg/objstore"
)

// DetectContentType guesses the MIME type of a blob, first from the extension
// of its key and then by sniffing the content.
func DetectContentType(key string, body []byte) string {
	if contentType := mime.TypeByExtension(path.Ext(key)); contentType != "" {
		return contentType
	}
	return http.DetectContentType(body)
}

// CleanKey validates a key for backends that map keys onto a directory tree.
// It returns the key split into path elements. Keys that would resolve outside
// of the bucket, or that contain empty or dot elements, are rejected.
func CleanKey(key string) ([]string, error) {
	if key == "" {
		return nil, objstore.Errorf(objstore.InvalidArgument, nil, "key must not be empty")
	}
	if strings.ContainsRune(key, 0) {
		return nil, objstore.Errorf(objstore.InvalidArgument, nil, "key must not contain NUL")
	}
	parts := strings.Split(key, "/")
	for _, p := range parts {
		switch p {
		case "", ".", "..":
			return nil, objstore.Errorf(objstore.InvalidArgument, nil, "key %q is not a valid path", key)
		}
		if strings.ContainsRune(p, '\\') {
			return nil, objstore.Errorf(objstore.InvalidArgument, nil, "key %q must not contain backslashes", key)
		}
	}
	return parts, nil
}
