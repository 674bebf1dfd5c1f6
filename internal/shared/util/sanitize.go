package util

import (
	"errors"
	"path/filepath"
	"strings"
)

// SanitizeFileName reduces an uploaded file name to a safe base name.
func SanitizeFileName(name string) (string, error) {
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "\\", "/")
	s = filepath.Base(s)
	if s == "" || s == "." || s == ".." || s == "/" {
		return "", errors.New("invalid file name")
	}
	return s, nil
}
