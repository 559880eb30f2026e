package util

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/pingcap/errors"
)

// AtomicWrite writes content to path atomically by using mv. A failed write
// leaves no file at path.
func AtomicWrite(path string, content []byte) error {
	// there's a little chance that rand.Int conflicts
	tmpFile := path + ".tmp" + strconv.Itoa(rand.Int())
	if err := os.WriteFile(tmpFile, content, 0666); err != nil {
		_ = os.Remove(tmpFile)
		return errors.Annotatef(err, "write %s", path)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		_ = os.Remove(tmpFile)
		return errors.Annotatef(err, "rename to %s", path)
	}
	return nil
}

// FileExists reports whether path exists, no matter it's a file or directory.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EscapePath encodes special characters in a string to make it safe for use as a file system path.
func EscapePath(input string) string {
	if input == "" {
		return "empty-string"
	}
	var builder strings.Builder
	for _, r := range input {
		if unicode.IsPrint(r) && r != '/' && r != '\\' && r != ':' &&
			r != '*' && r != '?' && r != '"' && r != '<' && r != '>' &&
			r != '|' && r != '.' {
			builder.WriteRune(r)
		} else {
			builder.WriteString(fmt.Sprintf("%%%02X", r))
		}
	}
	return builder.String()
}
