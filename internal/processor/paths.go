package processor

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// UniqueOutputPath returns path when nothing exists there yet, otherwise the
// first free "<base>_<N><ext>" with N counting up from 1.
func UniqueOutputPath(path string) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)

	candidate := path
	for counter := 1; ; counter++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", errors.Wrapf(err, "check output path %s", candidate)
		}
		candidate = fmt.Sprintf("%s_%d%s", base, counter, ext)
	}
}

// intermediatePath names the silent encode that precedes the remux of
// outputPath. The random part keeps it clear of user files and of other
// outputs in the same directory.
func intermediatePath(outputPath string) string {
	ext := filepath.Ext(outputPath)
	base := strings.TrimSuffix(outputPath, ext)
	return fmt.Sprintf("%s_%s_silent%s", base, uuid.NewString()[:8], ext)
}
