package overlay

import (
	"fmt"
	"math"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"

	"github.com/ZacxDev/quote-overlay/internal/config"
)

// FontLoadError reports a font asset that could not be used. It is carried
// on FontResult, never returned to callers of LoadFaces.
type FontLoadError struct {
	Path string
	Err  error
}

func (e *FontLoadError) Error() string {
	return fmt.Sprintf("load font %s: %v", e.Path, e.Err)
}

func (e *FontLoadError) Unwrap() error { return e.Err }

// Faces holds the two faces a quote is drawn with.
type Faces struct {
	Body       font.Face
	Author     font.Face
	BodySize   int
	AuthorSize int
}

// Close releases both faces.
func (f *Faces) Close() error {
	if err := f.Body.Close(); err != nil {
		return err
	}
	return f.Author.Close()
}

// FontResult is either the requested font or the embedded fallback. Cause
// explains why the fallback was taken.
type FontResult struct {
	Faces    *Faces
	Fallback bool
	Cause    *FontLoadError
}

// FontSizes derives the body and author pixel sizes for a frame height.
func FontSizes(height int) (body, author int) {
	body = int(math.Round(float64(height) * config.BodyFontScale))
	if body < 1 {
		body = 1
	}
	author = int(math.Round(float64(body) * config.AuthorFontScale))
	if author < 1 {
		author = 1
	}
	return body, author
}

// LoadFaces builds faces for a frame height from the font at path. An empty
// path or an unusable file falls back to the embedded Go Bold font at the
// same sizes.
func LoadFaces(path string, height int) FontResult {
	if path == "" {
		return fallback(height, nil)
	}
	f, err := parseFontFile(path)
	if err == nil {
		var faces *Faces
		if faces, err = newFaces(f, height); err == nil {
			return FontResult{Faces: faces}
		}
	}
	return fallback(height, &FontLoadError{Path: path, Err: err})
}

func fallback(height int, cause *FontLoadError) FontResult {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		// gobold is compiled in; failing to parse it is a broken build
		panic(errors.Wrap(err, "parse embedded font"))
	}
	faces, err := newFaces(f, height)
	if err != nil {
		panic(errors.Wrap(err, "create embedded font face"))
	}
	return FontResult{Faces: faces, Fallback: true, Cause: cause}
}

func parseFontFile(path string) (*opentype.Font, error) {
	fontBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read font file")
	}
	f, err := opentype.Parse(fontBytes)
	if err != nil {
		return nil, errors.Wrap(err, "parse font")
	}
	return f, nil
}

func newFaces(f *opentype.Font, height int) (*Faces, error) {
	bodySize, authorSize := FontSizes(height)

	body, err := newFace(f, bodySize)
	if err != nil {
		return nil, err
	}
	author, err := newFace(f, authorSize)
	if err != nil {
		body.Close()
		return nil, err
	}
	return &Faces{Body: body, Author: author, BodySize: bodySize, AuthorSize: authorSize}, nil
}

func newFace(f *opentype.Font, size int) (font.Face, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create font face")
	}
	return face, nil
}
