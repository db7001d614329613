package audio

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultExtension is used for uploads whose filename carries no usable extension.
// Browsers record microphone audio as WebM.
const DefaultExtension = ".webm"

// Clip is an uploaded audio file spooled to a temporary path for one transcription call
type Clip struct {
	Path      string // Temporary file path
	Filename  string // Original upload filename
	Size      int64  // Bytes written
	MIME      string // Sniffed MIME type
	Extension string // Sniffed extension including the dot, empty if unknown
}

// Spool copies a multipart upload into a new temp file under dir.
// The caller must call Remove once the clip is no longer needed.
func Spool(fh *multipart.FileHeader, dir string) (*Clip, error) {
	if fh == nil {
		return nil, errors.New("no file header")
	}
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %q: %w", fh.Filename, err)
	}
	defer src.Close()

	return SpoolReader(src, fh.Filename, dir)
}

// SpoolReader copies r into a new temp file under dir, named after filename's extension
func SpoolReader(r io.Reader, filename, dir string) (*Clip, error) {
	tmp, err := os.CreateTemp(dir, "pronounce_*"+extensionFor(filename))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	clip := &Clip{Path: tmp.Name(), Filename: filename}

	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = clip.Remove()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	clip.Size = n

	if mt, err := mimetype.DetectFile(clip.Path); err == nil {
		clip.MIME = mt.String()
		clip.Extension = mt.Extension()
	}

	return clip, nil
}

// FormatHint names the container format for transcription backends, e.g. "wav" or "webm"
func (c *Clip) FormatHint() string {
	if c.Extension != "" {
		return strings.TrimPrefix(c.Extension, ".")
	}
	return strings.TrimPrefix(extensionFor(c.Filename), ".")
}

// Remove deletes the temp file. Removing an already removed clip is not an error.
func (c *Clip) Remove() error {
	if c == nil || c.Path == "" {
		return nil
	}
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove temp file %s: %w", c.Path, err)
	}
	return nil
}

// extensionFor returns the lower-cased extension of filename, or DefaultExtension
// when it is missing or not a plain alphanumeric suffix.
func extensionFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 6 {
		return DefaultExtension
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return DefaultExtension
		}
	}
	return ext
}
