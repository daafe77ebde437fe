// Package fileutil resolves input locations (local paths and URLs) and opens
// possibly-compressed files for reading.
package fileutil

import (
	"compress/bzip2"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz/lzma"
)

// ErrUnknownCompression is returned when the compression format of a file
// cannot be determined from its leading bytes.
var ErrUnknownCompression = errors.New("unknown compression format")

// CachedPath returns a local filesystem path for the given location. Local
// paths are returned unchanged. http(s) URLs are downloaded once into a
// per-user cache directory keyed by the URL hash; later calls reuse the
// cached copy.
func CachedPath(location string) (string, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		return location, nil
	}

	cacheDir, err := cacheRoot()
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(location))
	target := filepath.Join(cacheDir, hex.EncodeToString(sum[:]))
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	if err := download(location, target); err != nil {
		return "", err
	}
	return target, nil
}

func cacheRoot() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache dir: %w", err)
	}
	dir := filepath.Join(base, "allennlp", "downloads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir %s: %w", dir, err)
	}
	return dir, nil
}

func download(url, target string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch %s: HTTP %d", url, resp.StatusCode)
	}

	// Write through a temp file so a partial download never shows up at the
	// cached path.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create download temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to finish download of %s: %w", url, err)
	}
	return os.Rename(tmp.Name(), target)
}

// readCloser pairs a decompressing reader with the underlying file so that
// closing it releases both.
type readCloser struct {
	io.Reader
	file *os.File
}

func (r *readCloser) Close() error {
	return r.file.Close()
}

// decompressReader surfaces mid-stream decompression failures as
// ErrUnknownCompression. Formats like bz2 only reveal corrupt data at read
// time, well after the magic bytes checked out.
type decompressReader struct {
	r    io.Reader
	path string
}

func (d *decompressReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w: %s: %v", ErrUnknownCompression, d.path, err)
	}
	return n, err
}

// OpenCompressed opens a file for reading, decompressing it according to
// kind ("gz", "bz2" or "lzma"). An empty kind selects the format from the
// file's magic bytes; a file with no recognized magic is read as plain text
// unless its extension claims compression, in which case the mismatch is
// reported as ErrUnknownCompression.
func OpenCompressed(path, kind string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if kind == "" {
		kind, err = detectCompression(f, path)
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	var reader io.Reader
	switch kind {
	case "":
		reader = f
	case "gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s is not valid gzip data", ErrUnknownCompression, path)
		}
		reader = &decompressReader{r: gz, path: path}
	case "bz2":
		reader = &decompressReader{r: bzip2.NewReader(f), path: path}
	case "lzma":
		lz, err := lzma.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s is not valid lzma data", ErrUnknownCompression, path)
		}
		reader = &decompressReader{r: lz, path: path}
	default:
		f.Close()
		return nil, fmt.Errorf("%w: unsupported compression type %q", ErrUnknownCompression, kind)
	}

	return &readCloser{Reader: reader, file: f}, nil
}

// detectCompression sniffs the leading bytes of f and rewinds it. The empty
// string means plain text.
func detectCompression(f *os.File, path string) (string, error) {
	var magic [6]byte
	n, err := f.Read(magic[:])
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	head := magic[:n]
	switch {
	case len(head) >= 2 && head[0] == 0x1f && head[1] == 0x8b:
		return "gz", nil
	case len(head) >= 3 && head[0] == 'B' && head[1] == 'Z' && head[2] == 'h':
		return "bz2", nil
	case len(head) >= 3 && head[0] == 0x5d && head[1] == 0x00 && head[2] == 0x00:
		return "lzma", nil
	}

	// A compressed extension with no matching magic means we cannot tell what
	// the file actually is.
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".bz2", ".lzma", ".xz":
		return "", fmt.Errorf("%w: %s", ErrUnknownCompression, path)
	}
	return "", nil
}
