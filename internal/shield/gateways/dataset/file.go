// Package dataset reads tracker datasets from disk: the bundled bootstrap
// file and a drop directory where new datasets appear.
package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/c2h5oh/datasize"
)

var (
	ErrTooLarge = errors.New("dataset exceeds size limit")
	ErrEmpty    = errors.New("dataset file is empty")
)

// EtagSuffix names the optional sibling file holding a dataset's version tag.
const EtagSuffix = ".etag"

// ReadFile reads the dataset at path. The tag is the trimmed content of
// path+".etag" when that file exists and is non-empty, otherwise the hex
// sha256 of the dataset bytes. limit <= 0 disables the size check.
func ReadFile(path string, limit datasize.ByteSize) (string, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	r := io.Reader(f)
	if limit > 0 {
		r = io.LimitReader(f, int64(limit.Bytes())+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", path, err)
	}
	if limit > 0 && datasize.ByteSize(len(raw)) > limit {
		return "", nil, fmt.Errorf("%w: %s is larger than %s", ErrTooLarge, path, limit.HR())
	}
	if len(raw) == 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	return tagFor(path, raw), raw, nil
}

func tagFor(path string, raw []byte) string {
	if b, err := os.ReadFile(path + EtagSuffix); err == nil {
		if tag := strings.TrimSpace(string(b)); tag != "" {
			return tag
		}
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Bootstrap serves the bundled dataset file. It implements
// trackerdata.FallbackProvider.
type Bootstrap struct {
	path  string
	limit datasize.ByteSize
}

// NewBootstrap returns a Bootstrap reading path, capped at limit bytes.
func NewBootstrap(path string, limit datasize.ByteSize) *Bootstrap {
	return &Bootstrap{path: path, limit: limit}
}

// Bootstrap reads the file on every call so a replaced bundle is picked up.
func (b *Bootstrap) Bootstrap() (string, []byte, error) {
	tag, raw, err := ReadFile(b.path, b.limit)
	if err != nil {
		return "", nil, fmt.Errorf("bootstrap dataset: %w", err)
	}
	return tag, raw, nil
}
