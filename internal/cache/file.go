package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const fileSuffix = ".json.zst"

// FileBackend keeps one zstd-compressed state file per agent in dir.
type FileBackend struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewFileBackend creates a backend rooted at dir. The directory is created
// on the first Save.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &FileBackend{dir: dir, enc: enc, dec: dec}, nil
}

// Path returns the state file for agentID.
func (b *FileBackend) Path(agentID string) string {
	return filepath.Join(b.dir, url.PathEscape(agentID)+fileSuffix)
}

// Save writes data atomically using a temp file and rename.
func (b *FileBackend) Save(_ context.Context, agentID string, data []byte) error {
	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	compressed := b.enc.EncodeAll(data, nil)

	tmp, err := os.CreateTemp(b.dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, b.Path(agentID)); err != nil {
		return fmt.Errorf("renaming state file: %w", err)
	}
	committed = true
	return nil
}

// LoadAll reads every state file. A missing directory yields no entries.
func (b *FileBackend) LoadAll(_ context.Context) (map[string][]byte, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]byte{}, nil
		}
		return nil, fmt.Errorf("reading cache dir: %w", err)
	}

	out := make(map[string][]byte, len(entries))
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		agentID, err := url.PathUnescape(strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		raw, err := os.ReadFile(filepath.Join(b.dir, name))
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", name, err))
			continue
		}
		data, err := b.dec.DecodeAll(raw, nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("decompressing %s: %w", name, err))
			continue
		}
		out[agentID] = data
	}
	return out, errors.Join(errs...)
}

func (b *FileBackend) Close() error {
	b.dec.Close()
	return b.enc.Close()
}
