package storage

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	entryExt  = ".entry"
	hashedExt = ".hentry"

	// Longest file name written as is, below the usual 255 byte limit
	maxNameLen = 200
)

// DiskStore implements Storage with one file per key inside a folder
type DiskStore struct {
	folder string
	quota  int64
}

// NewDisk creates a disk store rooted at folder. A quota <= 0 means unlimited.
func NewDisk(folder string, quota int64) *DiskStore {
	return &DiskStore{
		folder: folder,
		quota:  quota,
	}
}

// path returns the file backing key. Keys are base64url encoded so that any
// caller string maps to a single flat file name and can be listed back.
// Keys too long for a file name are stored under their sha256 instead, with
// the encoded key as the first line of the file.
func (d *DiskStore) path(key string) (path string, hashed bool) {
	name := base64.RawURLEncoding.EncodeToString([]byte(key)) + entryExt
	if len(name) <= maxNameLen {
		return filepath.Join(d.folder, name), false
	}
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(d.folder, hex.EncodeToString(sum[:])+hashedExt), true
}

// header is the first line of a hashed entry file
func header(key string) []byte {
	return []byte(base64.RawURLEncoding.EncodeToString([]byte(key)) + "\n")
}

func decodeName(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, entryExt) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, entryExt))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// readHeader returns the key stored in the first line of a hashed entry file
func readHeader(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read entry header: %w", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(line, "\n"))
	if err != nil {
		return "", fmt.Errorf("invalid entry header: %w", err)
	}
	return string(raw), nil
}

// entry returns the key held by a folder entry and the size of its value
func (d *DiskStore) entry(f fs.DirEntry) (key string, size int64, ok bool) {
	name := f.Name()
	if f.IsDir() || strings.HasPrefix(name, ".") {
		return "", 0, false
	}

	var overhead int64
	switch {
	case strings.HasSuffix(name, entryExt):
		if key, ok = decodeName(name); !ok {
			return "", 0, false
		}
	case strings.HasSuffix(name, hashedExt):
		var err error
		if key, err = readHeader(filepath.Join(d.folder, name)); err != nil {
			logrus.Debugf("Skipping %s: %v", name, err)
			return "", 0, false
		}
		overhead = int64(len(header(key)))
	default:
		return "", 0, false
	}

	info, err := f.Info()
	if err != nil {
		// Removed between ReadDir and Info
		return "", 0, false
	}
	return key, info.Size() - overhead, true
}

// Init ensures the store folder exists
func (d *DiskStore) Init() error {
	return os.MkdirAll(d.folder, 0755)
}

// Get reads the value stored under key
func (d *DiskStore) Get(key string) ([]byte, error) {
	path, hashed := d.path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry file: %w", err)
	}
	if !hashed {
		return data, nil
	}

	h := header(key)
	if !bytes.HasPrefix(data, h) {
		return nil, fmt.Errorf("entry file %s does not belong to key", filepath.Base(path))
	}
	return data[len(h):], nil
}

// Set writes the value through a temporary file renamed over the entry file
func (d *DiskStore) Set(key string, value []byte) error {
	if err := os.MkdirAll(d.folder, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	if d.quota > 0 {
		used, err := d.usage(key)
		if err != nil {
			return err
		}
		if used+entrySize(key, value) > d.quota {
			return ErrQuotaExceeded
		}
	}

	tmp, err := os.CreateTemp(d.folder, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	path, hashed := d.path(key)
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logrus.Errorf("Failed to remove temporary file %s: %v", tmpPath, err)
		}
	}()

	if hashed {
		value = append(header(key), value...)
	}
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to commit entry file: %w", err)
	}
	committed = true

	logrus.Debugf("Stored entry %q in %s", key, d.folder)
	return nil
}

// Delete removes the entry file for key, if any
func (d *DiskStore) Delete(key string) error {
	path, _ := d.path(key)
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove entry file: %w", err)
	}
	return nil
}

// Keys lists the keys of every entry file in the folder
func (d *DiskStore) Keys() ([]string, error) {
	files, err := os.ReadDir(d.folder)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list storage directory: %w", err)
	}

	keys := make([]string, 0, len(files))
	for _, f := range files {
		if key, _, ok := d.entry(f); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// usage sums the quota charge of every entry except the one stored under skip
func (d *DiskStore) usage(skip string) (int64, error) {
	files, err := os.ReadDir(d.folder)
	if err != nil {
		return 0, fmt.Errorf("failed to list storage directory: %w", err)
	}

	var used int64
	for _, f := range files {
		key, size, ok := d.entry(f)
		if !ok || key == skip {
			continue
		}
		used += int64(len(key)) + size
	}
	return used, nil
}
