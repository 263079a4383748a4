// Package memory provides an in-memory piece store for the torrent client
// with LRU eviction and optional spill to disk. It keeps hot pieces in RAM
// so playback can start before anything is flushed, while bounded capacity
// prevents a large download from exhausting memory.
package memory

import (
	"bytes"
	"container/list"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/missinggo/v2/resource"
)

// Provider implements resource.Provider over a bounded in-memory map.
// When a spill directory is configured, cold entries are written to disk
// instead of being discarded, so verified pieces survive eviction.
type Provider struct {
	mu       sync.RWMutex
	blobs    map[string]*blob
	eviction *list.List

	capacity int64
	used     int64
	spillDir string
}

// blob is a single stored entry. Exactly one of data or spilled holds the
// bytes: spilled entries live on disk under spillDir and keep only size
// metadata in memory.
type blob struct {
	data    []byte
	size    int64
	modTime time.Time
	lruElem *list.Element
	spilled bool
}

type Option func(*Provider)

// WithCapacity bounds the total bytes held in memory. Zero or negative
// means unbounded.
func WithCapacity(n int64) Option {
	return func(p *Provider) {
		if n > 0 {
			p.capacity = n
		}
	}
}

// WithSpillDir enables spilling evicted entries to the given directory.
func WithSpillDir(dir string) Option {
	return func(p *Provider) {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return
		}
		dir = filepath.Clean(dir)
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		p.spillDir = dir
	}
}

func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		blobs:    make(map[string]*blob),
		eviction: list.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.spillDir != "" {
		_ = os.MkdirAll(p.spillDir, 0o755)
		p.restoreSpilled()
	}
	return p
}

// restoreSpilled registers files already present in the spill directory so
// the torrent client can verify and resume pieces from a previous run.
func (p *Provider) restoreSpilled() {
	base := filepath.Clean(p.spillDir)
	_ = filepath.Walk(base, func(fp string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(base, fp)
		if relErr != nil {
			return nil
		}
		// Keys use forward slashes regardless of platform.
		p.blobs[filepath.ToSlash(rel)] = &blob{
			size:    info.Size(),
			modTime: info.ModTime(),
			spilled: true,
		}
		return nil
	})
}

func (p *Provider) NewInstance(name string) (resource.Instance, error) {
	key, err := normalizeKey(name)
	if err != nil {
		return nil, err
	}
	return &instance{provider: p, key: key}, nil
}

type instance struct {
	provider *Provider
	key      string
}

func (i *instance) Get() (io.ReadCloser, error) {
	data, err := i.provider.readAll(i.key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (i *instance) Put(r io.Reader) error {
	if r == nil {
		return errors.New("nil reader")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	i.provider.store(i.key, data)
	return nil
}

func (i *instance) PutSized(r io.Reader, size int64) error {
	if r == nil {
		return errors.New("nil reader")
	}
	if size < 0 {
		return errors.New("invalid size")
	}
	if size == 0 {
		i.provider.store(i.key, nil)
		return nil
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	i.provider.store(i.key, buf)
	return nil
}

func (i *instance) ReadAt(b []byte, off int64) (int, error) {
	return i.provider.readAt(i.key, b, off)
}

func (i *instance) WriteAt(b []byte, off int64) (int, error) {
	return i.provider.writeAt(i.key, b, off)
}

func (i *instance) Stat() (os.FileInfo, error) {
	return i.provider.stat(i.key)
}

func (i *instance) Delete() error {
	i.provider.remove(i.key)
	return nil
}

func (i *instance) Readdirnames() ([]string, error) {
	return i.provider.childNames(i.key)
}

func (p *Provider) readAll(key string) ([]byte, error) {
	p.mu.Lock()
	b, ok := p.blobs[key]
	if !ok {
		p.mu.Unlock()
		return nil, os.ErrNotExist
	}
	if !b.spilled {
		p.markUsedLocked(key, b)
		out := make([]byte, len(b.data))
		copy(out, b.data)
		p.mu.Unlock()
		return out, nil
	}
	p.mu.Unlock()

	fp, err := p.spillPath(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(fp)
}

func (p *Provider) store(key string, data []byte) {
	owned := make([]byte, len(data))
	copy(owned, data)

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	if b, ok := p.blobs[key]; ok {
		if b.spilled {
			p.removeSpillFile(key)
		} else {
			p.used -= int64(len(b.data))
		}
		b.data = owned
		b.size = int64(len(owned))
		b.modTime = now
		b.spilled = false
		p.used += b.size
		p.markUsedLocked(key, b)
		p.trimLocked()
		return
	}

	b := &blob{data: owned, size: int64(len(owned)), modTime: now}
	b.lruElem = p.eviction.PushFront(key)
	p.blobs[key] = b
	p.used += b.size
	p.trimLocked()
}

func (p *Provider) readAt(key string, buf []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	p.mu.Lock()
	b, ok := p.blobs[key]
	if !ok {
		p.mu.Unlock()
		return 0, os.ErrNotExist
	}
	if !b.spilled {
		if off >= int64(len(b.data)) {
			p.mu.Unlock()
			return 0, io.EOF
		}
		n := copy(buf, b.data[off:])
		p.markUsedLocked(key, b)
		p.mu.Unlock()
		if n < len(buf) {
			return n, io.EOF
		}
		return n, nil
	}
	size := b.size
	p.mu.Unlock()

	if off >= size {
		return 0, io.EOF
	}
	fp, err := p.spillPath(key)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(fp)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.ReadAt(buf, off)
}

func (p *Provider) writeAt(key string, buf []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	end := off + int64(len(buf))
	if end < off {
		return 0, errors.New("offset overflow")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.blobs[key]
	if b == nil {
		b = &blob{}
		p.blobs[key] = b
	}

	if b.spilled {
		return p.writeSpilledLocked(key, b, buf, off)
	}

	p.markUsedLocked(key, b)
	p.used -= int64(len(b.data))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[off:], buf)
	b.size = int64(len(b.data))
	b.modTime = time.Now().UTC()
	p.used += b.size
	p.trimLocked()
	return len(buf), nil
}

func (p *Provider) writeSpilledLocked(key string, b *blob, buf []byte, off int64) (int, error) {
	fp, err := p.spillPath(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(fp, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := f.WriteAt(buf, off)
	if err != nil {
		return n, err
	}
	if end := off + int64(n); end > b.size {
		b.size = end
	}
	b.modTime = time.Now().UTC()
	return n, nil
}

func (p *Provider) remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blobs[key]
	if !ok {
		return
	}
	if b.spilled {
		p.removeSpillFile(key)
	} else {
		p.used -= int64(len(b.data))
	}
	if b.lruElem != nil {
		p.eviction.Remove(b.lruElem)
	}
	delete(p.blobs, key)
}

func (p *Provider) stat(key string) (os.FileInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.blobs[key]; ok {
		if !b.spilled {
			p.markUsedLocked(key, b)
		}
		return blobInfo{name: path.Base(key), size: b.size, mod: b.modTime}, nil
	}
	if p.hasChildrenLocked(key) {
		return blobInfo{name: path.Base(key), dir: true, mod: time.Now().UTC()}, nil
	}
	return nil, os.ErrNotExist
}

func (p *Provider) childNames(key string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, ok := p.blobs[key]; ok {
		return nil, errors.New("not a directory")
	}

	prefix := key
	if prefix != "" {
		prefix += "/"
	}
	seen := map[string]struct{}{}
	for k := range p.blobs {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if rest == "" {
			continue
		}
		seen[strings.SplitN(rest, "/", 2)[0]] = struct{}{}
	}
	if len(seen) == 0 {
		return nil, os.ErrNotExist
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (p *Provider) hasChildrenLocked(key string) bool {
	prefix := key
	if prefix != "" {
		prefix += "/"
	}
	for k := range p.blobs {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// markUsedLocked moves an in-memory blob to the front of the eviction list.
// Spilled blobs are removed from the list entirely since they hold no RAM.
func (p *Provider) markUsedLocked(key string, b *blob) {
	if b.spilled {
		if b.lruElem != nil {
			p.eviction.Remove(b.lruElem)
			b.lruElem = nil
		}
		return
	}
	if b.lruElem == nil {
		b.lruElem = p.eviction.PushFront(key)
		return
	}
	p.eviction.MoveToFront(b.lruElem)
}

// trimLocked evicts least recently used blobs until memory use fits the
// capacity. With a spill directory configured, evicted blobs move to disk;
// without one they are dropped and the client re-downloads on demand.
func (p *Provider) trimLocked() {
	if p.capacity <= 0 {
		return
	}
	for p.used > p.capacity {
		oldest := p.eviction.Back()
		if oldest == nil {
			break
		}
		key, _ := oldest.Value.(string)
		p.eviction.Remove(oldest)

		b := p.blobs[key]
		if b == nil {
			continue
		}
		b.lruElem = nil
		if b.spilled {
			continue
		}

		if p.spillDir != "" {
			if err := p.spillLocked(key, b); err == nil {
				continue
			}
		}
		p.used -= int64(len(b.data))
		delete(p.blobs, key)
	}
}

func (p *Provider) spillLocked(key string, b *blob) error {
	fp, err := p.spillPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(fp, b.data, 0o644); err != nil {
		return err
	}
	p.used -= int64(len(b.data))
	b.size = int64(len(b.data))
	b.data = nil
	b.spilled = true
	b.modTime = time.Now().UTC()
	return nil
}

func (p *Provider) removeSpillFile(key string) {
	fp, err := p.spillPath(key)
	if err != nil {
		return
	}
	_ = os.Remove(fp)
}

func (p *Provider) spillPath(key string) (string, error) {
	if p.spillDir == "" {
		return "", errors.New("no spill directory configured")
	}
	base := filepath.Clean(p.spillDir)
	candidate := filepath.Clean(filepath.Join(base, filepath.FromSlash(key)))
	if candidate != base && !strings.HasPrefix(candidate, base+string(os.PathSeparator)) {
		return "", errors.New("key escapes spill directory")
	}
	return candidate, nil
}

type blobInfo struct {
	name string
	size int64
	mod  time.Time
	dir  bool
}

func (fi blobInfo) Name() string { return fi.name }
func (fi blobInfo) Size() int64  { return fi.size }
func (fi blobInfo) Mode() os.FileMode {
	if fi.dir {
		return os.ModeDir | 0o755
	}
	return 0o644
}
func (fi blobInfo) ModTime() time.Time { return fi.mod }
func (fi blobInfo) IsDir() bool        { return fi.dir }
func (fi blobInfo) Sys() interface{}   { return nil }

func normalizeKey(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", errors.New("empty key")
	}
	trimmed = strings.ReplaceAll(trimmed, "\\", "/")
	if strings.HasPrefix(trimmed, "/") || strings.Contains(trimmed, "\x00") {
		return "", errors.New("invalid key")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("invalid key")
	}
	return cleaned, nil
}
