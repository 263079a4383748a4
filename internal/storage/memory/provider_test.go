package memory

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func mustInstance(t *testing.T, p *Provider, name string) *instance {
	t.Helper()
	inst, err := p.NewInstance(name)
	if err != nil {
		t.Fatalf("NewInstance(%q): %v", name, err)
	}
	return inst.(*instance)
}

func readInstance(t *testing.T, inst *instance) []byte {
	t.Helper()
	rc, err := inst.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestPutGetRoundTrip(t *testing.T) {
	p := NewProvider()
	inst := mustInstance(t, p, "pieces/abc/0")

	if err := inst.Put(bytes.NewReader([]byte("hello"))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := readInstance(t, inst); string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}

	fi, err := inst.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Size() != 5 {
		t.Fatalf("size = %d, want 5", fi.Size())
	}
}

func TestGetMissingReturnsNotExist(t *testing.T) {
	p := NewProvider()
	inst := mustInstance(t, p, "missing")
	if _, err := inst.Get(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
	if _, err := inst.Stat(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Stat err = %v, want os.ErrNotExist", err)
	}
}

func TestWriteAtGrowsBlob(t *testing.T) {
	p := NewProvider()
	inst := mustInstance(t, p, "grow")

	if _, err := inst.WriteAt([]byte("abc"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if _, err := inst.WriteAt([]byte("XY"), 5); err != nil {
		t.Fatalf("WriteAt at offset: %v", err)
	}

	got := readInstance(t, inst)
	want := []byte{'a', 'b', 'c', 0, 0, 'X', 'Y'}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestReadAtPastEnd(t *testing.T) {
	p := NewProvider()
	inst := mustInstance(t, p, "short")
	if err := inst.Put(bytes.NewReader([]byte("ab"))); err != nil {
		t.Fatalf("Put: %v", err)
	}

	buf := make([]byte, 4)
	n, err := inst.ReadAt(buf, 0)
	if n != 2 || err != io.EOF {
		t.Fatalf("ReadAt = (%d, %v), want (2, EOF)", n, err)
	}
	if _, err := inst.ReadAt(buf, 10); err != io.EOF {
		t.Fatalf("ReadAt past end: %v, want EOF", err)
	}
}

func TestEvictionDropsOldestWithoutSpill(t *testing.T) {
	p := NewProvider(WithCapacity(10))

	old := mustInstance(t, p, "old")
	if err := old.Put(bytes.NewReader(make([]byte, 6))); err != nil {
		t.Fatalf("Put old: %v", err)
	}
	fresh := mustInstance(t, p, "fresh")
	if err := fresh.Put(bytes.NewReader(make([]byte, 6))); err != nil {
		t.Fatalf("Put fresh: %v", err)
	}

	if _, err := old.Get(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("old entry should be evicted, got err=%v", err)
	}
	if got := readInstance(t, fresh); len(got) != 6 {
		t.Fatalf("fresh entry lost: %d bytes", len(got))
	}
}

func TestEvictionSpillsToDisk(t *testing.T) {
	dir := t.TempDir()
	p := NewProvider(WithCapacity(10), WithSpillDir(dir))

	cold := mustInstance(t, p, "pieces/cold")
	if err := cold.Put(bytes.NewReader([]byte("colddata"))); err != nil {
		t.Fatalf("Put cold: %v", err)
	}
	hot := mustInstance(t, p, "pieces/hot")
	if err := hot.Put(bytes.NewReader([]byte("hotdata"))); err != nil {
		t.Fatalf("Put hot: %v", err)
	}

	// The cold entry went over capacity and must now live on disk.
	onDisk := filepath.Join(dir, "pieces", "cold")
	if _, err := os.Stat(onDisk); err != nil {
		t.Fatalf("spill file missing: %v", err)
	}
	if got := readInstance(t, cold); string(got) != "colddata" {
		t.Fatalf("spilled entry read %q, want %q", got, "colddata")
	}
}

func TestRestoreSpilledOnStartup(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "pieces")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "left"), []byte("leftover"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewProvider(WithSpillDir(dir))
	inst := mustInstance(t, p, "pieces/left")
	if got := readInstance(t, inst); string(got) != "leftover" {
		t.Fatalf("got %q, want %q", got, "leftover")
	}
}

func TestDeleteRemovesSpillFile(t *testing.T) {
	dir := t.TempDir()
	p := NewProvider(WithCapacity(4), WithSpillDir(dir))

	inst := mustInstance(t, p, "doomed")
	if err := inst.Put(bytes.NewReader([]byte("12345678"))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := inst.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "doomed")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("spill file should be gone, stat err=%v", err)
	}
	if _, err := inst.Get(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("entry should be gone, got err=%v", err)
	}
}

func TestReaddirnames(t *testing.T) {
	p := NewProvider()
	for _, name := range []string{"dir/a", "dir/b", "dir/nested/c", "other"} {
		inst := mustInstance(t, p, name)
		if err := inst.Put(bytes.NewReader([]byte("x"))); err != nil {
			t.Fatalf("Put %q: %v", name, err)
		}
	}

	inst := mustInstance(t, p, "dir")
	names, err := inst.Readdirnames()
	if err != nil {
		t.Fatalf("Readdirnames: %v", err)
	}
	want := []string{"a", "b", "nested"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestKeyValidation(t *testing.T) {
	p := NewProvider()
	for _, bad := range []string{"", "  ", "/abs", "../escape", "a/../../b", "nul\x00byte"} {
		if _, err := p.NewInstance(bad); err == nil {
			t.Errorf("NewInstance(%q) accepted invalid key", bad)
		}
	}
	if _, err := p.NewInstance("ok/key"); err != nil {
		t.Errorf("NewInstance(ok/key): %v", err)
	}
}
