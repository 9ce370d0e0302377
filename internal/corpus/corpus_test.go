package corpus

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/timmy/armscan/internal/storage"
)

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanOrderAndAllowList(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "RGD-5", "b.png"), "b")
	touch(t, filepath.Join(root, "RGD-5", "a.JPG"), "a")
	touch(t, filepath.Join(root, "AK-47", "2.jpeg"), "2")
	touch(t, filepath.Join(root, "AK-47", "1.jpg"), "1")
	touch(t, filepath.Join(root, "AK-47", "notes.txt"), "skip")
	touch(t, filepath.Join(root, "AK-47", "clip.gif"), "skip")
	touch(t, filepath.Join(root, "loose.jpg"), "skip")
	touch(t, filepath.Join(root, ".cache", "x.jpg"), "skip")
	if err := os.MkdirAll(filepath.Join(root, "EMPTY"), 0o755); err != nil {
		t.Fatal(err)
	}

	listing, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	var got []string
	for _, img := range listing.Images {
		rel, _ := filepath.Rel(root, img.Path)
		got = append(got, img.Label+"|"+filepath.ToSlash(rel))
	}
	want := []string{
		"AK-47|AK-47/1.jpg",
		"AK-47|AK-47/2.jpeg",
		"RGD-5|RGD-5/a.JPG",
		"RGD-5|RGD-5/b.png",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Scan() = %v, want %v", got, want)
	}

	labels := listing.Labels()
	if strings.Join(labels, ",") != "AK-47,RGD-5" {
		t.Errorf("Labels() = %v", labels)
	}
}

func TestScanMissingRoot(t *testing.T) {
	listing, err := Scan(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if listing.Len() != 0 {
		t.Errorf("Len() = %d, want 0", listing.Len())
	}
}

func TestFingerprintChangesWithCorpus(t *testing.T) {
	root := t.TempDir()
	img := filepath.Join(root, "F-1", "1.jpg")
	touch(t, img, "one")

	scan := func() string {
		l, err := Scan(root)
		if err != nil {
			t.Fatal(err)
		}
		return l.Fingerprint()
	}

	base := scan()
	if again := scan(); again != base {
		t.Fatalf("fingerprint not stable: %s vs %s", base, again)
	}

	touch(t, filepath.Join(root, "F-1", "2.jpg"), "two")
	added := scan()
	if added == base {
		t.Error("adding an image did not change the fingerprint")
	}

	if err := os.Remove(filepath.Join(root, "F-1", "2.jpg")); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(img, later, later); err != nil {
		t.Fatal(err)
	}
	if scan() == base {
		t.Error("rewriting an image did not change the fingerprint")
	}
}

// memStorage is an in-memory ObjectStorage.
type memStorage struct {
	objects map[string][]byte
}

func (m *memStorage) EnsureBucket(ctx context.Context) error { return nil }

func (m *memStorage) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memStorage) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func TestSync(t *testing.T) {
	store := &memStorage{objects: map[string][]byte{
		"corpus/AK-47/1.jpg":    []byte("rifle"),
		"corpus/TM-62/a.png":    []byte("mine"),
		"corpus/readme.md":      []byte("ignored"),
		"corpus/TM-62/x.txt":    []byte("ignored"),
		"other/AK-47/9.jpg":     []byte("outside prefix"),
		"corpus/a/b/c/deep.jpg": []byte("too deep"),
	}}
	root := t.TempDir()
	touch(t, filepath.Join(root, "TM-62", "a.png"), "mine")

	stats, err := Sync(context.Background(), store, "/corpus/", root)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if stats.Transferred != 1 || stats.Skipped != 1 || stats.Failed != 0 {
		t.Errorf("Sync() stats = %+v, want 1 transferred, 1 skipped", stats)
	}

	data, err := os.ReadFile(filepath.Join(root, "AK-47", "1.jpg"))
	if err != nil || string(data) != "rifle" {
		t.Errorf("synced file = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(root, "AK-47", "9.jpg")); !os.IsNotExist(err) {
		t.Error("object outside the prefix was synced")
	}
}

func TestSyncStaysInsideRoot(t *testing.T) {
	store := &memStorage{objects: map[string][]byte{
		"corpus/../evil.jpg":     []byte("escape"),
		"corpus/../../evil2.jpg": []byte("escape"),
		"corpus/./dot.jpg":       []byte("dot"),
		"corpus/..\\evil3.jpg":   []byte("escape"),
		"corpus/AK-47/ok.jpg":    []byte("rifle"),
	}}
	base := t.TempDir()
	root := filepath.Join(base, "corpus")

	stats, err := Sync(context.Background(), store, "corpus", root)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if stats.Transferred != 1 {
		t.Errorf("Sync() stats = %+v, want only the labelled image transferred", stats)
	}

	for _, name := range []string{"evil.jpg", "evil2.jpg", "dot.jpg"} {
		if _, err := os.Stat(filepath.Join(base, name)); !os.IsNotExist(err) {
			t.Errorf("%s was written outside the corpus root", name)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(base), "evil2.jpg")); !os.IsNotExist(err) {
		t.Error("evil2.jpg was written outside the corpus root")
	}
	if _, err := os.Stat(filepath.Join(root, "AK-47", "ok.jpg")); err != nil {
		t.Errorf("labelled image not synced: %v", err)
	}
}

func TestLocalPath(t *testing.T) {
	root := filepath.Join(t.TempDir(), "corpus")
	tests := []struct {
		rel  string
		want bool
	}{
		{"AK-47/1.jpg", true},
		{"../evil.jpg", false},
		{"./1.jpg", false},
		{"AK-47/..", false},
		{"AK-47/sub/1.jpg", false},
		{"/1.jpg", false},
		{"..\\x/1.jpg", false},
		{"AK-47/notes.txt", false},
	}
	for _, tc := range tests {
		t.Run(tc.rel, func(t *testing.T) {
			local, ok := localPath(root, tc.rel)
			if ok != tc.want {
				t.Fatalf("localPath(%q) ok = %v, want %v", tc.rel, ok, tc.want)
			}
			if ok && filepath.Dir(filepath.Dir(local)) != root {
				t.Errorf("localPath(%q) = %q, want under %q", tc.rel, local, root)
			}
		})
	}
}

func TestPublish(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "F-1", "1.jpg"), "grenade")
	touch(t, filepath.Join(root, "F-1", "2.jpg"), "grenade-2")

	store := &memStorage{objects: map[string][]byte{"corpus/F-1/1.jpg": []byte("grenade")}}
	listing, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}

	stats, err := Publish(context.Background(), store, "corpus", listing)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if stats.Transferred != 1 || stats.Skipped != 1 {
		t.Errorf("Publish() stats = %+v", stats)
	}
	if string(store.objects["corpus/F-1/2.jpg"]) != "grenade-2" {
		t.Errorf("uploaded object = %q", store.objects["corpus/F-1/2.jpg"])
	}
}
