package corpus

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/timmy/armscan/internal/logger"
	"github.com/timmy/armscan/internal/storage"
)

// SyncStats counts the outcome of a Sync or Publish run.
type SyncStats struct {
	Transferred int
	Skipped     int
	Failed      int
}

// Sync mirrors <prefix>/<label>/<file> objects from the bucket into root.
// Objects already present locally with the same size are skipped. Objects
// outside the label layout or the image allow-list are ignored.
func Sync(ctx context.Context, store storage.ObjectStorage, prefix, root string) (*SyncStats, error) {
	prefix = strings.Trim(prefix, "/")
	listPrefix := prefix
	if listPrefix != "" {
		listPrefix += "/"
	}

	objects, err := store.List(ctx, listPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list corpus objects: %w", err)
	}

	stats := &SyncStats{}
	for _, obj := range objects {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		local, ok := localPath(root, strings.TrimPrefix(obj.Key, listPrefix))
		if !ok {
			continue
		}
		if info, err := os.Stat(local); err == nil && info.Size() == obj.Size {
			stats.Skipped++
			continue
		}

		if err := download(ctx, store, obj.Key, local); err != nil {
			logger.FromContext(ctx).WithField(logger.FieldPath, obj.Key).WithError(err).Warn("Failed to sync reference image")
			stats.Failed++
			continue
		}
		stats.Transferred++
	}

	logger.With(logger.Fields{
		"transferred": stats.Transferred,
		"skipped":     stats.Skipped,
		"failed":      stats.Failed,
	}).Info(ctx, "Corpus sync completed")

	return stats, nil
}

// localPath maps a <label>/<file> key onto root. Keys that would resolve
// outside root are rejected.
func localPath(root, rel string) (string, bool) {
	parts := strings.Split(rel, "/")
	if len(parts) != 2 || !IsReferenceImage(parts[1]) {
		return "", false
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsRune(p, '\\') {
			return "", false
		}
	}

	local := filepath.Join(root, parts[0], parts[1])
	within, err := filepath.Rel(root, local)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", false
	}
	return local, true
}

func download(ctx context.Context, store storage.ObjectStorage, key, local string) error {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("failed to create label folder: %w", err)
	}

	body, err := store.Download(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	// write to a temp file first so a failed transfer never leaves a truncated image
	tmp, err := os.CreateTemp(filepath.Dir(local), ".sync-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", local, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), local)
}

// Publish uploads local reference images that the bucket does not have yet.
func Publish(ctx context.Context, store storage.ObjectStorage, prefix string, listing *Listing) (*SyncStats, error) {
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}

	prefix = strings.Trim(prefix, "/")
	stats := &SyncStats{}
	for _, img := range listing.Images {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		key := path.Join(prefix, img.Label, filepath.Base(img.Path))
		exists, err := store.Exists(ctx, key)
		if err != nil {
			return stats, fmt.Errorf("failed to check object existence: %w", err)
		}
		if exists {
			stats.Skipped++
			continue
		}

		if err := upload(ctx, store, key, img); err != nil {
			logger.FromContext(ctx).WithField(logger.FieldPath, img.Path).WithError(err).Warn("Failed to publish reference image")
			stats.Failed++
			continue
		}
		stats.Transferred++
	}
	return stats, nil
}

func upload(ctx context.Context, store storage.ObjectStorage, key string, img Image) error {
	f, err := os.Open(img.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	return store.Upload(ctx, key, f, img.Size, contentType(img.Path))
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
