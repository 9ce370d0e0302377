// Package corpus lists the folder-per-label reference image tree.
package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// allowedExtensions is the reference image allow-list.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsReferenceImage reports whether name has an allowed image extension.
func IsReferenceImage(name string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// Image is one reference image under its label folder.
type Image struct {
	Label   string
	Path    string
	Size    int64
	ModTime int64 // unix nanoseconds
}

// Listing is the ordered content of a corpus directory.
// Labels are sorted lexicographically and so are the files within each label.
type Listing struct {
	Root   string
	Images []Image
}

// Scan walks root/<label>/<file>, one level deep.
// Parameters:
//   - root: corpus directory.
// Returns:
//   - *Listing: allowed images in label, then file name order; empty if root does not exist.
//   - error: non-nil if a directory exists but cannot be read.
func Scan(root string) (*Listing, error) {
	listing := &Listing{Root: root}

	labels, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return listing, nil
		}
		return nil, fmt.Errorf("failed to read corpus %s: %w", root, err)
	}
	// os.ReadDir already sorts by name; keep the order explicit
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name() < labels[j].Name() })

	for _, dir := range labels {
		if !dir.IsDir() || strings.HasPrefix(dir.Name(), ".") {
			continue
		}
		labelPath := filepath.Join(root, dir.Name())
		files, err := os.ReadDir(labelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read label folder %s: %w", labelPath, err)
		}
		sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

		for _, f := range files {
			if f.IsDir() || !IsReferenceImage(f.Name()) {
				continue
			}
			info, err := f.Info()
			if err != nil {
				// vanished between ReadDir and Info
				continue
			}
			listing.Images = append(listing.Images, Image{
				Label:   dir.Name(),
				Path:    filepath.Join(labelPath, f.Name()),
				Size:    info.Size(),
				ModTime: info.ModTime().UnixNano(),
			})
		}
	}
	return listing, nil
}

// Len returns the number of images.
func (l *Listing) Len() int {
	return len(l.Images)
}

// Labels returns the labels that have at least one image, in listing order.
func (l *Listing) Labels() []string {
	var labels []string
	for i, img := range l.Images {
		if i == 0 || l.Images[i-1].Label != img.Label {
			labels = append(labels, img.Label)
		}
	}
	return labels
}

// Fingerprint hashes the listing (relative path, size, mtime) so that any
// added, removed or rewritten reference image changes it.
func (l *Listing) Fingerprint() string {
	h := sha256.New()
	for _, img := range l.Images {
		rel, err := filepath.Rel(l.Root, img.Path)
		if err != nil {
			rel = img.Path
		}
		fmt.Fprintf(h, "%s:%d:%d\n", filepath.ToSlash(rel), img.Size, img.ModTime)
	}
	return hex.EncodeToString(h.Sum(nil))
}
