package syncdata

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/namespace"
	"github.com/jivehq/jive/internal/storage"
)

var (
	ErrBackupNotFound  = errors.New("backup not found")
	ErrBackupCorrupted = errors.New("backup integrity check failed")
)

const manifestSuffix = ".manifest.json"

// Top-level entries that belong to other namespaces or to the backup surface
// itself. The default namespace shares the data root with them.
var skippedRoots = map[string]struct{}{
	"namespaces": {},
	"backups":    {},
	"sync":       {},
}

// Snapshot describes one stored backup archive.
type Snapshot struct {
	ID        string    `json:"id"`
	Namespace string    `json:"namespace"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
	SHA256    string    `json:"sha256"`
	Items     int       `json:"items"`
}

// Backups archives namespace storage roots as tar.gz snapshots with JSON
// manifests, and enforces a per-namespace retention limit.
type Backups struct {
	namespaces *namespace.Manager
	dir        string
	retention  int
}

// NewBackups prepares the backup directory.
func NewBackups(namespaces *namespace.Manager, dir string, retention int) (*Backups, error) {
	if retention < 1 {
		retention = 7
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Backups{namespaces: namespaces, dir: dir, retention: retention}, nil
}

// Backup snapshots one namespace's storage root.
func (b *Backups) Backup(ns string) (*Snapshot, error) {
	if !b.namespaces.Exists(ns) {
		return nil, fmt.Errorf("%w: %s", namespace.ErrNotFound, ns)
	}

	created := time.Now().UTC()
	id := fmt.Sprintf("%s_%s", ns, created.Format("20060102_150405"))
	filename := id + ".tar.gz"
	archivePath := filepath.Join(b.dir, filename)

	if err := b.writeArchive(archivePath, b.namespaces.Path(ns), ns); err != nil {
		_ = os.Remove(archivePath)
		return nil, err
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup: %w", err)
	}
	sum, err := fileChecksum(archivePath)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ID:        id,
		Namespace: ns,
		Filename:  filename,
		CreatedAt: created,
		SizeBytes: info.Size(),
		SHA256:    sum,
		Items:     b.itemCount(ns),
	}
	if err := b.writeManifest(snap); err != nil {
		_ = os.Remove(archivePath)
		return nil, err
	}

	logger.Info("📦 Created backup %s (%d bytes)", filename, info.Size())
	b.enforceRetention(ns)
	return snap, nil
}

// BackupAll snapshots every namespace, collecting per-namespace failures.
func (b *Backups) BackupAll() error {
	metas, err := b.namespaces.List()
	if err != nil {
		return fmt.Errorf("failed to list namespaces: %w", err)
	}

	var failures []string
	for _, meta := range metas {
		if _, err := b.Backup(meta.Namespace); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", meta.Namespace, err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("backup errors: %s", strings.Join(failures, "; "))
	}
	return nil
}

// Restore unpacks a snapshot over its namespace root. An empty backupID picks
// the newest snapshot for ns. The archive checksum must match the manifest.
func (b *Backups) Restore(ns, backupID string) (*Snapshot, error) {
	snap, err := b.find(ns, backupID)
	if err != nil {
		return nil, err
	}

	archivePath := filepath.Join(b.dir, snap.Filename)
	sum, err := fileChecksum(archivePath)
	if err != nil {
		return nil, err
	}
	if sum != snap.SHA256 {
		return nil, fmt.Errorf("%w: %s", ErrBackupCorrupted, snap.ID)
	}

	if !b.namespaces.Exists(snap.Namespace) {
		if _, err := b.namespaces.Create(snap.Namespace); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	b.namespaces.CloseStore(snap.Namespace)

	root := b.namespaces.Path(snap.Namespace)
	// Drop live database files so a stale WAL cannot replay over the
	// restored copy.
	matches, _ := filepath.Glob(filepath.Join(root, storage.DBFileName+"*"))
	for _, m := range matches {
		_ = os.Remove(m)
	}

	if err := b.unpack(archivePath, snap.Namespace, root); err != nil {
		return nil, err
	}
	logger.Info("📦 Restored namespace %s from %s", snap.Namespace, snap.Filename)
	return snap, nil
}

// List returns snapshots newest first, optionally filtered by namespace.
func (b *Backups) List(ns string) ([]*Snapshot, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snaps []*Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), manifestSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.dir, entry.Name()))
		if err != nil {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			logger.Warn("skipping corrupt backup manifest %s: %v", entry.Name(), err)
			continue
		}
		if ns != "" && snap.Namespace != ns {
			continue
		}
		snaps = append(snaps, &snap)
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.After(snaps[j].CreatedAt) })
	return snaps, nil
}

// Manifest renders a JSON summary of every stored snapshot.
func (b *Backups) Manifest() ([]byte, error) {
	snaps, err := b.List("")
	if err != nil {
		return nil, err
	}
	manifest := struct {
		ExportedAt time.Time   `json:"exported_at"`
		BackupDir  string      `json:"backup_dir"`
		Snapshots  []*Snapshot `json:"snapshots"`
	}{time.Now().UTC(), b.dir, snaps}
	return json.MarshalIndent(manifest, "", "  ")
}

func (b *Backups) find(ns, backupID string) (*Snapshot, error) {
	snaps, err := b.List(ns)
	if err != nil {
		return nil, err
	}
	if backupID == "" {
		if ns == "" {
			return nil, fmt.Errorf("%w: namespace or backup id required", ErrBackupNotFound)
		}
		if len(snaps) == 0 {
			return nil, fmt.Errorf("%w: no backups for namespace %s", ErrBackupNotFound, ns)
		}
		return snaps[0], nil
	}
	for _, snap := range snaps {
		if snap.ID == backupID || snap.Filename == backupID {
			return snap, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, backupID)
}

func (b *Backups) writeArchive(archivePath, root, ns string) error {
	file, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer func() { _ = file.Close() }()

	gw := gzip.NewWriter(file)
	tw := tar.NewWriter(gw)

	err = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		top, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
		if _, skip := skippedRoots[top]; skip {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = path.Join(ns, filepath.ToSlash(rel))
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to archive namespace: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalise backup: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("failed to finalise backup: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to finalise backup: %w", err)
	}
	return nil
}

func (b *Backups) unpack(archivePath, ns, root string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = file.Close() }()

	gr, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to decompress backup: %w", err)
	}
	defer func() { _ = gr.Close() }()

	tr := tar.NewReader(gr)
	prefix := ns + "/"
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read backup: %w", err)
		}

		name := filepath.ToSlash(header.Name)
		rel, ok := strings.CutPrefix(name, prefix)
		if !ok || rel == "" {
			continue
		}
		rel = path.Clean(rel)
		if rel == ".." || strings.HasPrefix(rel, "../") {
			return fmt.Errorf("%w: unsafe path %q", ErrBackupCorrupted, header.Name)
		}
		target := filepath.Join(root, filepath.FromSlash(rel))

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("failed to create parent directory: %w", err)
			}
			f, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("failed to create file: %w", err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				_ = f.Close()
				return fmt.Errorf("failed to write file: %w", err)
			}
			_ = f.Close()
		}
	}
	return nil
}

func (b *Backups) writeManifest(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(b.dir, snap.ID+manifestSuffix), data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup manifest: %w", err)
	}
	return nil
}

// itemCount is best effort; a backup without a readable store still succeeds.
func (b *Backups) itemCount(ns string) int {
	store, err := b.namespaces.Store(ns)
	if err != nil {
		return 0
	}
	n, err := store.CountWorkItems(storage.Predicate{})
	if err != nil {
		return 0
	}
	return n
}

func (b *Backups) enforceRetention(ns string) {
	snaps, err := b.List(ns)
	if err != nil || len(snaps) <= b.retention {
		return
	}
	for _, snap := range snaps[b.retention:] {
		if err := os.Remove(filepath.Join(b.dir, snap.Filename)); err == nil {
			logger.Info("📦 Removed old backup: %s", snap.Filename)
		}
		_ = os.Remove(filepath.Join(b.dir, snap.ID+manifestSuffix))
	}
}

func fileChecksum(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash backup: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
