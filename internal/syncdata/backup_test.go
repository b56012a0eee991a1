package syncdata

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jivehq/jive/internal/embedding"
	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/namespace"
	"github.com/jivehq/jive/internal/storage"
	"github.com/jivehq/jive/internal/workitem"
)

func newTestBackups(t *testing.T, retention int) (*Backups, *namespace.Manager, *workitem.Engine) {
	t.Helper()
	base := t.TempDir()
	nsm, err := namespace.NewManager(base, "default", true)
	if err != nil {
		t.Fatalf("namespace manager: %v", err)
	}
	t.Cleanup(nsm.CloseAll)

	backups, err := NewBackups(nsm, filepath.Join(base, "backups"), retention)
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	return backups, nsm, workitem.NewEngine(embedding.NewLocal(model.EmbeddingDim))
}

func TestBackupAndRestore(t *testing.T) {
	backups, nsm, engine := newTestBackups(t, 7)
	ctx := context.Background()

	store, err := nsm.Store("alpha")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	first, err := engine.Create(ctx, store, workitem.CreateRequest{Type: model.TypeTask, Title: "Keep me"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Create(ctx, store, workitem.CreateRequest{Type: model.TypeTask, Title: "Keep me too"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	snap, err := backups.Backup("alpha")
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if snap.Namespace != "alpha" || !strings.HasPrefix(snap.ID, "alpha_") {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.SHA256) != 64 || snap.SizeBytes == 0 {
		t.Errorf("snapshot integrity fields: %+v", snap)
	}
	if snap.Items != 2 {
		t.Errorf("items = %d, want 2", snap.Items)
	}

	// Lose an item, then roll back to the snapshot.
	if err := store.DeleteWorkItem(first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	restored, err := backups.Restore("alpha", "")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.ID != snap.ID {
		t.Errorf("restored %s, want %s", restored.ID, snap.ID)
	}

	store, err = nsm.Store("alpha")
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	if _, err := store.GetWorkItem(first.ID); err != nil {
		t.Errorf("item not restored: %v", err)
	}
	count, _ := store.CountWorkItems(storage.Predicate{})
	if count != 2 {
		t.Errorf("items after restore = %d, want 2", count)
	}
}

func TestRestoreRejectsCorruptedArchive(t *testing.T) {
	backups, nsm, engine := newTestBackups(t, 7)

	store, err := nsm.Store("beta")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := engine.Create(context.Background(), store, workitem.CreateRequest{Type: model.TypeTask, Title: "X"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	snap, err := backups.Backup("beta")
	if err != nil {
		t.Fatalf("backup: %v", err)
	}

	archive := filepath.Join(backups.dir, snap.Filename)
	f, err := os.OpenFile(archive, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if _, err := f.Write([]byte("tampered")); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	f.Close()

	if _, err := backups.Restore("beta", snap.ID); !errors.Is(err, ErrBackupCorrupted) {
		t.Fatalf("err = %v, want ErrBackupCorrupted", err)
	}
}

func TestRestoreUnknownBackup(t *testing.T) {
	backups, _, _ := newTestBackups(t, 7)
	if _, err := backups.Restore("nowhere", ""); !errors.Is(err, ErrBackupNotFound) {
		t.Fatalf("err = %v, want ErrBackupNotFound", err)
	}
	if _, err := backups.Restore("", "missing_id"); !errors.Is(err, ErrBackupNotFound) {
		t.Fatalf("err = %v, want ErrBackupNotFound", err)
	}
}

func TestDefaultBackupSkipsSiblingTrees(t *testing.T) {
	backups, nsm, engine := newTestBackups(t, 7)
	ctx := context.Background()

	// Populate default plus a sibling namespace that must stay out of the
	// default archive.
	store, err := nsm.Store("default")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := engine.Create(ctx, store, workitem.CreateRequest{Type: model.TypeTask, Title: "Root item"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := nsm.Store("sibling"); err != nil {
		t.Fatalf("sibling store: %v", err)
	}

	snap, err := backups.Backup("default")
	if err != nil {
		t.Fatalf("backup: %v", err)
	}

	f, err := os.Open(filepath.Join(backups.dir, snap.Filename))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	tr := tar.NewReader(gr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar: %v", err)
		}
		for _, banned := range []string{"namespaces/", "backups/", "sync/"} {
			if strings.Contains(header.Name, banned) {
				t.Errorf("archive leaked sibling tree: %s", header.Name)
			}
		}
	}
}

func TestRetention(t *testing.T) {
	backups, nsm, engine := newTestBackups(t, 1)

	store, err := nsm.Store("gamma")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := engine.Create(context.Background(), store, workitem.CreateRequest{Type: model.TypeTask, Title: "X"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	older, err := backups.Backup("gamma")
	if err != nil {
		t.Fatalf("first backup: %v", err)
	}
	// Snapshot ids have second precision; a same-second sibling would
	// overwrite instead of rotating.
	time.Sleep(1100 * time.Millisecond)
	newer, err := backups.Backup("gamma")
	if err != nil {
		t.Fatalf("second backup: %v", err)
	}

	snaps, err := backups.List("gamma")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 1 || snaps[0].ID != newer.ID {
		t.Fatalf("retention kept %d snapshots, first %+v", len(snaps), snaps[0])
	}
	if _, err := os.Stat(filepath.Join(backups.dir, older.Filename)); !os.IsNotExist(err) {
		t.Errorf("old archive still present: %v", err)
	}
}

func TestBackupAllAndManifest(t *testing.T) {
	backups, nsm, engine := newTestBackups(t, 7)
	ctx := context.Background()

	for _, ns := range []string{"one", "two"} {
		store, err := nsm.Store(ns)
		if err != nil {
			t.Fatalf("store %s: %v", ns, err)
		}
		if _, err := engine.Create(ctx, store, workitem.CreateRequest{Type: model.TypeTask, Title: ns}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	if err := backups.BackupAll(); err != nil {
		t.Fatalf("backup all: %v", err)
	}

	// default + one + two
	snaps, err := backups.List("")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("snapshots = %d, want 3", len(snaps))
	}

	manifest, err := backups.Manifest()
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	for _, ns := range []string{"default", "one", "two"} {
		if !strings.Contains(string(manifest), `"namespace": "`+ns+`"`) {
			t.Errorf("manifest missing namespace %s", ns)
		}
	}
}

func TestBackupSchedulerSpec(t *testing.T) {
	backups, _, _ := newTestBackups(t, 7)

	if _, err := NewBackupScheduler("not a cron", backups); err == nil {
		t.Fatal("invalid spec accepted")
	}
	sched, err := NewBackupScheduler("*/5 * * * *", backups)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	sched.Start()
	sched.Stop()
}
