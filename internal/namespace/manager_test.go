package namespace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T, autoCreate bool) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), "", autoCreate)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	t.Cleanup(m.CloseAll)
	return m
}

func TestValidateNames(t *testing.T) {
	valid := []string{"a", "A1", "my-project", "my_project", "x9", "Z"}
	for _, name := range valid {
		if err := Validate(name); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "-bad", "bad-", "_bad", "bad_", "has space", "tab\tname"}
	for _, name := range invalid {
		if err := Validate(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidName", name, err)
		}
	}

	long := make([]byte, 51)
	for i := range long {
		long[i] = 'a'
	}
	if err := Validate(string(long)); !errors.Is(err, ErrInvalidName) {
		t.Errorf("51-char name should be invalid, got %v", err)
	}

	for _, name := range []string{"admin", "system", "cache", "tmp"} {
		if err := Validate(name); !errors.Is(err, ErrReserved) {
			t.Errorf("Validate(%q) = %v, want ErrReserved", name, err)
		}
	}
}

func TestDefaultAlwaysPresent(t *testing.T) {
	m := newTestManager(t, true)

	if !m.Exists(DefaultName) {
		t.Error("default namespace should exist")
	}

	list, err := m.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) == 0 || list[0].Namespace != DefaultName {
		t.Errorf("default should lead the listing, got %+v", list)
	}

	if _, err := os.Stat(filepath.Join(m.Path(DefaultName), metadataFileName)); err != nil {
		t.Errorf("default metadata file missing: %v", err)
	}
}

func TestCreateListDelete(t *testing.T) {
	m := newTestManager(t, true)

	meta, err := m.Create("proj-a")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if meta.Namespace != "proj-a" || meta.CreatedAt.IsZero() {
		t.Errorf("metadata = %+v", meta)
	}

	if _, err := m.Create("proj-a"); err == nil {
		t.Error("duplicate create should fail")
	}

	if m.Path("proj-a") != filepath.Join(m.dataPath, "namespaces", "proj-a") {
		t.Errorf("path = %q", m.Path("proj-a"))
	}

	list, err := m.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list length = %d, want 2", len(list))
	}

	if err := m.Delete("proj-a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if m.Exists("proj-a") {
		t.Error("namespace should be gone after delete")
	}
}

func TestDeleteProtections(t *testing.T) {
	m := newTestManager(t, true)

	if err := m.Delete(DefaultName); !errors.Is(err, ErrProtected) {
		t.Errorf("deleting default = %v, want ErrProtected", err)
	}
	if err := m.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleting missing = %v, want ErrNotFound", err)
	}
}

func TestStoreAutoCreate(t *testing.T) {
	m := newTestManager(t, true)

	store, err := m.Store("fresh")
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if !m.Exists("fresh") {
		t.Error("namespace should be auto-created")
	}

	again, err := m.Store("fresh")
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if store != again {
		t.Error("store handles should be cached")
	}
}

func TestStoreNoAutoCreate(t *testing.T) {
	m := newTestManager(t, false)
	if _, err := m.Store("fresh"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound without auto-create, got %v", err)
	}
}

func TestResolvePrecedence(t *testing.T) {
	m := newTestManager(t, true)

	tests := []struct {
		name                        string
		urlNS, sessionNS, requestNS string
		want                        string
		wantDenied                  bool
	}{
		{"all empty falls to default", "", "", "", "default", false},
		{"request arg wins over default", "", "", "req", "req", false},
		{"session wins over request", "", "sess", "", "sess", false},
		{"url wins when unbound", "url", "", "req", "url", false},
		{"url default segment ignored", "default", "sess", "", "sess", false},
		{"bound session accepts same explicit", "sess", "sess", "sess", "sess", false},
		{"bound session rejects other url", "other", "sess", "", "", true},
		{"bound session rejects other request", "", "sess", "other", "", true},
	}
	for _, tt := range tests {
		got, err := m.Resolve(tt.urlNS, tt.sessionNS, tt.requestNS)
		if tt.wantDenied {
			if !errors.Is(err, ErrDenied) {
				t.Errorf("%s: err = %v, want ErrDenied", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestIsolation(t *testing.T) {
	m := newTestManager(t, true)

	a, err := m.Store("ns-a")
	if err != nil {
		t.Fatalf("store a: %v", err)
	}
	b, err := m.Store("ns-b")
	if err != nil {
		t.Fatalf("store b: %v", err)
	}

	if a.Path() == b.Path() {
		t.Error("namespaces share a storage root")
	}

	countsA, err := a.TableCounts()
	if err != nil {
		t.Fatalf("counts a: %v", err)
	}
	if countsA["work_items"] != 0 {
		t.Errorf("fresh namespace has %d work items", countsA["work_items"])
	}
}
