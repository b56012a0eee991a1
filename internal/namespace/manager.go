// Package namespace manages isolated storage roots. Each namespace owns a
// directory with its own database; the directory tree is the source of truth
// for existence. The "default" namespace lives at the data root and always
// exists.
package namespace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/storage"
)

var (
	ErrInvalidName = errors.New("invalid namespace name")
	ErrReserved    = errors.New("namespace name is reserved")
	ErrNotFound    = errors.New("namespace not found")
	ErrProtected   = errors.New("namespace cannot be deleted")
	// ErrDenied is returned when a session bound to one namespace explicitly
	// requests another. The dispatcher surfaces it as invalid params.
	ErrDenied = errors.New("namespace access denied")
)

// DefaultName is the namespace that always exists and cannot be deleted.
const DefaultName = "default"

const (
	metadataFileName = ".namespace_metadata"
	metadataVersion  = "1.0"
	maxNameLength    = 50
)

// Single characters are valid; longer names must start and end alphanumeric.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*[A-Za-z0-9]$|^[A-Za-z0-9]$`)

var reservedNames = map[string]struct{}{
	"admin": {}, "system": {}, "config": {}, "api": {}, "health": {},
	"status": {}, "backup": {}, "restore": {}, "migration": {},
	"temp": {}, "tmp": {}, "cache": {},
}

// Metadata is the diagnostic record written to each namespace root.
type Metadata struct {
	Namespace string    `json:"namespace"`
	CreatedAt time.Time `json:"created_at"`
	Version   string    `json:"version"`
}

// Manager resolves, creates, and deletes namespaces and hands out their store
// handles.
type Manager struct {
	dataPath    string
	defaultName string
	autoCreate  bool

	mu     sync.Mutex
	stores map[string]*storage.Store
}

// NewManager prepares the data root and guarantees the default namespace
// exists. defaultName is the configured fallback label (usually "default").
func NewManager(dataPath, defaultName string, autoCreate bool) (*Manager, error) {
	if defaultName == "" {
		defaultName = DefaultName
	}
	m := &Manager{
		dataPath:    dataPath,
		defaultName: defaultName,
		autoCreate:  autoCreate,
		stores:      make(map[string]*storage.Store),
	}

	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data path: %w", err)
	}
	if err := m.writeMetadataIfMissing(DefaultName); err != nil {
		return nil, err
	}
	if defaultName != DefaultName {
		// A configured non-standard fallback has to exist up front as well.
		if _, err := m.Create(defaultName); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	return m, nil
}

// Validate enforces the label rules: pattern, length 1-50, not reserved.
func Validate(name string) error {
	if len(name) == 0 || len(name) > maxNameLength {
		return fmt.Errorf("%w: length must be 1-%d characters", ErrInvalidName, maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must be alphanumeric with interior hyphens or underscores", ErrInvalidName, name)
	}
	if _, ok := reservedNames[name]; ok {
		return fmt.Errorf("%w: %q", ErrReserved, name)
	}
	return nil
}

// Path returns the storage root for name. The default namespace shares the
// data root; all others live under namespaces/<name>/.
func (m *Manager) Path(name string) string {
	if name == DefaultName {
		return m.dataPath
	}
	return filepath.Join(m.dataPath, "namespaces", name)
}

// Exists reports whether the namespace's directory is present.
func (m *Manager) Exists(name string) bool {
	if name == DefaultName {
		return true
	}
	info, err := os.Stat(m.Path(name))
	return err == nil && info.IsDir()
}

// Create makes the namespace directory and writes its metadata file.
// Creating an existing namespace fails with os.ErrExist.
func (m *Manager) Create(name string) (*Metadata, error) {
	if name != DefaultName {
		if err := Validate(name); err != nil {
			return nil, err
		}
	}
	if m.Exists(name) && name != DefaultName {
		return nil, fmt.Errorf("namespace %q: %w", name, os.ErrExist)
	}

	path := m.Path(name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create namespace directory: %w", err)
	}
	if err := m.writeMetadataIfMissing(name); err != nil {
		return nil, err
	}

	logger.Info("📁 Created namespace: %s", name)
	return m.readMetadata(name)
}

// EnsureExists creates name when auto-creation is on, otherwise requires it
// to exist already.
func (m *Manager) EnsureExists(name string) error {
	if m.Exists(name) {
		return nil
	}
	if !m.autoCreate {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	_, err := m.Create(name)
	if err != nil && errors.Is(err, os.ErrExist) {
		// Lost a create race; the namespace is there now.
		return nil
	}
	return err
}

// Delete removes the namespace tree. The default namespace is protected.
func (m *Manager) Delete(name string) error {
	if name == DefaultName {
		return fmt.Errorf("%w: %s", ErrProtected, name)
	}
	if !m.Exists(name) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	m.CloseStore(name)

	if err := os.RemoveAll(m.Path(name)); err != nil {
		return fmt.Errorf("failed to delete namespace: %w", err)
	}
	logger.Info("🗑️  Deleted namespace: %s", name)
	return nil
}

// List returns every namespace's metadata, default first, the rest sorted by
// name. Directories without a readable metadata file still appear.
func (m *Manager) List() ([]*Metadata, error) {
	result := []*Metadata{}
	if meta, err := m.readMetadata(DefaultName); err == nil {
		result = append(result, meta)
	} else {
		result = append(result, &Metadata{Namespace: DefaultName, Version: metadataVersion})
	}

	nsDir := filepath.Join(m.dataPath, "namespaces")
	entries, err := os.ReadDir(nsDir)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read namespaces directory: %w", err)
	}

	var rest []*Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := m.readMetadata(entry.Name())
		if err != nil {
			meta = &Metadata{Namespace: entry.Name(), Version: metadataVersion}
		}
		rest = append(rest, meta)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Namespace < rest[j].Namespace })
	return append(result, rest...), nil
}

// Stats reports per-table row counts for one namespace.
func (m *Manager) Stats(name string) (map[string]int, error) {
	store, err := m.Store(name)
	if err != nil {
		return nil, err
	}
	return store.TableCounts()
}

// Store returns the open store handle for name, creating the namespace first
// when auto-creation allows it. Handles are cached per namespace.
func (m *Manager) Store(name string) (*storage.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if store, ok := m.stores[name]; ok {
		return store, nil
	}
	if name != DefaultName {
		if err := Validate(name); err != nil {
			return nil, err
		}
	}
	if err := m.EnsureExists(name); err != nil {
		return nil, err
	}

	store, err := storage.Open(m.Path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open namespace store: %w", err)
	}
	m.stores[name] = store
	return store, nil
}

// Resolve picks the effective namespace for one request. Precedence: URL
// segment, session binding, request argument, configured default, "default".
// A bound session rejects any explicit namespace that differs from its
// binding.
func (m *Manager) Resolve(urlNS, sessionNS, requestNS string) (string, error) {
	// A "default" URL segment behaves like an absent one.
	if urlNS == DefaultName {
		urlNS = ""
	}

	if sessionNS != "" {
		for _, explicit := range []string{urlNS, requestNS} {
			if explicit != "" && explicit != sessionNS {
				return "", fmt.Errorf("%w: session is bound to %q, request names %q", ErrDenied, sessionNS, explicit)
			}
		}
		return sessionNS, nil
	}
	if urlNS != "" {
		return urlNS, nil
	}
	if requestNS != "" {
		return requestNS, nil
	}
	if m.defaultName != "" {
		return m.defaultName, nil
	}
	return DefaultName, nil
}

// CloseStore closes and evicts the cached store handle for one namespace.
// The next Store call reopens from disk.
func (m *Manager) CloseStore(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if store, ok := m.stores[name]; ok {
		_ = store.Close()
		delete(m.stores, name)
	}
}

// CloseAll closes every cached store handle.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, store := range m.stores {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store for namespace %s: %v", name, err)
		}
		delete(m.stores, name)
	}
}

func (m *Manager) writeMetadataIfMissing(name string) error {
	path := filepath.Join(m.Path(name), metadataFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	meta := Metadata{
		Namespace: name,
		CreatedAt: time.Now().UTC(),
		Version:   metadataVersion,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal namespace metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write namespace metadata: %w", err)
	}
	return nil
}

func (m *Manager) readMetadata(name string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(m.Path(name), metadataFileName))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("corrupt namespace metadata for %s: %w", name, err)
	}
	return &meta, nil
}
