// Package backup snapshots the live application tree before each deployment
// and enforces the retention policy. Snapshots exist for manual recovery
// only: nothing here restores one automatically.
package backup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"shipyard/internal/security"
	"shipyard/pkg/fileutil"
)

const (
	// Prefix is the directory name prefix for snapshots.
	Prefix = "backup_"

	// TimestampFormat gives snapshot names second resolution.
	TimestampFormat = "20060102_150405"

	// DefaultKeep is the number of snapshots retained after pruning.
	DefaultKeep = 5
)

// Snapshot is one backup directory under the backup root.
type Snapshot struct {
	Name      string
	Path      string
	CreatedAt time.Time
}

// Manager owns a backup root directory for one application.
type Manager struct {
	root   string
	keep   int
	logger *slog.Logger
}

// NewManager creates a backup manager. keep <= 0 falls back to DefaultKeep.
func NewManager(root string, keep int, logger *slog.Logger) *Manager {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Manager{
		root:   root,
		keep:   keep,
		logger: logger,
	}
}

// Root returns the backup root directory.
func (m *Manager) Root() string {
	return m.root
}

// Snapshot recursively copies appDir into a new timestamp-named directory
// under the backup root, preserving symlinks as links. If appDir does not
// exist yet (first-ever deployment) the snapshot is a no-op returning an
// empty name. A partial copy is removed before the error is returned.
func (m *Manager) Snapshot(appDir string) (string, error) {
	if !fileutil.DirExists(appDir) {
		m.logger.Info("application directory does not exist yet, skipping snapshot", "dir", appDir)
		return "", nil
	}

	if err := security.CreateSecureDir(m.root, security.PermDirectory); err != nil {
		return "", fmt.Errorf("failed to create backup root: %w", err)
	}

	name := Prefix + time.Now().Format(TimestampFormat)
	dest := filepath.Join(m.root, name)

	if fileutil.PathExists(dest) {
		return "", fmt.Errorf("snapshot %s already exists", name)
	}

	if err := fileutil.CopyTree(appDir, dest); err != nil {
		// Never leave a half-written snapshot behind.
		if rmErr := os.RemoveAll(dest); rmErr != nil {
			m.logger.Error("failed to clean up partial snapshot", "name", name, "error", rmErr)
		}
		return "", fmt.Errorf("snapshot copy failed: %w", err)
	}

	m.logger.Info("created backup snapshot", "name", name)
	return name, nil
}

// Remove deletes a single named snapshot.
func (m *Manager) Remove(name string) error {
	if _, ok := ParseName(name); !ok {
		return fmt.Errorf("not a snapshot name: %s", name)
	}
	if err := os.RemoveAll(filepath.Join(m.root, name)); err != nil {
		return fmt.Errorf("failed to remove snapshot %s: %w", name, err)
	}
	return nil
}

// List returns all snapshots under the backup root ordered oldest to newest.
// Ordering uses the parsed timestamp, not the directory name: entries that do
// not parse as snapshot names are ignored entirely.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup root: %w", err)
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		createdAt, ok := ParseName(entry.Name())
		if !ok {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Name:      entry.Name(),
			Path:      filepath.Join(m.root, entry.Name()),
			CreatedAt: createdAt,
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].Name < snapshots[j].Name
		}
		return snapshots[i].CreatedAt.Before(snapshots[j].CreatedAt)
	})

	return snapshots, nil
}

// Latest returns the most recent snapshot, or nil if none exist.
func (m *Manager) Latest() (*Snapshot, error) {
	snapshots, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil
	}
	return &snapshots[len(snapshots)-1], nil
}

// Get returns a snapshot by name.
func (m *Manager) Get(name string) (*Snapshot, error) {
	snapshots, err := m.List()
	if err != nil {
		return nil, err
	}
	for i := range snapshots {
		if snapshots[i].Name == name {
			return &snapshots[i], nil
		}
	}
	return nil, fmt.Errorf("snapshot not found: %s", name)
}

// Prune deletes all but the most recent snapshots so that at most the
// configured keep count remains. Individual deletion failures are logged and
// do not abort the pass.
func (m *Manager) Prune() error {
	snapshots, err := m.List()
	if err != nil {
		return err
	}

	if len(snapshots) <= m.keep {
		return nil
	}

	for _, snap := range snapshots[:len(snapshots)-m.keep] {
		if err := os.RemoveAll(snap.Path); err != nil {
			m.logger.Warn("failed to remove old snapshot", "name", snap.Name, "error", err)
			continue
		}
		m.logger.Info("pruned old snapshot", "name", snap.Name)
	}

	return nil
}

// Restore replays a named snapshot over appDir: the live tree is cleared and
// the snapshot copied back in full. This is the manual recovery path for a
// failed deployment.
func (m *Manager) Restore(name, appDir string) error {
	snap, err := m.Get(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(appDir, 0755); err != nil {
		return fmt.Errorf("failed to create application directory: %w", err)
	}

	if err := fileutil.RemoveContents(appDir, nil); err != nil {
		return fmt.Errorf("failed to clear application directory: %w", err)
	}

	if err := fileutil.CopyTree(snap.Path, appDir); err != nil {
		return fmt.Errorf("failed to copy snapshot back: %w", err)
	}

	m.logger.Info("restored snapshot", "name", name, "dir", appDir)
	return nil
}

// ParseName parses a snapshot directory name into its creation timestamp.
func ParseName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, Prefix) {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(TimestampFormat, strings.TrimPrefix(name, Prefix), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
