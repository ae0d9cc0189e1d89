package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/morozRed/classlens/internal/session"
)

const (
	StateFile           = ".state.json"
	CurrentStateVersion = "1"
)

// ArchiveState records what is known about one opened archive file.
type ArchiveState struct {
	Version   string    `json:"version"`
	Entries   int       `json:"entries"`
	Classes   int       `json:"classes"`
	OpenedAt  time.Time `json:"opened_at"`
	IndexedAt time.Time `json:"indexed_at,omitzero"`
}

// State is the CLI's persisted working set: known archives, the active
// one and the open tabs.
type State struct {
	Version   string                  `json:"version"`
	UpdatedAt time.Time               `json:"updated_at"`
	Active    string                  `json:"active,omitempty"`
	Archives  map[string]ArchiveState `json:"archives"`
	Session   session.Snapshot        `json:"session"`
}

// NewState creates a new empty state
func NewState() *State {
	return &State{
		Version:  CurrentStateVersion,
		Archives: make(map[string]ArchiveState),
	}
}

// Load reads state from the state directory. A missing file yields an
// empty state.
func Load(stateDir string) (*State, error) {
	path := filepath.Join(stateDir, StateFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state %s: %w", path, err)
	}

	migrateState(&state)

	return &state, nil
}

// Save writes state to the state directory, creating it if needed.
func (s *State) Save(stateDir string) error {
	migrateState(s)
	s.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	return os.WriteFile(filepath.Join(stateDir, StateFile), data, 0644)
}

// SetArchive records an opened archive and makes it active. It reports
// whether the archive's content version changed since last seen; a
// changed archive loses its indexed mark.
func (s *State) SetArchive(path, version string, entries, classes int) bool {
	changed := s.HasChanged(path, version)
	prev := s.Archives[path]
	next := ArchiveState{
		Version:  version,
		Entries:  entries,
		Classes:  classes,
		OpenedAt: time.Now(),
	}
	if !changed {
		next.IndexedAt = prev.IndexedAt
	}
	s.Archives[path] = next
	s.Active = path
	return changed
}

// MarkIndexed stamps the usage index build time of an archive.
func (s *State) MarkIndexed(path string) {
	archive, ok := s.Archives[path]
	if !ok {
		return
	}
	archive.IndexedAt = time.Now()
	s.Archives[path] = archive
}

// ClearIndexed removes the indexed mark of an archive.
func (s *State) ClearIndexed(path string) {
	archive, ok := s.Archives[path]
	if !ok {
		return
	}
	archive.IndexedAt = time.Time{}
	s.Archives[path] = archive
}

// HasChanged returns true if the archive is new or its version differs
// from the stored one.
func (s *State) HasChanged(path, version string) bool {
	archive, ok := s.Archives[path]
	if !ok {
		return true
	}
	return archive.Version != version
}

// ActiveVersion is the version of the active archive, or empty.
func (s *State) ActiveVersion() string {
	if s.Active == "" {
		return ""
	}
	return s.Archives[s.Active].Version
}

// MissingArchives returns known archive paths for which exists reports
// false, sorted.
func (s *State) MissingArchives(exists func(path string) bool) []string {
	missing := make([]string, 0)
	for path := range s.Archives {
		if !exists(path) {
			missing = append(missing, path)
		}
	}
	sort.Strings(missing)
	return missing
}

// Forget drops an archive. Forgetting the active archive clears the
// active selection and the session.
func (s *State) Forget(path string) {
	delete(s.Archives, path)
	if s.Active == path {
		s.Active = ""
		s.Session = session.Snapshot{}
	}
}

func migrateState(s *State) {
	if s.Archives == nil {
		s.Archives = make(map[string]ArchiveState)
	}
	switch s.Version {
	case "", CurrentStateVersion:
		s.Version = CurrentStateVersion
	default:
		// Keep unknown versions untouched but ensure required maps are initialized.
	}
	if s.Active != "" {
		if _, ok := s.Archives[s.Active]; !ok {
			s.Active = ""
		}
	}
}
