// store.go implements the put/get/list/delete/search operations of
// spec.md §4.1 against a filesystem tree rooted at Store.base.
package memory

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nrvault/memtask/internal/logging"
	"github.com/nrvault/memtask/internal/storeerr"
)

var projectPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)
var slugNonWord = regexp.MustCompile(`[^a-z0-9]+`)

// Store persists memories as files under base, one per
// <base>/<project>/<yyyy-mm-dd>-<slug>-<suffix>.md.
type Store struct {
	base string

	mu sync.RWMutex
}

// New creates a memory Store rooted at base. base is created on first write.
func New(base string) *Store {
	return &Store{base: base}
}

func sanitizeProject(project string) (string, error) {
	if project == "" {
		return "", nil
	}
	if !projectPattern.MatchString(project) {
		return "", storeerr.New(storeerr.InvalidPath, project, "project must match [A-Za-z0-9_-]{1,50}")
	}
	return project, nil
}

// resolvePath computes the absolute on-disk path for a relative path
// and fails with PathEscape if it is not a descendant of base.
func (s *Store) resolvePath(rel string) (string, error) {
	full := filepath.Join(s.base, rel)
	cleanBase := filepath.Clean(s.base)
	cleanFull := filepath.Clean(full)
	if cleanFull != cleanBase && !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", storeerr.New(storeerr.PathEscape, rel, "resolves outside the memory store root")
	}
	return cleanFull, nil
}

func slugify(content string) string {
	s := content
	if len(s) > 30 {
		s = s[:30]
	}
	s = strings.ToLower(s)
	s = slugNonWord.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "memory"
	}
	return s
}

func suffix(id string) string {
	sum := sha1.Sum([]byte(id))
	return hex.EncodeToString(sum[:])[:6]
}

func (s *Store) filenameFor(m *Memory) (string, error) {
	project, err := sanitizeProject(m.Project)
	if err != nil {
		return "", err
	}
	datePrefix := m.Timestamp.UTC().Format("2006-01-02")
	slug := slugify(m.Body)
	name := fmt.Sprintf("%s-%s-%s.md", datePrefix, slug, suffix(m.ID))
	if project != "" {
		return filepath.Join(project, name), nil
	}
	return name, nil
}

// Put writes a new memory, assigning an id and timestamp if unset, and
// deriving Complexity/ContentType when the caller left them blank.
func (s *Store) Put(m Memory) (*Memory, error) {
	timer := logging.StartTimer(logging.CategoryStore, "put")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	applyDerivations(&m)
	m.applyDefaults()

	rel, err := s.filenameFor(&m)
	if err != nil {
		return nil, err
	}
	full, err := s.resolvePath(rel)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, storeerr.Wrap(storeerr.IO, rel, err)
	}

	data, err := encode(&m)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return nil, storeerr.Wrap(storeerr.IO, rel, err)
	}

	m.Path = rel
	logging.Get(logging.CategoryStore).Debug("wrote memory %s at %s", m.ID, rel)
	return &m, nil
}

// Get loads the memory at rel and bumps its access count/last-accessed
// timestamp (a read-modify-write, tolerated at spec.md's single-process
// lock granularity).
func (s *Store) Get(rel string) (*Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(rel)
}

func (s *Store) getLocked(rel string) (*Memory, error) {
	full, err := s.resolvePath(rel)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storeerr.New(storeerr.NotFound, rel, "")
		}
		return nil, storeerr.Wrap(storeerr.IO, rel, err)
	}
	m, err := decode(raw)
	if err != nil {
		return nil, err
	}
	m.Path = rel
	m.AccessCount++
	m.LastAccessed = time.Now().UTC()
	if data, encErr := encode(m); encErr == nil {
		_ = os.WriteFile(full, data, 0o644)
	}
	return m, nil
}

// Update rewrites the memory at m.Path (delete-old-then-write-new with
// a restore-on-failure discipline per spec.md §4.1's failure semantics).
func (s *Store) Update(m Memory) (*Memory, error) {
	if m.Path == "" {
		return nil, storeerr.New(storeerr.InvalidPath, m.ID, "memory has no path to update")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolvePath(m.Path)
	if err != nil {
		return nil, err
	}

	backup, err := os.ReadFile(full)
	hadBackup := err == nil

	applyDerivations(&m)
	m.applyDefaults()
	data, err := encode(&m)
	if err != nil {
		return nil, err
	}

	newRel, err := s.filenameFor(&m)
	if err != nil {
		return nil, err
	}
	newFull, err := s.resolvePath(newRel)
	if err != nil {
		return nil, err
	}

	if newFull != full {
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return nil, storeerr.Wrap(storeerr.IO, m.Path, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(newFull), 0o755); err != nil {
		return nil, storeerr.Wrap(storeerr.IO, newRel, err)
	}
	if err := os.WriteFile(newFull, data, 0o644); err != nil {
		if hadBackup {
			_ = os.WriteFile(full, backup, 0o644)
		}
		return nil, storeerr.Wrap(storeerr.IO, newRel, err)
	}
	m.Path = newRel
	return &m, nil
}

// Delete removes the memory at rel. Idempotent past the first call:
// the second call returns NotFound (spec.md §4.1).
func (s *Store) Delete(rel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolvePath(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return storeerr.New(storeerr.NotFound, rel, "")
		}
		return storeerr.Wrap(storeerr.IO, rel, err)
	}
	return nil
}

// List returns memories under project (or every project if empty),
// newest-first, capped at limit (0 means unlimited).
func (s *Store) List(project string, limit int) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root := s.base
	if project != "" {
		sanitized, err := sanitizeProject(project)
		if err != nil {
			return nil, err
		}
		root = filepath.Join(s.base, sanitized)
	}

	var out []*Memory
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(s.base, path)
		if relErr != nil {
			return nil
		}
		m, getErr := s.getLocked(rel)
		if getErr != nil {
			logging.Get(logging.CategoryStore).Warn("list: skipping unparsable file %s: %v", rel, getErr)
			return nil
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, storeerr.Wrap(storeerr.IO, root, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Search does a case-insensitive substring match over body, tags, and
// category, ordered by timestamp descending (spec.md §4.1).
func (s *Store) Search(query, project string) ([]*Memory, error) {
	all, err := s.List(project, 0)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []*Memory
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.Body), q) ||
			strings.Contains(strings.ToLower(string(m.Category)), q) ||
			tagsContain(m.Tags, q) {
			out = append(out, m)
		}
	}
	return out, nil
}

func tagsContain(tags []string, q string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}
