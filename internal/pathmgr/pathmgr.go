// Package pathmgr generates and validates semantic filesystem paths for
// tasks (spec.md §4.5): <ord>-<LEVEL>-<slug>-<hash8> directory
// components chained into a tree that mirrors the task hierarchy,
// subject to platform path-length limits.
//
// The component-from-object-identity approach follows the path-mapper
// idiom in other_examples' docker/distribution registry storage paths
// file, adapted from a content-addressable blob layout to a
// hierarchy-addressable task layout.
package pathmgr

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/nrvault/memtask/internal/logging"
	"github.com/nrvault/memtask/internal/storeerr"
)

// DirLevel is the directory-name tag for a level in a semantic path.
type DirLevel string

const (
	LevelProject DirLevel = "PROJECT"
	LevelStage   DirLevel = "STAGE"
	LevelTask    DirLevel = "TASK"
	LevelSub     DirLevel = "SUB"
)

// DirLevelForTaskLevel maps the task hierarchy level (spec.md §3:
// master|epic|task|subtask) onto the directory LEVEL tag spec.md §4.5
// names (PROJECT|STAGE|TASK|SUB).
func DirLevelForTaskLevel(taskLevel string) (DirLevel, error) {
	switch taskLevel {
	case "master":
		return LevelProject, nil
	case "epic":
		return LevelStage, nil
	case "task":
		return LevelTask, nil
	case "subtask":
		return LevelSub, nil
	default:
		return "", storeerr.New(storeerr.InvalidPath, taskLevel, "unknown task level")
	}
}

// Platform selects the conservative path-length limit to enforce.
type Platform int

const (
	PlatformOther Platform = iota // conservative default, also used for Windows
	PlatformWindows
	PlatformMacOS
)

// MaxPathLength returns the platform's conservative total-path-length
// budget (spec.md §4.5), already accounting for filename suffix space.
func (p Platform) MaxPathLength() int {
	switch p {
	case PlatformMacOS:
		return 900
	default: // Windows and "others" both get the conservative 200 limit
		return 200
	}
}

// DetectPlatform maps runtime.GOOS onto a Platform.
func DetectPlatform() Platform {
	switch runtime.GOOS {
	case "windows":
		return PlatformWindows
	case "darwin":
		return PlatformMacOS
	default:
		return PlatformOther
	}
}

var reservedChars = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]`)
var repeatedDash = regexp.MustCompile(`-+`)
var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// Manager generates semantic path components and caches slugs by
// (title, id) since slugging the same task repeatedly is wasted work.
type Manager struct {
	platform Platform

	mu        sync.Mutex
	slugCache map[slugKey]string
}

type slugKey struct {
	title string
	id    string
}

// New creates a Manager for the given platform.
func New(platform Platform) *Manager {
	return &Manager{platform: platform, slugCache: make(map[slugKey]string)}
}

// Slug lowercases, strips diacritics, replaces whitespace/underscore
// with '-', drops reserved characters, collapses repeats, trims, and
// appends the first 8 hex chars of id for uniqueness (spec.md §4.5).
func (m *Manager) Slug(title, id string) string {
	key := slugKey{title: title, id: id}

	m.mu.Lock()
	if cached, ok := m.slugCache[key]; ok {
		m.mu.Unlock()
		return cached
	}
	m.mu.Unlock()

	base := stripDiacritics(strings.ToLower(title))
	base = strings.ReplaceAll(base, "_", "-")
	base = reservedChars.ReplaceAllString(base, "")
	base = nonWord.ReplaceAllString(base, "-")
	base = repeatedDash.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "task"
	}

	suffix := hash8(id)
	slug := fmt.Sprintf("%s-%s", base, suffix)

	m.mu.Lock()
	m.slugCache[key] = slug
	m.mu.Unlock()

	return slug
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// hash8 returns the first 8 hex characters of id (lowercased). An id
// with fewer than 8 hex characters falls back to a sha1 of the id.
func hash8(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			b.WriteRune(r)
			if b.Len() == 8 {
				return b.String()
			}
		}
	}
	sum := sha1.Sum([]byte(id))
	return hex.EncodeToString(sum[:])[:8]
}

// Component builds one directory component: <ord>-<LEVEL>-<slug>.
// ord is the path_order among siblings (zero-padded to 3 digits).
func (m *Manager) Component(ord int, level DirLevel, title, id string) string {
	slug := m.Slug(title, id)
	return fmt.Sprintf("%03d-%s-%s", ord, level, slug)
}

// FullPath joins a parent semantic path (may be empty for a root) with
// a new component, then truncates it to the platform limit if needed.
func (m *Manager) FullPath(parentSemanticPath, component string) string {
	full := component
	if parentSemanticPath != "" {
		full = parentSemanticPath + "/" + component
	}
	if len(full) <= m.platform.MaxPathLength() {
		return full
	}
	return m.truncate(parentSemanticPath, component)
}

// truncate shortens component (and, if still too long, the parent
// chain) proportionally, preserving each component's "<ord>-<LEVEL>-"
// prefix and "-<hash8>" suffix, shrinking only the slug middle, down to
// a floor of 10 chars per spec.md §4.5.
func (m *Manager) truncate(parentSemanticPath, component string) string {
	timer := logging.StartTimer(logging.CategoryPath, "truncate")
	defer timer.Stop()

	limit := m.platform.MaxPathLength()
	parts := strings.Split(parentSemanticPath, "/")
	if parentSemanticPath == "" {
		parts = nil
	}
	parts = append(parts, component)

	overBy := 0
	total := pathLen(parts)
	if total > limit {
		overBy = total - limit
	}
	if overBy == 0 {
		return strings.Join(parts, "/")
	}

	// Distribute the cut proportionally to each component's slug middle,
	// never shrinking a slug below 10 chars.
	perComponent := overBy/len(parts) + 1
	for i, p := range parts {
		parts[i] = shrinkComponent(p, perComponent)
	}

	result := strings.Join(parts, "/")
	// If still too long after the floor kicked in everywhere, the path is
	// returned as it is with a warning logged; nothing is trimmed from the
	// front and no depth is dropped.
	if len(result) > limit {
		logging.Get(logging.CategoryPath).Warn("path still exceeds limit after proportional truncation: %d > %d", len(result), limit)
	}
	return result
}

func pathLen(parts []string) int {
	n := 0
	for i, p := range parts {
		n += len(p)
		if i > 0 {
			n++ // separator
		}
	}
	return n
}

// shrinkComponent trims cut characters from the slug's middle while
// preserving the "<ord>-<LEVEL>-" prefix and "-<hash8>" suffix.
func shrinkComponent(component string, cut int) string {
	segs := strings.SplitN(component, "-", 3)
	if len(segs) < 3 {
		return component // not a well-formed component; leave as-is
	}
	prefix := segs[0] + "-" + segs[1] + "-"
	rest := segs[2]

	hashIdx := strings.LastIndex(rest, "-")
	if hashIdx < 0 {
		return component
	}
	slugMiddle := rest[:hashIdx]
	hashSuffix := rest[hashIdx:] // includes leading '-'

	minMiddle := 10
	target := len(slugMiddle) - cut
	if target < minMiddle {
		target = minMiddle
	}
	if target >= len(slugMiddle) {
		return component
	}
	return prefix + slugMiddle[:target] + hashSuffix
}

// Validate fails if path exceeds the platform limit, still contains a
// reserved character, or its directory depth exceeds 4 (spec.md §4.5).
func (m *Manager) Validate(path string) error {
	if len(path) > m.platform.MaxPathLength() {
		return storeerr.New(storeerr.InvalidPath, path, "exceeds platform path length limit")
	}
	if reservedChars.MatchString(path) {
		return storeerr.New(storeerr.InvalidPath, path, "contains a reserved character")
	}
	depth := len(strings.Split(strings.Trim(path, "/"), "/"))
	if depth > 4 {
		return storeerr.New(storeerr.InvalidPath, path, fmt.Sprintf("depth %d exceeds maximum of 4", depth))
	}
	return nil
}
