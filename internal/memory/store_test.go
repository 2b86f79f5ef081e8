package memory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nrvault/memtask/internal/storeerr"
)

func TestPutAndGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	m, err := s.Put(Memory{
		Project: "demo",
		Tags:    []string{"go", "storage"},
		Body:    "remember to vendor the sqlite driver",
	})
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	require.NotEmpty(t, m.Path)

	got, err := s.Get(m.Path)
	require.NoError(t, err)
	require.Equal(t, m.ID, got.ID)
	require.Equal(t, "remember to vendor the sqlite driver", got.Body)
	require.Equal(t, 1, got.AccessCount)
}

func TestPutAppliesDefaultsOnRead(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	m, err := s.Put(Memory{Body: "short note"})
	require.NoError(t, err)

	got, err := s.Get(m.Path)
	require.NoError(t, err)
	require.Equal(t, PriorityMedium, got.Priority)
	require.Equal(t, StatusActive, got.Status)
	require.GreaterOrEqual(t, got.Complexity, 1)
}

func TestPutRejectsPathEscapeProject(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	_, err := s.Put(Memory{Project: "../../etc", Body: "x"})
	require.Error(t, err)
	require.Equal(t, storeerr.InvalidPath, storeerr.KindOf(err))
}

func TestDeleteIsIdempotentPastFirstCall(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	m, err := s.Put(Memory{Body: "to be deleted"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(m.Path))
	err = s.Delete(m.Path)
	require.Error(t, err)
	require.Equal(t, storeerr.NotFound, storeerr.KindOf(err))
}

func TestListOrdersNewestFirst(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	older, err := s.Put(Memory{Body: "older note", Timestamp: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	newer, err := s.Put(Memory{Body: "newer note", Timestamp: time.Now()})
	require.NoError(t, err)

	list, err := s.List("", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, newer.ID, list[0].ID)
	require.Equal(t, older.ID, list[1].ID)
}

func TestListScopedToProject(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	_, err := s.Put(Memory{Project: "alpha", Body: "alpha note"})
	require.NoError(t, err)
	_, err = s.Put(Memory{Project: "beta", Body: "beta note"})
	require.NoError(t, err)

	list, err := s.List("alpha", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "alpha note", list[0].Body)
}

func TestSearchMatchesBodyTagsAndCategory(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	_, err := s.Put(Memory{Body: "uses the fsnotify watcher", Tags: []string{"watcher"}})
	require.NoError(t, err)
	_, err = s.Put(Memory{Body: "unrelated content", Category: CategoryWork})
	require.NoError(t, err)

	results, err := s.Search("watcher", "")
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = s.Search("work", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestUnknownHeaderKeysRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	m, err := s.Put(Memory{Body: "note with future field"})
	require.NoError(t, err)

	full := filepath.Join(dir, m.Path)
	raw, err := os.ReadFile(full)
	require.NoError(t, err)

	// Inject a header key this version of memtask doesn't know about,
	// simulating a file written by a newer client.
	withExtra := strings.Replace(string(raw), "id: ", "future_field: keep-me\nid: ", 1)
	require.NoError(t, os.WriteFile(full, []byte(withExtra), 0o644))

	got, err := s.Get(m.Path)
	require.NoError(t, err)
	require.Equal(t, "keep-me", got.extra["future_field"])

	reEncoded, err := encode(got)
	require.NoError(t, err)
	require.Contains(t, string(reEncoded), "future_field")
}

func TestDeriveComplexityAndContentType(t *testing.T) {
	m := &Memory{Body: "plain short note"}
	applyDerivations(m)
	require.Equal(t, 1, m.Complexity)
	require.Equal(t, ContentText, m.Metadata.ContentType)

	code := &Memory{Body: "```go\nfunc main() {}\n```"}
	applyDerivations(code)
	require.Equal(t, ContentCode, code.Metadata.ContentType)

	structured := &Memory{Body: `{"a": 1}`}
	applyDerivations(structured)
	require.Equal(t, ContentStructured, structured.Metadata.ContentType)
}
