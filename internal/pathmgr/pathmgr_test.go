package pathmgr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugBasic(t *testing.T) {
	m := New(PlatformOther)
	slug := m.Slug("Fix the Café Bug!!", "abcdef1234567890")
	require.True(t, strings.HasPrefix(slug, "fix-the-cafe-bug"), "got %q", slug)
	require.True(t, strings.HasSuffix(slug, "-abcdef12"), "got %q", slug)
}

func TestSlugEmptyTitleFallsBackToTask(t *testing.T) {
	m := New(PlatformOther)
	slug := m.Slug("!!!", "abcdef1234567890")
	require.True(t, strings.HasPrefix(slug, "task-"), "got %q", slug)
}

func TestSlugIsCached(t *testing.T) {
	m := New(PlatformOther)
	a := m.Slug("Same Title", "id1")
	b := m.Slug("Same Title", "id1")
	require.Equal(t, a, b)
}

func TestDirLevelForTaskLevel(t *testing.T) {
	cases := map[string]DirLevel{
		"master":  LevelProject,
		"epic":    LevelStage,
		"task":    LevelTask,
		"subtask": LevelSub,
	}
	for in, want := range cases {
		got, err := DirLevelForTaskLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := DirLevelForTaskLevel("bogus")
	require.Error(t, err)
}

func TestComponentAndFullPath(t *testing.T) {
	m := New(PlatformOther)
	c := m.Component(1, LevelProject, "My Project", "abcdef1234567890")
	require.Equal(t, "001-PROJECT-my-project-abcdef12", c)

	full := m.FullPath("", c)
	require.Equal(t, c, full)

	child := m.Component(2, LevelStage, "Stage Two", "1234567890abcdef")
	fullChild := m.FullPath(full, child)
	require.Equal(t, c+"/"+child, fullChild)
}

func TestValidateDepth(t *testing.T) {
	m := New(PlatformOther)
	require.NoError(t, m.Validate("a/b/c/d"))
	require.Error(t, m.Validate("a/b/c/d/e"))
}

func TestValidateReservedChar(t *testing.T) {
	m := New(PlatformOther)
	require.Error(t, m.Validate("a/b:c"))
}

func TestValidateLengthLimit(t *testing.T) {
	m := New(PlatformOther)
	long := strings.Repeat("x", 300)
	require.Error(t, m.Validate(long))
}

func TestTruncateKeepsPrefixAndSuffix(t *testing.T) {
	m := New(PlatformOther)
	longTitle := strings.Repeat("very long title segment ", 20)
	c := m.Component(1, LevelTask, longTitle, "abcdef1234567890")

	full := m.FullPath("", c)
	require.LessOrEqual(t, len(full), PlatformOther.MaxPathLength())
	require.True(t, strings.HasPrefix(full, "001-TASK-"))
	require.True(t, strings.HasSuffix(full, "-abcdef12"))
}

func TestMaxPathLengthPerPlatform(t *testing.T) {
	require.Equal(t, 200, PlatformWindows.MaxPathLength())
	require.Equal(t, 900, PlatformMacOS.MaxPathLength())
	require.Equal(t, 200, PlatformOther.MaxPathLength())
}
