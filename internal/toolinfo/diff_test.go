package toolinfo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	stored := Record{
		Name:     "tool",
		Title:    "Tool",
		Keywords: []string{"a"},
		Comment:  "first import",
	}

	same := stored
	same.Comment = "another comment"
	changed, err := Diff(stored, same)
	require.NoError(t, err)
	require.Empty(t, changed)

	next := stored
	next.Title = "Renamed"
	next.Keywords = []string{"a", "b"}
	next.Author = []Author{{Name: "someone"}}
	changed, err = Diff(stored, next)
	require.NoError(t, err)
	require.Equal(t, []string{"author", "keywords", "title"}, changed)
}

func TestDiffTreatsEmptyAsAbsent(t *testing.T) {
	t.Parallel()

	changed, err := Diff(
		Record{Name: "tool", Subtitle: ""},
		Record{Name: "tool", Keywords: []string{}},
	)
	require.NoError(t, err)
	require.Empty(t, changed)
}
