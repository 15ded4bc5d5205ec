package chapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const part2 = "/books/saga/part02.mp3"

func mustChapter(t *testing.T, title, file, raw string) Chapter {
	t.Helper()
	a, err := ParseAnchor(file, raw)
	require.NoError(t, err)
	c, err := NewChapter(title, a)
	require.NoError(t, err)
	return c
}

func TestNewChapter(t *testing.T) {
	c := mustChapter(t, "Prologue", part1, "00:00")

	assert.Equal(t, "Prologue", c.Title())
	assert.False(t, c.IsEndKnown())
	assert.True(t, c.End().IsUnknown())
	assert.Equal(t, "Prologue [part01.mp3: 00:00:00 -> ?]", c.String())

	_, err := NewChapter("Nowhere", Unknown)
	assert.ErrorIs(t, err, ErrUnknownStart)
}

func TestChapter_WithEndDoesNotMutate(t *testing.T) {
	c := mustChapter(t, "One", part1, "00:00")
	end, err := ParseAnchor(part1, "10:00")
	require.NoError(t, err)

	ended := c.WithEnd(end)

	assert.True(t, ended.IsEndKnown())
	assert.Equal(t, end, ended.End())
	assert.False(t, c.IsEndKnown())
}

func TestMerge(t *testing.T) {
	chapters := []Chapter{
		mustChapter(t, "Ch1", part1, "00:00:00"),
		mustChapter(t, "Ch2", part1, "00:10:00"),
		mustChapter(t, "Ch3", part2, "00:00:00"),
		mustChapter(t, "Ch4", part2, "00:05:00"),
	}

	merged := Merge(chapters)
	require.Len(t, merged, 4)

	for i := range chapters {
		assert.Equal(t, chapters[i].Title(), merged[i].Title())
		assert.Equal(t, chapters[i].Start(), merged[i].Start())
	}

	assert.Equal(t, chapters[1].Start(), merged[0].End())
	assert.Equal(t, "00:10:00", merged[0].End().Time())
	assert.Equal(t, part1, merged[0].End().File())

	// Ch3 starts its file, so Ch2 runs to the end of part01.
	assert.True(t, merged[1].End().IsUnknown())

	assert.Equal(t, "00:05:00", merged[2].End().Time())
	assert.Equal(t, part2, merged[2].End().File())

	assert.True(t, merged[3].End().IsUnknown())

	for _, c := range merged {
		assert.False(t, c.SpansFiles(), c.String())
	}

	// the input is left untouched
	for _, c := range chapters {
		assert.False(t, c.IsEndKnown())
	}
}

func TestMerge_CrossFileContinuation(t *testing.T) {
	// part02 begins mid-chapter: its first marker is not at 00:00.
	chapters := []Chapter{
		mustChapter(t, "Ch1", part1, "00:00"),
		mustChapter(t, "Ch2", part2, "03:15"),
	}

	merged := Merge(chapters)
	require.Len(t, merged, 2)

	assert.Equal(t, chapters[1].Start(), merged[0].End())
	assert.True(t, merged[0].SpansFiles())
	assert.False(t, merged[1].SpansFiles())
}

func TestMerge_Edges(t *testing.T) {
	assert.Empty(t, Merge(nil))

	single := Merge([]Chapter{mustChapter(t, "Only", part1, "00:00")})
	require.Len(t, single, 1)
	assert.True(t, single[0].End().IsUnknown())
}
