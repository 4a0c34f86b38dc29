package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

var testMeta = domain.Metadata{SourceName: "report.pdf", Page: 3, DocID: "doc-1"}

func TestSplitWindowsCoverText(t *testing.T) {
	text := strings.Repeat("abcdefghij", 23) // 230 runes
	cases := []struct{ size, overlap int }{
		{50, 0}, {50, 10}, {100, 99}, {7, 3}, {500, 100}, {1, 0},
	}
	for _, tc := range cases {
		chunks, err := Split(domain.Document{Text: text, Metadata: testMeta}, tc.size, tc.overlap)
		require.NoError(t, err)

		step := tc.size - tc.overlap
		assert.Len(t, chunks, (len(text)+step-1)/step, "size=%d overlap=%d", tc.size, tc.overlap)

		covered := make([]bool, len(text))
		for i, ch := range chunks {
			assert.LessOrEqual(t, len(ch.Text), tc.size)
			start := i * step
			assert.Equal(t, text[start:start+len(ch.Text)], ch.Text)
			for j := start; j < start+len(ch.Text); j++ {
				covered[j] = true
			}
			assert.Equal(t, testMeta, ch.Metadata)
			assert.NotEmpty(t, ch.ID)
		}
		for pos, ok := range covered {
			require.True(t, ok, "position %d not covered (size=%d overlap=%d)", pos, tc.size, tc.overlap)
		}
	}
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	chunks, err := Split(domain.Document{Text: "ééééé"}, 2, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "éé", chunks[0].Text)
	assert.Equal(t, "é", chunks[2].Text)
}

func TestSplitEmptyText(t *testing.T) {
	chunks, err := Split(domain.Document{Text: "", Metadata: testMeta}, 500, 100)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitRejectsWindowsThatCannotAdvance(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{100, 100}, {100, 150}, {0, 0}, {-1, 0}, {10, -1}} {
		_, err := Split(domain.Document{Text: "some text"}, tc.size, tc.overlap)
		assert.ErrorIs(t, err, domain.ErrInvalidWindow, "size=%d overlap=%d", tc.size, tc.overlap)
	}
	_, err := NewWindowChunker(10, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)
}

func TestWindowChunkerImplementsChunker(t *testing.T) {
	var c domain.Chunker
	wc, err := NewWindowChunker(4, 1)
	require.NoError(t, err)
	c = wc
	chunks, err := c.Chunk(domain.Document{Text: "abcdefg", Metadata: testMeta})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "abcd", chunks[0].Text)
	assert.Equal(t, "defg", chunks[1].Text)
	assert.Equal(t, "g", chunks[2].Text)
}

func TestSentenceChunkerKeepsMetadata(t *testing.T) {
	c := NewSentenceChunker(2, 1)
	chunks, err := c.Chunk(domain.Document{Text: "One. Two. Three. Four.", Metadata: testMeta})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "One. Two.", chunks[0].Text)
	assert.Equal(t, "Two. Three.", chunks[1].Text)
	assert.Equal(t, "Three. Four.", chunks[2].Text)
	for _, ch := range chunks {
		assert.Equal(t, testMeta, ch.Metadata)
	}
}

func TestSentenceChunkerOverlapNeverStalls(t *testing.T) {
	c := NewSentenceChunker(2, 5)
	chunks, err := c.Chunk(domain.Document{Text: "A. B. C. D."})
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestSentenceChunkerBlankText(t *testing.T) {
	chunks, err := NewSentenceChunker(3, 0).Chunk(domain.Document{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSentenceChunkerKeepsTrailingFragment(t *testing.T) {
	chunks, err := NewSentenceChunker(5, 1).Chunk(domain.Document{Text: "Invoice issued in March. Invoice total: $450"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Invoice issued in March. Invoice total: $450", chunks[0].Text)
}
