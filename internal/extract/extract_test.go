package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

// minimalPDF renders one WinAnsi text line per page. An empty string gives a page without content.
func minimalPDF(pages ...string) []byte {
	var objs []string
	kids := ""
	// 1 catalog, 2 pages, 3 font, then page/content pairs
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		contentNum := 5 + 2*i
		if text == "" {
			objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>", "<< /Length 0 >>\nstream\n\nendstream")
			continue
		}
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentNum),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestExtractText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invoice.txt")
	require.NoError(t, os.WriteFile(path, []byte("  invoice total: $450\n"), 0o644))

	docs, err := New().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "invoice total: $450", docs[0].Text)
	assert.Equal(t, "invoice.txt", docs[0].Metadata.SourceName)
	assert.Equal(t, 1, docs[0].Metadata.Page)
	assert.Equal(t, DocID(path), docs[0].Metadata.DocID)
	assert.Len(t, docs[0].Metadata.DocID, 16)
}

func TestExtractEmptyTextIsNoText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.md")
	require.NoError(t, os.WriteFile(path, []byte(" \n\t"), 0o644))
	_, err := New().Extract(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrNoText)
}

func TestExtractUnsupported(t *testing.T) {
	_, err := New().Extract(context.Background(), "slides.pptx")
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, Supported("a.docx"))
	assert.True(t, Supported("A.PDF"))
}

func TestExtractPDFPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, minimalPDF("Invoice total: $450", "", "Paid by wire"), 0o644))

	docs, err := New().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0].Text, "Invoice total: $450")
	assert.Equal(t, 1, docs[0].Metadata.Page)
	assert.Contains(t, docs[1].Text, "Paid by wire")
	assert.Equal(t, 3, docs[1].Metadata.Page)
	assert.Equal(t, "report.pdf", docs[1].Metadata.SourceName)
	assert.Equal(t, docs[0].Metadata.DocID, docs[1].Metadata.DocID)
}

func TestExtractInvalidPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a pdf, just some text that is long enough to read a tail from it"), 0o644))
	_, err := New().Extract(context.Background(), path)
	assert.Error(t, err)
}

func TestDocIDStable(t *testing.T) {
	assert.Equal(t, DocID("docs/a.pdf"), DocID("./docs/../docs/a.pdf"))
	assert.NotEqual(t, DocID("docs/a.pdf"), DocID("docs/b.pdf"))
}
