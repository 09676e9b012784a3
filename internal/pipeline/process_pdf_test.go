package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/ocrlite/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFImageResult_Name(t *testing.T) {
	r := PDFImageResult{Page: 3, Index: 1}
	assert.Equal(t, "report_p3_1", r.Name("/tmp/docs/report.pdf"))
	assert.Equal(t, "scan_p3_1", r.Name("scan"))
}

func TestProcessPDF_Errors(t *testing.T) {
	p := newFakePipeline(t, newFakeBuilder())

	_, err := p.ProcessPDF(context.Background(), "", "")
	require.Error(t, err)

	_, err = p.ProcessPDF(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), "")
	require.Error(t, err)

	fake := testutil.WriteFile(t, t.TempDir(), "fake.pdf", "not a pdf")
	_, err = p.ProcessPDF(context.Background(), fake, "")
	require.Error(t, err)

	_, err = p.ProcessPDF(context.Background(), fake, "3-1")
	require.ErrorContains(t, err, "invalid page range")
}
