package blobstore

import (
	"bytes"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfPageCount returns the page count of a PDF payload, or 0 when the
// payload cannot be parsed. Metadata enrichment is best-effort: a corrupt
// PDF still gets stored, it just carries no page count.
func pdfPageCount(data []byte) int {
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		slog.Debug("pdf page count unavailable", "error", err)
		return 0
	}
	return pdfCtx.PageCount
}
