package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"voeventdb/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ExportHandler struct {
	service service.ExportService
	logger  *slog.Logger
}

func NewExportHandler(service service.ExportService, logger *slog.Logger) *ExportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{service: service, logger: logger}
}

// SummaryXLSX renders the summary listing for the request's filters as a
// spreadsheet download.
func (h *ExportHandler) SummaryXLSX(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.service.SummaryWorkbook(c.Request.Context(), &buf, c.Request.URL.Query()); err != nil {
		writeError(c, h.logger, err)
		return
	}
	name := fmt.Sprintf("voevent_summary_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
