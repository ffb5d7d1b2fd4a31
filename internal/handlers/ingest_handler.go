package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"voeventdb/internal/apierror"
	"voeventdb/internal/filestore"
	"voeventdb/internal/service"

	"github.com/gin-gonic/gin"
)

type IngestHandler struct {
	service service.IngestService
	logger  *slog.Logger
}

func NewIngestHandler(service service.IngestService, logger *slog.Logger) *IngestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestHandler{service: service, logger: logger}
}

var outcomeStatus = map[string]int{
	service.OutcomeInserted:  http.StatusCreated,
	service.OutcomeDuplicate: http.StatusOK,
	service.OutcomeConflict:  http.StatusConflict,
	service.OutcomeInvalid:   http.StatusBadRequest,
}

// PostPacket safely inserts the raw VOEvent in the request body.
func (h *IngestHandler) PostPacket(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, filestore.MaxEntrySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": apierror.Error{
				Code:        http.StatusRequestEntityTooLarge,
				Description: "Packet too large",
				Message:     "Packets are limited to 16 MiB.",
			}})
			return
		}
		writeError(c, h.logger, err)
		return
	}

	res, err := h.service.InsertPacket(c.Request.Context(), body, "http")
	status, known := outcomeStatus[res.Outcome]
	if !known {
		writeError(c, h.logger, err)
		return
	}

	out := gin.H{"ivorn": res.Ivorn, "outcome": res.Outcome}
	if err != nil {
		out["message"] = err.Error()
	}
	c.JSON(status, out)
}

// RecentRuns lists the latest archive loads.
func (h *IngestHandler) RecentRuns(c *gin.Context) {
	runs, err := h.service.RecentRuns(c.Request.Context(), 20)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
