package handlers

import (
	"log/slog"
	"net/http"

	"voeventdb/internal/service"

	"github.com/gin-gonic/gin"
)

type QueryHandler struct {
	service service.QueryService
	logger  *slog.Logger
}

func NewQueryHandler(service service.QueryService, logger *slog.Logger) *QueryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryHandler{service: service, logger: logger}
}

func (h *QueryHandler) Count(c *gin.Context) {
	n, err := h.service.Count(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, n)
}

// List serves one of the paginated listings. The applied limit is echoed so
// clients can tell when the default was used.
func (h *QueryHandler) List(kind service.ListKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.service.List(c.Request.Context(), kind, c.Request.URL.Query())
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		body := envelope(c, res.Items)
		body[KeyLimit] = res.Page.Limit
		c.JSON(http.StatusOK, body)
	}
}

func (h *QueryHandler) Map(kind service.MapKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.Map(c.Request.Context(), kind, c.Request.URL.Query())
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		respond(c, result)
	}
}

func (h *QueryHandler) Synopsis(c *gin.Context) {
	syn, err := h.service.Synopsis(c.Request.Context(), ivornParam(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, syn)
}

func (h *QueryHandler) PacketXML(c *gin.Context) {
	xml, err := h.service.PacketXML(c.Request.Context(), ivornParam(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", xml)
}
