package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartops-chat/internal/service"
)

const notFoundText = "Resposta não encontrada"

// ExportHandler sirve la versión imprimible de una respuesta de IA.
type ExportHandler struct {
	logger     *zap.Logger
	responses  *service.ResponseService
	exportServ *service.ExportService
}

func NewExportHandler(logger *zap.Logger, responses *service.ResponseService, exportServ *service.ExportService) *ExportHandler {
	return &ExportHandler{
		logger:     logger,
		responses:  responses,
		exportServ: exportServ,
	}
}

// GenerateHTML maneja POST /generate_html.
func (h *ExportHandler) GenerateHTML(c *gin.Context) {
	var req struct {
		ResponseID string `json:"response_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid generate html request", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"success": false, "error": notFoundText})
		return
	}

	id := strings.TrimSpace(req.ResponseID)
	if _, err := h.responses.Lookup(c.Request.Context(), id); err != nil {
		if !errors.Is(err, service.ErrResponseNotFound) {
			h.logger.Error("response lookup failed", zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": false, "error": notFoundText})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "url": "/view_html/" + id})
}

// ViewHTML maneja GET /view_html/:response_id.
func (h *ExportHandler) ViewHTML(c *gin.Context) {
	msg, err := h.responses.Lookup(c.Request.Context(), c.Param("response_id"))
	if err != nil {
		if !errors.Is(err, service.ErrResponseNotFound) {
			h.logger.Error("response lookup failed", zap.Error(err))
		}
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte("<h1>"+notFoundText+"</h1>"))
		return
	}

	page, err := h.exportServ.Render(msg.Content)
	if err != nil {
		h.logger.Error("render export failed", zap.Error(err), zap.String("response_id", msg.ResponseID))
		c.Data(http.StatusInternalServerError, "text/html; charset=utf-8", []byte("<h1>Erro interno</h1>"))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}
