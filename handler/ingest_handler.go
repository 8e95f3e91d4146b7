package handler

import (
	"errors"
	"net/http"

	"github.com/baoteam/rag-bot/service"
	"github.com/baoteam/rag-bot/types"
	"github.com/gin-gonic/gin"
)

type IngestHandler struct {
	ingestService *service.IngestService
}

func NewIngestHandler(ingestService *service.IngestService) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
	}
}

// HandleUpload ingests one yaml entry uploaded as a multipart file.
func (h *IngestHandler) HandleUpload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  "error",
			Message: "Invalid file",
		})
		return
	}
	defer file.Close()

	const maxSize = 10 << 20
	if header.Size > maxSize {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  "error",
			Message: "File too large",
		})
		return
	}

	if err := h.ingestService.IngestEntry(c.Request.Context(), header.Filename, file); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrValidation) {
			status = http.StatusBadRequest
		}
		c.JSON(status, types.DataResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, types.DataResponse{
		Status: "success",
		Data:   gin.H{"name": header.Filename},
	})
}

// HandleRemoveSources deletes indexed chunks by one metadata filter.
func (h *IngestHandler) HandleRemoveSources(c *gin.Context) {
	var req types.RemoveSourcesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  "error",
			Message: "Invalid request body",
		})
		return
	}

	err := h.ingestService.Remove(c.Request.Context(), req.FilterKey, req.FilterValues)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrValidation) {
			status = http.StatusBadRequest
		}
		c.JSON(status, types.DataResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, types.DataResponse{
		Status: "success",
	})
}

// HandleListSources returns the ingested entries, optionally filtered by the
// "like" query parameter.
func (h *IngestHandler) HandleListSources(c *gin.Context) {
	records, err := h.ingestService.ListSources(c.Request.Context(), c.Query("like"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.DataResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, types.DataResponse{
		Status: "success",
		Data:   records,
	})
}
