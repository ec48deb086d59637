package http

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Upload godoc
// @Summary Submit a catalog file for asynchronous import
// @Tags upload
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or XLSX catalog file"
// @Success 202 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /upload [post]
func (h *Handler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	taskID, err := h.uploads.EnqueueUpload(c.Request.Context(), header.Filename, content)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusAccepted, gin.H{"task_id": taskID})
}

// UploadStatus godoc
// @Summary Poll the status of an import job
// @Tags upload
// @Produce json
// @Success 200 {object} job.Job
// @Failure 404 {object} ErrorResponse
// @Router /upload/{task_id} [get]
func (h *Handler) UploadStatus(c *gin.Context) {
	snapshot, err := h.jobs.Get(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, snapshot)
}
