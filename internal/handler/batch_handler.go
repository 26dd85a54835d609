package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/certchain-io/certchain-api/internal/dto"
	"github.com/certchain-io/certchain-api/internal/service"
	appErrors "github.com/certchain-io/certchain-api/pkg/errors"
	"github.com/certchain-io/certchain-api/pkg/response"
)

// BatchHandler wires the batch pipeline endpoints to the orchestrator.
type BatchHandler struct {
	service        *service.BatchService
	maxUploadBytes int64
}

// NewBatchHandler creates a new handler.
func NewBatchHandler(svc *service.BatchService, maxUploadBytes int64) *BatchHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &BatchHandler{service: svc, maxUploadBytes: maxUploadBytes}
}

// Validate godoc
// @Summary Validate a batch CSV upload
// @Description Parses and validates the uploaded file; registers a job when at least one row is valid
// @Tags Batch
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Param templateId formData string false "Certificate template"
// @Param notify formData bool false "Send issuance emails"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates/batch/validate [post]
func (h *BatchHandler) Validate(c *gin.Context) {
	var opts dto.BatchUploadOptions
	if err := c.ShouldBind(&opts); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid upload options"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "csv file required"))
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusRequestEntityTooLarge, "uploaded file too large"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	if int64(len(raw)) > h.maxUploadBytes {
		response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusRequestEntityTooLarge, "uploaded file too large"))
		return
	}

	createdBy := ""
	if claims := claimsFromContext(c); claims != nil {
		createdBy = claims.UserID
	}

	result, err := h.service.ValidateUpload(c.Request.Context(), createdBy, raw, opts.TemplateID, opts.Notify)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Process godoc
// @Summary Start processing a validated batch
// @Description Transitions the job to processing and dispatches it to a background worker
// @Tags Batch
// @Produce json
// @Param id path string true "Job identifier"
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates/batch/{id}/process [post]
func (h *BatchHandler) Process(c *gin.Context) {
	jobID := c.Param("id")
	if err := h.service.ProcessBatch(c.Request.Context(), jobID); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"jobId": jobID, "status": "processing"})
}

// Status godoc
// @Summary Poll batch job status
// @Tags Batch
// @Produce json
// @Param id path string true "Job identifier"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates/batch/{id}/status [get]
func (h *BatchHandler) Status(c *gin.Context) {
	job, err := h.service.Status(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Results godoc
// @Summary Fetch the terminal batch result set
// @Tags Batch
// @Produce json
// @Param id path string true "Job identifier"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates/batch/{id}/results [get]
func (h *BatchHandler) Results(c *gin.Context) {
	job, err := h.service.Results(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}
