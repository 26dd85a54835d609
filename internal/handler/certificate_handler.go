package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/certchain-io/certchain-api/internal/dto"
	"github.com/certchain-io/certchain-api/internal/models"
	"github.com/certchain-io/certchain-api/internal/service"
	appErrors "github.com/certchain-io/certchain-api/pkg/errors"
	"github.com/certchain-io/certchain-api/pkg/response"
)

// CertificateHandler wires certificate endpoints to the certificate service.
type CertificateHandler struct {
	service *service.CertificateService
}

// NewCertificateHandler creates a new handler.
func NewCertificateHandler(svc *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{service: svc}
}

// Issue godoc
// @Summary Issue a single certificate
// @Description Render, store, and anchor one certificate on chain
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body dto.IssueCertificateRequest true "Certificate payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	var req dto.IssueCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid certificate payload"))
		return
	}

	createdBy := ""
	if claims := claimsFromContext(c); claims != nil {
		createdBy = claims.UserID
		// Institution issuers can only issue under their own institution.
		if claims.Role == models.RoleInstitution && claims.Institution != "" {
			req.Institution = claims.Institution
		}
	}

	res, err := h.service.Issue(c.Request.Context(), createdBy, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// List godoc
// @Summary List issued certificates
// @Tags Certificates
// @Produce json
// @Param institution query string false "Institution filter"
// @Param studentId query string false "Student identifier filter"
// @Param search query string false "Name or certificate id search"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates [get]
func (h *CertificateHandler) List(c *gin.Context) {
	var query dto.CertificateListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleInstitution && claims.Institution != "" {
		query.Institution = claims.Institution
	}

	res, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res.Items, &res.Pagination)
}

// Get godoc
// @Summary Fetch one certificate
// @Tags Certificates
// @Produce json
// @Param certId path string true "Certificate identifier"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/{certId} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	cert, err := h.service.Get(c.Request.Context(), c.Param("certId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// Verify godoc
// @Summary Verify a certificate against the chain
// @Description Public endpoint; the chain is the source of truth, results are cached
// @Tags Certificates
// @Produce json
// @Param certId path string true "Certificate identifier"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /certificates/{certId}/verify [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), c.Param("certId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
