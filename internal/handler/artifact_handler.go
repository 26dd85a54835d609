package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/certchain-io/certchain-api/pkg/errors"
	"github.com/certchain-io/certchain-api/pkg/response"
	"github.com/certchain-io/certchain-api/pkg/storage"
)

// ArtifactHandler streams generated artifacts (PDFs, QR codes) referenced by
// signed download tokens.
type ArtifactHandler struct {
	signer  *storage.SignedURLSigner
	storage *storage.LocalStorage
}

// NewArtifactHandler creates a new handler.
func NewArtifactHandler(signer *storage.SignedURLSigner, store *storage.LocalStorage) *ArtifactHandler {
	return &ArtifactHandler{signer: signer, storage: store}
}

// Download godoc
// @Summary Download a generated artifact
// @Description Streams the artifact referenced by a signed token
// @Tags Artifacts
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /artifacts/{token} [get]
func (h *ArtifactHandler) Download(c *gin.Context) {
	certID, relPath, _, err := h.signer.Parse(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token"))
		return
	}

	file, err := h.storage.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "artifact not found"))
		return
	}
	defer file.Close() //nolint:errcheck

	contentType := "application/octet-stream"
	switch filepath.Ext(relPath) {
	case ".pdf":
		contentType = "application/pdf"
	case ".png":
		contentType = "image/png"
	}

	c.Header("Content-Disposition", `attachment; filename="`+certID+filepath.Ext(relPath)+`"`)
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	http.ServeContent(c.Writer, c.Request, filepath.Base(relPath), fileModTime(file), file)
}

func fileModTime(file *os.File) time.Time {
	info, err := file.Stat()
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
