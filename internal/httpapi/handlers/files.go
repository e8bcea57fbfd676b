package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/multimind-ai/multimind/internal/common"
)

// 10 MiB, same ceiling gin uses for multipart memory
const maxAttachmentSize = 10 << 20

// UploadAttachment stages a file in redis and returns its id; turn requests
// reference attachments by these ids before the TTL runs out.
func (h *Handler) UploadAttachment(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10010, "missing file field")
		return
	}
	defer file.Close()

	if header.Size > maxAttachmentSize {
		common.Fail(c, http.StatusBadRequest, 10011, "file too large")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxAttachmentSize+1))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20010, "failed to read file")
		return
	}
	if len(data) > maxAttachmentSize {
		common.Fail(c, http.StatusBadRequest, 10011, "file too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id, err := h.Files.PutFile(c.Request.Context(), contentType, data)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20011, "failed to store file")
		return
	}
	common.OK(c, gin.H{"file_id": id, "filename": header.Filename})
}

func (h *Handler) DownloadAttachment(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	contentType, data, err := h.Files.GetFile(c.Request.Context(), c.Param("file_id"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}
