package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"datacleaner/internal/media/sniffer"
	"datacleaner/internal/models"
	"datacleaner/internal/pipeline"
)

// multipartOverhead is the slack allowed above the payload ceiling for
// multipart framing and other form fields.
const multipartOverhead = 1 << 20

type detectedObject struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       [4]int  `json:"bbox"`
}

type imageResponse struct {
	ID              int64            `json:"id"`
	UserID          int64            `json:"user_id"`
	Filename        string           `json:"filename"`
	OriginalName    string           `json:"original_name"`
	CreatedAt       time.Time        `json:"created_at"`
	URL             string           `json:"url"`
	Processed       bool             `json:"processed"`
	DetectedObjects []detectedObject `json:"detected_objects"`
	DetectedCount   int              `json:"detected_count"`
	Warnings        []string         `json:"warnings,omitempty"`
}

func (h HandlerSet) newImageResponse(image models.Image) imageResponse {
	objects := make([]detectedObject, 0, len(image.Regions))
	for _, region := range image.Regions {
		objects = append(objects, detectedObject(region))
	}
	return imageResponse{
		ID:              image.ID,
		UserID:          image.UserID,
		Filename:        image.Filename,
		OriginalName:    image.OriginalName,
		CreatedAt:       image.CreatedAt.UTC(),
		URL:             h.uploads.PublicURL(image.Filename),
		Processed:       image.Processed,
		DetectedObjects: objects,
		DetectedCount:   len(objects),
	}
}

func (h HandlerSet) UploadImage(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	rawMode := c.Query("process_type")
	if rawMode == "" {
		rawMode = c.Query("mode")
	}
	mode, err := pipeline.ParseMode(rawMode)
	if err != nil {
		h.fail(c, err)
		return
	}

	maxBytes := h.cfg.Upload.MaxBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, pipeline.ErrPayloadTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	defer file.Close()

	// One byte past the ceiling is enough for the pipeline to reject it.
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.uploads.Process(c.Request.Context(), pipeline.UploadRequest{
		Owner:       user.ID,
		Data:        data,
		ContentType: sniffer.MimeTypeFromHTTP(http.Header(header.Header)),
		Filename:    header.Filename,
		Mode:        mode,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := h.newImageResponse(result.Image)
	resp.URL = result.URL
	resp.Warnings = result.Warnings
	c.JSON(http.StatusCreated, resp)
}

func (h HandlerSet) ListImages(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	images, err := h.images.List(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.sendImages(c, images)
}

func (h HandlerSet) sendImages(c *gin.Context, images []models.Image) {
	items := make([]imageResponse, 0, len(images))
	for _, image := range images {
		items = append(items, h.newImageResponse(image))
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
	})
}

func (h HandlerSet) GetImage(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	image, err := h.images.Get(c.Request.Context(), user, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.newImageResponse(image))
}

func (h HandlerSet) DeleteImage(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.images.Delete(c.Request.Context(), user, id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return 0, false
	}
	return id, true
}

// ServeArtifact streams a stored artifact with its sniffed content type.
func (h HandlerSet) ServeArtifact(c *gin.Context) {
	name := c.Param("name")
	data, err := h.store.Read(c.Request.Context(), name)
	if err != nil {
		h.fail(c, err)
		return
	}

	contentType := "application/octet-stream"
	kind, err := sniffer.Detect(data)
	if err == nil {
		contentType = kind.MIME
	}

	header := c.Writer.Header()
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Cache-Control", "public, max-age=31536000, immutable")
	if kind.Type == sniffer.TypeSVG {
		header.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	}

	if c.Request.Method == http.MethodHead {
		header.Set("Content-Type", contentType)
		header.Set("Content-Length", strconv.Itoa(len(data)))
		c.Status(http.StatusOK)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}
