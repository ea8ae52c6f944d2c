// Media HTTP handlers.
//
//   - POST /media/images         (upload an image for an image message)
//   - GET  /media/{kind}/{name}  (serve stored speech or images)
//   - POST /audio/play           (replay the audio of an assistant turn)
package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/doktorai-backend/internal/media"
)

// UploadResponse carries the reference to use as image_url.
type UploadResponse struct {
	URL string `json:"url" example:"/api/v1/media/image/5b0c2f0e-3a51-4e86-9a43-7f2f3e1c9b11.jpg"`
}

// PlayAudioRequest names the stored speech to play.
type PlayAudioRequest struct {
	AudioURL string `json:"audio_url" binding:"required" example:"/api/v1/media/audio/0f6e1d3c-2b4a-4c59-8e71-6d5a4b3c2d1e.mp3"`
}

// UploadImage godoc
// @ID          uploadImage
// @Summary     Upload an image
// @Description Stores a JPEG, PNG or WebP image and returns the reference to send as image_url.
// @Description The content type is detected from the bytes, not from the part header.
// @Tags        Media
// @Accept      mpfd
// @Produce     json
// @Security    BearerAuth
// @Param       image  formData  file  true  "Image file"
// @Success     201  {object}  handlers.UploadResponse
// @Failure     400  {object}  handlers.ErrorResponse "Missing image part"
// @Failure     413  {object}  handlers.ErrorResponse "Image too large"
// @Failure     415  {object}  handlers.ErrorResponse "Not a supported image type"
// @Failure     500  {object}  handlers.ErrorResponse "Upload failed"
// @Router      /media/images [post]
func (h *Handlers) UploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	fh, err := c.FormFile("image")
	if err != nil {
		if tooLarge(err) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "image too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field \"image\" required")
		return
	}
	if fh.Size > h.maxUpload {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "image too large")
		return
	}

	f, err := fh.Open()
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, "could not read upload")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, "could not read upload")
		return
	}

	ext, supported := media.ExtForContentType(mimetype.Detect(data).String())
	if !supported {
		fail(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia, "image must be JPEG, PNG or WebP")
		return
	}

	ref, err := h.media.Save(c.Request.Context(), media.KindImage, data, ext)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, "could not store image")
		return
	}
	ok(c, http.StatusCreated, UploadResponse{URL: ref})
}

// tooLarge reports whether err comes from the request body limit. The
// multipart reader does not always wrap it.
func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

// ServeMedia godoc
// @ID          serveMedia
// @Summary     Download stored media
// @Tags        Media
// @Produce     octet-stream
// @Param       kind  path  string  true  "audio or image"  Enums(audio, image)
// @Param       name  path  string  true  "File name"
// @Success     200  {file}    file
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /media/{kind}/{name} [get]
func (h *Handlers) ServeMedia(c *gin.Context) {
	kind, valid := media.ParseKind(c.Param("kind"))
	if !valid {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "media not found")
		return
	}
	p, err := h.media.Path(kind, c.Param("name"))
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "media not found")
		return
	}
	if fi, err := os.Stat(p); err != nil || fi.IsDir() {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "media not found")
		return
	}
	// Names are never reused.
	c.Header("Cache-Control", "private, max-age=86400, immutable")
	c.File(p)
}

// PlayAudio godoc
// @ID          playAudio
// @Summary     Play an assistant reply again
// @Description Hands the stored speech to the configured player. Playback failures are logged, not returned.
// @Tags        Media
// @Accept      json
// @Security    BearerAuth
// @Param       body  body  handlers.PlayAudioRequest  true  "Audio reference"
// @Success     202  {string}  string "Accepted"
// @Failure     400  {object}  handlers.ErrorResponse "Not an audio reference"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Router      /audio/play [post]
func (h *Handlers) PlayAudio(c *gin.Context) {
	var req PlayAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "audio_url required")
		return
	}
	if k, _, err := h.media.Resolve(req.AudioURL); err != nil || k != media.KindAudio {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "audio_url must reference stored speech")
		return
	}
	h.client(c).Chat.PlayAudio(c.Request.Context(), req.AudioURL)
	c.Status(http.StatusAccepted)
}
