package handler

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

const msgMissingFields = "Missing image or temperature"

// Upload stores a reading sent by the sensor device.
func (h *Handler) Upload(c *gin.Context) {
	if maxSize := h.config.Upload.MaxSize; maxSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
	}

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.String(http.StatusBadRequest, "Upload too large")
			return
		}
		c.String(http.StatusBadRequest, msgMissingFields)
		return
	}
	temperature := c.PostForm("temperature")
	if temperature == "" || file.Filename == "" {
		c.String(http.StatusBadRequest, msgMissingFields)
		return
	}

	src, err := file.Open()
	if err != nil {
		internalError(c, "Failed to open upload", err)
		return
	}
	defer src.Close()

	name, err := h.images.Save(file.Filename, src)
	if err != nil {
		internalError(c, "Failed to store image", err)
		return
	}

	reading, err := h.db.CreateReading(c.Request.Context(), temperature, name)
	if err != nil {
		h.images.Remove(name)
		internalError(c, "Failed to store reading", err)
		return
	}

	log.Info("Stored reading.", "id", reading.ID, "temperature", temperature, "image", name)
	c.String(http.StatusOK, "Saved")
}
