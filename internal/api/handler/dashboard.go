package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/herdwatch/herdwatch/internal/api/models"
	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/herdwatch/herdwatch/internal/export"
	"github.com/herdwatch/herdwatch/internal/filter/params"
)

// readings loads the readings selected by the filter parameters of the request.
func (h *Handler) readings(c *gin.Context) (params.Params, []database.Reading, error) {
	var p params.Params
	if err := c.ShouldBindQuery(&p); err != nil {
		// all fields are strings, so binding only fails on malformed queries
		log.Debug("Ignoring malformed filter query.", "error", err)
		p = params.Params{}
	}

	f := p.Filter()
	log.Debug("Querying readings.", "filter", f.String())
	readings, err := h.db.GetReadings(c.Request.Context(), f)
	return p, readings, err
}

func (h *Handler) Dashboard(c *gin.Context) {
	user := currentUser(c)

	p, readings, err := h.readings(c)
	if err != nil {
		internalError(c, "Failed to get readings", err)
		return
	}

	data := page{
		Title:    "Dashboard",
		User:     user,
		Filter:   p,
		Query:    p.Encode(),
		Readings: models.ToReadingItems(readings, h.images),
	}

	if user.IsAdmin {
		accounts, err := h.db.ListAccounts(c.Request.Context())
		if err != nil {
			internalError(c, "Failed to list accounts", err)
			return
		}
		data.Accounts = models.ToAccountItems(accounts)

		usage, err := h.images.Usage(c.Request.Context())
		if err != nil {
			// Log error but continue without usage
			log.Warn("Failed to get content usage", "error", err)
		}
		data.Usage = models.ToContentUsage(usage)
	}

	h.render(c, http.StatusOK, "dashboard.html", data)
}

func (h *Handler) DownloadXLSX(c *gin.Context) {
	_, readings, err := h.readings(c)
	if err != nil {
		internalError(c, "Failed to get readings", err)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.Write(c.Request.Context(), &buf, readings); err != nil {
		if errors.Is(err, export.ErrNoReadings) {
			c.String(http.StatusNotFound, "No data to export")
			return
		}
		internalError(c, "Failed to build export", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(time.Now())))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

// DeleteImage deletes a reading and its image file.
func (h *Handler) DeleteImage(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid reading ID"})
		return
	}

	reading, err := h.db.DeleteReading(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrReadingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Reading not found"})
			return
		}
		log.Error("Failed to delete reading", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to delete reading"})
		return
	}

	h.images.Remove(reading.ImagePath)
	log.Info("Deleted reading.", "id", id, "user", currentUser(c).Username)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
