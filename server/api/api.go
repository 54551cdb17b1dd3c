// Package api exposes the subtitle generation service over REST:
// library browsing, job submission, and live job progress.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	goerrors "github.com/skillsenselab/subgen/errors"
	"github.com/skillsenselab/subgen/jobs"
	"github.com/skillsenselab/subgen/library"
	"github.com/skillsenselab/subgen/logger"
	"github.com/skillsenselab/subgen/media"
	"github.com/skillsenselab/subgen/server"
)

// Handler serves the /api routes.
type Handler struct {
	lib      *library.Library
	jobs     *jobs.Manager
	decoder  *media.Decoder
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the API handler. decoder may be nil, disabling the
// embedded-subtitle extraction route.
func NewHandler(lib *library.Library, manager *jobs.Manager, decoder *media.Decoder, log *logger.Logger) *Handler {
	return &Handler{
		lib:     lib,
		jobs:    manager,
		decoder: decoder,
		log:     log.WithComponent("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API is same-host tooling, not a public origin-checked site.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register mounts the API routes on the engine.
func (h *Handler) Register(engine *gin.Engine) {
	api := engine.Group("/api")
	{
		api.GET("/media", h.listMedia)
		api.POST("/media/describe", h.describeMedia)
		api.POST("/subtitles/generate", h.generateSubtitles)
		api.POST("/subtitles/extract", h.extractSubtitle)
		api.GET("/jobs", h.listJobs)
		api.GET("/jobs/:id", h.getJob)
		api.POST("/jobs/:id/cancel", h.cancelJob)
		api.GET("/jobs/:id/events", h.jobEvents)
	}
}

// listMedia returns the library index. ?rescan=1 forces a fresh walk.
func (h *Handler) listMedia(c *gin.Context) {
	rescan := c.Query("rescan") == "1" || c.Query("rescan") == "true"
	items, err := h.lib.List(c.Request.Context(), rescan)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, items)
}

type describeRequest struct {
	MediaID string `json:"media_id" binding:"required"`
}

// describeMedia probes one item and returns its container metadata.
func (h *Handler) describeMedia(c *gin.Context) {
	var req describeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.RespondWithError(c, goerrors.Validation(err.Error()))
		return
	}
	item, err := h.lib.Describe(c.Request.Context(), req.MediaID)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, item)
}

// generateSubtitles submits a job and returns 202 with its snapshot.
func (h *Handler) generateSubtitles(c *gin.Context) {
	var req jobs.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		server.RespondWithError(c, goerrors.Validation(err.Error()))
		return
	}
	// Reject unknown media before queueing so the caller gets a 404, not a
	// failed job.
	if _, err := h.lib.Get(req.MediaID); err != nil {
		server.RespondWithError(c, err)
		return
	}
	job, err := h.jobs.Submit(req)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondAccepted(c, job)
}

type extractRequest struct {
	MediaID     string `json:"media_id" binding:"required"`
	StreamIndex int    `json:"stream_index"`
}

// extractSubtitle converts one embedded subtitle track to SRT and returns
// it as the response body.
func (h *Handler) extractSubtitle(c *gin.Context) {
	if h.decoder == nil {
		server.RespondWithError(c, goerrors.ServiceUnavailable("subtitle extractor"))
		return
	}
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.RespondWithError(c, goerrors.Validation(err.Error()))
		return
	}
	path, err := h.lib.AbsolutePath(req.MediaID)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	srt, err := h.decoder.ExtractSubtitle(c.Request.Context(), path, req.StreamIndex)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/x-subrip", []byte(srt))
}

func (h *Handler) listJobs(c *gin.Context) {
	server.RespondOK(c, h.jobs.List())
}

func (h *Handler) getJob(c *gin.Context) {
	job, err := h.jobs.Get(c.Param("id"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, job)
}

func (h *Handler) cancelJob(c *gin.Context) {
	job, err := h.jobs.Cancel(c.Param("id"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, job)
}
