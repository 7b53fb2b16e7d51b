// controllers/queueController.go
package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"hospital-portal/auth"
	"hospital-portal/models"
	"hospital-portal/queue"
)

// QueueController handles HTTP requests for the live queue.
type QueueController struct {
	Service *queue.Service
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewQueueController returns a new QueueController instance.
func NewQueueController(svc *queue.Service, timeout time.Duration, logger *slog.Logger) *QueueController {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueController{Service: svc, Timeout: timeout, Logger: logger}
}

// StatusUpdateBody is the body of the state write endpoint. isRunning picks
// stop or start-or-replace; the other fields are only read for the latter.
// startTime identifies the session being updated. elapsedTime is ignored; the
// server derives it.
type StatusUpdateBody struct {
	IsRunning         *bool                `json:"isRunning" binding:"required"`
	CurrentQueueIndex *int                 `json:"currentQueueIndex"`
	Doctors           []models.Participant `json:"doctors" binding:"omitempty,dive"`
	StartTime         *time.Time           `json:"startTime"`
	ElapsedTime       *int64               `json:"elapsedTime"`
	RunnerName        *string              `json:"runnerName"`
}

type startBody struct {
	Doctors    []models.Participant `json:"doctors" binding:"omitempty,dive"`
	RunnerName string               `json:"runnerName"`
}

type rosterBody struct {
	Doctors    []models.Participant `json:"doctors" binding:"omitempty,dive"`
	RunnerName *string              `json:"runnerName"`
}

type stopBody struct {
	Cancelled bool `json:"cancelled"`
}

// GetStatus returns the current queue state.
func (qc *QueueController) GetStatus(c *gin.Context) {
	ctx, cancel := qc.context(c)
	defer cancel()

	status, err := qc.Service.Status(ctx)
	if err != nil {
		qc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// PostStatus is the runner's state push.
func (qc *QueueController) PostStatus(c *gin.Context) {
	caller, ok := qc.caller(c)
	if !ok {
		return
	}
	var body StatusUpdateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		qc.respondBindError(c, err)
		return
	}

	ctx, cancel := qc.context(c)
	defer cancel()

	if !*body.IsRunning {
		qc.stop(ctx, c, caller, queue.StopRequest{})
		return
	}

	session, err := qc.Service.Sync(ctx, caller, queue.SyncRequest{
		Doctors:      body.Doctors,
		CurrentIndex: body.CurrentQueueIndex,
		RunnerName:   body.RunnerName,
		StartTime:    body.StartTime,
	})
	if err != nil {
		qc.respondError(c, err)
		return
	}
	qc.respondSession(c, session)
}

// Start begins a new queue session.
func (qc *QueueController) Start(c *gin.Context) {
	caller, ok := qc.caller(c)
	if !ok {
		return
	}
	var body startBody
	if err := c.ShouldBindJSON(&body); err != nil {
		qc.respondBindError(c, err)
		return
	}

	ctx, cancel := qc.context(c)
	defer cancel()

	session, err := qc.Service.Start(ctx, caller, queue.StartRequest{
		Doctors:    body.Doctors,
		RunnerName: body.RunnerName,
	})
	if err != nil {
		qc.respondError(c, err)
		return
	}
	qc.respondSession(c, session)
}

// Advance moves the pointer to the next doctor.
func (qc *QueueController) Advance(c *gin.Context) {
	qc.move(c, queue.Forward)
}

// Retreat moves the pointer back to the previous doctor.
func (qc *QueueController) Retreat(c *gin.Context) {
	qc.move(c, queue.Backward)
}

func (qc *QueueController) move(c *gin.Context, dir queue.Direction) {
	caller, ok := qc.caller(c)
	if !ok {
		return
	}
	ctx, cancel := qc.context(c)
	defer cancel()

	session, err := qc.Service.Advance(ctx, caller, queue.AdvanceRequest{Direction: dir})
	if err != nil {
		qc.respondError(c, err)
		return
	}
	qc.respondSession(c, session)
}

// GetRoster returns the draft roster staged while idle.
func (qc *QueueController) GetRoster(c *gin.Context) {
	ctx, cancel := qc.context(c)
	defer cancel()

	draft, err := qc.Service.Draft(ctx)
	if err != nil {
		qc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "draft": draft})
}

// EditRoster replaces the roster of the running queue, or the draft when idle.
func (qc *QueueController) EditRoster(c *gin.Context) {
	caller, ok := qc.caller(c)
	if !ok {
		return
	}
	var body rosterBody
	if err := c.ShouldBindJSON(&body); err != nil {
		qc.respondBindError(c, err)
		return
	}

	ctx, cancel := qc.context(c)
	defer cancel()

	session, draft, err := qc.Service.EditRoster(ctx, caller, queue.EditRosterRequest{
		Doctors:    body.Doctors,
		RunnerName: body.RunnerName,
	})
	if err != nil {
		qc.respondError(c, err)
		return
	}
	if session == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "draft": draft})
		return
	}
	qc.respondSession(c, session)
}

// Stop ends the running queue.
func (qc *QueueController) Stop(c *gin.Context) {
	caller, ok := qc.caller(c)
	if !ok {
		return
	}
	var body stopBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			qc.respondBindError(c, err)
			return
		}
	}

	ctx, cancel := qc.context(c)
	defer cancel()

	qc.stop(ctx, c, caller, queue.StopRequest{Cancelled: body.Cancelled})
}

func (qc *QueueController) stop(ctx context.Context, c *gin.Context, caller models.Identity, req queue.StopRequest) {
	res, err := qc.Service.Stop(ctx, caller, req)
	if err != nil {
		qc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Queue stopped.",
		"deletedCount": res.DeletedCount,
	})
}

// GetHistory lists finished sessions, newest first.
func (qc *QueueController) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	ctx, cancel := qc.context(c)
	defer cancel()

	history, err := qc.Service.History(ctx, limit)
	if err != nil {
		qc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "history": history})
}

func (qc *QueueController) context(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), qc.Timeout)
}

func (qc *QueueController) caller(c *gin.Context) (models.Identity, bool) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthenticated.Error()})
		return models.Identity{}, false
	}
	return id, true
}

func (qc *QueueController) respondSession(c *gin.Context, session *models.ActiveSession) {
	c.JSON(http.StatusOK, gin.H{"success": true, "queueStatus": qc.Service.View(session)})
}

func (qc *QueueController) respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid field " + verrs[0].Namespace()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
}

func (qc *QueueController) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, queue.ErrValidation), errors.Is(err, queue.ErrNotRunning):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, queue.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": queue.ErrForbidden.Error()})
	case errors.Is(err, auth.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthenticated.Error()})
	default:
		qc.Logger.Error("queue request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
