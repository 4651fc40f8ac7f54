package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/creator-analyzer/internal/scheduler"
	"github.com/codebuildervaibhav/creator-analyzer/internal/store"
	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

// JobHandler exposes job submission, status and cancellation
type JobHandler struct {
	store     *store.Store
	scheduler *scheduler.Scheduler
	maxVideos int
}

// NewJobHandler creates a new job handler
func NewJobHandler(st *store.Store, sched *scheduler.Scheduler, maxVideos int) *JobHandler {
	return &JobHandler{
		store:     st,
		scheduler: sched,
		maxVideos: maxVideos,
	}
}

// CreateJobRequest represents the request body for job creation
type CreateJobRequest struct {
	TargetURL      string `json:"target_url"`
	TargetName     string `json:"target_name"`
	MaxVideos      int    `json:"max_videos"`
	EnableAnalysis *bool  `json:"enable_analysis"`
	Language       string `json:"language"`
}

// Create accepts a new analysis job and submits it to the scheduler
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	if req.TargetURL == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "target_url is required",
			"code":  "ERR_NO_TARGET",
		})
	}

	if req.MaxVideos > h.maxVideos {
		req.MaxVideos = h.maxVideos
	}

	enableAnalysis := true
	if req.EnableAnalysis != nil {
		enableAnalysis = *req.EnableAnalysis
	}

	job := &types.Job{
		ID:             uuid.New().String(),
		TargetURL:      req.TargetURL,
		TargetName:     req.TargetName,
		MaxVideos:      req.MaxVideos,
		EnableAnalysis: enableAnalysis,
		Language:       req.Language,
	}

	if err := h.store.CreateJob(job); err != nil {
		log.Printf("Failed to create job: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to create job",
			"code":  "ERR_CREATE_FAILED",
		})
	}

	if err := h.scheduler.Submit(job.ID); err != nil {
		return c.Status(409).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_ALREADY_RUNNING",
		})
	}

	return c.JSON(fiber.Map{
		"job_id":  job.ID,
		"status":  types.JobPending,
		"message": "Job accepted, feed analysis started",
	})
}

// Get returns the current state of one job
func (h *JobHandler) Get(c *fiber.Ctx) error {
	job, err := h.store.GetJob(c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(404).JSON(fiber.Map{
			"error": "Job not found",
			"code":  "ERR_NOT_FOUND",
		})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(job)
}

// List returns recent jobs
func (h *JobHandler) List(c *fiber.Ctx) error {
	jobs, err := h.store.ListJobs(c.QueryInt("limit", 50))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(jobs)
}

// Videos returns the per-video records of one job
func (h *JobHandler) Videos(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if _, err := h.store.GetJob(jobID); errors.Is(err, store.ErrNotFound) {
		return c.Status(404).JSON(fiber.Map{
			"error": "Job not found",
			"code":  "ERR_NOT_FOUND",
		})
	} else if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	videos, err := h.store.ListVideos(jobID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(videos)
}

// Cancel signals cancellation for a running or queued job. The scheduler only
// reports whether anything was removed; the terminal store transition happens
// here.
func (h *JobHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("id")

	removed := h.scheduler.Cancel(jobID)
	if removed {
		if err := h.store.UpdateJobStatus(jobID, types.JobCancelled, "", "cancelled by user"); err != nil {
			log.Printf("Failed to persist cancellation of job %s: %v", jobID, err)
		}
	}

	return c.JSON(fiber.Map{
		"job_id":    jobID,
		"cancelled": removed,
	})
}

// Queue reports the scheduler's admission snapshot
func (h *JobHandler) Queue(c *fiber.Ctx) error {
	return c.JSON(h.scheduler.QueueStatus())
}
