package handlers

import (
	"errors"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/creator-analyzer/internal/storage"
	"github.com/codebuildervaibhav/creator-analyzer/internal/store"
	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

// ResultHandler serves result artifacts and triggers Drive exports
type ResultHandler struct {
	store *store.Store
	drive *storage.DriveClient // nil when Drive is not configured
}

// NewResultHandler creates a new result handler
func NewResultHandler(st *store.Store, drive *storage.DriveClient) *ResultHandler {
	return &ResultHandler{
		store: st,
		drive: drive,
	}
}

// Get streams the result artifact of a completed job
func (h *ResultHandler) Get(c *fiber.Ctx) error {
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

	if job.ResultRef == "" {
		return c.Status(404).JSON(fiber.Map{
			"error": "Job has no result yet",
			"code":  "ERR_NO_RESULT",
		})
	}

	content, err := os.ReadFile(job.ResultRef)
	if err != nil {
		log.Printf("Failed to read result artifact %s: %v", job.ResultRef, err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to read result file",
			"code":  "ERR_READ_FAILED",
		})
	}

	c.Type("json")
	return c.Send(content)
}

// Export uploads the result artifact to Google Drive
func (h *ResultHandler) Export(c *fiber.Ctx) error {
	if h.drive == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "Google Drive export not configured",
			"code":  "ERR_DRIVE_UNAVAILABLE",
		})
	}

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

	if job.Status != types.JobCompleted || job.ResultRef == "" {
		return c.Status(409).JSON(fiber.Map{
			"error": "Job has no exportable result",
			"code":  "ERR_NO_RESULT",
		})
	}

	driveURL, err := h.drive.ExportResult(job.ID, job.ResultRef)
	if err != nil {
		log.Printf("Drive export failed for job %s: %v", job.ID, err)
		return c.Status(502).JSON(fiber.Map{
			"error": "Drive export failed",
			"code":  "ERR_EXPORT_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"job_id":    job.ID,
		"drive_url": driveURL,
	})
}
