package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/creator-analyzer/internal/store"
	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

// ProgressHandler streams job progress snapshots over a WebSocket
type ProgressHandler struct {
	store    *store.Store
	interval time.Duration
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(st *store.Store) *ProgressHandler {
	return &ProgressHandler{
		store:    st,
		interval: 2 * time.Second,
	}
}

// Handle pushes the job record every few seconds until it reaches a terminal
// status or the client disconnects
func (h *ProgressHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	jobID := c.Params("id")
	log.Printf("Progress stream opened for job %s", jobID)

	for {
		job, err := h.store.GetJob(jobID)
		if err != nil {
			c.WriteMessage(websocket.TextMessage, []byte(`{"error":"job not found"}`))
			return
		}

		payload, err := json.Marshal(job)
		if err != nil {
			log.Printf("Failed to encode progress for job %s: %v", jobID, err)
			return
		}

		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("Progress stream closed for job %s: %v", jobID, err)
			return
		}

		switch job.Status {
		case types.JobCompleted, types.JobFailed, types.JobCancelled:
			log.Printf("Progress stream finished for job %s (%s)", jobID, job.Status)
			return
		}

		time.Sleep(h.interval)
	}
}
