package control

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/bm-repricer/internal/model"
)

// Per-job outcomes reported by trigger-all.
const (
	triggerStarted = "triggered"
	triggerBusy    = "busy"
)

func (h *Handler) listJobs(c *gin.Context) {
	statuses := h.svc.Jobs.Statuses()
	respondList(c, mapSlice(statuses, jobView), len(statuses), 1, len(statuses))
}

func (h *Handler) triggerJob(c *gin.Context) {
	name := c.Param("name")
	if err := h.svc.Jobs.Trigger(name); err != nil {
		h.fail(c, err)
		return
	}

	st, err := h.svc.Jobs.Status(name)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusAccepted, jobView(st), "job triggered")
}

func (h *Handler) triggerAll(c *gin.Context) {
	results := h.svc.Jobs.TriggerAll()

	out := make(map[string]string, len(results))
	for name, err := range results {
		switch {
		case err == nil:
			out[name] = triggerStarted
		case errors.Is(err, model.ErrJobBusy):
			out[name] = triggerBusy
		default:
			out[name] = err.Error()
		}
	}
	respondData(c, http.StatusAccepted, out, "jobs triggered")
}
