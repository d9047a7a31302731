package control

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type configureBucketRequest struct {
	MaxTokens        int   `json:"max_tokens"`
	RefillIntervalMS int64 `json:"refill_interval_ms"`
}

func (h *Handler) listRateLimits(c *gin.Context) {
	buckets := h.svc.Limiter.Snapshot()
	respondList(c, mapSlice(buckets, bucketView), len(buckets), 1, len(buckets))
}

func (h *Handler) getRateLimit(c *gin.Context) {
	b, err := h.svc.Limiter.Status(c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusOK, bucketView(b), "")
}

func (h *Handler) putRateLimit(c *gin.Context) {
	var req configureBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	name := c.Param("name")
	interval := time.Duration(req.RefillIntervalMS) * time.Millisecond
	if err := h.svc.Limiter.Configure(name, req.MaxTokens, interval); err != nil {
		h.fail(c, err)
		return
	}

	b, err := h.svc.Limiter.Status(name)
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.svc.Buckets != nil {
		if err := h.svc.Buckets.SaveBucket(c.Request.Context(), b); err != nil {
			h.fail(c, err)
			return
		}
	}

	h.logger.Info("rate limit configured",
		"bucket", name,
		"max_tokens", req.MaxTokens,
		"refill_interval", interval,
	)
	respondData(c, http.StatusOK, bucketView(b), "rate limit configured")
}
