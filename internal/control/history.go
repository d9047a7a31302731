package control

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *Handler) listHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	page, pageSize, ok := pageParams(c)
	if !ok {
		return
	}

	p, err := h.svc.History.List(c.Request.Context(), id, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(c, mapSlice(p.Items, historyView), p.Total, p.Page, p.PageSize)
}

// aggregateHistory accepts RFC 3339 since/until. Omitted bounds fall back to
// the last 24 hours.
func (h *Handler) aggregateHistory(c *gin.Context) {
	var listingID *uuid.UUID
	if s := c.Query("listing_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			badRequest(c, "listing_id", "must be a uuid")
			return
		}
		listingID = &id
	}

	since, ok := queryTime(c, "since")
	if !ok {
		return
	}
	until, ok := queryTime(c, "until")
	if !ok {
		return
	}

	agg, err := h.svc.History.Aggregate(c.Request.Context(), listingID, since, until)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusOK, aggregateBody{
		ListingID:          agg.ListingID,
		Since:              agg.Since,
		Until:              agg.Until,
		MaxOwnPrice:        agg.MaxOwnPrice,
		MaxCompetitorPrice: agg.MaxCompetitorPrice,
		Entries:            agg.Entries,
	}, "")
}

func queryTime(c *gin.Context, name string) (time.Time, bool) {
	s := c.Query(name)
	if s == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		badRequest(c, name, "must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}
