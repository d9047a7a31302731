package control

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/bm-repricer/internal/pricing"
)

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type testCompetitorRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type bulkRecoverRequest struct {
	Items []struct {
		ListingID uuid.UUID       `json:"listing_id"`
		Price     decimal.Decimal `json:"price"`
	} `json:"items"`
}

type bulkRecoverBody struct {
	TaskID  int64        `json:"task_id"`
	Results []resultBody `json:"results"`
}

func (h *Handler) listListings(c *gin.Context) {
	page, pageSize, ok := pageParams(c)
	if !ok {
		return
	}
	all, err := h.svc.Listings.ListListings(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	items, page, pageSize := paginate(all, page, pageSize)
	respondList(c, mapSlice(items, listingView), len(all), page, pageSize)
}

func (h *Handler) getListing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	l, err := h.svc.Listings.GetListing(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusOK, listingView(l), "")
}

func (h *Handler) evaluate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.svc.Pricer.Evaluate(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	msg := "price published"
	if res.Decision.Unchanged {
		msg = "price unchanged"
	}
	respondData(c, http.StatusOK, resultView(res), msg)
}

func (h *Handler) probe(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "price", err.Error())
		return
	}
	res, err := h.svc.Pricer.Probe(c.Request.Context(), id, req.Price)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusOK, resultView(res), "probe evaluated")
}

func (h *Handler) recoverPrice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "price", err.Error())
		return
	}
	res, err := h.svc.Pricer.EmergencyRecover(c.Request.Context(), id, req.Price)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusOK, resultView(res), "price recovered")
}

func (h *Handler) recoverBulk(c *gin.Context) {
	var req bulkRecoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	items := make([]pricing.Recovery, len(req.Items))
	for i, it := range req.Items {
		items[i] = pricing.Recovery{ListingID: it.ListingID, Price: it.Price}
	}

	taskID, results, err := h.svc.Pricer.EmergencyRecoverBulk(c.Request.Context(), items)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusOK, bulkRecoverBody{TaskID: taskID, Results: mapSlice(results, resultView)}, "prices recovered")
}

func (h *Handler) addTestCompetitor(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req testCompetitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	offer, err := h.svc.Competitors.AddTestCompetitor(c.Request.Context(), id, req.Name, req.Price)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusCreated, offerView(offer), "test competitor added")
}

func (h *Handler) clearTestCompetitors(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	n, err := h.svc.Competitors.ClearTestCompetitors(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"removed": n}, "test competitors cleared")
}
