package control

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/bm-repricer/internal/model"
)

func (h *Handler) listParameters(c *gin.Context) {
	page, pageSize, ok := pageParams(c)
	if !ok {
		return
	}

	all, err := h.svc.Params.ListParameters(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	sku, grade, country := c.Query("sku"), c.Query("grade"), c.Query("country")
	matched := make([]model.PricingParameters, 0, len(all))
	for _, p := range all {
		if (sku == "" || p.SKU == sku) && (grade == "" || p.Grade == grade) && (country == "" || p.CountryCode == country) {
			matched = append(matched, p)
		}
	}

	items, page, pageSize := paginate(matched, page, pageSize)
	respondList(c, mapSlice(items, parametersView), len(matched), page, pageSize)
}

func (h *Handler) putParameters(c *gin.Context) {
	var body parametersBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	p := body.toModel()
	if p.Mode == "" {
		p.Mode = h.defaultMode
	}
	if p.FallbackRule == "" {
		p.FallbackRule = h.defaultFallback
	}
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		h.fail(c, err)
		return
	}
	p.UpdatedAt = h.now()

	if err := h.svc.Params.UpsertParameters(c.Request.Context(), p); err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("pricing parameters saved",
		"sku", p.SKU,
		"grade", p.Grade,
		"country", p.CountryCode,
		"mode", p.Mode,
		"fallback_rule", p.FallbackRule,
	)
	respondData(c, http.StatusOK, parametersView(p), "parameters saved")
}
