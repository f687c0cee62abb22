package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pyneda/xsslab/pkg/payloads"
)

// FindPayloads godoc
// @Summary List corpus payloads
// @Description Lists payloads filtered by category, context, technique and keyword, highest success rate first
// @Tags Payloads
// @Produce  json
// @Param category query string false "Category"
// @Param context query string false "Context"
// @Param technique query string false "Bypass technique"
// @Param q query string false "Keyword"
// @Param limit query int false "Maximum results"
// @Success 200 {object} ListResponse[payloads.Payload]
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/payloads [get]
func FindPayloads(c *fiber.Ctx) error {
	var opts payloads.FilterOptions
	if category := c.Query("category"); category != "" {
		cat, err := payloads.ParseCategory(category)
		if err != nil {
			return badRequest(c, err)
		}
		opts.Categories = []payloads.Category{cat}
	}
	if ctx := c.Query("context"); ctx != "" {
		opts.Contexts = []string{ctx}
	}
	if technique := c.Query("technique"); technique != "" {
		opts.Techniques = []string{technique}
	}
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(NewErrorResponse("Invalid request", "limit must not be negative"))
	}

	library := libraryFrom(c)
	items := library.Filter(opts)
	if q := c.Query("q"); q != "" {
		matched := make(map[string]struct{})
		for _, p := range library.Search(q) {
			matched[p.Payload] = struct{}{}
		}
		filtered := items[:0]
		for _, p := range items {
			if _, ok := matched[p.Payload]; ok {
				filtered = append(filtered, p)
			}
		}
		items = filtered
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return c.JSON(newListResponse(items))
}

// PayloadStats godoc
// @Summary Corpus statistics
// @Description Counts payloads per category, context, technique and severity
// @Tags Payloads
// @Produce  json
// @Success 200 {object} payloads.Statistics
// @Router /api/v1/payloads/stats [get]
func PayloadStats(c *fiber.Ctx) error {
	return c.JSON(libraryFrom(c).Statistics())
}
