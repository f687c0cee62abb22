package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pyneda/xsslab/pkg/dom"
)

type DOMInput struct {
	Code string `json:"code" validate:"required,max=1048576"`
}

// DOMHandler godoc
// @Summary Trace DOM XSS flows
// @Description Finds DOM XSS sources and sinks in JavaScript and the flows between them
// @Tags DOM
// @Accept  json
// @Produce  json
// @Param input body DOMInput true "JavaScript source"
// @Success 200 {object} dom.Analysis
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/dom [post]
func DOMHandler(c *fiber.Ctx) error {
	input := new(DOMInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}
	result := dom.NewParser().Analyze(input.Code)
	if result.Sources == nil {
		result.Sources = []dom.Source{}
	}
	if result.Sinks == nil {
		result.Sinks = []dom.Sink{}
	}
	if result.Flows == nil {
		result.Flows = []dom.Flow{}
	}
	return c.JSON(result)
}
