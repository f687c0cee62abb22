package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pyneda/xsslab/pkg/csp"
)

type CSPInput struct {
	Policy string `json:"policy" validate:"required,max=16384"`
}

// CSPHandler godoc
// @Summary Analyze a Content-Security-Policy
// @Description Parses the policy, scores it and lists the XSS bypasses it allows
// @Tags CSP
// @Accept  json
// @Produce  json
// @Param input body CSPInput true "Policy header value"
// @Success 200 {object} csp.AnalysisResult
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/csp [post]
func CSPHandler(c *fiber.Ctx) error {
	input := new(CSPInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}
	return c.JSON(csp.NewAnalyzer().Analyze(input.Policy))
}
