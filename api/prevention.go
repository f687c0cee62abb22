package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pyneda/xsslab/pkg/prevention"
)

type PreventionInput struct {
	Sanitizer string   `json:"sanitizer" validate:"max=256"`
	Encoding  bool     `json:"encoding"`
	CSP       string   `json:"csp" validate:"max=16384"`
	WAFRules  []string `json:"waf_rules" validate:"max=50,dive,required,max=1024"`
}

// PreventionHandler godoc
// @Summary Validate XSS defences
// @Description Runs the selected sanitization, encoding, CSP and WAF suites and scores the results
// @Tags Prevention
// @Accept  json
// @Produce  json
// @Param input body PreventionInput true "Suites to run"
// @Success 200 {object} prevention.Assessment
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/prevention [post]
func PreventionHandler(c *fiber.Ctx) error {
	input := new(PreventionInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}
	assessment, err := prevention.NewValidator().Run(prevention.Options{
		Sanitizer: input.Sanitizer,
		Encoding:  input.Encoding,
		CSP:       input.CSP,
		WAFRules:  input.WAFRules,
	})
	if err != nil {
		return badRequest(c, err)
	}
	return c.JSON(assessment)
}
