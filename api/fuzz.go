package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"

	"github.com/pyneda/xsslab/pkg/fuzz"
)

type FuzzDetectInput struct {
	Response string `json:"response" validate:"required,max=1048576"`
	Marker   string `json:"marker" validate:"omitempty,max=128"`
}

type FuzzGenerateInput struct {
	Context  string   `json:"context" validate:"required"`
	Payloads []string `json:"payloads" validate:"omitempty,max=50,dive,required,max=2000"`
	Limit    int      `json:"limit" validate:"omitempty,min=1,max=1000"`
}

// FuzzDetectHandler godoc
// @Summary Detect the injection context of a marker
// @Description Fingerprints where the marker is reflected in a response body
// @Tags Fuzz
// @Accept  json
// @Produce  json
// @Param input body FuzzDetectInput true "Response body and marker"
// @Success 200 {object} fuzz.ContextFingerprint
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/fuzz/detect [post]
func FuzzDetectHandler(c *fiber.Ctx) error {
	input := new(FuzzDetectInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}
	marker := input.Marker
	if marker == "" {
		marker = viper.GetString("fuzz.marker")
	}
	if marker == "" {
		marker = fuzz.DefaultMarker
	}
	return c.JSON(newFuzzer().DetectContext(input.Response, marker))
}

// FuzzGenerateHandler godoc
// @Summary Generate context-aware payloads
// @Description Adapts base payloads, or the context defaults, to an injection context
// @Tags Fuzz
// @Accept  json
// @Produce  json
// @Param input body FuzzGenerateInput true "Context and base payloads"
// @Success 200 {object} ListResponse[string]
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/fuzz/generate [post]
func FuzzGenerateHandler(c *fiber.Ctx) error {
	input := new(FuzzGenerateInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}
	ctx, err := fuzz.ParseInjectionContext(input.Context)
	if err != nil {
		return badRequest(c, err)
	}
	generated := newFuzzer().GeneratePayloads(fuzz.NewFingerprint(ctx), input.Payloads)
	if input.Limit > 0 && len(generated) > input.Limit {
		generated = generated[:input.Limit]
	}
	return c.JSON(newListResponse(generated))
}
