package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"

	"github.com/pyneda/xsslab/pkg/polyglot"
)

type PolyglotInput struct {
	Contexts           []string `json:"contexts" validate:"required,min=1,dive,required"`
	MaxLength          int      `json:"max_length" validate:"omitempty,min=1,max=5000"`
	MaxPayloads        int      `json:"max_payloads" validate:"omitempty,min=1,max=100"`
	IncludeObfuscation *bool    `json:"include_obfuscation"`
	Browsers           []string `json:"browsers" validate:"omitempty,dive,oneof=chrome firefox safari ie"`
	Seed               int64    `json:"seed"`
	Minimal            bool     `json:"minimal"`
}

// PolyglotHandler godoc
// @Summary Generate polyglot payloads
// @Description Generates payloads meant to execute in every requested context, best first
// @Tags Polyglot
// @Accept  json
// @Produce  json
// @Param input body PolyglotInput true "Target contexts and options"
// @Success 200 {object} ListResponse[polyglot.PolyglotPayload]
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/polyglot [post]
func PolyglotHandler(c *fiber.Ctx) error {
	input := new(PolyglotInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}
	targets, err := polyglot.ParseContexts(input.Contexts)
	if err != nil {
		return badRequest(c, err)
	}

	seed := input.Seed
	if seed == 0 {
		seed = viper.GetInt64("polyglot.seed")
	}
	engine := polyglot.NewEngine(polyglot.WithSeed(seed))

	if input.Minimal {
		p, ok := engine.GenerateMinimal(targets)
		if !ok {
			return c.JSON(newListResponse[polyglot.PolyglotPayload](nil))
		}
		return c.JSON(newListResponse([]polyglot.PolyglotPayload{*p}))
	}

	opts := polyglot.DefaultOptions()
	if n := viper.GetInt("polyglot.max_length"); n > 0 {
		opts.MaxLength = n
	}
	if n := viper.GetInt("polyglot.max_payloads"); n > 0 {
		opts.MaxPayloads = n
	}
	if input.MaxLength > 0 {
		opts.MaxLength = input.MaxLength
	}
	if input.MaxPayloads > 0 {
		opts.MaxPayloads = input.MaxPayloads
	}
	if input.IncludeObfuscation != nil {
		opts.IncludeObfuscation = *input.IncludeObfuscation
	}
	opts.TargetBrowsers = input.Browsers

	results, err := engine.Generate(targets, opts)
	if err != nil {
		return badRequest(c, err)
	}
	return c.JSON(newListResponse(results))
}
