package api

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"

	"github.com/pyneda/xsslab/pkg/analysis"
	"github.com/pyneda/xsslab/pkg/fuzz"
	"github.com/pyneda/xsslab/pkg/payloads"
)

var validate = validator.New()

// parseBody decodes and validates the JSON body into input. On failure it
// has already written the 400 response and returns false.
func parseBody(c *fiber.Ctx, input any) (bool, error) {
	if err := c.BodyParser(input); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(NewErrorResponse("Cannot parse JSON", err.Error()))
	}
	if err := validate.Struct(input); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(NewErrorResponse("Validation failed", err.Error()))
	}
	return true, nil
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(NewErrorResponse("Invalid request", err.Error()))
}

func libraryFrom(c *fiber.Ctx) *payloads.Library {
	return c.Locals("library").(*payloads.Library)
}

func analyzerFrom(c *fiber.Ctx) *analysis.PayloadAnalyzer {
	return c.Locals("analyzer").(*analysis.PayloadAnalyzer)
}

// newFuzzer builds a fresh fuzzer per request so learned state never leaks
// between clients.
func newFuzzer() *fuzz.ContextAwareFuzzer {
	return fuzz.NewContextAwareFuzzer(
		fuzz.WithSeed(viper.GetInt64("fuzz.seed")),
		fuzz.WithWindowSize(viper.GetInt("fuzz.window_size")),
		fuzz.WithSelection(fuzz.ParseSelection(viper.GetString("fuzz.selection"))),
		fuzz.WithMutationLimit(viper.GetInt("fuzz.mutation_limit")),
	)
}
