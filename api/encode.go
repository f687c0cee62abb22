package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pyneda/xsslab/pkg/encoding"
)

type EncodeInput struct {
	Payloads []string `json:"payloads" validate:"required,min=1,max=500,dive,max=10000"`
	Encoder  string   `json:"encoder" validate:"required,max=256"`
	Decode   bool     `json:"decode"`
}

type EncodeResponse struct {
	Encoder string   `json:"encoder"`
	Decode  bool     `json:"decode"`
	Results []string `json:"results"`
}

// ListEncoders godoc
// @Summary List encoders
// @Description Lists the registered encoder names. Names can be joined with + to form a chain.
// @Tags Encoding
// @Produce  json
// @Success 200 {object} ListResponse[string]
// @Router /api/v1/encoders [get]
func ListEncoders(c *fiber.Ctx) error {
	return c.JSON(newListResponse(encoding.List()))
}

// EncodeHandler godoc
// @Summary Encode or decode payloads
// @Description Applies an encoder or a + separated chain of encoders to every payload
// @Tags Encoding
// @Accept  json
// @Produce  json
// @Param input body EncodeInput true "Payloads and encoder"
// @Success 200 {object} EncodeResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/encode [post]
func EncodeHandler(c *fiber.Ctx) error {
	input := new(EncodeInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}
	op := encoding.EncodeAll
	if input.Decode {
		op = encoding.DecodeAll
	}
	results, err := op(input.Encoder, input.Payloads)
	if err != nil {
		return badRequest(c, err)
	}
	return c.JSON(EncodeResponse{Encoder: input.Encoder, Decode: input.Decode, Results: results})
}
