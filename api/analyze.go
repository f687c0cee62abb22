package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"

	"github.com/pyneda/xsslab/pkg/analysis"
)

type AnalyzeInput struct {
	Payload string `json:"payload" validate:"required,max=10000"`
}

type BatchAnalyzeInput struct {
	Payloads    []string `json:"payloads" validate:"required,min=1,max=500,dive,required,max=10000"`
	Concurrency int      `json:"concurrency" validate:"omitempty,min=1,max=64"`
}

type BatchAnalyzeResponse struct {
	Analyses []analysis.PayloadAnalysis `json:"analyses"`
	Summary  analysis.Summary           `json:"summary"`
}

// AnalyzeHandler godoc
// @Summary Analyze a payload
// @Description Classifies injection contexts, bypass techniques and risk of a single payload
// @Tags Analysis
// @Accept  json
// @Produce  json
// @Param input body AnalyzeInput true "Payload to analyze"
// @Success 200 {object} analysis.PayloadAnalysis
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/analyze [post]
func AnalyzeHandler(c *fiber.Ctx) error {
	input := new(AnalyzeInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}
	return c.JSON(analyzerFrom(c).Analyze(input.Payload))
}

// BatchAnalyzeHandler godoc
// @Summary Analyze several payloads
// @Description Analyzes payloads concurrently and returns every analysis plus a summary
// @Tags Analysis
// @Accept  json
// @Produce  json
// @Param input body BatchAnalyzeInput true "Payloads to analyze"
// @Success 200 {object} BatchAnalyzeResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/analyze/batch [post]
func BatchAnalyzeHandler(c *fiber.Ctx) error {
	input := new(BatchAnalyzeInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}
	concurrency := input.Concurrency
	if concurrency == 0 {
		concurrency = viper.GetInt("analysis.batch_concurrency")
	}
	analyses := analyzerFrom(c).BatchAnalyze(c.UserContext(), input.Payloads, concurrency)
	return c.JSON(BatchAnalyzeResponse{
		Analyses: analyses,
		Summary:  analysis.Summarize(analyses),
	})
}
