package generators

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"

	"github.com/mmrzaf/tablegen/internal/domain"
)

const (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 50

	// MaxTemperature caps the retry temperature increase.
	MaxTemperature = 2.0
	// TemperatureStep is added to the base temperature per retry attempt.
	TemperatureStep = 0.1
	// AvoidPromptLimit is how many avoided values are listed in the prompt.
	AvoidPromptLimit = 10
)

const SystemInstruction = "You are a raw data generator backend. Your task is to generate ONE single value based on the user prompt. " +
	"Do NOT add any explanations, markdown formatting, quotes, or introductory text. Output ONLY the value itself."

type CompletionRequest struct {
	Model            string
	System           string
	Prompt           string
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	MaxTokens        int
}

// CompletionClient is the text-generation model. Implementations must honor
// ctx cancellation and deadlines.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type LLMGenerator struct {
	Client CompletionClient
}

func (g *LLMGenerator) Validate(field domain.FieldSpec) error {
	if tpl, ok := paramString(field.Params, "prompt_template"); !ok || strings.TrimSpace(tpl) == "" {
		return errors.New("llm requires 'prompt_template' param")
	}
	_, err := llmRequest(field.Params, 0)
	return err
}

func (g *LLMGenerator) Generate(_ *rand.Rand, field domain.FieldSpec, ctx GeneratorContext) (interface{}, error) {
	tpl, ok := paramString(field.Params, "prompt_template")
	if !ok || strings.TrimSpace(tpl) == "" {
		return nil, newError(KindConfigError, nil, "llm requires 'prompt_template' param")
	}
	req, err := llmRequest(field.Params, ctx.Attempt)
	if err != nil {
		return nil, newError(KindConfigError, err, "invalid llm params")
	}

	prompt, err := RenderPrompt(tpl, ctx.Row)
	if err != nil {
		return nil, err
	}
	if avoid := ctx.Avoid.Last(AvoidPromptLimit); len(avoid) > 0 {
		prompt += "\n\nIMPORTANT: The value must be different from: " + strings.Join(avoid, ", ")
	}
	req.Prompt = prompt

	if g.Client == nil {
		return nil, newError(KindProviderError, nil, "no model client configured")
	}
	text, err := g.Client.Complete(ctx.context(), req)
	if err != nil {
		return nil, newError(KindProviderError, err, "model call failed")
	}
	return cleanCompletion(text), nil
}

func llmRequest(params map[string]interface{}, attempt int) (CompletionRequest, error) {
	req := CompletionRequest{
		Model:  paramStringDefault(params, "model", DefaultModel),
		System: SystemInstruction,
	}
	var err error
	if req.Temperature, err = paramFloat(params, "temperature", 1.0); err != nil {
		return req, err
	}
	if req.TopP, err = paramFloat(params, "top_p", 1.0); err != nil {
		return req, err
	}
	if req.FrequencyPenalty, err = paramFloat(params, "frequency_penalty", 0); err != nil {
		return req, err
	}
	if req.PresencePenalty, err = paramFloat(params, "presence_penalty", 0); err != nil {
		return req, err
	}
	maxTokens, err := paramInt(params, "max_tokens", DefaultMaxTokens)
	if err != nil {
		return req, err
	}
	req.MaxTokens = int(maxTokens)
	req.Temperature = RetryTemperature(req.Temperature, attempt)
	return req, nil
}

// RetryTemperature raises base by TemperatureStep per attempt, capped at
// MaxTemperature. Attempt 0 keeps base as given.
func RetryTemperature(base float64, attempt int) float64 {
	if attempt <= 0 {
		return base
	}
	return math.Min(base+TemperatureStep*float64(attempt), MaxTemperature)
}

func cleanCompletion(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	return strings.TrimSpace(s)
}
