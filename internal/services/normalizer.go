package services

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/TheScottyB/fabric-web/internal/models"
)

// passthroughOptions are backend options forwarded without interpretation.
var passthroughOptions = []string{
	"stream",
	"maxTokens",
	"seed",
	"raw",
	"think",
	"thinking",
	"suppressThink",
	"search",
	"searchLocation",
	"imageFile",
	"imageSize",
	"imageQuality",
	"imageCompression",
	"imageBackground",
	"modelContextLength",
	"attachments",
	"notification",
}

// legacyDefaults are the request-level fields of the older single-prompt
// shape. In batch mode they fill gaps in each element.
type legacyDefaults struct {
	input, pattern, strategy, model, sessionName string
	variables                                    map[string]string
}

// NormalizeRequest collapses the legacy and batch request shapes into one
// ChatRequestPayload. The input is expected to be decoded with UseNumber so
// numeric parameters arrive as json.Number.
func NormalizeRequest(raw map[string]any) (*models.ChatRequestPayload, error) {
	defaults := legacyDefaults{
		input:       stringField(raw, "input"),
		pattern:     stringField(raw, "pattern"),
		strategy:    stringField(raw, "strategy"),
		model:       stringField(raw, "model"),
		sessionName: stringField(raw, "sessionName"),
		variables:   variablesField(raw, "variables"),
	}

	var prompts []models.PromptRequest
	if batch, ok := raw["prompts"].([]any); ok {
		for _, item := range batch {
			elem, ok := item.(map[string]any)
			if !ok {
				continue
			}
			p := promptFromBatch(elem, defaults)
			if p.Usable() {
				prompts = append(prompts, p)
			}
		}
	}

	if len(prompts) == 0 {
		p := models.PromptRequest{
			UserInput:    defaults.input,
			PatternName:  defaults.pattern,
			StrategyName: defaults.strategy,
			Model:        defaults.model,
			SessionName:  defaults.sessionName,
			Variables:    defaults.variables,
		}
		if p.Usable() {
			prompts = append(prompts, p)
		}
	}

	if len(prompts) == 0 {
		return nil, &ValidationError{Message: "request must include input or a pattern"}
	}

	payload := &models.ChatRequestPayload{
		Prompts:          prompts,
		Language:         stringField(raw, "language"),
		Temperature:      finiteField(raw, "temperature"),
		TopP:             finiteField(raw, "topP"),
		FrequencyPenalty: finiteField(raw, "frequencyPenalty"),
		PresencePenalty:  finiteField(raw, "presencePenalty"),
	}

	for _, name := range passthroughOptions {
		if v, ok := raw[name]; ok {
			if payload.Passthrough == nil {
				payload.Passthrough = make(map[string]any)
			}
			payload.Passthrough[name] = v
		}
	}

	return payload, nil
}

func promptFromBatch(elem map[string]any, d legacyDefaults) models.PromptRequest {
	p := models.PromptRequest{
		UserInput:    firstNonEmpty(stringField(elem, "userInput"), d.input),
		PatternName:  firstNonEmpty(stringField(elem, "patternName"), d.pattern),
		StrategyName: firstNonEmpty(stringField(elem, "strategyName"), d.strategy),
		SessionName:  firstNonEmpty(stringField(elem, "sessionName"), d.sessionName),
		ContextName:  stringField(elem, "contextName"),
		Model:        firstNonEmpty(stringField(elem, "model"), d.model),
		Vendor:       stringField(elem, "vendor"),
		Variables:    mergeVariables(d.variables, variablesField(elem, "variables")),
	}
	return p
}

// mergeVariables overlays the element's variables on the request-level ones.
func mergeVariables(defaults, own map[string]string) map[string]string {
	if len(defaults) == 0 {
		return own
	}
	if len(own) == 0 {
		return defaults
	}
	merged := make(map[string]string, len(defaults)+len(own))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range own {
		merged[k] = v
	}
	return merged
}

// stringField returns the trimmed string at key. Missing keys, non-strings
// and whitespace-only values all read as absent.
func stringField(m map[string]any, key string) string {
	s, ok := m[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func variablesField(m map[string]any, key string) map[string]string {
	obj, ok := m[key].(map[string]any)
	if !ok {
		return nil
	}
	vars := make(map[string]string, len(obj))
	for k, v := range obj {
		k = strings.TrimSpace(k)
		s, ok := v.(string)
		if k == "" || !ok {
			continue
		}
		vars[k] = s
	}
	if len(vars) == 0 {
		return nil
	}
	return vars
}

// finiteField accepts only JSON numbers that parse to a finite float64.
// Strings, booleans and overflowing literals are dropped, never coerced.
func finiteField(m map[string]any, key string) *float64 {
	var f float64
	switch v := m[key].(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case float64:
		f = v
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
