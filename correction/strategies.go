package correction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agent-recovery/types"
)

// NewRegistry returns the closed set of correction strategies in registry
// order. Strategies that consult the pattern store receive it here; a nil
// store simply makes those strategies decline.
func NewRegistry(store types.PatternStore) []Strategy {
	return []Strategy{
		&MissingRequiredStrategy{store: store},
		&WrongParameterNamesStrategy{store: store},
		&TypeMismatchStrategy{store: store},
		&PatternBasedStrategy{store: store},
		&JSONStringConversionStrategy{},
	}
}

func errorContainsAny(errorMessage string, markers ...string) bool {
	lowered := strings.ToLower(errorMessage)
	for _, marker := range markers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// MissingRequiredStrategy fills in absent parameters from the best
// previously-successful pattern for the tool.
type MissingRequiredStrategy struct {
	store types.PatternStore
}

func (s *MissingRequiredStrategy) Type() string { return TypeMissingRequired }

func (s *MissingRequiredStrategy) Analyze(ctx context.Context, call Call) (AnalysisResult, error) {
	if !errorContainsAny(call.ErrorMessage, "required", "missing") {
		return AnalysisResult{}, nil
	}
	if s.store == nil {
		return AnalysisResult{Reasoning: "no pattern store available"}, nil
	}

	patterns, err := s.store.GetPatterns(ctx, call.ChannelID, call.ToolName, true)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("fetching patterns: %w", err)
	}
	best := types.BestSuccessfulPattern(patterns)
	if best == nil {
		return AnalysisResult{Reasoning: "no successful pattern known for tool"}, nil
	}

	corrected := cloneParams(call.Parameters)
	added := 0
	for key, value := range best.Parameters {
		if _, exists := corrected[key]; !exists {
			corrected[key] = value
			added++
		}
	}

	// 0.9 is a fixed penalty for relying on a historical pattern rather
	// than the call itself.
	return AnalysisResult{
		CanCorrect:          true,
		Confidence:          best.ConfidenceScore * 0.9,
		SuggestedCorrection: corrected,
		Reasoning:           fmt.Sprintf("filled %d missing parameter(s) from best successful pattern", added),
	}, nil
}

// nodeRenameTable maps legacy parameter names used with dataTable workflow
// nodes onto their current names.
var nodeRenameTable = map[string]string{
	"tableName": "dataTable",
	"insert":    "insertRow",
	"data":      "dataFields",
	"fields":    "dataFields",
}

// WrongParameterNamesStrategy renames misnamed parameters, first via a
// fixed domain rename table for dataTable workflow nodes, then by fuzzy
// matching against the best successful pattern.
type WrongParameterNamesStrategy struct {
	store types.PatternStore
}

func (s *WrongParameterNamesStrategy) Type() string { return TypeWrongParameterNames }

func (s *WrongParameterNamesStrategy) Analyze(ctx context.Context, call Call) (AnalysisResult, error) {
	if !errorContainsAny(call.ErrorMessage, "unknown", "additional", "required", "missing") {
		return AnalysisResult{}, nil
	}

	if corrected, renamed := s.renameNodeParameters(call.Parameters); renamed > 0 {
		return AnalysisResult{
			CanCorrect:          true,
			Confidence:          0.95,
			SuggestedCorrection: corrected,
			Reasoning:           fmt.Sprintf("renamed %d dataTable node parameter(s)", renamed),
		}, nil
	}

	return s.fuzzyMatchAgainstPattern(ctx, call)
}

// renameNodeParameters applies the fixed rename table to every dataTable
// node in a workflow-node array. Returns the corrected parameters and the
// number of keys renamed.
func (s *WrongParameterNamesStrategy) renameNodeParameters(params map[string]interface{}) (map[string]interface{}, int) {
	nodes, ok := params["nodes"].([]interface{})
	if !ok {
		return nil, 0
	}

	renamed := 0
	newNodes := make([]interface{}, len(nodes))
	for i, raw := range nodes {
		node, ok := raw.(map[string]interface{})
		if !ok {
			newNodes[i] = raw
			continue
		}
		nodeType, _ := node["type"].(string)
		nodeParams, hasParams := node["parameters"].(map[string]interface{})
		if !strings.Contains(nodeType, "dataTable") || !hasParams {
			newNodes[i] = raw
			continue
		}

		newParams := make(map[string]interface{}, len(nodeParams))
		for key, value := range nodeParams {
			if target, found := nodeRenameTable[key]; found {
				newParams[target] = value
				renamed++
			} else {
				newParams[key] = value
			}
		}

		newNode := make(map[string]interface{}, len(node))
		for k, v := range node {
			newNode[k] = v
		}
		newNode["parameters"] = newParams
		newNodes[i] = newNode
	}

	if renamed == 0 {
		return nil, 0
	}
	corrected := cloneParams(params)
	corrected["nodes"] = newNodes
	return corrected, renamed
}

func (s *WrongParameterNamesStrategy) fuzzyMatchAgainstPattern(ctx context.Context, call Call) (AnalysisResult, error) {
	if s.store == nil || len(call.Parameters) == 0 {
		return AnalysisResult{}, nil
	}

	patterns, err := s.store.GetPatterns(ctx, call.ChannelID, call.ToolName, true)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("fetching patterns: %w", err)
	}
	best := types.BestSuccessfulPattern(patterns)
	if best == nil {
		return AnalysisResult{Reasoning: "no successful pattern to match names against"}, nil
	}

	corrected := make(map[string]interface{}, len(call.Parameters))
	matched := 0
	renamed := 0
	for key, value := range call.Parameters {
		target := key
		for patternKey := range best.Parameters {
			if keysSimilar(key, patternKey) {
				target = patternKey
				matched++
				break
			}
		}
		if target != key {
			renamed++
		}
		corrected[target] = value
	}

	if renamed == 0 {
		return AnalysisResult{Reasoning: "no parameter names needed renaming"}, nil
	}

	return AnalysisResult{
		CanCorrect:          true,
		Confidence:          float64(matched) / float64(len(call.Parameters)) * 0.8,
		SuggestedCorrection: corrected,
		Reasoning:           fmt.Sprintf("renamed %d parameter(s) by similarity to known pattern", renamed),
	}, nil
}

// keysSimilar reports whether two parameter names refer to the same thing:
// exact match, match after stripping separators and case, or one containing
// the other.
func keysSimilar(a, b string) bool {
	if a == b {
		return true
	}
	normalize := func(s string) string {
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "_", "")
		return strings.ReplaceAll(s, "-", "")
	}
	na, nb := normalize(a), normalize(b)
	if na == nb {
		return true
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// typeMismatchMarkers is deliberately permissive: type errors are phrased
// in many ways across tool validators.
var typeMismatchMarkers = []string{
	"type", "expected", "must be", "invalid", "schema",
	"boolean", "object", "string", "number", "integer", "array",
	"required", "missing",
}

// TypeMismatchStrategy coerces parameter values to the types the schema
// (or the best known pattern) says they should have.
type TypeMismatchStrategy struct {
	store types.PatternStore
}

func (s *TypeMismatchStrategy) Type() string { return TypeTypeMismatch }

func (s *TypeMismatchStrategy) Analyze(ctx context.Context, call Call) (AnalysisResult, error) {
	if !errorContainsAny(call.ErrorMessage, typeMismatchMarkers...) {
		return AnalysisResult{}, nil
	}

	if call.ToolName == "task_complete" {
		if result, ok := s.correctTaskComplete(call); ok {
			return result, nil
		}
	}

	if call.Schema != nil && len(call.Schema.InputSchema.Properties) > 0 {
		return s.coerceWithSchema(call), nil
	}
	return s.coerceWithPattern(ctx, call)
}

// correctTaskComplete handles the task-completion tool's two recurring
// mistakes: a stringified success flag and stringified details.
func (s *TypeMismatchStrategy) correctTaskComplete(call Call) (AnalysisResult, bool) {
	corrected := cloneParams(call.Parameters)
	changed := 0

	if raw, ok := corrected["success"].(string); ok {
		lowered := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case lowered == "true" || lowered == "1" || lowered == "yes":
			corrected["success"] = true
			changed++
		case lowered == "false" || lowered == "0" || lowered == "no":
			corrected["success"] = false
			changed++
		}
	}

	if raw, ok := corrected["details"].(string); ok {
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			corrected["details"] = parsed
		} else {
			corrected["details"] = map[string]interface{}{"value": raw}
		}
		changed++
	}

	if changed == 0 {
		return AnalysisResult{}, false
	}
	return AnalysisResult{
		CanCorrect:          true,
		Confidence:          0.95,
		SuggestedCorrection: corrected,
		Reasoning:           "coerced task_complete success/details fields",
	}, true
}

func (s *TypeMismatchStrategy) coerceWithSchema(call Call) AnalysisResult {
	corrected := cloneParams(call.Parameters)
	changed := 0

	for name, prop := range call.Schema.InputSchema.Properties {
		value, present := corrected[name]
		if !present || typeMatches(prop.Type, runtimeType(value)) {
			continue
		}
		converted, ok := ConvertValue(value, prop.Type)
		if ok {
			corrected[name] = converted
			changed++
		}
	}

	if changed == 0 {
		return AnalysisResult{Reasoning: "no coercible type mismatches against schema"}
	}
	return AnalysisResult{
		CanCorrect:          true,
		Confidence:          0.9,
		SuggestedCorrection: corrected,
		Reasoning:           fmt.Sprintf("coerced %d parameter(s) to schema-declared types", changed),
	}
}

func (s *TypeMismatchStrategy) coerceWithPattern(ctx context.Context, call Call) (AnalysisResult, error) {
	if s.store == nil {
		return AnalysisResult{Reasoning: "no schema and no pattern store"}, nil
	}
	patterns, err := s.store.GetPatterns(ctx, call.ChannelID, call.ToolName, true)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("fetching patterns: %w", err)
	}
	best := types.BestSuccessfulPattern(patterns)
	if best == nil {
		return AnalysisResult{Reasoning: "no successful pattern to infer types from"}, nil
	}

	corrected := cloneParams(call.Parameters)
	changed := 0
	for name, value := range call.Parameters {
		patternValue, known := best.Parameters[name]
		if !known {
			continue
		}
		want := runtimeType(patternValue)
		if want == "null" || typeMatches(want, runtimeType(value)) {
			continue
		}
		converted, ok := ConvertValue(value, want)
		if ok {
			corrected[name] = converted
			changed++
		}
	}

	if changed == 0 {
		return AnalysisResult{Reasoning: "no coercible mismatches against known pattern"}, nil
	}
	return AnalysisResult{
		CanCorrect:          true,
		Confidence:          0.7,
		SuggestedCorrection: corrected,
		Reasoning:           fmt.Sprintf("coerced %d parameter(s) to pattern-observed types", changed),
	}, nil
}

// PatternBasedStrategy delegates to the pattern store's recommendation API
type PatternBasedStrategy struct {
	store types.PatternStore
}

func (s *PatternBasedStrategy) Type() string { return TypePatternBased }

func (s *PatternBasedStrategy) Analyze(ctx context.Context, call Call) (AnalysisResult, error) {
	if s.store == nil {
		return AnalysisResult{Reasoning: "no pattern store available"}, nil
	}

	recs, err := s.store.GetRecommendations(ctx, call.AgentID, call.ChannelID, call.ToolName, call.Parameters)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("fetching recommendations: %w", err)
	}
	if len(recs) == 0 {
		return AnalysisResult{Reasoning: "no recommendations for call"}, nil
	}

	best := recs[0]
	for _, rec := range recs[1:] {
		if rec.Confidence*rec.RelevanceScore > best.Confidence*best.RelevanceScore {
			best = rec
		}
	}
	if len(best.Pattern.Parameters) == 0 {
		return AnalysisResult{Reasoning: "best recommendation carries no parameters"}, nil
	}

	corrected := cloneParams(call.Parameters)
	for key, value := range best.Pattern.Parameters {
		corrected[key] = value
	}

	reason := best.Reason
	if reason == "" {
		reason = "applied recommended parameter pattern"
	}
	return AnalysisResult{
		CanCorrect:          true,
		Confidence:          best.Confidence * best.RelevanceScore,
		SuggestedCorrection: corrected,
		Reasoning:           reason,
	}, nil
}

// JSONStringConversionStrategy parses string parameters that carry
// serialized JSON objects or arrays.
type JSONStringConversionStrategy struct{}

func (s *JSONStringConversionStrategy) Type() string { return TypeJSONStringConversion }

func (s *JSONStringConversionStrategy) Analyze(ctx context.Context, call Call) (AnalysisResult, error) {
	if !errorContainsAny(call.ErrorMessage, "object", "array", "json") {
		return AnalysisResult{}, nil
	}

	corrected := cloneParams(call.Parameters)
	converted := 0
	for key, value := range call.Parameters {
		raw, isString := value.(string)
		if !isString {
			continue
		}
		trimmed := strings.TrimSpace(raw)
		looksStructured := (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
			(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"))
		if !looksStructured {
			continue
		}
		var parsed interface{}
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			corrected[key] = parsed
			converted++
		}
	}

	if converted == 0 {
		return AnalysisResult{Reasoning: "no JSON-looking string parameters"}, nil
	}
	return AnalysisResult{
		CanCorrect:          true,
		Confidence:          0.95,
		SuggestedCorrection: corrected,
		Reasoning:           fmt.Sprintf("parsed %d JSON string parameter(s)", converted),
	}, nil
}
