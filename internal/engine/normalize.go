package engine

import "modelbridge/pkg/types"

// inferenceParamKeys are top-level model keys that seed Parameters.
var inferenceParamKeys = []string{
	"temperature",
	"token_limit",
	"top_k",
	"top_p",
	"min_p",
	"stream",
	"max_tokens",
	"stop",
	"frequency_penalty",
	"presence_penalty",
	"engine",
}

// loadParamKeys are top-level model keys that seed Settings.
var loadParamKeys = []string{
	"ctx_len",
	"ngl",
	"embedding",
	"n_parallel",
	"cpu_threads",
	"prompt_template",
	"system_prompt",
	"ai_prompt",
	"user_prompt",
	"llama_model_path",
	"mmproj",
	"cont_batching",
	"vision_model",
	"text_model",
	"engine",
}

// Normalize fills parameters, settings and metadata of a raw model object.
//
// Derived values come from top-level keys; explicit "parameters",
// "inference_params" and "settings" objects override them. An existing
// metadata value is kept as-is; only a missing or null one is replaced by
// {tags: [], size: <size or 0>}. raw is not modified.
func Normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw)+3)
	for k, v := range raw {
		out[k] = v
	}

	params := pick(raw, inferenceParamKeys)
	merge(params, objectAt(raw, "parameters"))
	merge(params, objectAt(raw, "inference_params"))
	out["parameters"] = params

	settings := pick(raw, loadParamKeys)
	merge(settings, objectAt(raw, "settings"))
	out["settings"] = settings

	if raw["metadata"] == nil {
		size, ok := raw["size"]
		if !ok || size == nil {
			size = float64(0)
		}
		out["metadata"] = map[string]any{"tags": []any{}, "size": size}
	}
	return out
}

// NormalizeModel normalizes raw and converts it to a Model.
func NormalizeModel(raw map[string]any) types.Model {
	return types.ModelFromMap(Normalize(raw))
}

func pick(raw map[string]any, keys []string) map[string]any {
	out := make(map[string]any)
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			out[k] = v
		}
	}
	return out
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func objectAt(raw map[string]any, key string) map[string]any {
	m, _ := raw[key].(map[string]any)
	return m
}
