package service

import (
	"strings"

	catalogdomain "github.com/vidra-ai/vidra/internal/catalog/domain"
	"github.com/vidra-ai/vidra/internal/generation/domain"
)

// buildInput assembles the provider input payload, mapping frame and audio
// fields onto whatever parameter names the model schema declares.
func buildInput(model *catalogdomain.Model, req domain.GenerateRequest) map[string]any {
	input := map[string]any{
		"prompt":       req.Prompt,
		"duration":     req.DurationSeconds,
		"aspect_ratio": req.AspectRatio,
	}

	params := model.Parameters()
	imageParam := findParam(params, isImageParam)
	firstFrameParam := findParam(params, isFirstFrameParam)
	lastFrameParam := findParam(params, isLastFrameParam)
	audioParam := findParam(params, isAudioParam)

	if req.FirstFrameURL != "" {
		switch {
		case imageParam != "":
			input[imageParam] = req.FirstFrameURL
		case firstFrameParam != "":
			input[firstFrameParam] = req.FirstFrameURL
		default:
			// Unknown schema: write both spellings and let the provider
			// pick the one it understands.
			input["first_frame"] = req.FirstFrameURL
			input["firstFrame"] = req.FirstFrameURL
		}
	}

	if req.LastFrameURL != "" {
		if lastFrameParam != "" {
			input[lastFrameParam] = req.LastFrameURL
		} else {
			input["last_frame"] = req.LastFrameURL
			input["lastFrame"] = req.LastFrameURL
		}
	}

	if req.EnableAudio {
		if audioParam != "" {
			input[audioParam] = true
		}
		input["generate_audio"] = true
		input["enable_audio"] = true
		input["with_audio"] = true
	}

	if req.NegativePrompt != "" {
		input["negative_prompt"] = req.NegativePrompt
		input["negativePrompt"] = req.NegativePrompt
	}

	return input
}

func findParam(params []catalogdomain.SchemaParameter, match func(catalogdomain.SchemaParameter) bool) string {
	for _, p := range params {
		if match(p) {
			return p.Name
		}
	}
	return ""
}

func isURIString(p catalogdomain.SchemaParameter) bool {
	return p.Type == "string" && (p.Format == "uri" || p.Format == "url")
}

func isImageParam(p catalogdomain.SchemaParameter) bool {
	name := strings.ToLower(p.Name)
	switch name {
	case "image", "input_image", "inputimage", "start_image":
		return true
	}
	return strings.Contains(name, "image") && isURIString(p) && !isFirstFrameParam(p) && !isLastFrameParam(p)
}

func isFirstFrameParam(p catalogdomain.SchemaParameter) bool {
	switch strings.ToLower(p.Name) {
	case "first_frame", "firstframe", "first_frame_url", "firstframeurl", "first_frame_image":
		return true
	}
	return false
}

func isLastFrameParam(p catalogdomain.SchemaParameter) bool {
	switch strings.ToLower(p.Name) {
	case "last_frame", "lastframe", "last_frame_url", "lastframeurl", "last_frame_image":
		return true
	}
	return false
}

func isAudioParam(p catalogdomain.SchemaParameter) bool {
	name := strings.ToLower(p.Name)
	switch name {
	case "audio", "audio_file", "audiofile":
		return true
	}
	return strings.Contains(name, "audio") && isURIString(p)
}
