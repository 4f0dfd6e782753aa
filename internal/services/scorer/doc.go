// Package scorer adapts external quality scoring services.
//
// Two providers are supported. The http provider posts the candidate's
// frame and context to a JSON scoring service. The gemini provider sends a
// downscaled last frame with the shot prompt to a Gemini vision model and
// asks for a JSON score. Both return raw scores; clamping, fallback, and rate
// limiting live in the quality package.
package scorer
