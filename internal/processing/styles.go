package processing

import "sort"

// DefaultStyleID is the fallback when a caller asks for an unknown style.
// Unknown styles fall back silently rather than erroring.
const DefaultStyleID = "minimal_white"

var stylePrompts = map[string]string{
	"minimal_white":       "clean white background, minimalist, professional product photography, high quality",
	"modern_home":         "modern kitchen interior, contemporary furniture, natural lighting, lifestyle scene",
	"business":            "professional office desk, business environment, clean workspace, corporate setting",
	"natural":             "outdoor natural lighting, window light, soft shadows, organic background",
	"amazon_standard":     "white background, product center, e-commerce photography, amazon listing",
	"tiktok_vibrant":      "vibrant colors, trendy background, eye-catching, social media style, Gen Z aesthetic",
	"instagram_lifestyle": "fashionable lifestyle scene, aesthetic background, Instagram-worthy, influencer style",
	"shopify_custom":      "custom brand background, unique design, e-commerce ready, professional product photography",
}

// StylePrompt resolves a style identifier to its provider prompt template.
func StylePrompt(styleID string) string {
	if prompt, ok := stylePrompts[styleID]; ok {
		return prompt
	}
	return stylePrompts[DefaultStyleID]
}

// SupportedStyles lists the known style identifiers in stable order.
func SupportedStyles() []string {
	styles := make([]string, 0, len(stylePrompts))
	for id := range stylePrompts {
		styles = append(styles, id)
	}
	sort.Strings(styles)
	return styles
}
