package utils

import (
	"strings"
)

// RenderTemplate substitutes {name} placeholders from the payload. Tokens
// without a payload value stay literal so a half-filled template still sends
// something readable instead of failing the broadcast.
func RenderTemplate(text string, payload map[string]string) string {
	if len(payload) == 0 {
		return text
	}
	pairs := make([]string, 0, len(payload)*2)
	for k, v := range payload {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
