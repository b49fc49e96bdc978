package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/conciergekit/concierge/internal/util"
	"github.com/conciergekit/concierge/tool"
)

// Route names the handler variants the routing decision selects among.
const (
	RouteGeneral      = "GENERAL"
	RouteToolUse      = "TOOL_USE"
	RouteConfigUpdate = "CONFIG_UPDATE"
)

const routePromptTemplate = `You are the routing layer of an assistant. Decide how the user's latest message should be handled.

Available routes:
- GENERAL: plain conversational reply, no tool needed.
- TOOL_USE: the message requires invoking one of the tools below.
- CONFIG_UPDATE: the user explicitly asks to change a stored preference (for example where notes are kept).

Available tools:
{{range .tools}}- {{.Name}}: {{.Description}}
{{end}}
Respond with a single JSON object and nothing else:
{"next": "GENERAL" | "TOOL_USE" | "CONFIG_UPDATE", "instructions": "<guidance for the selected handler>", "confidence": <0.0-1.0>}`

// routeDecision is the structured output expected from the routing call.
type routeDecision struct {
	Next         string  `json:"next"`
	Instructions string  `json:"instructions"`
	Confidence   float64 `json:"confidence"`
}

// routePrompt renders the routing system prompt over the registered tools.
func routePrompt(specs []tool.Spec) (string, error) {
	return util.RenderTemplate(routePromptTemplate, map[string]any{
		"tools": specs,
	})
}

// parseRouteDecision extracts a decision from the model's reply. Any
// malformed or unrecognized output yields ok=false and the caller defaults
// to GENERAL.
func parseRouteDecision(text string) (routeDecision, bool) {
	raw := strings.TrimSpace(text)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	// Tolerate prose around the JSON object.
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var d routeDecision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return routeDecision{}, false
	}

	d.Next = strings.ToUpper(strings.TrimSpace(d.Next))
	switch d.Next {
	case RouteGeneral, RouteToolUse, RouteConfigUpdate:
		return d, true
	}
	return routeDecision{}, false
}
