package agent

import "content-agent-service/internal/entity"

const jsonOnly = "Respond with a single JSON object and nothing else."

const (
	BriefAnalyst      = "brief-analyst"
	MarketResearcher  = "market-researcher"
	ContentStrategist = "content-strategist"
	Copywriter        = "copywriter"
	Editor            = "editor"
)

// DefaultChain is the fixed agent sequence every job runs. Each step sees
// the fragments of the steps before it.
func DefaultChain() []Agent {
	return []Agent{
		New(BriefAnalyst, "Brief Analyst",
			"You turn marketing requests into structured creative briefs. "+jsonOnly,
			`Content type: {{.Request.ContentType}}
Topic: {{.Request.Topic}}{{if .Request.Prompt}}
Request: {{.Request.Prompt}}{{end}}
Audience: {{.Request.Audience}}
Tone: {{.Request.Tone}}
Keywords: {{join .Request.Keywords ", "}}
Brand: {{.Request.Brand}}
Notes: {{.Request.Notes}}

Full request JSON:
{{.Raw}}

Return {"audience": string, "goals": [string], "tone": string, "keyMessages": [string]}.`),

		New(MarketResearcher, "Market Researcher",
			"You are a market researcher for a marketing team. "+jsonOnly,
			`Creative brief:
{{index .Previous "brief-analyst"}}

Return {"insights": [string], "competitorAngles": [string], "painPoints": [string]}.`),

		New(ContentStrategist, "Content Strategist",
			"You plan marketing content. "+jsonOnly,
			`Brief:
{{index .Previous "brief-analyst"}}

Research:
{{index .Previous "market-researcher"}}

Plan a {{.Request.ContentType}}{{if .Request.Length}} of about {{.Request.Length}}{{end}}.
Return {"angle": string, "outline": [string], "callToAction": string}.`),

		New(Copywriter, "Copywriter",
			"You write marketing copy that follows the strategy exactly. "+jsonOnly,
			`Brief:
{{index .Previous "brief-analyst"}}

Strategy:
{{index .Previous "content-strategist"}}

Keywords to include: {{join .Request.Keywords ", "}}
Return {"headline": string, "body": string, "variants": [string]}.`),

		New(Editor, "Editor",
			"You edit marketing copy for clarity, tone and accuracy. "+jsonOnly,
			`Brief:
{{index .Previous "brief-analyst"}}

Draft:
{{index .Previous "copywriter"}}

Return {"headline": string, "body": string, "summary": string, "qualityScore": number}.`),
	}
}

// Refs lists the chain's agents for a new job record.
func Refs(chain []Agent) []entity.AgentRef {
	refs := make([]entity.AgentRef, 0, len(chain))
	for _, a := range chain {
		refs = append(refs, a.Ref())
	}
	return refs
}
