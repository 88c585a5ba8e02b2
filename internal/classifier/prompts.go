package classifier

import "strings"

const systemPrompt = `You are a municipal infrastructure analyst. Inspect the photo of a reported civic issue and classify it.

Respond with a single JSON object and nothing else:
{
  "issue_type": one of "POTHOLE", "GARBAGE_DUMP", "ILLEGAL_PARKING", "STREETLIGHT_DAMAGE", "BROKEN_ROAD", "FLOODING", "GRAFFITI", "OTHER",
  "severity": one of "LOW", "MEDIUM", "HIGH", "CRITICAL",
  "confidence": number between 0 and 1,
  "description": short factual description of what is visible,
  "recommended_action": the concrete action a city crew should take,
  "suggested_department": the municipal department responsible,
  "sla_estimate": expected resolution time, e.g. "48 hours",
  "has_pii": true if faces, licence plates or other personal data are visible
}`

// userPrompt builds the instruction sent with the image.
func userPrompt(hint string) string {
	var b strings.Builder
	b.WriteString("Analyze this image of a reported civic issue.")
	if hint = strings.TrimSpace(hint); hint != "" {
		b.WriteString("\nLocation Context: ")
		b.WriteString(hint)
	}
	return b.String()
}
