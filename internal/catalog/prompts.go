package catalog

import (
	"fmt"
	"strings"
)

func fill(template string, pairs ...string) string {
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(template))
}

// RapPrompt asks the text model for short romantic rap lyrics sung by ch.
func (c *Catalog) RapPrompt(ch Character) string {
	role := "celebrity character"
	if ch.KPop {
		role = "K-pop star"
	}
	return fill(c.RapPromptTemplate, "{first_name}", ch.FirstName(), "{role}", role)
}

// RapVideoPrompt describes the final performance clip.
func (c *Catalog) RapVideoPrompt(ch Character) string {
	return fill(c.RapVideoPromptTemplate, "{description}", strings.TrimSpace(ch.Description))
}

func (c *Catalog) AvatarPrompt(description string) string {
	return fill(c.AvatarPromptTemplate, "{description}", strings.TrimSpace(description))
}

// PosterPrompt renders a campaign poster prompt for a candidate described by
// description running in city.
func (c *Catalog) PosterPrompt(style CampaignStyle, description string, city City) string {
	base := fill(style.PosterTemplate,
		"{description}", strings.TrimSpace(description),
		"{city}", city.Name,
		"{state}", city.State,
		"{slogan}", city.Slogan,
	)
	return fmt.Sprintf("%s Include elements specific to %s: %s. Address local issues: %s. Campaign slogan: %q. High quality, detailed, professional campaign poster design.",
		base, city.Name, strings.Join(city.CulturalElements, ", "), strings.Join(city.LocalIssues, ", "), city.Slogan)
}

// CampaignVideoPrompt renders the rally clip prompt for style in city.
func (c *Catalog) CampaignVideoPrompt(style CampaignStyle, description string, city City) string {
	base := fill(style.VideoTemplate,
		"{description}", strings.TrimSpace(description),
		"{city}", city.Name,
	)
	return fmt.Sprintf("%s Include elements specific to %s: %s. Campaign slogan: %q. High quality, professional campaign video.",
		base, city.Name, strings.Join(city.CulturalElements, ", "), city.Slogan)
}
