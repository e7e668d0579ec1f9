// Package catalog holds the static content the generators draw on: the
// selectable characters, the campaign poster styles and per-city campaign
// material. It ships embedded in the binary.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

// Character is a selectable performer for the rap video flow.
type Character struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	KPop        bool   `yaml:"kpop" json:"kpop"`
	Description string `yaml:"description" json:"description"`
	ImagePrompt string `yaml:"image_prompt" json:"imagePrompt"`
}

// FirstName is the leading word of the display name.
func (c Character) FirstName() string {
	fields := strings.Fields(c.Name)
	if len(fields) == 0 {
		return c.ID
	}
	return fields[0]
}

// CampaignStyle is one visual direction for posters and campaign videos.
type CampaignStyle struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	Description    string `yaml:"description" json:"description"`
	ColorScheme    string `yaml:"color_scheme" json:"colorScheme"`
	PosterTemplate string `yaml:"poster_template" json:"-"`
	VideoTemplate  string `yaml:"video_template" json:"-"`
}

// City carries the local flavour added to campaign prompts.
type City struct {
	Name             string   `yaml:"name" json:"name"`
	State            string   `yaml:"state" json:"state"`
	Slogan           string   `yaml:"slogan" json:"slogan"`
	LocalIssues      []string `yaml:"local_issues" json:"localIssues"`
	CulturalElements []string `yaml:"cultural_elements" json:"culturalElements"`
}

// Catalog is the parsed catalog document.
type Catalog struct {
	ReferenceImage         string          `yaml:"reference_image"`
	RapSystemPrompt        string          `yaml:"rap_system_prompt"`
	RapPromptTemplate      string          `yaml:"rap_prompt_template"`
	RapVideoPromptTemplate string          `yaml:"rap_video_prompt_template"`
	CombinedImagePrompt    string          `yaml:"combined_image_prompt"`
	AvatarPromptTemplate   string          `yaml:"avatar_prompt_template"`
	CaptionPrompt          string          `yaml:"caption_prompt"`
	Characters             []Character     `yaml:"characters"`
	CampaignStyles         []CampaignStyle `yaml:"campaign_styles"`
	Cities                 []City          `yaml:"cities"`
	DefaultCity            City            `yaml:"default_city"`
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(embedded)
}

// MustDefault is Default for process start-up; the embedded document is
// covered by tests.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Characters) == 0 {
		return fmt.Errorf("catalog: no characters defined")
	}
	seen := make(map[string]struct{}, len(c.Characters))
	for _, ch := range c.Characters {
		if ch.ID == "" || ch.Name == "" || ch.ImagePrompt == "" {
			return fmt.Errorf("catalog: character %q is incomplete", ch.ID)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("catalog: duplicate character %q", ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}
	for _, s := range c.CampaignStyles {
		if s.ID == "" || s.PosterTemplate == "" || s.VideoTemplate == "" {
			return fmt.Errorf("catalog: campaign style %q is incomplete", s.ID)
		}
	}
	if c.DefaultCity.Name == "" {
		return fmt.Errorf("catalog: default city is required")
	}
	return nil
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Character resolves a character by id or display name, case-insensitively.
// A bare first name ("jimin") also matches.
func (c *Catalog) Character(ref string) (Character, bool) {
	want := fold(ref)
	if want == "" {
		return Character{}, false
	}
	for _, ch := range c.Characters {
		if fold(ch.ID) == want || fold(ch.Name) == want {
			return ch, true
		}
	}
	for _, ch := range c.Characters {
		if fold(ch.FirstName()) == want {
			return ch, true
		}
	}
	return Character{}, false
}

// CampaignStyle resolves a style by id.
func (c *Catalog) CampaignStyle(id string) (CampaignStyle, bool) {
	want := fold(id)
	for _, s := range c.CampaignStyles {
		if fold(s.ID) == want {
			return s, true
		}
	}
	return CampaignStyle{}, false
}

// City returns the campaign material for name. Unknown cities get the default
// material under the requested name so prompts still mention it.
func (c *Catalog) City(name string) (City, bool) {
	want := fold(name)
	for _, city := range c.Cities {
		if fold(city.Name) == want {
			return city, true
		}
	}
	city := c.DefaultCity
	if display := strings.TrimSpace(name); display != "" {
		city.Name = cases.Title(language.English).String(display)
	}
	return city, false
}
