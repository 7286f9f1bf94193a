package entities

import (
	"strings"

	"healthwire/internal/canon"
	"healthwire/internal/core"
)

// Normalize maps every organization and technology onto its canonical name,
// including a person's organization and a technology's vendor, then drops
// later repeats of the same canonical entity. The first mention wins, and its
// spelling is reused wherever the same organization appears again in the batch.
func Normalize(ex Extraction) Extraction {
	var out Extraction

	orgs := make(orgSpellings)
	seenOrg := make(map[string]bool)
	for _, m := range ex.Organizations {
		name := orgs.resolve(m.Name)
		if name == "" || seenOrg[canon.Key(name)] {
			continue
		}
		seenOrg[canon.Key(name)] = true
		out.Organizations = append(out.Organizations, OrganizationMention{
			Name:       name,
			Type:       string(core.ParseOrganizationType(strings.ToLower(strings.TrimSpace(m.Type)))),
			Confidence: core.ClampConfidence(m.Confidence),
		})
	}

	seenPerson := make(map[string]bool)
	for _, m := range ex.People {
		name := strings.TrimSpace(m.Name)
		if name == "" || seenPerson[name] {
			continue
		}
		seenPerson[name] = true
		out.People = append(out.People, PersonMention{
			Name:         name,
			Title:        strings.TrimSpace(m.Title),
			Organization: orgs.resolve(m.Organization),
			Confidence:   core.ClampConfidence(m.Confidence),
		})
	}

	seenTech := make(map[string]bool)
	for _, m := range ex.Technologies {
		name := canon.Technology(m.Name)
		if name == "" || seenTech[canon.Key(name)] {
			continue
		}
		seenTech[canon.Key(name)] = true
		out.Technologies = append(out.Technologies, TechnologyMention{
			Name:       name,
			Category:   strings.ToLower(strings.TrimSpace(m.Category)),
			Vendor:     orgs.resolve(m.Vendor),
			Confidence: core.ClampConfidence(m.Confidence),
		})
	}

	return out
}

// orgSpellings maps a canonical key to the first spelling seen in a batch.
type orgSpellings map[string]string

func (o orgSpellings) resolve(name string) string {
	name = canon.Organization(name)
	if name == "" {
		return ""
	}
	key := canon.Key(name)
	if first, ok := o[key]; ok {
		return first
	}
	o[key] = name
	return name
}
