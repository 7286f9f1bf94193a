package personas

import (
	"sort"
	"strings"
)

// Analyst slugs the router can return.
const (
	SlugSecuritySentinel  = "security-sentinel"
	SlugStrategyNavigator = "strategy-navigator"
	SlugCultureCatalyst   = "culture-catalyst"

	// DefaultAnalyst handles ties and articles with no matching tags.
	DefaultAnalyst = SlugStrategyNavigator
)

// routeGroups lists the normalized topic tags each analyst covers.
var routeGroups = []struct {
	slug string
	tags []string
}{
	{SlugSecuritySentinel, []string{
		"cybersecurity", "security", "ransomware", "cyberattack", "breach", "data breach",
		"phishing", "vulnerability", "zero trust", "identity", "privacy", "hipaa",
		"compliance", "regulation", "regulatory", "third-party risk", "information blocking",
	}},
	{SlugCultureCatalyst, []string{
		"leadership", "culture", "workforce", "burnout", "staffing", "nursing", "talent",
		"retention", "recruitment", "change management", "employee engagement",
		"clinician experience", "executive moves",
	}},
}

func defaultRoutes() map[string]string {
	routes := make(map[string]string)
	for _, g := range routeGroups {
		for _, tag := range g.tags {
			routes[tag] = g.slug
		}
	}
	return routes
}

// Router is a tag-vote classifier: every tag found in the table adds one vote
// to its analyst and the highest total wins. Ties and zero votes go to Fallback.
type Router struct {
	Routes   map[string]string
	Fallback string
}

// DefaultRouter returns the router used by the viewpoint run.
func DefaultRouter() Router {
	return Router{Routes: defaultRoutes(), Fallback: DefaultAnalyst}
}

// Route picks the analyst slug for a set of topic tags.
func (r Router) Route(tags []string) string {
	votes := make(map[string]int)
	for _, tag := range tags {
		if slug, ok := r.Routes[normalizeTag(tag)]; ok {
			votes[slug]++
		}
	}

	best, bestVotes, tied := r.Fallback, 0, false
	for slug, n := range votes {
		switch {
		case n > bestVotes:
			best, bestVotes, tied = slug, n, false
		case n == bestVotes:
			tied = true
		}
	}
	if bestVotes == 0 || tied {
		return r.Fallback
	}
	return best
}

// Targets lists every slug the router can return, fallback first.
func (r Router) Targets() []string {
	slugs := make([]string, 0, len(r.Routes))
	seen := map[string]bool{r.Fallback: true}
	for _, slug := range r.Routes {
		if !seen[slug] {
			seen[slug] = true
			slugs = append(slugs, slug)
		}
	}
	sort.Strings(slugs)
	return append([]string{r.Fallback}, slugs...)
}

// Route applies the default routing table.
func Route(tags []string) string {
	return DefaultRouter().Route(tags)
}

func normalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	tag = strings.NewReplacer("_", " ", "#", "").Replace(tag)
	return strings.Join(strings.Fields(tag), " ")
}
