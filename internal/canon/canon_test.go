package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrganization(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Cerner", "Oracle Health"},
		{"Cerner Corporation", "Oracle Health"},
		{"  oracle   CERNER ", "Oracle Health"},
		{"Epic", "Epic Systems"},
		{"Allscripts", "Veradigm"},
		{"CMS", "Centers for Medicare & Medicaid Services"},
		{"Acme Health Startup", "Acme Health Startup"},
		{"  Acme Health  ", "Acme Health"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Organization(tt.in))
		})
	}
}

func TestTechnology(t *testing.T) {
	assert.Equal(t, "Electronic Health Record", Technology("EHR"))
	assert.Equal(t, "DAX Copilot", Technology("Nuance DAX"))
	assert.Equal(t, "FHIR", Technology("hl7 fhir"))
	assert.Equal(t, "Generative AI", Technology("GenAI"))
	assert.Equal(t, "Quantum Scheduler", Technology("Quantum Scheduler"))
}

func TestCanonicalNamesResolveToThemselves(t *testing.T) {
	for _, set := range organizationSets {
		assert.Equal(t, set.canonical, Organization(set.canonical))
	}
	for _, set := range technologySets {
		assert.Equal(t, set.canonical, Technology(set.canonical))
	}
}

func TestAliasesAreUnambiguous(t *testing.T) {
	seen := make(map[string]string)
	for _, set := range organizationSets {
		for _, alias := range set.aliases {
			if prev, ok := seen[normalize(alias)]; ok {
				t.Errorf("alias %q maps to both %q and %q", alias, prev, set.canonical)
			}
			seen[normalize(alias)] = set.canonical
		}
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("Oracle Health"), Key("  oracle   health"))
}
