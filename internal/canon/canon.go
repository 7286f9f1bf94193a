// Package canon resolves organization and technology mentions to their
// canonical names using static alias tables.
package canon

import "strings"

type aliasSet struct {
	canonical string
	aliases   []string
}

var organizationSets = []aliasSet{
	// EHR and platform vendors
	{"Oracle Health", []string{"cerner", "cerner corporation", "cerner corp", "oracle cerner", "oracle health"}},
	{"Epic Systems", []string{"epic", "epic systems", "epic systems corporation"}},
	{"Veradigm", []string{"allscripts", "veradigm"}},
	{"MEDITECH", []string{"meditech", "medical information technology"}},
	{"athenahealth", []string{"athenahealth", "athena health"}},
	{"NextGen Healthcare", []string{"nextgen", "nextgen healthcare"}},
	{"Microsoft", []string{"microsoft", "nuance", "nuance communications"}},
	{"Google", []string{"google", "google cloud", "google health"}},
	{"Amazon", []string{"amazon", "aws", "amazon web services", "one medical"}},

	// Health systems
	{"Kaiser Permanente", []string{"kaiser", "kaiser permanente"}},
	{"Mayo Clinic", []string{"mayo", "mayo clinic"}},
	{"Cleveland Clinic", []string{"cleveland clinic"}},
	{"HCA Healthcare", []string{"hca", "hca healthcare"}},
	{"CommonSpirit Health", []string{"commonspirit", "commonspirit health"}},
	{"Ascension", []string{"ascension", "ascension health"}},

	// Payers
	{"UnitedHealth Group", []string{"unitedhealth", "unitedhealth group", "unitedhealthcare", "uhg"}},
	{"Optum", []string{"optum"}},
	{"Change Healthcare", []string{"change healthcare"}},
	{"Elevance Health", []string{"anthem", "elevance", "elevance health"}},
	{"CVS Health", []string{"cvs", "cvs health", "aetna"}},
	{"Humana", []string{"humana"}},
	{"The Cigna Group", []string{"cigna", "the cigna group"}},

	// Agencies
	{"Centers for Medicare & Medicaid Services", []string{"cms", "centers for medicare and medicaid services", "centers for medicare & medicaid services"}},
	{"Department of Health and Human Services", []string{"hhs", "department of health and human services"}},
	{"ASTP/ONC", []string{"onc", "astp", "astp/onc", "office of the national coordinator"}},
	{"Food and Drug Administration", []string{"fda", "food and drug administration"}},
	{"HHS Office for Civil Rights", []string{"ocr", "hhs ocr", "office for civil rights"}},
}

var technologySets = []aliasSet{
	{"Electronic Health Record", []string{"ehr", "emr", "electronic health record", "electronic health records", "electronic medical record"}},
	{"MyChart", []string{"mychart", "epic mychart"}},
	{"DAX Copilot", []string{"dax", "dax copilot", "dax express", "nuance dax", "microsoft dragon copilot"}},
	{"FHIR", []string{"fhir", "hl7 fhir", "fast healthcare interoperability resources"}},
	{"Artificial Intelligence", []string{"ai", "artificial intelligence"}},
	{"Generative AI", []string{"genai", "gen ai", "generative ai", "generative artificial intelligence"}},
	{"Large Language Model", []string{"llm", "llms", "large language model", "large language models"}},
	{"Ambient Clinical Documentation", []string{"ambient ai", "ambient scribe", "ambient listening", "ambient clinical documentation"}},
	{"Telehealth", []string{"telehealth", "telemedicine", "virtual care"}},
	{"Remote Patient Monitoring", []string{"rpm", "remote patient monitoring"}},
	{"Revenue Cycle Management", []string{"rcm", "revenue cycle management"}},
	{"TEFCA", []string{"tefca"}},
	{"Cloud Computing", []string{"cloud", "cloud computing"}},
}

var (
	organizationAliases = index(organizationSets)
	technologyAliases   = index(technologySets)
)

// index flattens alias sets into a lookup table. Every canonical name also
// resolves to itself.
func index(sets []aliasSet) map[string]string {
	table := make(map[string]string)
	for _, set := range sets {
		table[normalize(set.canonical)] = set.canonical
		for _, alias := range set.aliases {
			table[normalize(alias)] = set.canonical
		}
	}
	return table
}

// Organization returns the canonical organization name for a mention. A miss
// returns the trimmed mention unchanged.
func Organization(name string) string {
	return lookup(organizationAliases, name)
}

// Technology returns the canonical technology name for a mention. A miss
// returns the trimmed mention unchanged.
func Technology(name string) string {
	return lookup(technologyAliases, name)
}

// Key is the batch-dedup key for a canonical name.
func Key(name string) string {
	return normalize(name)
}

func lookup(table map[string]string, name string) string {
	if canonical, ok := table[normalize(name)]; ok {
		return canonical
	}
	return strings.TrimSpace(name)
}

// normalize lowercases, trims and collapses inner whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
