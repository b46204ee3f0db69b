// Package resolve maps a lead record onto the canonical template variables.
package resolve

import (
	"strings"

	"github.com/book-expert/voice-outreach/internal/leads"
)

// Canonical variable names.
const (
	FirstName         = "first_name"
	CompanyName       = "company_name"
	Position          = "position"
	HiringForJobTitle = "hiring_for_job_title"
	JobDescription    = "job_description"
)

// FirstNameFallback is used when a record carries no usable first name.
const FirstNameFallback = "there"

// Alias lists, in priority order, the record fields a canonical variable may
// be read from.
type Alias struct {
	Name       string
	Candidates []string
}

// AliasTable is an ordered set of aliases.
type AliasTable []Alias

// Variables maps a canonical variable name to its resolved value.
type Variables map[string]string

// Clone returns an independent copy of v.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for key, value := range v {
		out[key] = value
	}

	return out
}

// DefaultAliasTable returns the alias table used for the usual lead exports.
func DefaultAliasTable() AliasTable {
	return AliasTable{
		{Name: FirstName, Candidates: []string{
			"first_name", "firstname", "first", "given_name", "name", "full_name", "contact_name",
		}},
		{Name: CompanyName, Candidates: []string{
			"company_name", "company", "organization", "organisation", "account_name", "employer",
		}},
		{Name: Position, Candidates: []string{
			"position", "title", "job_title", "role", "current_title",
		}},
		{Name: HiringForJobTitle, Candidates: []string{
			"hiring_for_job_title", "hiring_for___job_title", "hiring_for", "hiring_role", "open_role", "job_opening",
		}},
		{Name: JobDescription, Candidates: []string{
			"job_description", "description", "job_summary", "jd",
		}},
	}
}

// Names returns the canonical names of table in order.
func Names(table AliasTable) []string {
	names := make([]string, 0, len(table))
	for _, alias := range table {
		names = append(names, alias.Name)
	}

	return names
}

// Resolve produces a value for every canonical name in table. The first
// candidate column present in record wins; when none is present the value is
// empty. first_name is reduced to its first word, or FirstNameFallback when
// empty.
func Resolve(record leads.Record, table AliasTable) Variables {
	vars := make(Variables, len(table))

	for _, alias := range table {
		value := lookup(record, alias.Candidates)

		if alias.Name == FirstName {
			value = firstWord(value)
		}

		vars[alias.Name] = value
	}

	return vars
}

func lookup(record leads.Record, candidates []string) string {
	for _, candidate := range candidates {
		if value, ok := record.Get(candidate); ok {
			return strings.TrimSpace(value)
		}
	}

	return ""
}

func firstWord(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return FirstNameFallback
	}

	return fields[0]
}
