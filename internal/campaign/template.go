package campaign

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/arbitrageos/campaignd/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z][a-zA-Z0-9_]*)\s*\}\}`)

// RenderTemplate substitutes {{variable}} placeholders with lead values.
// Unresolved placeholders pass through literally rather than erroring.
func RenderTemplate(template string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

// LeadVariables builds the substitution map for one lead: the built-in
// fields plus any custom variables snapshotted at campaign creation. A
// missing first name falls back to the local part of the address.
func LeadVariables(lead models.Lead) map[string]string {
	vars := map[string]string{}
	if len(lead.Variables) > 0 {
		var custom map[string]string
		if err := json.Unmarshal(lead.Variables, &custom); err == nil {
			for k, v := range custom {
				vars[k] = v
			}
		}
	}

	firstName := strings.TrimSpace(lead.FirstName)
	if firstName == "" {
		firstName = localPart(lead.Email)
	}
	vars["firstName"] = firstName
	vars["lastName"] = lead.LastName
	vars["company"] = lead.Company
	vars["title"] = lead.Title
	vars["email"] = lead.Email
	return vars
}

func localPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
