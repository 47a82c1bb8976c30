package webhook

import (
	"regexp"
	"strings"

	"leadqual_backend/platform/phone"
)

// ExtractedLead holds the contact fields extracted from leadgen form data
// via best-effort label matching.
type ExtractedLead struct {
	FullName string
	Email    string
	Phone    string
}

// IsIncomplete returns true if no contact method could be extracted.
func (e ExtractedLead) IsIncomplete() bool {
	return e.Email == "" && e.Phone == ""
}

// ExtractLead performs best-effort field extraction from leadgen field data.
// Ad platforms let advertisers name form fields freely, so labels are
// matched fuzzily against known patterns.
func ExtractLead(fields []FieldData) ExtractedLead {
	var result ExtractedLead
	var firstName, lastName string

	for _, field := range fields {
		if len(field.Values) == 0 {
			continue
		}
		value := strings.TrimSpace(field.Values[0])
		if value == "" {
			continue
		}
		k := strings.ToLower(strings.TrimSpace(field.Name))

		switch {
		case matchesAny(k, fullNamePatterns):
			result.FullName = value
		case matchesAny(k, firstNamePatterns):
			firstName = value
		case matchesAny(k, lastNamePatterns):
			lastName = value
		case matchesAny(k, emailPatterns):
			if emailRegex.MatchString(value) {
				result.Email = strings.ToLower(value)
			}
		case matchesAny(k, phonePatterns):
			if phone.IsValid(value) {
				result.Phone = phone.NormalizeE164(value)
			}
		}
	}

	if result.FullName == "" && (firstName != "" || lastName != "") {
		result.FullName = strings.TrimSpace(firstName + " " + lastName)
	}

	return result
}

// Field label patterns used by common leadgen form templates.
var (
	fullNamePatterns  = []string{"full_name", "fullname", "full name", "name", "your_name", "your name"}
	firstNamePatterns = []string{"first_name", "firstname", "first name", "given_name", "fname"}
	lastNamePatterns  = []string{"last_name", "lastname", "last name", "family_name", "surname", "lname"}
	emailPatterns     = []string{"email", "e-mail", "e_mail", "email_address", "emailaddress", "work_email", "mail"}
	phonePatterns     = []string{"phone", "phone_number", "phonenumber", "tel", "telephone", "mobile", "mobile_number", "cell"}
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func matchesAny(label string, patterns []string) bool {
	// Normalize: strip spaces, dashes, underscores for fuzzy matching
	normalized := strings.NewReplacer("-", "", "_", "", " ", "").Replace(label)
	for _, p := range patterns {
		pNormalized := strings.NewReplacer("-", "", "_", "", " ", "").Replace(p)
		if normalized == pNormalized {
			return true
		}
	}
	return false
}
