package letter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/disputekit/disputekit/internal/core"
)

// Company is the sender identity available to templates as company_* tokens.
type Company struct {
	Name    string `json:"name" mapstructure:"name"`
	Address string `json:"address" mapstructure:"address"`
	Phone   string `json:"phone" mapstructure:"phone"`
	Email   string `json:"email" mapstructure:"email"`
}

// Recipient is everything known about one letter's addressee.
type Recipient struct {
	Client    core.ClientContext
	Bureau    core.Bureau
	Items     []core.DisputeItem
	Config    core.DisputeConfig
	Reference string
}

// Resolver binds placeholder tokens to values drawn from a Recipient.
type Resolver struct {
	Company Company
	Now     func() time.Time
}

// NewResolver returns a resolver using the wall clock.
func NewResolver(company Company) *Resolver {
	return &Resolver{Company: company, Now: time.Now}
}

const tokenDisputeReference = "dispute_reference"

func (r *Resolver) now() time.Time {
	if r == nil || r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Resolve binds each token it can. Catalog values take precedence over
// caller-supplied variables; tokens with no value are left out of the binding.
// With partial set, unbound tokens get sample values (known names) or a
// "[token]" marker so previews never fail.
func (r *Resolver) Resolve(tokens []string, rc Recipient, partial bool) core.VariableBinding {
	binding := make(core.VariableBinding, len(tokens))
	for _, token := range tokens {
		if value, ok := r.lookup(token, rc); ok {
			binding[token] = value
			continue
		}
		if value := strings.TrimSpace(rc.Config.Variables[token]); value != "" {
			binding[token] = value
			continue
		}
		if !partial {
			continue
		}
		if sample, ok := sampleValues[token]; ok {
			binding[token] = sample
		} else {
			binding[token] = "[" + token + "]"
		}
	}
	return binding
}

func (r *Resolver) lookup(token string, rc Recipient) (string, bool) {
	var value string
	client := rc.Client
	var company Company
	if r != nil {
		company = r.Company
	}
	switch token {
	case "client_name":
		value = client.FullName()
	case "client_first_name":
		value = client.FirstName
	case "client_last_name":
		value = client.LastName
	case "client_address":
		value = strings.Join(client.Address.Lines(), "\n")
	case "client_city":
		value = client.Address.City
	case "client_state":
		value = client.Address.State
	case "client_zip":
		value = client.Address.Zip
	case "client_phone":
		value = client.Phone
	case "client_email":
		value = client.Email
	case "client_ssn":
		value = core.MaskSSN(client.SSN)
	case "client_dob":
		if client.DateOfBirth != nil {
			value = core.FormatLetterDate(*client.DateOfBirth)
		}
	case tokenDisputeReference:
		value = rc.Reference
	case "dispute_date", "current_date":
		value = core.FormatLetterDate(r.now())
	case "dispute_reason":
		value = rc.Config.Reason
		if strings.TrimSpace(value) == "" {
			value = strings.Join(itemReasons(rc.Items), "; ")
		}
	case "dispute_type":
		value = string(rc.Config.Type)
	case "dispute_priority":
		value = string(rc.Config.Priority)
	case "due_date":
		value = core.FormatLetterDate(rc.Config.DueDate)
	case "bureau_name":
		if rc.Bureau != "" {
			value = rc.Bureau.DisplayName()
		}
	case "bureau_address":
		value = rc.Bureau.Info().DisputeAddress
	case "account_number", "account_numbers":
		value = joinItems(rc.Items, func(it core.DisputeItem) string {
			return core.MaskAccountNumber(it.AccountNumber)
		})
	case "account_name":
		value = joinItems(rc.Items, func(it core.DisputeItem) string { return it.AccountName })
	case "creditor_name":
		value = joinItems(rc.Items, func(it core.DisputeItem) string { return it.CreditorName })
	case "account_type":
		value = joinItems(rc.Items, func(it core.DisputeItem) string { return it.AccountType })
	case "balance":
		if len(rc.Items) > 0 {
			var total float64
			for _, it := range rc.Items {
				total += it.Balance
			}
			value = core.FormatCurrency(total)
		}
	case "dispute_items":
		value = formatItemList(rc.Items)
	case "company_name":
		value = company.Name
	case "company_address":
		value = company.Address
	case "company_phone":
		value = company.Phone
	case "company_email":
		value = company.Email
	default:
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// joinItems collects distinct non-empty values across items.
func joinItems(items []core.DisputeItem, pick func(core.DisputeItem) string) string {
	seen := make(map[string]struct{}, len(items))
	values := make([]string, 0, len(items))
	for _, it := range items {
		v := strings.TrimSpace(pick(it))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return strings.Join(values, ", ")
}

func itemReasons(items []core.DisputeItem) []string {
	seen := make(map[string]struct{})
	var reasons []string
	for _, it := range items {
		for _, reason := range it.Reasons {
			reason = strings.TrimSpace(reason)
			if reason == "" {
				continue
			}
			if _, ok := seen[reason]; ok {
				continue
			}
			seen[reason] = struct{}{}
			reasons = append(reasons, reason)
		}
	}
	return reasons
}

// formatItemList renders one numbered line per disputed item.
func formatItemList(items []core.DisputeItem) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteString("\n")
		}
		name := it.AccountName
		if name == "" {
			name = it.CreditorName
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, name)
		if masked := core.MaskAccountNumber(it.AccountNumber); masked != "" {
			fmt.Fprintf(&sb, " (Account %s)", masked)
		}
		if it.Balance != 0 {
			fmt.Fprintf(&sb, " - Balance: %s", core.FormatCurrency(it.Balance))
		}
		if len(it.Reasons) > 0 {
			fmt.Fprintf(&sb, " - Reason: %s", strings.Join(it.Reasons, "; "))
		}
	}
	return sb.String()
}

// sampleValues fill known tokens when previewing without real data.
var sampleValues = map[string]string{
	"client_name":       "John Doe",
	"client_first_name": "John",
	"client_last_name":  "Doe",
	"client_address":    "123 Main St\nAnytown, CA 12345",
	"client_city":       "Anytown",
	"client_state":      "CA",
	"client_zip":        "12345",
	"client_phone":      "(555) 123-4567",
	"client_email":      "john.doe@example.com",
	"client_ssn":        "****1234",
	"client_dob":        "January 1, 1980",
	"dispute_reference": "DSP-2024-000001",
	"dispute_reason":    "Account not mine",
	"dispute_type":      string(core.DisputeTypeAccount),
	"dispute_priority":  string(core.PriorityMedium),
	"due_date":          "February 4, 2024",
	"bureau_name":       "Experian",
	"bureau_address":    core.BureauExperian.Info().DisputeAddress,
	"account_number":    "****5678",
	"account_numbers":   "****5678",
	"account_name":      "Sample Credit Card",
	"creditor_name":     "Sample Bank",
	"account_type":      "Credit Card",
	"balance":           "$1,234.56",
	"dispute_items":     "1. Sample Credit Card (Account ****5678) - Balance: $1,234.56 - Reason: Account not mine",
	"company_name":      "Sample Credit Repair Co.",
	"company_address":   "456 Business Ave\nSuite 100\nBusiness City, CA 54321",
	"company_phone":     "(555) 987-6543",
	"company_email":     "support@example.com",
}

// CatalogTokens returns the built-in variable names, sorted.
func CatalogTokens() []string {
	tokens := make([]string, 0, len(sampleValues)+2)
	for token := range sampleValues {
		tokens = append(tokens, token)
	}
	tokens = append(tokens, "dispute_date", "current_date")
	sort.Strings(tokens)
	return tokens
}
