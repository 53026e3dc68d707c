package core

import (
	"strings"
	"time"
)

// Bureau identifies a credit-reporting agency targeted by a dispute letter.
type Bureau string

const (
	BureauExperian   Bureau = "experian"
	BureauEquifax    Bureau = "equifax"
	BureauTransUnion Bureau = "transunion"
)

// DisputeType classifies the dispute being raised.
type DisputeType string

const (
	DisputeTypeAccount      DisputeType = "account_dispute"
	DisputeTypeInquiry      DisputeType = "inquiry_dispute"
	DisputeTypePersonalInfo DisputeType = "personal_info"
	DisputeTypePublicRecord DisputeType = "public_record"
	DisputeTypeMixedFile    DisputeType = "mixed_file"
)

// Priority ranks a dispute for follow-up.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// DisputeStatus is the lifecycle state of a persisted dispute.
type DisputeStatus string

const (
	DisputeStatusDraft     DisputeStatus = "draft"
	DisputeStatusSubmitted DisputeStatus = "submitted"
)

// Template is a letter template as fetched from the template store.
// It is treated as immutable for the duration of a batch run.
type Template struct {
	ID        string      `json:"id" yaml:"id"`
	Name      string      `json:"name" yaml:"name"`
	Type      DisputeType `json:"type" yaml:"type"`
	Bureau    Bureau      `json:"bureau,omitempty" yaml:"bureau,omitempty"`
	Subject   string      `json:"subject" yaml:"subject"`
	Body      string      `json:"body" yaml:"body"`
	IsActive  bool        `json:"is_active" yaml:"is_active"`
	CreatedAt time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt time.Time   `json:"updated_at" yaml:"-"`
}

// Targets reports whether the template may be used for the given bureau.
// An empty bureau scope means the template applies to every bureau.
func (t *Template) Targets(b Bureau) bool {
	if t == nil || t.Bureau == "" {
		return true
	}
	return NormalizeBureau(string(t.Bureau)) == b
}

// VariableBinding maps placeholder names to resolved values for one recipient.
type VariableBinding map[string]string

// DisputeItem is one credit-report item chosen for dispute.
type DisputeItem struct {
	ItemID        string   `json:"item_id" yaml:"item_id"`
	AccountName   string   `json:"account_name" yaml:"account_name"`
	AccountNumber string   `json:"account_number" yaml:"account_number"`
	Bureau        Bureau   `json:"bureau" yaml:"bureau"`
	Reasons       []string `json:"reasons,omitempty" yaml:"reasons,omitempty"`
	Balance       float64  `json:"balance,omitempty" yaml:"balance,omitempty"`
	CreditorName  string   `json:"creditor_name,omitempty" yaml:"creditor_name,omitempty"`
	AccountType   string   `json:"account_type,omitempty" yaml:"account_type,omitempty"`
}

// ClientSelection is the caller's choice of items for one client.
type ClientSelection struct {
	ClientID string        `json:"client_id" yaml:"client_id"`
	Items    []DisputeItem `json:"items" yaml:"items"`
}

// Address is a postal address.
type Address struct {
	Street string `json:"street,omitempty" yaml:"street,omitempty"`
	City   string `json:"city,omitempty" yaml:"city,omitempty"`
	State  string `json:"state,omitempty" yaml:"state,omitempty"`
	Zip    string `json:"zip,omitempty" yaml:"zip,omitempty"`
}

// Lines renders the address as letter lines, skipping empty parts.
func (a Address) Lines() []string {
	lines := make([]string, 0, 2)
	if s := strings.TrimSpace(a.Street); s != "" {
		lines = append(lines, s)
	}

	city := strings.TrimSpace(a.City)
	state := strings.TrimSpace(a.State)
	zip := strings.TrimSpace(a.Zip)
	var locality string
	switch {
	case city != "" && state != "":
		locality = city + ", " + state
	case city != "":
		locality = city
	default:
		locality = state
	}
	if zip != "" {
		locality = strings.TrimSpace(locality + " " + zip)
	}
	if locality != "" {
		lines = append(lines, locality)
	}
	return lines
}

// ClientContext is the client record used to resolve template variables.
type ClientContext struct {
	ClientID    string     `json:"client_id" yaml:"client_id"`
	FirstName   string     `json:"first_name" yaml:"first_name"`
	LastName    string     `json:"last_name" yaml:"last_name"`
	Address     Address    `json:"address" yaml:"address"`
	Phone       string     `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email       string     `json:"email,omitempty" yaml:"email,omitempty"`
	SSN         string     `json:"ssn,omitempty" yaml:"ssn,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty" yaml:"date_of_birth,omitempty"`
}

// FullName joins first and last name.
func (c ClientContext) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// MissingClient reports a selected client the client store could not load.
type MissingClient struct {
	ClientID string `json:"client_id"`
	Reason   string `json:"reason"`
}

// DisputeConfig is the batch-wide dispute configuration.
type DisputeConfig struct {
	Type          DisputeType       `json:"type" yaml:"type"`
	Priority      Priority          `json:"priority" yaml:"priority"`
	Reason        string            `json:"reason" yaml:"reason"`
	Description   string            `json:"description,omitempty" yaml:"description,omitempty"`
	DueDate       time.Time         `json:"due_date" yaml:"due_date"`
	Bureaus       []Bureau          `json:"bureaus,omitempty" yaml:"bureaus,omitempty"`
	Variables     map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
	CustomSubject string            `json:"custom_subject,omitempty" yaml:"custom_subject,omitempty"`
	CustomBody    string            `json:"custom_body,omitempty" yaml:"custom_body,omitempty"`
}

// AllowsBureau reports whether the configured bureau filter admits b.
func (c DisputeConfig) AllowsBureau(b Bureau) bool {
	if len(c.Bureaus) == 0 {
		return true
	}
	for _, allowed := range c.Bureaus {
		if NormalizeBureau(string(allowed)) == b {
			return true
		}
	}
	return false
}

// DisputeRequest is the per-client, per-bureau payload sent to the dispute repository.
type DisputeRequest struct {
	BatchID        string      `json:"batch_id,omitempty"`
	ClientID       string      `json:"client_id"`
	TemplateID     string      `json:"template_id"`
	Type           DisputeType `json:"type"`
	Priority       Priority    `json:"priority"`
	Bureau         Bureau      `json:"bureau"`
	Reason         string      `json:"reason"`
	Description    string      `json:"description,omitempty"`
	DueDate        time.Time   `json:"due_date"`
	Subject        string      `json:"subject"`
	LetterContent  string      `json:"letter_content"`
	AccountNumbers []string    `json:"account_numbers,omitempty"`
	Reference      string      `json:"reference,omitempty"`
}

// Dispute is a persisted dispute record.
type Dispute struct {
	DisputeRequest
	ID        string        `json:"id"`
	Status    DisputeStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// RenderedLetter is a fully substituted letter for one client and bureau.
type RenderedLetter struct {
	ClientID  string   `json:"client_id"`
	Bureau    Bureau   `json:"bureau"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	ItemIDs   []string `json:"item_ids,omitempty"`
	Reference string   `json:"reference,omitempty"`
	// Warnings are content findings that do not block sending.
	Warnings []string `json:"warnings,omitempty"`
}
