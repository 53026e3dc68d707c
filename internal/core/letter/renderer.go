package letter

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/disputekit/disputekit/internal/core"
)

// Renderer turns a template plus one client's selection into bureau letters.
type Renderer struct {
	Resolver *Resolver
	// NextReference issues dispute reference numbers. Nil leaves
	// dispute_reference unbound.
	NextReference func() string
	// Rules are checked against every rendered body.
	Rules ContentRules
}

// NewRenderer builds a renderer with a process-local reference sequence and
// the default content rules.
func NewRenderer(resolver *Resolver) *Renderer {
	if resolver == nil {
		resolver = NewResolver(Company{})
	}
	return &Renderer{
		Resolver:      resolver,
		NextReference: ReferenceSequence(0, resolver.now),
		Rules:         DefaultContentRules(),
	}
}

// ReferenceSequence returns a generator of "DSP-YYYY-NNNNNN" references.
// The first year continues after last; each new year restarts at 1.
func ReferenceSequence(last uint64, now func() time.Time) func() string {
	if now == nil {
		now = time.Now
	}
	var mu sync.Mutex
	year, seq := now().Year(), last
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		if current := now().Year(); current != year {
			year, seq = current, 0
		}
		seq++
		return fmt.Sprintf("DSP-%d-%06d", year, seq)
	}
}

// provisionalReference stands in for dispute_reference while a letter is
// validated, so that no reference is spent on a letter that fails.
const provisionalReference = "DSP-0000-000000"

// Render produces one letter per bureau present in the selection, in order of
// first appearance. Items outside the configured bureaus or the template's
// bureau scope are dropped. Any placeholder left after substitution fails the
// whole client with a TemplateValidationError.
func (r *Renderer) Render(tpl *core.Template, client core.ClientContext, sel core.ClientSelection, cfg core.DisputeConfig) ([]core.RenderedLetter, error) {
	if tpl == nil {
		return nil, &core.TemplateValidationError{ClientID: sel.ClientID, Message: "template is required"}
	}

	groups, order, err := groupByBureau(tpl, sel, cfg)
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return nil, &core.TemplateValidationError{
			ClientID: sel.ClientID,
			Message:  "no dispute items target an allowed bureau",
		}
	}

	subject, body := letterSource(tpl, cfg)
	tokens := ExtractPlaceholders(subject + "\n" + body)

	letters := make([]core.RenderedLetter, 0, len(order))
	bindings := make([]core.VariableBinding, 0, len(order))
	for _, bureau := range order {
		items := groups[bureau]
		rc := Recipient{
			Client: client,
			Bureau: bureau,
			Items:  items,
			Config: cfg,
		}
		if r.NextReference != nil {
			rc.Reference = provisionalReference
		}

		binding := r.Resolver.Resolve(tokens, rc, false)
		if leftover := unresolved(tokens, binding); len(leftover) > 0 {
			return nil, &core.TemplateValidationError{
				ClientID: sel.ClientID,
				Bureau:   bureau,
				Tokens:   leftover,
			}
		}

		letter := core.RenderedLetter{
			ClientID: sel.ClientID,
			Bureau:   bureau,
			Body:     Substitute(body, binding),
			ItemIDs:  itemIDs(items),
		}
		report := r.Rules.Check(letter.Body)
		if report.Problem != "" {
			return nil, &core.TemplateValidationError{
				ClientID: sel.ClientID,
				Bureau:   bureau,
				Message:  report.Problem,
			}
		}
		letter.Warnings = report.Warnings
		letters = append(letters, letter)
		bindings = append(bindings, binding)
	}

	for i := range letters {
		binding := bindings[i]
		if r.NextReference != nil {
			letters[i].Reference = r.NextReference()
			if _, ok := binding[tokenDisputeReference]; ok {
				binding[tokenDisputeReference] = letters[i].Reference
			}
		}
		letters[i].Subject = Substitute(subject, binding)
		letters[i].Body = Substitute(body, binding)
	}
	return letters, nil
}

// PreviewResult is a best-effort rendering for display.
type PreviewResult struct {
	Letter core.RenderedLetter `json:"letter"`
	Tokens []string            `json:"tokens"`
	// Sampled lists tokens that were filled with sample data.
	Sampled []string `json:"sampled,omitempty"`
	// Warnings are content rule findings for the rendered body.
	Warnings []string `json:"warnings,omitempty"`
}

// Preview renders tpl against rc, or against sample data when rc is nil.
// Unbound tokens are filled with samples instead of failing.
func (r *Renderer) Preview(tpl *core.Template, rc *Recipient) PreviewResult {
	if tpl == nil {
		return PreviewResult{}
	}
	var recipient Recipient
	if rc != nil {
		recipient = *rc
	}
	if recipient.Bureau == "" {
		recipient.Bureau = core.BureauExperian
		if tpl.Bureau != "" {
			recipient.Bureau = core.NormalizeBureau(string(tpl.Bureau))
		}
	}

	subject, body := letterSource(tpl, recipient.Config)
	tokens := ExtractPlaceholders(subject + "\n" + body)

	strict := r.Resolver.Resolve(tokens, recipient, false)
	binding := r.Resolver.Resolve(tokens, recipient, true)
	var sampled []string
	for _, token := range tokens {
		if _, ok := strict[token]; !ok {
			sampled = append(sampled, token)
		}
	}

	rendered := core.RenderedLetter{
		ClientID:  recipient.Client.ClientID,
		Bureau:    recipient.Bureau,
		Subject:   Substitute(subject, binding),
		Body:      Substitute(body, binding),
		ItemIDs:   itemIDs(recipient.Items),
		Reference: recipient.Reference,
	}
	report := r.Rules.Check(rendered.Body)
	warnings := report.Warnings
	if report.Problem != "" {
		warnings = append([]string{report.Problem}, warnings...)
	}
	rendered.Warnings = report.Warnings

	return PreviewResult{
		Letter:   rendered,
		Tokens:   tokens,
		Sampled:  sampled,
		Warnings: warnings,
	}
}

func letterSource(tpl *core.Template, cfg core.DisputeConfig) (string, string) {
	subject := tpl.Subject
	if strings.TrimSpace(cfg.CustomSubject) != "" {
		subject = cfg.CustomSubject
	}
	body := tpl.Body
	if strings.TrimSpace(cfg.CustomBody) != "" {
		body = cfg.CustomBody
	}
	return subject, body
}

func groupByBureau(tpl *core.Template, sel core.ClientSelection, cfg core.DisputeConfig) (map[core.Bureau][]core.DisputeItem, []core.Bureau, error) {
	groups := make(map[core.Bureau][]core.DisputeItem)
	var order []core.Bureau
	for _, item := range sel.Items {
		bureau := core.NormalizeBureau(string(item.Bureau))
		if !bureau.Known() {
			return nil, nil, &core.TemplateValidationError{
				ClientID: sel.ClientID,
				Message:  fmt.Sprintf("item %q has unknown bureau %q", item.ItemID, item.Bureau),
			}
		}
		if !cfg.AllowsBureau(bureau) || !tpl.Targets(bureau) {
			continue
		}
		if _, ok := groups[bureau]; !ok {
			order = append(order, bureau)
		}
		item.Bureau = bureau
		groups[bureau] = append(groups[bureau], item)
	}
	return groups, order, nil
}

// unresolved lists tokens the binding leaves unbound. Bound values are never
// rescanned, so a value that itself looks like a placeholder is kept.
func unresolved(tokens []string, binding core.VariableBinding) []string {
	var leftover []string
	for _, token := range tokens {
		if _, ok := binding[token]; !ok {
			leftover = append(leftover, token)
		}
	}
	return leftover
}

func itemIDs(items []core.DisputeItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ItemID != "" {
			ids = append(ids, item.ItemID)
		}
	}
	return ids
}
