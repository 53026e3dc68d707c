// Package engine runs dispute batches: rendering, submission, retries and
// progress for many clients at once.
package engine

import (
	"context"

	"github.com/disputekit/disputekit/internal/core"
)

// TemplateStore fetches letter templates.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (*core.Template, error)
}

// ClientStore loads client records for a batch. Clients that cannot be
// loaded are reported individually rather than failing the call.
type ClientStore interface {
	ListSelected(ctx context.Context, ids []string) (map[string]core.ClientContext, []core.MissingClient, error)
}

// DisputeRepository persists disputes. Implementations report rejections,
// outages and duplicates with the typed errors in package core.
type DisputeRepository interface {
	CreateDispute(ctx context.Context, req core.DisputeRequest) (*core.Dispute, error)
}
