//go:build cgo

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/disputekit/disputekit/internal/config"
	"github.com/disputekit/disputekit/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	store, err := Open(ctx, config.StoreConfig{
		Driver: "libsql",
		Path:   "file:" + t.TempDir() + "/disputekit.db",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestTemplates_UpsertGetList(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	tpl := &core.Template{
		Name:     "Late payment",
		Bureau:   "EXPERIAN",
		Subject:  "Dispute {{dispute_reference}}",
		Body:     "Dear {{bureau_name}}",
		IsActive: true,
	}
	require.NoError(t, store.UpsertTemplate(ctx, tpl))
	require.NotEmpty(t, tpl.ID)
	assert.Equal(t, core.BureauExperian, tpl.Bureau)
	assert.Equal(t, core.DisputeTypeAccount, tpl.Type)

	inactive := &core.Template{ID: "tpl-old", Name: "Archived", Body: "old"}
	require.NoError(t, store.UpsertTemplate(ctx, inactive))

	got, err := store.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Late payment", got.Name)
	assert.Equal(t, core.BureauExperian, got.Bureau)
	assert.True(t, got.IsActive)

	all, err := store.ListTemplates(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Archived", all[0].Name)

	active, err := store.ListTemplates(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)

	_, err = store.GetTemplate(ctx, "missing")
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)

	err = store.UpsertTemplate(ctx, &core.Template{Name: "x", Body: "y", Bureau: "acme"})
	var rejected *core.ValidationRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "bureau", rejected.Field)
}

func TestClients_ListSelectedReportsMissing(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	born := time.Date(1980, 5, 17, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertClient(ctx, core.ClientContext{
		ClientID:    "c1",
		FirstName:   "Jane",
		LastName:    "Doe",
		Address:     core.Address{Street: "1 Main St", City: "Springfield", State: "IL", Zip: "62701"},
		SSN:         "123-45-6789",
		DateOfBirth: &born,
	}))
	require.NoError(t, store.UpsertClient(ctx, core.ClientContext{ClientID: "c2", FirstName: "Sam", LastName: "Lee"}))

	found, missing, err := store.ListSelected(ctx, []string{"c1", "c2", "c1", "ghost"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Springfield", found["c1"].Address.City)
	require.NotNil(t, found["c1"].DateOfBirth)
	assert.True(t, born.Equal(*found["c1"].DateOfBirth))
	require.Len(t, missing, 1)
	assert.Equal(t, "ghost", missing[0].ClientID)

	_, err = store.GetClient(ctx, "ghost")
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)

	all, err := store.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Doe", all[0].LastName)

	err = store.UpsertClient(ctx, core.ClientContext{ClientID: "c3"})
	require.Error(t, err)
}

func TestDisputes_CreateDetectsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	req := core.DisputeRequest{
		BatchID:        "b1",
		ClientID:       "c1",
		TemplateID:     "tpl-1",
		Type:           core.DisputeTypeAccount,
		Priority:       core.PriorityMedium,
		Bureau:         core.BureauEquifax,
		Subject:        "Dispute",
		LetterContent:  "Dear Equifax",
		AccountNumbers: []string{"****1234", "****5678"},
		Reference:      "DSP-2024-000007",
		DueDate:        time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	first, err := store.CreateDispute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, core.DisputeStatusDraft, first.Status)

	reordered := req
	reordered.AccountNumbers = []string{"****5678", "****1234"}
	_, err = store.CreateDispute(ctx, reordered)
	var dup *core.DuplicateDetectedError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, first.ID, dup.ExistingID)

	otherBureau := req
	otherBureau.Bureau = core.BureauTransUnion
	otherBureau.Reference = "DSP-2024-000012"
	_, err = store.CreateDispute(ctx, otherBureau)
	require.NoError(t, err)

	disputes, err := store.ListDisputes(ctx, DisputeFilter{BatchID: "b1"})
	require.NoError(t, err)
	require.Len(t, disputes, 2)
	assert.Equal(t, []string{"****1234", "****5678"}, disputes[0].AccountNumbers)
	assert.True(t, req.DueDate.Equal(disputes[0].DueDate))

	seq, err := store.LastReferenceSeq(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), seq)

	seq, err = store.LastReferenceSeq(ctx, 2025)
	require.NoError(t, err)
	assert.Zero(t, seq)
}

func TestBatches_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	started := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	result := &core.BatchResult{
		BatchID:    "batch-1",
		TemplateID: "tpl-1",
		Status:     core.BatchCreated,
		Total:      2,
		StartedAt:  started,
	}
	require.NoError(t, store.SaveBatch(ctx, result))

	require.NoError(t, store.SaveBatchItem(ctx, "batch-1", core.JobItemResult{
		ClientID:    "c1",
		Status:      core.ItemSucceeded,
		DisputeIDs:  []string{"d1", "d2"},
		Bureaus:     []core.Bureau{core.BureauExperian, core.BureauEquifax},
		Attempts:    2,
		Warnings:    []string{"Equifax: missing reference to 30 days"},
		CompletedAt: started.Add(time.Second),
	}))
	require.NoError(t, store.SaveBatchItem(ctx, "batch-1", core.JobItemResult{
		ClientID:    "c2",
		Status:      core.ItemFailed,
		Error:       "client record not found",
		ErrorCode:   core.CodeNotFound,
		CompletedAt: started.Add(2 * time.Second),
	}))

	finished := started.Add(3 * time.Second)
	result.Status = core.BatchCompleted
	result.SucceededCount = 1
	result.FailedCount = 1
	result.FinishedAt = &finished
	require.NoError(t, store.SaveBatch(ctx, result))

	loaded, err := store.GetBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, core.BatchCompleted, loaded.Status)
	assert.Equal(t, 1, loaded.SucceededCount)
	require.NotNil(t, loaded.FinishedAt)
	require.Len(t, loaded.Items, 2)
	assert.Equal(t, []string{"d1", "d2"}, loaded.Items[0].DisputeIDs)
	assert.Equal(t, []core.Bureau{core.BureauExperian, core.BureauEquifax}, loaded.Items[0].Bureaus)
	assert.Equal(t, core.CodeNotFound, loaded.Items[1].ErrorCode)
	assert.Equal(t, []string{"Equifax: missing reference to 30 days"}, loaded.Items[0].Warnings)
	assert.Empty(t, loaded.Items[1].Warnings)

	batches, err := store.ListBatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	_, err = store.GetBatch(ctx, "nope")
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestBatches_CountsNeverDecrease(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	header := &core.BatchResult{
		BatchID:        "batch-2",
		TemplateID:     "tpl-1",
		Status:         core.BatchRunning,
		Total:          3,
		SucceededCount: 2,
		StartedAt:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveBatch(ctx, header))

	stale := *header
	stale.SucceededCount = 1
	require.NoError(t, store.SaveBatch(ctx, &stale))

	loaded, err := store.GetBatch(ctx, "batch-2")
	require.NoError(t, err)
	assert.Equal(t, core.BatchRunning, loaded.Status)
	assert.Equal(t, 2, loaded.SucceededCount)
	assert.Nil(t, loaded.FinishedAt)
}
