package archival

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashareinsight/ashareinsight/pkg/types"
)

type fakeStore struct {
	companies  map[string]types.Company
	docsByHash map[string]string
	hasAnnual  map[string]bool
	statuses   map[string]types.ProcessingStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		companies:  map[string]types.Company{},
		docsByHash: map[string]string{},
		hasAnnual:  map[string]bool{},
		statuses:   map[string]types.ProcessingStatus{},
	}
}

func (f *fakeStore) UpdateDocumentStatus(ctx context.Context, docID string, status types.ProcessingStatus, errorText string) error {
	f.statuses[docID] = status
	return nil
}

func (f *fakeStore) UpsertCompany(ctx context.Context, c types.Company) (*types.Company, error) {
	f.companies[c.CompanyCode] = c
	return &c, nil
}

func (f *fakeStore) ArchiveDocument(ctx context.Context, doc types.SourceDocument) (string, bool, error) {
	k := doc.CompanyCode + "|" + doc.FileHash
	if existing, ok := f.docsByHash[k]; ok {
		return existing, true, nil
	}
	f.docsByHash[k] = doc.DocID
	return doc.DocID, false, nil
}

func (f *fakeStore) HasAnnualReport(ctx context.Context, companyCode string) (bool, error) {
	return f.hasAnnual[companyCode], nil
}

type fakeFuser struct {
	calls int
	err   error
}

func (f *fakeFuser) FuseDocument(ctx context.Context, companyCode, docID string, concepts []types.ConceptExtraction) error {
	f.calls++
	return f.err
}

func TestArchiveNewDocumentFusesConcepts(t *testing.T) {
	store := newFakeStore()
	store.hasAnnual["600000"] = true
	fuser := &fakeFuser{}
	svc := New(store, fuser, nil)

	result, err := svc.Archive(context.Background(), types.Extraction{
		Company:  types.CompanyExtraction{CompanyCode: "600000", FullName: "Example Co"},
		DocType:  types.DocTypeAnnualReport,
		FileHash: "hash-1",
		Concepts: []types.ConceptExtraction{{ConceptName: "cloud"}},
	})

	require.NoError(t, err)
	assert.False(t, result.AlreadyExisted)
	assert.Equal(t, 1, fuser.calls)
}

func TestArchiveIdempotentOnRepeatHash(t *testing.T) {
	store := newFakeStore()
	fuser := &fakeFuser{}
	svc := New(store, fuser, nil)
	ctx := context.Background()
	extraction := types.Extraction{
		Company:  types.CompanyExtraction{CompanyCode: "600000"},
		DocType:  types.DocTypeAnnualReport,
		FileHash: "hash-1",
	}

	first, err := svc.Archive(ctx, extraction)
	require.NoError(t, err)
	assert.False(t, first.AlreadyExisted)

	second, err := svc.Archive(ctx, extraction)
	require.NoError(t, err)
	assert.True(t, second.AlreadyExisted)
	assert.Equal(t, first.DocID, second.DocID)
	assert.Equal(t, 1, fuser.calls, "fusion is not re-run for an already-archived document")
}

func TestArchiveSkipsResearchReportWithoutPriorAnnualReport(t *testing.T) {
	store := newFakeStore()
	fuser := &fakeFuser{}
	svc := New(store, fuser, nil)

	_, err := svc.Archive(context.Background(), types.Extraction{
		Company:  types.CompanyExtraction{CompanyCode: "600001"},
		DocType:  types.DocTypeResearchReport,
		FileHash: "hash-2",
	})

	assert.ErrorIs(t, err, ErrSkippedNoAnnualReport)
	assert.Equal(t, 0, fuser.calls)
}

func TestArchiveFusionFailureDoesNotFailArchive(t *testing.T) {
	store := newFakeStore()
	store.hasAnnual["600000"] = true
	fuser := &fakeFuser{err: assertAnError()}
	svc := New(store, fuser, nil)

	result, err := svc.Archive(context.Background(), types.Extraction{
		Company:  types.CompanyExtraction{CompanyCode: "600000"},
		DocType:  types.DocTypeAnnualReport,
		FileHash: "hash-3",
	})

	require.NoError(t, err, "a fusion failure does not roll back the already-committed archive")
	assert.NotEmpty(t, result.DocID)
	assert.Equal(t, types.StatusFailed, store.statuses[result.DocID], "document is flagged failed so it can be replayed")
}

func assertAnError() error {
	return &testError{"fusion boom"}
}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
