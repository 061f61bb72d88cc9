package fusion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

type fakeStore struct {
	byKey        map[string]*types.BusinessConcept
	insertErrSeq []error
	insertCalls  int
	alwaysConflictKey string
	// raceWinner, when set, is the row a concurrent writer commits at the
	// moment InsertConcept fails with an error from insertErrSeq.
	raceWinner *types.BusinessConcept
}

func newFakeStore() *fakeStore {
	return &fakeStore{byKey: map[string]*types.BusinessConcept{}}
}

func key(companyCode, conceptName string) string { return companyCode + "|" + conceptName }

func (f *fakeStore) FindActiveConcept(ctx context.Context, companyCode, conceptName string) (*types.BusinessConcept, error) {
	c, ok := f.byKey[key(companyCode, conceptName)]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	copy := *c
	return &copy, nil
}

func (f *fakeStore) InsertConcept(ctx context.Context, c types.BusinessConcept) (string, error) {
	if f.insertCalls < len(f.insertErrSeq) {
		err := f.insertErrSeq[f.insertCalls]
		f.insertCalls++
		if err != nil {
			if f.raceWinner != nil {
				f.byKey[key(f.raceWinner.CompanyCode, f.raceWinner.ConceptName)] = f.raceWinner
				f.raceWinner = nil
			}
			return "", err
		}
	}
	f.insertCalls++
	c.Version = 1
	f.byKey[key(c.CompanyCode, c.ConceptName)] = &c
	return c.ConceptID, nil
}

func (f *fakeStore) UpdateConcept(ctx context.Context, c types.BusinessConcept, expectedVersion int) error {
	k := key(c.CompanyCode, c.ConceptName)
	if k == f.alwaysConflictKey {
		return &apperr.OptimisticLockError{ConceptID: c.ConceptID, ExpectedVersion: expectedVersion}
	}
	existing, ok := f.byKey[k]
	if !ok || existing.Version != expectedVersion {
		return &apperr.OptimisticLockError{ConceptID: c.ConceptID, ExpectedVersion: expectedVersion}
	}
	c.Version = existing.Version + 1
	f.byKey[key(c.CompanyCode, c.ConceptName)] = &c
	return nil
}

func TestFuseDocumentInsertsNewConcept(t *testing.T) {
	fs := newFakeStore()
	svc := New(fs, config.FusionConfig{}, nil)

	err := svc.FuseDocument(context.Background(), "600000", "doc-1", []types.ConceptExtraction{
		{ConceptName: "cloud computing", Details: types.ConceptDetails{Description: "desc"}},
	})
	require.NoError(t, err)

	stored := fs.byKey[key("600000", "cloud computing")]
	require.NotNil(t, stored)
	assert.Nil(t, stored.Embedding)
	assert.Equal(t, 1, stored.Version)
}

func TestFuseDocumentMergesExistingConcept(t *testing.T) {
	fs := newFakeStore()
	fs.byKey[key("600000", "cloud computing")] = &types.BusinessConcept{
		ConceptID:   "c-1",
		CompanyCode: "600000",
		ConceptName: "cloud computing",
		Version:     1,
		Embedding:   []float32{0.5},
		Details:     types.ConceptDetails{Description: "short"},
	}
	svc := New(fs, config.FusionConfig{}, nil)

	err := svc.FuseDocument(context.Background(), "600000", "doc-2", []types.ConceptExtraction{
		{ConceptName: "cloud computing", Details: types.ConceptDetails{Description: "a much longer updated description"}},
	})
	require.NoError(t, err)

	stored := fs.byKey[key("600000", "cloud computing")]
	require.NotNil(t, stored)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "a much longer updated description", stored.Details.Description)
	assert.Nil(t, stored.Embedding)
}

func TestFuseDocumentFallsBackToUpdateOnInsertRace(t *testing.T) {
	fs := newFakeStore()
	fs.insertErrSeq = []error{apperr.ErrUniqueViolation}
	// The concurrent winner's row appears only when InsertConcept reports the race.
	fs.raceWinner = &types.BusinessConcept{
		ConceptID:   "c-1",
		CompanyCode: "600000",
		ConceptName: "cloud computing",
		Version:     1,
		Details:     types.ConceptDetails{Description: "from concurrent writer"},
	}

	svc := New(fs, config.FusionConfig{}, nil)
	err := svc.FuseDocument(context.Background(), "600000", "doc-3", []types.ConceptExtraction{
		{ConceptName: "cloud computing", Details: types.ConceptDetails{Description: "from concurrent writer but longer"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fs.insertCalls)

	stored := fs.byKey[key("600000", "cloud computing")]
	assert.Equal(t, 2, stored.Version)
}

func TestFuseDocumentContinuesAfterOneConceptExhaustsRetries(t *testing.T) {
	fs := newFakeStore()
	fs.alwaysConflictKey = key("600000", "stuck")
	fs.byKey[key("600000", "stuck")] = &types.BusinessConcept{
		ConceptID: "c-2", CompanyCode: "600000", ConceptName: "stuck", Version: 99,
	}

	svc := New(fs, config.FusionConfig{}, nil)
	err := svc.FuseDocument(context.Background(), "600000", "doc-4", []types.ConceptExtraction{
		{ConceptName: "stuck", Details: types.ConceptDetails{Description: "x"}},
		{ConceptName: "fine", Details: types.ConceptDetails{Description: "y"}},
	})

	require.Error(t, err, "FuseDocument surfaces the failing concept once the whole document has been attempted")
	assert.NotNil(t, fs.byKey[key("600000", "fine")], "remaining concepts are still processed despite one concept's failure")
}
