// ABOUTME: Tests for duplicate pair and merge history persistence
// ABOUTME: Verifies canonical ordering, uniqueness and bulk dismissal
package db

import (
	"context"
	"testing"

	"github.com/harperreed/cadence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDuplicatePairCanonicalOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := &models.Contact{Name: "A"}
	b := &models.Contact{Name: "B"}
	require.NoError(t, CreateContact(ctx, db, a))
	require.NoError(t, CreateContact(ctx, db, b))

	hi, lo := a.ID, b.ID
	if hi.String() < lo.String() {
		hi, lo = lo, hi
	}

	p := &models.DuplicatePair{ContactAID: hi, ContactBID: lo, MatchType: models.MatchNameCompany, Confidence: models.ConfidenceMedium}
	inserted, err := CreateDuplicatePair(ctx, db, p)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, lo, p.ContactAID)
	assert.Equal(t, hi, p.ContactBID)

	again := &models.DuplicatePair{ContactAID: lo, ContactBID: hi, MatchType: models.MatchFuzzy, Confidence: models.ConfidenceLow}
	inserted, err = CreateDuplicatePair(ctx, db, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := FindDuplicatePair(ctx, db, hi, lo)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, p.ID, found.ID)

	_, err = CreateDuplicatePair(ctx, db, &models.DuplicatePair{ContactAID: a.ID, ContactBID: a.ID, MatchType: models.MatchURL, Confidence: models.ConfidenceHigh})
	assert.True(t, models.IsValidation(err))
}

func TestDismissPairsReferencing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := &models.Contact{Name: "A"}
	b := &models.Contact{Name: "B"}
	c := &models.Contact{Name: "C"}
	for _, x := range []*models.Contact{a, b, c} {
		require.NoError(t, CreateContact(ctx, db, x))
	}

	_, err := CreateDuplicatePair(ctx, db, &models.DuplicatePair{ContactAID: a.ID, ContactBID: b.ID, MatchType: models.MatchNameCompany, Confidence: models.ConfidenceMedium})
	require.NoError(t, err)
	_, err = CreateDuplicatePair(ctx, db, &models.DuplicatePair{ContactAID: b.ID, ContactBID: c.ID, MatchType: models.MatchFuzzy, Confidence: models.ConfidenceLow})
	require.NoError(t, err)

	n, err := DismissPairsReferencing(ctx, db, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	pending, err := ListDuplicatePairs(ctx, db, models.PairPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
