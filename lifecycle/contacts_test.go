// ABOUTME: Tests for contact creation
// ABOUTME: Checks provenance, the entry history row and validation
package lifecycle

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddContactRecordsSourcesAndHistory(t *testing.T) {
	database := setupTestDB(t)
	m := newMachine(database, config.DefaultScoring())
	ctx := context.Background()

	c := &models.Contact{
		Name:                   "Ada Lovelace",
		Company:                "Analytical Engines",
		ProfileURL:             "https://example.com/in/ada",
		Seniority:              models.SeniorityDirector,
		MutualConnectionsCount: 12,
	}
	require.NoError(t, m.AddContact(ctx, c, models.SourceImport))

	stored, err := db.GetContact(ctx, database, c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.StatusTarget, stored.Status)
	assert.Equal(t, models.SourceImport, stored.FieldSources["company"])
	assert.Equal(t, models.SourceImport, stored.FieldSources["profile_url"])
	assert.NotContains(t, stored.FieldSources, "email")
	assert.Greater(t, stored.PriorityScore, 0.0)

	history, err := db.ListStatusHistory(ctx, database, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].FromStatus)
	assert.Equal(t, models.StatusTarget, history[0].ToStatus)
	assert.Equal(t, models.TriggerImport, history[0].Trigger)
}

func TestAddContactDirectlyIntoLaterStatus(t *testing.T) {
	database := setupTestDB(t)
	m := newMachine(database, config.DefaultScoring())
	ctx := context.Background()

	c := &models.Contact{Name: "Grace Hopper", Status: models.StatusEngaged}
	require.NoError(t, m.AddContact(ctx, c, ""))

	history, err := db.ListStatusHistory(ctx, database, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.TriggerManual, history[0].Trigger)
	assert.Equal(t, models.StatusEngaged, history[0].ToStatus)
}

func TestAddContactValidation(t *testing.T) {
	database := setupTestDB(t)
	m := newMachine(database, config.DefaultScoring())
	ctx := context.Background()

	tests := []struct {
		name    string
		contact models.Contact
		source  string
	}{
		{"blank name", models.Contact{Name: "  "}, ""},
		{"bad status", models.Contact{Name: "A", Status: "friend"}, ""},
		{"bad seniority", models.Contact{Name: "A", Seniority: "intern"}, ""},
		{"bad source", models.Contact{Name: "A"}, "carrier_pigeon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.contact
			err := m.AddContact(ctx, &c, tt.source)
			assert.True(t, models.IsValidation(err), "got %v", err)
		})
	}
}

func TestAddContactDuplicateProfileURLIsConflict(t *testing.T) {
	database := setupTestDB(t)
	m := newMachine(database, config.DefaultScoring())
	ctx := context.Background()

	require.NoError(t, m.AddContact(ctx, &models.Contact{Name: "A", ProfileURL: "https://example.com/in/a"}, ""))
	dup := &models.Contact{Name: "B", ProfileURL: "https://example.com/in/a"}
	err := m.AddContact(ctx, dup, "")
	assert.True(t, models.IsConflict(err), "got %v", err)

	// The rolled-back insert left nothing behind.
	history, err := db.ListStatusHistory(ctx, database, uuid.Nil)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
