package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRecordsOnPrivateRegistry(t *testing.T) {
	m := NewManager(WithNamespace("test"))

	m.ObserveBatch("priority_batch", "completed", 10, 3, 1, time.Second)
	m.RecordQueueItems("connection_request", 4)
	m.RecordSend()
	m.RecordSend()
	m.RecordDuplicatePair("high")

	assert.Equal(t, 10.0, testutil.ToFloat64(m.contactsScored.WithLabelValues("priority_batch")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.scoresUpdated.WithLabelValues("priority_batch")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.queueGenerated.WithLabelValues("connection_request")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sendsRecorded))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
	for _, f := range families {
		assert.Contains(t, f.GetName(), "test_")
	}
}

func TestNilManagerIsSafe(t *testing.T) {
	var m *Manager
	m.ObserveBatch("x", "completed", 1, 1, 0, time.Millisecond)
	m.RecordSend()
	m.RecordCooldown()
	m.RecordMerge("auto")
	assert.NotNil(t, m.Registry())
}
