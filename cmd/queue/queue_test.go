package queue

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/floranet-go/internal/datastore/entities"
	"github.com/tphakala/floranet-go/internal/datastore/repository"
)

func TestPrintEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Print(&out, nil))
	assert.Equal(t, "Queue is empty.\n", out.String())
}

func TestPrintRows(t *testing.T) {
	name := "Rafflesia arnoldii"
	confidence := 0.42

	var out bytes.Buffer
	require.NoError(t, Print(&out, []repository.ObservationSummary{
		{
			ID:                7,
			Status:            entities.StatusPending,
			AutoFlagged:       true,
			LocationName:      "Bukit Lawang",
			CreatedAt:         time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
			PrimaryName:       &name,
			PrimaryConfidence: &confidence,
		},
		{ID: 8, Status: entities.StatusPending},
	}))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[1]), "Rafflesia arnoldii")
	assert.Contains(t, string(lines[1]), "42.0%")
	assert.Contains(t, string(lines[1]), "yes")
	assert.Contains(t, string(lines[2]), "-")
}
