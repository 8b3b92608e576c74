package main

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDetailSubmissions_CarriesResultAndWeight(t *testing.T) {
	resultID := uuid.New()
	out := toDetailSubmissions([]detailRequest{{ResultID: resultID, WeightPercent: 42.5}})
	require.Len(t, out, 1)
	assert.Equal(t, resultID, out[0].ResultID)
	assert.Equal(t, 42.5, out[0].WeightPercent)
}

func TestSubmission_ParsesFromJSON(t *testing.T) {
	runID := uuid.New()
	resultID := uuid.New()
	raw := []byte(`{
		"run_id": "` + runID.String() + `",
		"mode": "simulate",
		"details": [{"result_id": "` + resultID.String() + `", "weight_percent": 100}]
	}`)

	var sub submission
	require.NoError(t, json.Unmarshal(raw, &sub))
	assert.Equal(t, runID, sub.RunID)
	assert.Nil(t, sub.TotalMoney)
	require.Len(t, sub.Details, 1)
	assert.Equal(t, resultID, sub.Details[0].ResultID)
	assert.Equal(t, 100.0, sub.Details[0].WeightPercent)
}

func TestSubmission_ParsesTotalMoney(t *testing.T) {
	raw := []byte(`{"run_id": "` + uuid.New().String() + `", "mode": "real", "total_money": 50000, "details": []}`)

	var sub submission
	require.NoError(t, json.Unmarshal(raw, &sub))
	require.NotNil(t, sub.TotalMoney)
	assert.Equal(t, 50000.0, *sub.TotalMoney)
}
