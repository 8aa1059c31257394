package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidHypothesisCategory(t *testing.T) {
	for _, c := range ValidHypothesisCategories {
		assert.True(t, IsValidHypothesisCategory(c), c)
	}
	assert.Len(t, ValidHypothesisCategories, 9)
	assert.False(t, IsValidHypothesisCategory("zodiac"))
	assert.False(t, IsValidHypothesisCategory(""))
	assert.False(t, IsValidHypothesisCategory("Profession"), "categories are case sensitive")
}

func TestIsValidMemoCategory(t *testing.T) {
	for _, c := range ValidMemoCategories {
		assert.True(t, IsValidMemoCategory(c), c)
	}
	assert.Len(t, ValidMemoCategories, 9)
	assert.False(t, IsValidMemoCategory("background"))
	assert.False(t, IsValidMemoCategory("../etc"))
}

func TestWeights(t *testing.T) {
	tests := []struct {
		in      int
		valid   bool
		clamped int
	}{
		{-3, false, 1},
		{0, false, 1},
		{1, true, 1},
		{3, true, 3},
		{5, true, 5},
		{6, false, 5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, IsValidWeight(tt.in), "IsValidWeight(%d)", tt.in)
		assert.Equal(t, tt.clamped, ClampWeight(tt.in), "ClampWeight(%d)", tt.in)
	}
}

func TestMemoType_IsValid(t *testing.T) {
	assert.True(t, MemoActionable.IsValid())
	assert.True(t, MemoInformative.IsValid())
	assert.False(t, MemoType("urgent").IsValid())
}

func TestHypothesis_IgnoresUnknownFields(t *testing.T) {
	var h Hypothesis
	require.NoError(t, json.Unmarshal([]byte(`{"category": "interests", "description": "sailing", "weight": 2, "confidence": 0.9}`), &h))
	assert.Equal(t, Hypothesis{Category: "interests", Description: "sailing", Weight: 2}, h)
}

func TestMemo_JSONShape(t *testing.T) {
	m := Memo{
		ID:         "1a2b3c4d",
		Type:       MemoActionable,
		Categories: []string{"financial"},
		Details:    "Pay rent by the 1st",
		Summary:    "Rent reminder.",
		Source:     SourceMessage{Date: time.Date(2024, 5, 28, 9, 0, 0, 0, time.UTC), Summary: "Rent reminder."},
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "1a2b3c4d",
		"type": "actionable",
		"categories": ["financial"],
		"details": "Pay rent by the 1st",
		"summary": "Rent reminder.",
		"source": {"date": "2024-05-28T09:00:00Z", "summary": "Rent reminder."}
	}`, string(data))
}
