package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPredictedUtteranceAbsentFieldsMarshalAsNull(t *testing.T) {
	data, err := json.Marshal(PredictedUtterance{
		Index:      "utterance-1",
		Step:       0,
		Prefix:     "hello",
		Prediction: "hello world EOF",
	})
	require.NoError(t, err)

	text := string(data)
	require.Contains(t, text, `"ground_truth":null`)
	require.Contains(t, text, `"evaluation":null`)
	require.Contains(t, text, `"context":null`)
}

func TestPredictedUtterancePresentFieldsMarshal(t *testing.T) {
	gt := "hello world EOF"
	data, err := json.Marshal(PredictedUtterance{
		Index:       "utterance-1",
		GroundTruth: &gt,
		Done:        true,
		Evaluation:  &UtteranceEvaluation{UStep: 0.5, Earliness: 0.25},
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "hello world EOF", decoded["ground_truth"])
	require.Equal(t, true, decoded["done"])

	eval, ok := decoded["evaluation"].(map[string]any)
	require.True(t, ok)
	require.InDelta(t, 0.5, eval["u_step"], 1e-9)
}

func TestDialogueRunsUtterances(t *testing.T) {
	runs := DialogueRuns{
		"dlg-a": {{Step: 0}, {Step: 1}},
		"dlg-b": {{Step: 0}},
	}
	require.Equal(t, 3, runs.Utterances())
	require.Zero(t, DialogueRuns{}.Utterances())
	require.Zero(t, DialogueRuns(nil).Utterances())
}
