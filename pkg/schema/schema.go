// Package schema defines the wire and artifact types shared between the
// runner, the utterance engine client, and the artifact writers.
package schema

// Miner identifies a remote model-serving endpoint registered on the subnet.
// The registry returns one Miner per uid; uids are unique within a run.
type Miner struct {
	UID      int    `json:"uid"`
	Hotkey   string `json:"hotkey"`
	Model    string `json:"model"`
	Revision string `json:"revision"`
	Slug     string `json:"slug"`
	ChuteID  string `json:"chute_id"`
	Block    int64  `json:"block"`
}

// UtteranceEvaluation is the scoring payload attached to a predicted
// utterance by the evaluation side. The runner treats it as opaque and
// serializes it verbatim.
type UtteranceEvaluation struct {
	LexicalSimilarity  float64 `json:"lexical_similarity"`
	SemanticSimilarity float64 `json:"semantic_similarity"`
	Earliness          float64 `json:"earliness"`
	UStep              float64 `json:"u_step"`
}

// PredictedUtterance is one prediction step of a dialogue. GroundTruth,
// Context, and Evaluation are pointers so that an absent value marshals as an
// explicit JSON null rather than being omitted.
type PredictedUtterance struct {
	Index       string               `json:"index"`
	Step        int                  `json:"step"`
	Prefix      string               `json:"prefix"`
	Prediction  string               `json:"prediction"`
	Context     *string              `json:"context"`
	Done        bool                 `json:"done"`
	GroundTruth *string              `json:"ground_truth"`
	Evaluation  *UtteranceEvaluation `json:"evaluation"`
}

// DialogueRuns maps a dialogue uid to its ordered utterance sequence, as
// returned by one prediction invocation for one miner. Step numbers are
// strictly increasing within each sequence, starting at 0.
type DialogueRuns map[string][]PredictedUtterance

// Utterances returns the total utterance count across all dialogues.
func (d DialogueRuns) Utterances() int {
	n := 0
	for _, seq := range d {
		n += len(seq)
	}
	return n
}
