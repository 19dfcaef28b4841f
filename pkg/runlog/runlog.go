// Package runlog writes the two artifact classes a run produces: raw
// per-utterance JSONL event logs and per-dialogue score files. File names
// embed a run-scoped prefix so artifacts from concurrent or repeated runs
// never collide.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xShonen/babelbit-subnet/pkg/schema"
)

const (
	rawLogPrefix = "dialogue_run_"
	rawLogSuffix = ".jsonl"
	scoreSuffix  = "-score.json"
)

// Scope identifies the (run, miner, challenge) an artifact belongs to.
type Scope struct {
	ChallengeUID string
	MinerUID     int
	MinerHotkey  string
	RunStamp     string
}

// NewRunStamp returns a run-scoped suffix unique across runs: a wall-clock
// timestamp plus a short random id for runs started within the same second.
func NewRunStamp() string {
	return time.Now().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}

// Writer persists artifacts under the configured directories, creating them
// on demand.
type Writer struct {
	LogsDir   string
	ScoresDir string
	Logger    *zap.Logger
}

// ScoreFile is the persisted per-dialogue score artifact. Utterances carry
// explicit nulls for absent ground truth and evaluation.
type ScoreFile struct {
	LogFile         *string                     `json:"log_file"`
	ChallengeUID    string                      `json:"challenge_uid"`
	DialogueUID     string                      `json:"dialogue_uid"`
	MinerUID        int                         `json:"miner_uid"`
	MinerHotkey     string                      `json:"miner_hotkey"`
	Utterances      []schema.PredictedUtterance `json:"utterances"`
	DialogueSummary DialogueSummary             `json:"dialogue_summary"`
}

// DialogueSummary aggregates the per-utterance step scores for one dialogue.
type DialogueSummary struct {
	AverageUBestEarly float64 `json:"average_U_best_early"`
}

func (s Scope) baseName(dialogueUID string) string {
	return fmt.Sprintf("%s%s_miner_%d_dlg_%s_run_%s",
		rawLogPrefix, s.ChallengeUID, s.MinerUID, dialogueUID, s.RunStamp)
}

// WriteRawLog appends every utterance of one dialogue, in step order, as one
// JSONL line each, and returns the written path.
func (w *Writer) WriteRawLog(scope Scope, dialogueUID string, utterances []schema.PredictedUtterance) (string, error) {
	if err := os.MkdirAll(w.LogsDir, 0o755); err != nil {
		return "", fmt.Errorf("runlog: creating logs dir: %w", err)
	}

	path := filepath.Join(w.LogsDir, scope.baseName(dialogueUID)+rawLogSuffix)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("runlog: opening raw log: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	for _, utterance := range utterances {
		if err := encoder.Encode(utterance); err != nil {
			return "", fmt.Errorf("runlog: writing raw log event: %w", err)
		}
	}

	if w.Logger != nil {
		w.Logger.Debug("wrote raw dialogue log",
			zap.String("path", path),
			zap.Int("events", len(utterances)))
	}
	return path, nil
}

// WriteScore writes the per-dialogue score artifact and returns its path.
// logPath is the raw log the artifact derives from; empty means the raw log
// write failed or was skipped, recorded as an explicit null.
func (w *Writer) WriteScore(scope Scope, dialogueUID, logPath string, utterances []schema.PredictedUtterance) (string, error) {
	if err := os.MkdirAll(w.ScoresDir, 0o755); err != nil {
		return "", fmt.Errorf("runlog: creating scores dir: %w", err)
	}

	var logFile *string
	if logPath != "" {
		logFile = &logPath
	}
	data := ScoreFile{
		LogFile:      logFile,
		ChallengeUID: scope.ChallengeUID,
		DialogueUID:  dialogueUID,
		MinerUID:     scope.MinerUID,
		MinerHotkey:  scope.MinerHotkey,
		Utterances:   utterances,
		DialogueSummary: DialogueSummary{
			AverageUBestEarly: AverageStepScore(utterances),
		},
	}

	path := filepath.Join(w.ScoresDir, scope.baseName(dialogueUID)+scoreSuffix)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("runlog: creating score file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return "", fmt.Errorf("runlog: writing score file: %w", err)
	}

	if w.Logger != nil {
		w.Logger.Info("saved dialogue score file", zap.String("path", path))
	}
	return path, nil
}

// AverageStepScore is the mean u_step over evaluated utterances; dialogues
// without any evaluation score 0.
func AverageStepScore(utterances []schema.PredictedUtterance) float64 {
	var sum float64
	var n int
	for _, utterance := range utterances {
		if utterance.Evaluation != nil {
			sum += utterance.Evaluation.UStep
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
