// Package runner coordinates one evaluation run: resolve the active
// challenge, fetch and budget the miner set, drive a prediction session per
// miner with per-miner failure isolation, persist artifacts, and release the
// shared network clients exactly once however the run ends.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0xShonen/babelbit-subnet/pkg/config"
	"github.com/0xShonen/babelbit-subnet/pkg/engine"
	"github.com/0xShonen/babelbit-subnet/pkg/runlog"
	"github.com/0xShonen/babelbit-subnet/pkg/schema"
	"github.com/0xShonen/babelbit-subnet/pkg/store"
)

// ChallengeResolver resolves the identifier of the active challenge.
type ChallengeResolver interface {
	CurrentChallengeUID(ctx context.Context) (string, error)
}

// MinerRegistry returns the full miner set for a subnet.
type MinerRegistry interface {
	Miners(ctx context.Context, netuid int) (map[int]schema.Miner, error)
}

// Predictor runs one prediction session for one miner.
type Predictor interface {
	Predict(ctx context.Context, miner schema.Miner, hook engine.StepHook) (schema.DialogueRuns, error)
}

// ArtifactWriter persists the raw event log and the score file for one
// dialogue.
type ArtifactWriter interface {
	WriteRawLog(scope runlog.Scope, dialogueUID string, utterances []schema.PredictedUtterance) (string, error)
	WriteScore(scope runlog.Scope, dialogueUID, logPath string, utterances []schema.PredictedUtterance) (string, error)
}

// ScoreStore records dialogue scores in a database. Optional.
type ScoreStore interface {
	InsertScore(ctx context.Context, record store.ScoreRecord) error
}

// Uploader ships a written artifact to object storage. Optional.
type Uploader interface {
	Upload(ctx context.Context, path string) error
}

// MinerOutcome is the typed result of one miner's slot in the run: either
// dialogues were produced, the prediction failed, or the miner was skipped
// because it already has artifacts for this challenge.
type MinerOutcome struct {
	Miner      schema.Miner
	Dialogues  int
	Utterances int
	Skipped    bool

	// Err is the prediction failure, nil on success.
	Err error

	// ArtifactErrs are per-artifact write failures. They never abort
	// sibling dialogues or other miners.
	ArtifactErrs []error
}

// Failed reports whether the miner produced no usable result.
func (o MinerOutcome) Failed() bool {
	return o.Err != nil
}

// RunReport summarizes a completed run.
type RunReport struct {
	ChallengeUID string
	RunStamp     string
	Total        int
	Outcomes     []MinerOutcome
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Runner holds the collaborators for a run. Challenges, Registry, Engine,
// and Artifacts are required; the rest are optional.
type Runner struct {
	Config     config.RunConfig
	Challenges ChallengeResolver
	Registry   MinerRegistry
	Engine     Predictor
	Artifacts  ArtifactWriter
	Store      ScoreStore
	Uploader   Uploader

	// ReleaseClients tears down the shared network clients. Invoked exactly
	// once per Run, on every exit path.
	ReleaseClients func()

	// Hook is forwarded to the predictor for per-utterance observation. May
	// be nil.
	Hook engine.StepHook

	// SkipProcessed skips miners that already have score artifacts for the
	// current challenge.
	SkipProcessed bool

	// Workers bounds concurrent miner slots. Values below 1 mean
	// sequential processing.
	Workers int

	Progress func(completed, total int)
	Logger   *zap.Logger
}

// Run executes the full pipeline and returns a report. A non-nil error means
// the run failed before any miner could be attributed (settings, challenge
// context, or registry); per-miner and per-artifact failures are captured in
// the report instead.
func (r *Runner) Run(ctx context.Context) (RunReport, error) {
	if r.ReleaseClients != nil {
		defer r.ReleaseClients()
	}

	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	report := RunReport{
		RunStamp:  runlog.NewRunStamp(),
		StartedAt: time.Now(),
	}

	if r.Challenges == nil || r.Registry == nil || r.Engine == nil || r.Artifacts == nil {
		return report, errors.New("runner: challenges, registry, engine, and artifacts are required")
	}

	challengeUID, err := r.Challenges.CurrentChallengeUID(ctx)
	if err != nil {
		return report, fmt.Errorf("runner: resolving challenge context: %w", err)
	}
	report.ChallengeUID = challengeUID

	miners, err := r.Registry.Miners(ctx, r.Config.NetUID)
	if err != nil {
		return report, fmt.Errorf("runner: querying miner registry: %w", err)
	}
	logger.Info("resolved miner registry",
		zap.String("challenge_uid", challengeUID),
		zap.Int("netuid", r.Config.NetUID),
		zap.Int("miners", len(miners)))

	var skipped []MinerOutcome
	if r.SkipProcessed {
		miners, skipped = r.filterProcessed(miners, challengeUID, logger)
	}

	selected := SelectMiners(miners, r.Config.MaxMiners)
	report.Total = len(selected)
	if len(selected) == 0 {
		logger.Info("no miners to evaluate", zap.String("challenge_uid", challengeUID))
		report.Outcomes = skipped
		report.FinishedAt = time.Now()
		return report, nil
	}

	outcomes := r.dispatch(ctx, challengeUID, report.RunStamp, selected)
	outcomes = append(outcomes, skipped...)
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].Miner.UID < outcomes[j].Miner.UID
	})

	report.Outcomes = outcomes
	report.FinishedAt = time.Now()
	return report, nil
}

// dispatch runs the per-miner loop. Each selected miner gets exactly one
// prediction invocation; one miner's failure never aborts or skips another.
func (r *Runner) dispatch(ctx context.Context, challengeUID, runStamp string, selected []schema.Miner) []MinerOutcome {
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(selected) {
		workers = len(selected)
	}

	minerCh := make(chan schema.Miner)
	outcomeCh := make(chan MinerOutcome)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for miner := range minerCh {
				outcomeCh <- r.evaluateMiner(ctx, challengeUID, runStamp, miner)
			}
		}()
	}

	go func() {
		defer close(minerCh)
		for _, miner := range selected {
			minerCh <- miner
		}
	}()
	go func() {
		wg.Wait()
		close(outcomeCh)
	}()

	outcomes := make([]MinerOutcome, 0, len(selected))
	for outcome := range outcomeCh {
		outcomes = append(outcomes, outcome)
		if r.Progress != nil {
			r.Progress(len(outcomes), len(selected))
		}
	}
	return outcomes
}

func (r *Runner) evaluateMiner(ctx context.Context, challengeUID, runStamp string, miner schema.Miner) MinerOutcome {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	outcome := MinerOutcome{Miner: miner}

	runs, err := r.Engine.Predict(ctx, miner, r.Hook)
	if err != nil {
		logger.Warn("miner prediction failed",
			zap.Int("uid", miner.UID),
			zap.String("slug", miner.Slug),
			zap.Error(err))
		outcome.Err = err
		return outcome
	}

	scope := runlog.Scope{
		ChallengeUID: challengeUID,
		MinerUID:     miner.UID,
		MinerHotkey:  miner.Hotkey,
		RunStamp:     runStamp,
	}

	for _, dialogueUID := range sortedDialogues(runs) {
		utterances := runs[dialogueUID]
		outcome.Dialogues++
		outcome.Utterances += len(utterances)

		rawPath, err := r.Artifacts.WriteRawLog(scope, dialogueUID, utterances)
		if err != nil {
			logger.Warn("raw log write failed",
				zap.Int("uid", miner.UID),
				zap.String("dialogue_uid", dialogueUID),
				zap.Error(err))
			outcome.ArtifactErrs = append(outcome.ArtifactErrs, err)
			rawPath = ""
		}

		scorePath, err := r.Artifacts.WriteScore(scope, dialogueUID, rawPath, utterances)
		if err != nil {
			logger.Warn("score write failed",
				zap.Int("uid", miner.UID),
				zap.String("dialogue_uid", dialogueUID),
				zap.Error(err))
			outcome.ArtifactErrs = append(outcome.ArtifactErrs, err)
			continue
		}

		if r.Store != nil {
			record := store.ScoreRecord{
				ChallengeUID: challengeUID,
				MinerUID:     miner.UID,
				MinerHotkey:  miner.Hotkey,
				DialogueUID:  dialogueUID,
				Score:        runlog.AverageStepScore(utterances),
				FilePath:     scorePath,
			}
			if err := r.Store.InsertScore(ctx, record); err != nil {
				outcome.ArtifactErrs = append(outcome.ArtifactErrs, err)
			}
		}
		if r.Uploader != nil {
			if err := r.Uploader.Upload(ctx, scorePath); err != nil {
				outcome.ArtifactErrs = append(outcome.ArtifactErrs, err)
			}
		}
	}

	return outcome
}

func (r *Runner) filterProcessed(miners map[int]schema.Miner, challengeUID string, logger *zap.Logger) (map[int]schema.Miner, []MinerOutcome) {
	processed := runlog.ProcessedMiners(r.Config.ScoresDir, challengeUID)
	if len(processed) == 0 {
		return miners, nil
	}

	remaining := make(map[int]schema.Miner, len(miners))
	var skipped []MinerOutcome
	for uid, miner := range miners {
		if _, ok := processed[runlog.MinerKey{UID: miner.UID, Hotkey: miner.Hotkey}]; ok {
			skipped = append(skipped, MinerOutcome{Miner: miner, Skipped: true})
			continue
		}
		remaining[uid] = miner
	}
	if len(skipped) > 0 {
		logger.Info("skipping already processed miners",
			zap.String("challenge_uid", challengeUID),
			zap.Int("skipped", len(skipped)))
	}
	return remaining, skipped
}

func sortedDialogues(runs schema.DialogueRuns) []string {
	uids := make([]string, 0, len(runs))
	for uid := range runs {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}
