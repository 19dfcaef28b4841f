// Package report renders a human-readable summary of a completed run.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/0xShonen/babelbit-subnet/pkg/runner"
)

// WriteSummary renders the per-miner outcome table for one run.
func WriteSummary(writer io.Writer, run runner.RunReport) error {
	fmt.Fprintf(writer, "challenge %s run %s: %d miners in %s\n",
		run.ChallengeUID, run.RunStamp, run.Total,
		run.FinishedAt.Sub(run.StartedAt).Truncate(time.Millisecond))

	table := tablewriter.NewWriter(writer)
	table.Header([]string{"UID", "Slug", "Model", "Dialogues", "Utterances", "Status"})
	for _, outcome := range run.Outcomes {
		table.Append([]string{
			fmt.Sprintf("%d", outcome.Miner.UID),
			outcome.Miner.Slug,
			outcome.Miner.Model,
			fmt.Sprintf("%d", outcome.Dialogues),
			fmt.Sprintf("%d", outcome.Utterances),
			status(outcome),
		})
	}
	table.Render()
	return nil
}

func status(outcome runner.MinerOutcome) string {
	switch {
	case outcome.Skipped:
		return "skipped"
	case outcome.Err != nil:
		return "failed: " + outcome.Err.Error()
	case len(outcome.ArtifactErrs) > 0:
		return fmt.Sprintf("ok (%d artifact errors)", len(outcome.ArtifactErrs))
	default:
		return "ok"
	}
}
