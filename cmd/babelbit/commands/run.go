package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xShonen/babelbit-subnet/pkg/auth"
	"github.com/0xShonen/babelbit-subnet/pkg/challenge"
	"github.com/0xShonen/babelbit-subnet/pkg/chute"
	"github.com/0xShonen/babelbit-subnet/pkg/config"
	"github.com/0xShonen/babelbit-subnet/pkg/engine"
	"github.com/0xShonen/babelbit-subnet/pkg/httpx"
	"github.com/0xShonen/babelbit-subnet/pkg/registry"
	"github.com/0xShonen/babelbit-subnet/pkg/report"
	"github.com/0xShonen/babelbit-subnet/pkg/runlog"
	"github.com/0xShonen/babelbit-subnet/pkg/runner"
	"github.com/0xShonen/babelbit-subnet/pkg/store"
	"github.com/0xShonen/babelbit-subnet/pkg/upload"
)

func newRunCommand() *cobra.Command {
	var (
		engineURL     string
		outputDir     string
		registryURL   string
		signerURL     string
		workers       int
		skipProcessed bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate registered miners against the current challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			engineResolved := resolveString(engineURL, appConfig.EngineURL)
			if engineResolved == "" {
				return errors.New("utterance engine URL is required")
			}
			outputResolved := resolveString(outputDir, appConfig.OutputDir)
			if outputResolved == "" {
				outputResolved = "./scores"
			}
			registryResolved := resolveString(registryURL, appConfig.Registry.URL)
			if registryResolved == "" {
				return errors.New("miner registry URL is required")
			}
			signerResolved := resolveString(signerURL, appConfig.Signer.URL)
			workerCount := resolveInt(workers, appConfig.Workers, 1)

			runCfg := config.Resolve(engineResolved, outputResolved)

			pool := httpx.NewPool(0)
			client := pool.Client()

			var authenticator *auth.Authenticator
			if signerResolved != "" {
				authenticator = auth.NewAuthenticator(engineResolved, client, &auth.RemoteSigner{
					URL:    signerResolved,
					Client: client,
				})
			}

			chutesCfg := appConfig.Chutes
			completers, err := chute.NewFactory(chutesCfg.API, chute.Options{
				APIKey:     chutesCfg.APIKey,
				BaseDomain: chutesCfg.BaseDomain,
				Timeout:    time.Duration(chutesCfg.TimeoutSeconds) * time.Second,
				MaxRetries: chutesCfg.MaxRetries,
				Backoff:    time.Duration(chutesCfg.BackoffMillis) * time.Millisecond,
				MaxTokens:  chutesCfg.MaxTokens,
			})
			if err != nil {
				return err
			}

			var scoreStore runner.ScoreStore
			if appConfig.DB.Path != "" {
				st, err := store.Open(appConfig.DB.Path)
				if err != nil {
					return err
				}
				defer st.Close()
				scoreStore = st
			}

			var uploader runner.Uploader
			if appConfig.S3.Endpoint != "" && appConfig.S3.Bucket != "" {
				up, err := upload.NewS3Uploader(upload.Config{
					Endpoint:  appConfig.S3.Endpoint,
					AccessKey: appConfig.S3.AccessKey,
					SecretKey: appConfig.S3.SecretKey,
					Bucket:    appConfig.S3.Bucket,
					Region:    appConfig.S3.Region,
					Prefix:    appConfig.S3.Prefix,
					UseSSL:    appConfig.S3.UseSSL,
				}, logger)
				if err != nil {
					return err
				}
				uploader = up
			}

			progress := newProgressBar(progressWriter(cmd))

			run := runner.Runner{
				Config: runCfg,
				Challenges: &challenge.Resolver{
					EngineURL:  engineResolved,
					HTTPClient: client,
				},
				Registry: &registry.Client{
					BaseURL:    registryResolved,
					HTTPClient: client,
				},
				Engine: &engine.Client{
					EngineURL:  engineResolved,
					HTTPClient: client,
					Auth:       authenticator,
					Completers: completers,
					Logger:     logger,
				},
				Artifacts: &runlog.Writer{
					LogsDir:   runCfg.LogsDir,
					ScoresDir: runCfg.ScoresDir,
					Logger:    logger,
				},
				Store:          scoreStore,
				Uploader:       uploader,
				ReleaseClients: pool.Close,
				SkipProcessed:  skipProcessed || appConfig.SkipProcessed,
				Workers:        workerCount,
				Progress:       progress.Update,
				Logger:         logger,
			}

			result, err := run.Run(cmd.Context())
			if err != nil {
				return err
			}
			progress.Finish()

			if err := report.WriteSummary(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			logger.Info("run complete",
				zap.String("challenge_uid", result.ChallengeUID),
				zap.String("run_stamp", result.RunStamp),
				zap.Int("miners", result.Total))
			return nil
		},
	}

	cmd.Flags().StringVar(&engineURL, "engine-url", "", "utterance engine base URL")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for dialogue score files")
	cmd.Flags().StringVar(&registryURL, "registry-url", "", "miner registry base URL")
	cmd.Flags().StringVar(&signerURL, "signer-url", "", "signer sidecar URL for engine auth")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent miner slots")
	cmd.Flags().BoolVar(&skipProcessed, "skip-processed", false, "skip miners with existing score files for this challenge")

	return cmd
}

func resolveString(value string, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func resolveInt(value int, fallback int, defaultValue int) int {
	if value > 0 {
		return value
	}
	if fallback > 0 {
		return fallback
	}
	return defaultValue
}

type progressBar struct {
	writer io.Writer
	start  time.Time
	isTTY  bool
	active bool
}

func newProgressBar(writer io.Writer) *progressBar {
	return &progressBar{
		writer: writer,
		start:  time.Now(),
		isTTY:  isTerminal(writer),
	}
}

func (p *progressBar) Update(completed int, total int) {
	width := 30
	if total <= 0 {
		return
	}
	p.active = true

	ratio := float64(completed) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))

	bar := strings.Repeat("=", filled) + strings.Repeat(".", width-filled)
	percent := int(ratio * 100)
	elapsed := time.Since(p.start).Truncate(time.Second)

	barStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	line := fmt.Sprintf("[%s] %3d%% (%d/%d miners) %s", barStyle.Render(bar), percent, completed, total, elapsed)
	if p.isTTY {
		fmt.Fprintf(p.writer, "\r%s", line)
	} else {
		fmt.Fprintf(p.writer, "%s\n", line)
	}
}

func (p *progressBar) Finish() {
	if p.active && p.isTTY {
		fmt.Fprintln(p.writer)
	}
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func progressWriter(cmd *cobra.Command) io.Writer {
	stderr := cmd.ErrOrStderr()
	if isTerminal(stderr) {
		return stderr
	}
	return io.Discard
}
