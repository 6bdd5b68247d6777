// Codewright — a sandboxed coding agent CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/codewright/codewright/agent"
	"github.com/codewright/codewright/internal/config"
	"github.com/codewright/codewright/llm"
	"github.com/codewright/codewright/sandbox"
)

var (
	flagVerbose       bool
	flagWorkDir       string
	flagMaxIterations int
	flagModel         string
	flagProvider      string
	flagTimeout       time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "codewright <task>",
	Short: "Codewright — a sandboxed coding agent.",
	Long: `Codewright runs a coding agent over a sandboxed working directory.
The agent iterates against a model: it sends the conversation with tool
schemas attached, executes the tool calls the model selects (listing,
reading, and writing files, and running scripts), and feeds the results
back until the model answers in plain text or the iteration ceiling is
reached.

All file access is confined to the working directory.`,
	Args:          cobra.ExactArgs(1),
	RunE:          runAgent,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "print tool calls and model responses")
	rootCmd.Flags().StringVar(&flagWorkDir, "workdir", "", "working directory for the sandbox (default ./workspace)")
	rootCmd.Flags().IntVar(&flagMaxIterations, "max-iterations", 0, "model round-trip ceiling (default 20)")
	rootCmd.Flags().StringVar(&flagModel, "model", "", "model identifier")
	rootCmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider (anthropic, openai, ...)")
	rootCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "wall-clock limit per script run (default 30s)")

	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func runAgent(_ *cobra.Command, args []string) error {
	cfg := config.Load()
	if flagWorkDir != "" {
		cfg.WorkDir = flagWorkDir
	}
	if flagMaxIterations > 0 {
		cfg.MaxIterations = flagMaxIterations
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if flagTimeout > 0 {
		cfg.ScriptTimeout = flagTimeout
	}

	logger := newLogger(cfg.LogLevel)

	execCfg := sandbox.DefaultExecConfig()
	execCfg.Timeout = cfg.ScriptTimeout
	box, err := sandbox.New(cfg.WorkDir, execCfg)
	if err != nil {
		return fmt.Errorf("sandbox setup: %w", err)
	}

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	registry := agent.NewRegistry()
	agent.RegisterCoreTools(registry)

	loop := agent.NewLoop(client, registry, box, agent.Config{
		MaxIterations: cfg.MaxIterations,
		Model:         cfg.Model,
		Provider:      cfg.Provider,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		consumeEvents(loop.Events(), logger)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("run_id", loop.ID()).
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Str("workdir", box.Root()).
		Msg("starting run")

	result, err := loop.Run(ctx, args[0])
	<-done
	if err != nil {
		return err
	}

	if result.Outcome == agent.OutcomeMaxIterations {
		logger.Warn().
			Int("iterations", result.Iterations).
			Msg("run stopped at the iteration ceiling")
	}
	logger.Info().
		Int("iterations", result.Iterations).
		Int("input_tokens", result.Usage.InputTokens).
		Int("output_tokens", result.Usage.OutputTokens).
		Msg("run finished")

	if result.FinalText != "" {
		fmt.Println(result.FinalText)
	}
	return nil
}

// buildClient assembles the LLM client for the configured provider. The
// anthropic provider uses the native SDK adapter; everything else goes
// through the gollm adapter.
func buildClient(cfg *config.Config) (*llm.Client, error) {
	switch cfg.Provider {
	case "anthropic", "":
		adapter, err := llm.NewAnthropicAdapter(cfg.AnthropicAPIKey, cfg.Model, cfg.AnthropicBaseURL)
		if err != nil {
			return nil, err
		}
		return llm.NewClient(llm.WithProvider("anthropic", adapter)), nil
	default:
		adapter, err := llm.NewGollmAdapter(cfg.Provider, cfg.APIKey(), cfg.Model)
		if err != nil {
			return nil, err
		}
		return llm.NewClient(llm.WithProvider(cfg.Provider, adapter)), nil
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if flagVerbose {
		lvl = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}

// consumeEvents drains the loop's event stream into the logger. Full tool
// output is only shown at debug level.
func consumeEvents(events <-chan agent.Event, logger zerolog.Logger) {
	for ev := range events {
		switch ev.Kind {
		case agent.EventToolCallStart:
			logger.Debug().
				Interface("tool", ev.Data["tool_name"]).
				Interface("arguments", ev.Data["arguments"]).
				Msg("tool call")
		case agent.EventToolCallEnd:
			if errMsg, ok := ev.Data["error"]; ok {
				logger.Warn().
					Interface("tool", ev.Data["tool_name"]).
					Interface("error", errMsg).
					Msg("tool failed")
			} else {
				logger.Debug().
					Interface("tool", ev.Data["tool_name"]).
					Interface("output", ev.Data["output"]).
					Msg("tool result")
			}
		case agent.EventModelResponse:
			logger.Debug().
				Interface("iteration", ev.Data["iteration"]).
				Interface("tool_calls", ev.Data["tool_calls"]).
				Msg("model response")
		case agent.EventRetryWait:
			logger.Warn().
				Interface("attempt", ev.Data["attempt"]).
				Interface("delay", ev.Data["delay"]).
				Interface("error", ev.Data["error"]).
				Msg("retrying after transient error")
		case agent.EventIterationLimit:
			logger.Warn().
				Interface("iterations", ev.Data["iterations"]).
				Msg("iteration ceiling reached")
		case agent.EventWarning:
			logger.Warn().Interface("message", ev.Data["message"]).Msg("warning")
		case agent.EventError:
			logger.Error().Interface("error", ev.Data["error"]).Msg("run error")
		}
	}
}
