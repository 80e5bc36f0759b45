package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forPelevin/nledit/internal/config"
	"github.com/forPelevin/nledit/internal/logging"
	"github.com/forPelevin/nledit/internal/pipeline"
	"github.com/forPelevin/nledit/internal/resolver"
	"github.com/forPelevin/nledit/internal/types"
	"github.com/forPelevin/nledit/internal/usecase"
)

type state struct {
	cfg    *config.Config
	logger *zap.Logger
}

// init loads config (file, then environment, then flags) and the logger.
func (s *state) init(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if f := cmd.Flags().Lookup("data-dir"); f != nil && f.Changed {
		cfg.DataDir = f.Value.String()
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.LogLevel = f.Value.String()
	}
	if f := cmd.Flags().Lookup("addr"); f != nil && f.Changed {
		cfg.HTTPAddr = f.Value.String()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	s.cfg, s.logger = cfg, logger
	return nil
}

type runEnv struct {
	ctx context.Context
	app *pipeline.App
}

// run builds the app for one command and tears it down afterwards.
func (s *state) run(cmd *cobra.Command, publish bool, fn func(runEnv) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := pipeline.Build(ctx, s.cfg, pipeline.Options{Publish: publish}, s.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			s.logger.Warn("close", zap.Error(err))
		}
	}()
	return fn(runEnv{ctx: ctx, app: app})
}

func resolveInput(cmd *cobra.Command, args []string) (usecase.ResolveInput, error) {
	videoID, _ := cmd.Flags().GetString("video")
	useLLM, _ := cmd.Flags().GetBool("llm")
	in := usecase.ResolveInput{VideoID: videoID, Command: strings.Join(args, " "), UseLLM: useLLM}
	if f := cmd.Flags().Lookup("duration"); f != nil && f.Changed {
		if videoID != "" {
			return usecase.ResolveInput{}, fmt.Errorf("--duration and --video are mutually exclusive")
		}
		d, _ := cmd.Flags().GetFloat64("duration")
		if d < 0 {
			return usecase.ResolveInput{}, fmt.Errorf("--duration must be >= 0")
		}
		in.Duration = &d
	}
	return in, nil
}

func editInput(cmd *cobra.Command, args []string) usecase.EditInput {
	useLLM, _ := cmd.Flags().GetBool("llm")
	key, _ := cmd.Flags().GetString("key")
	return usecase.EditInput{
		VideoID:        args[0],
		Command:        strings.Join(args[1:], " "),
		UseLLM:         useLLM,
		IdempotencyKey: key,
	}
}

type resolveView struct {
	Action    types.ActionJSON `json:"action"`
	Strategy  string           `json:"strategy"`
	Rule      string           `json:"rule,omitempty"`
	Annotated string           `json:"annotated,omitempty"`
}

func resolveOutput(res resolver.Result) resolveView {
	v := resolveView{Action: types.ToJSON(res.Action), Strategy: string(res.Strategy), Rule: res.Rule}
	if res.Resolved != nil {
		v.Annotated = res.Resolved.Annotated
	}
	return v
}

type editView struct {
	Action   types.ActionJSON `json:"action"`
	Strategy string           `json:"strategy,omitempty"`
	Video    types.Video      `json:"video"`
	Effect   types.Effect     `json:"effect"`
	Replayed bool             `json:"replayed,omitempty"`
}

func editOutput(res usecase.EditResult) editView {
	return editView{
		Action:   types.ToJSON(res.Action),
		Strategy: string(res.Strategy),
		Video:    res.Video,
		Effect:   res.Effect,
		Replayed: res.Replayed,
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
