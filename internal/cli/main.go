package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forPelevin/nledit/internal/usecase"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := newRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &state{}
	root := &cobra.Command{
		Use:           "nledit",
		Short:         "Edit videos with natural-language commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return st.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if st.logger != nil {
				_ = st.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "nledit.yaml", "Path to YAML config")
	pf.String("data-dir", "", "Directory for the database and rendered videos")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		ingestCmd(st),
		resolveCmd(st),
		applyCmd(st),
		historyCmd(st),
		navigateCmd(st, "undo", "Print the parent version of a video"),
		navigateCmd(st, "redo", "Print the most recent child version of a video"),
		serveCmd(st),
		workerCmd(st),
	)
	return root
}

func ingestCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <video.mp4>",
		Short: "Register a video, transcribe it and embed its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			skip, _ := cmd.Flags().GetBool("no-transcript")
			return st.run(cmd, false, func(env runEnv) error {
				res, err := env.app.Usecase.Ingest(env.ctx, usecase.IngestInput{Path: args[0], Title: title, SkipTranscript: skip})
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().String("title", "", "Title (defaults to the file name)")
	cmd.Flags().Bool("no-transcript", false, "Skip speech recognition")
	return cmd
}

func resolveCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <command>",
		Short: "Turn a command into an action without applying it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := resolveInput(cmd, args)
			if err != nil {
				return err
			}
			return st.run(cmd, false, func(env runEnv) error {
				res, err := env.app.Usecase.Resolve(env.ctx, in)
				if err != nil {
					return err
				}
				return printJSON(cmd, resolveOutput(res))
			})
		},
	}
	cmd.Flags().String("video", "", "Resolve against this video's duration and transcript")
	cmd.Flags().Float64("duration", -1, "Video duration in seconds when no --video is given")
	cmd.Flags().Bool("llm", true, "Fall back to the LLM planner when no quick pattern matches (--llm=false to disable)")
	return cmd
}

func applyCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <video-id> <command>",
		Short: "Apply a command to a video, producing a new version",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := editInput(cmd, args)
			async, _ := cmd.Flags().GetBool("async")
			return st.run(cmd, async, func(env runEnv) error {
				if async {
					key, err := env.app.Usecase.Enqueue(env.ctx, in)
					if err != nil {
						return err
					}
					return printJSON(cmd, map[string]string{"status": "queued", "idempotency_key": key})
				}
				res, err := env.app.Usecase.Edit(env.ctx, in)
				if err != nil {
					return err
				}
				return printJSON(cmd, editOutput(res))
			})
		},
	}
	cmd.Flags().Bool("llm", true, "Fall back to the LLM planner when no quick pattern matches (--llm=false to disable)")
	cmd.Flags().String("key", "", "Idempotency key")
	cmd.Flags().Bool("async", false, "Queue the edit for a worker")
	return cmd
}

func historyCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "history <video-id>",
		Short: "Print the version chain from the original upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.run(cmd, false, func(env runEnv) error {
				steps, err := env.app.Usecase.History(env.ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, steps)
			})
		},
	}
}

func navigateCmd(st *state, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <video-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.run(cmd, false, func(env runEnv) error {
				nav := env.app.Usecase.Undo
				if name == "redo" {
					nav = env.app.Usecase.Redo
				}
				v, err := nav(env.ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, v)
			})
		},
	}
}
