package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forPelevin/nledit/internal/api"
	"github.com/forPelevin/nledit/internal/ports"
	"github.com/forPelevin/nledit/internal/ports/adapters/rabbitmq"
	"github.com/forPelevin/nledit/internal/pipeline"
	"github.com/forPelevin/nledit/internal/types"
	"github.com/forPelevin/nledit/internal/usecase"
)

func serveCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return st.run(cmd, true, func(env runEnv) error {
				srv := api.NewServer(api.ServerConfig{
					Addr:    st.cfg.HTTPAddr,
					Service: env.app.Usecase,
					Logger:  st.logger,
				})
				errc := make(chan error, 1)
				go func() { errc <- srv.Start() }()

				select {
				case err := <-errc:
					return err
				case <-env.ctx.Done():
				}
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			})
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides http_addr)")
	return cmd
}

func workerCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Apply queued edits from RabbitMQ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return st.run(cmd, false, func(env runEnv) error {
				consumer, err := pipeline.NewConsumer(st.cfg, st.logger)
				if err != nil {
					return err
				}
				defer consumer.Close()

				err = consumer.Run(env.ctx, jobHandler(env.app.Usecase, st.logger))
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

type jobRunner interface {
	HandleJob(ctx context.Context, job ports.ApplyJob) (usecase.EditResult, error)
}

// jobHandler marks failures that a redelivery cannot fix as permanent.
func jobHandler(uc jobRunner, logger *zap.Logger) rabbitmq.Handler {
	return func(ctx context.Context, job ports.ApplyJob) error {
		res, err := uc.HandleJob(ctx, job)
		if err != nil {
			if permanent(err) {
				return rabbitmq.Permanent(err)
			}
			return fmt.Errorf("apply job for %s: %w", job.VideoID, err)
		}
		logger.Info("job applied",
			zap.String("video_id", job.VideoID),
			zap.String("child_id", res.Video.ID),
			zap.Bool("replayed", res.Replayed),
		)
		return nil
	}
}

func permanent(err error) bool {
	return errors.Is(err, usecase.ErrNotUnderstood) ||
		errors.Is(err, types.ErrInvalidAction) ||
		errors.Is(err, ports.ErrNotFound) ||
		errors.Is(err, ports.ErrKeyConflict)
}
