package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"chatstream/internal/adapter/llm"
	"chatstream/internal/infra/config"
	"chatstream/internal/infra/logger"
)

// replayCommand runs a captured SSE body through the stream transformer
// without any network access.
func replayCommand() *cobra.Command {
	var (
		text          bool
		debug         bool
		maxFrameBytes int
	)
	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Transform a captured SSE body (or - for stdin) into normalized events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := openReplaySource(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			level := "info"
			if debug {
				level = "debug"
			}
			log := logger.NewWithWriter(config.LoggerConfig{Level: level, Format: "text"}, cmd.ErrOrStderr())

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()
			// After the first interrupt a second one kills the process.
			context.AfterFunc(ctx, cancel)

			parts := llm.TransformStream(ctx, body, llm.StreamOptions{
				MaxFrameBytes: maxFrameBytes,
				Logger:        logger.Component(log, "replay"),
			})
			out := newEventWriter(cmd.OutOrStdout(), cmd.ErrOrStderr(), text)
			return interrupted(ctx, out.writeStream(parts))
		},
	}
	cmd.Flags().BoolVarP(&text, "text", "t", false, "Print only the generated text")
	cmd.Flags().BoolVar(&debug, "debug", false, "Log dropped frames and fragments to stderr")
	cmd.Flags().IntVar(&maxFrameBytes, "max-frame-bytes", 0, "Longest accepted SSE line (0: 4 MiB)")
	return cmd
}

func openReplaySource(stdin io.Reader, path string) (io.ReadCloser, error) {
	if path == "-" {
		// A real file can be closed to unblock a pending read on cancel.
		if f, ok := stdin.(*os.File); ok {
			return f, nil
		}
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay source: %w", err)
	}
	return f, nil
}
