package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/ragdesk/internal/domain"
)

func newAskCmd(open Opener) *cobra.Command {
	var (
		stream bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, open, func(ctx context.Context, s *Services) error {
				if stream {
					return runAskStream(ctx, cmd, s, args[0])
				}
				return runAsk(ctx, cmd, s, args[0], asJSON)
			})
		},
	}
	cmd.Flags().BoolVarP(&stream, "stream", "s", false, "print tokens as they are generated")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the answer as JSON")
	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, s *Services, question string, asJSON bool) error {
	out := cmd.OutOrStdout()
	ans, err := s.Answer.Answer(ctx, question)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if asJSON {
		data, err := json.MarshalIndent(ans, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintln(out, ans.Response)
	printSources(cmd, ans.Sources)
	return nil
}

func runAskStream(ctx context.Context, cmd *cobra.Command, s *Services, question string) error {
	out := cmd.OutOrStdout()
	err := s.Answer.Stream(ctx, question, func(f domain.Frame) error {
		switch f.Type {
		case domain.FrameToken:
			fmt.Fprint(out, f.Token)
		case domain.FrameSources:
			fmt.Fprintln(out)
			printSources(cmd, f.Sources)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	return nil
}

func printSources(cmd *cobra.Command, sources []domain.Source) {
	out := cmd.OutOrStdout()
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Sources:")
	for i, src := range sources {
		if src.Page != nil {
			fmt.Fprintf(out, "  [%d] %s, page %d (%.2f)\n", i+1, src.Source, *src.Page, src.Score)
			continue
		}
		fmt.Fprintf(out, "  [%d] %s (%.2f)\n", i+1, src.Source, src.Score)
	}
}
