package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type ingestOutput struct {
	Filename         string `json:"filename"`
	Pages            int    `json:"pages"`
	Chunks           int    `json:"chunks"`
	Indexed          int    `json:"indexed"`
	FailedEmbeddings int    `json:"failed_embeddings"`
	Error            string `json:"error,omitempty"`
}

func newIngestCmd(open Opener) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Extract, chunk, embed and index documents",
		Long: `Ingests PDF and plain-text files into the vector index.
Pages without a text layer go through OCR when it is enabled.
A failing file is reported and does not stop the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, open, func(ctx context.Context, s *Services) error {
				return runIngest(ctx, cmd, s, args, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, s *Services, paths []string, asJSON bool) error {
	w := cmd.OutOrStdout()
	results, err := s.Ingest.IngestFiles(ctx, paths)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	out := make([]ingestOutput, len(results))
	failed := 0
	for i, r := range results {
		out[i] = ingestOutput{
			Filename:         r.Filename,
			Pages:            r.Pages,
			Chunks:           r.Chunks,
			Indexed:          r.Indexed,
			FailedEmbeddings: r.FailedEmbeddings,
		}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			failed++
		}
	}

	if asJSON {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		fmt.Fprintln(w, string(data))
	} else {
		for _, o := range out {
			if o.Error != "" {
				fmt.Fprintf(w, "  %s: error: %s\n", o.Filename, o.Error)
				continue
			}
			fmt.Fprintf(w, "  %s: %d pages, %d chunks, %d indexed", o.Filename, o.Pages, o.Chunks, o.Indexed)
			if o.FailedEmbeddings > 0 {
				fmt.Fprintf(w, ", %d failed embeddings", o.FailedEmbeddings)
			}
			fmt.Fprintln(w)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}
