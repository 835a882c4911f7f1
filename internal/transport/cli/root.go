// Package cli is the ragctl command line: ingest files, ask questions and
// manage the vector index without running the HTTP server.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	answeruc "github.com/kailas-cloud/ragdesk/internal/usecase/answer"
	ingestuc "github.com/kailas-cloud/ragdesk/internal/usecase/ingest"
)

type ingester interface {
	IngestFiles(ctx context.Context, paths []string) ([]ingestuc.FileResult, error)
}

type answerer interface {
	Answer(ctx context.Context, question string) (domain.Answer, error)
	Stream(ctx context.Context, question string, emit answeruc.Emit) error
}

type indexInfo interface {
	Name() string
	Dimension() int
}

// Services are the pipeline parts the commands drive.
type Services struct {
	Ingest ingester
	Answer answerer
	Index  indexInfo
}

// Opener builds the services for one command run. The returned func releases them.
type Opener func(ctx context.Context) (*Services, func(), error)

// NewRootCommand creates the ragctl command tree.
func NewRootCommand(open Opener, version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Ingest documents and ask questions against the ragdesk index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newIngestCmd(open),
		newAskCmd(open),
		newIndexCmd(open),
		newVersionCmd(version),
	)
	return root
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ragctl version %s\n", version)
		},
	}
}

// withServices opens the services, runs fn and releases them.
func withServices(cmd *cobra.Command, open Opener, fn func(ctx context.Context, s *Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, svc)
}
