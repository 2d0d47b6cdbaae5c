// Package reset implements the reset command, which deletes every stored
// question and author.
package reset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/north-cloud/so-ingestor/cmd/common"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

const confirmationWord = "YES"

// Confirm prompts on out and reads one line from in. Only the exact word YES confirms.
func Confirm(in io.Reader, out io.Writer) bool {
	color.New(color.FgRed, color.Bold).Fprint(out, "This deletes every stored question and author. ")
	fmt.Fprintf(out, "Type %s to continue: ", confirmationWord)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == confirmationWord
}

// Result counts the deleted rows.
type Result struct {
	Questions int64
	Authors   int64
}

// Reset deletes every question, then every author.
func Reset(ctx context.Context, st store.Store, log logger.Logger) (Result, error) {
	var res Result

	questions, err := st.DeleteAllQuestions(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to delete questions: %w", err)
	}
	res.Questions = questions

	authors, err := st.DeleteAllAuthors(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to delete authors: %w", err)
	}
	res.Authors = authors

	log.Info("Store reset",
		logger.Int64("questions_deleted", res.Questions),
		logger.Int64("authors_deleted", res.Authors),
	)
	return res, nil
}

// Command returns the reset command for use in the root command.
func Command() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored question and author",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !Confirm(cmd.InOrStdin(), cmd.OutOrStdout()) {
				return cmdcommon.ErrNotConfirmed
			}

			deps, err := cmdcommon.NewCommandDeps(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer func() { _ = deps.Logger.Sync() }()

			st, err := cmdcommon.OpenStore(cmd.Context(), deps.Config.Store)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			res, err := Reset(cmd.Context(), st, deps.Logger)
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(),
				"deleted %d questions and %d authors\n", res.Questions, res.Authors)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}
