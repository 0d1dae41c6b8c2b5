package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ragqa/internal/app"
	"ragqa/internal/domain"
)

var (
	askText string
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from the documents",
	Long: `Index the documents directory, retrieve the passages most relevant to the
question and ask the generation model to answer from them.

Examples:
  ragqa ask -q "What color is the sky?"
  ragqa ask -q "Who wrote the report?" --json`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askText, "query", "q", "", "question to answer (required)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the structured result as JSON")
	askCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Build(ctx, GetConfig(), GetRootDir(), log)
	if err != nil {
		return err
	}
	defer a.Close()

	// an empty corpus is reported by the query result itself
	var ec *domain.EmptyCorpusError
	if _, err := a.QA.Rebuild(ctx, nil); err != nil && !errors.As(err, &ec) {
		return fmt.Errorf("indexing failed: %w", err)
	}

	result := a.QA.Ask(ctx, askText)

	if askJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Status == domain.StatusError {
		fmt.Fprintln(os.Stderr, result.Message)
		return nil
	}
	fmt.Println(result.Answer)
	return nil
}
