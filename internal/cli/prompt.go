package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ragqa/internal/app"
	"ragqa/internal/domain"
)

var promptQuery string

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the prompt a question would send to the model",
	Long: `Index the documents directory, retrieve context for the question and print
the rendered prompt without calling the generation model. Useful for
inspecting retrieval and for manual orchestration.

Examples:
  ragqa prompt -q "What color is the sky?"`,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVarP(&promptQuery, "query", "q", "", "question to build the prompt for (required)")
	promptCmd.MarkFlagRequired("query")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Build(ctx, GetConfig(), GetRootDir(), log)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.QA.Rebuild(ctx, nil); err != nil {
		return fmt.Errorf("%s: %w", domain.MessageFor(err), err)
	}

	prompt, err := a.QA.Prompt(ctx, promptQuery)
	if err != nil {
		return fmt.Errorf("%s: %w", domain.MessageFor(err), err)
	}
	fmt.Println(prompt)
	return nil
}
