package commands

import (
	"strconv"

	"dailyfeed/internal/di"
	contextutils "dailyfeed/internal/utils"

	"github.com/spf13/cobra"
)

// QuestionCommands returns the answer maintenance commands
func QuestionCommands(open ContainerOpener) *cobra.Command {
	questionsCmd := &cobra.Command{
		Use:   "questions",
		Short: "Answer maintenance for individual questions",
	}

	questionsCmd.AddCommand(&cobra.Command{
		Use:   "stale <question-id>",
		Short: "Mark a question's answer for regeneration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			questionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), open, func(sc *di.ServiceContainer) error {
				generator, err := sc.GetAnswerGenerator()
				if err != nil {
					return err
				}
				marked, err := generator.MarkAsStale(cmd.Context(), questionID)
				if err != nil {
					return err
				}
				return printResult(cmd, map[string]interface{}{"question_id": questionID, "marked": marked})
			})
		},
	})

	questionsCmd.AddCommand(&cobra.Command{
		Use:   "generate <question-id>",
		Short: "Generate the answer for one question now unless a fresh one exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			questionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), open, func(sc *di.ServiceContainer) error {
				generator, err := sc.GetAnswerGenerator()
				if err != nil {
					return err
				}
				answer, err := generator.GenerateForQuestion(cmd.Context(), questionID)
				if err != nil {
					return err
				}
				return printResult(cmd, answer)
			})
		},
	})

	return questionsCmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "%q is not a valid id", raw)
	}
	return id, nil
}
