package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"correction-workflow/internal/domain"
	"correction-workflow/internal/workflow"
)

// actorOptions holds the flags shared by document commands.
type actorOptions struct {
	actorID    string
	outputJSON bool
}

func (o *actorOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.actorID, "as", "", "User id the command runs as (required)")
	cmd.Flags().BoolVar(&o.outputJSON, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("as")
}

func (a *App) newActionsCmd() *cobra.Command {
	opts := &actorOptions{}

	cmd := &cobra.Command{
		Use:   "actions <document-id>",
		Short: "List the actions a user may take on a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e Engine) error {
				actions, err := e.PossibleActions(cmd.Context(), args[0], opts.actorID)
				if err != nil {
					return err
				}
				if opts.outputJSON {
					return a.printJSON(actions)
				}
				if len(actions) == 0 {
					fmt.Fprintln(a.stdout, "no actions available")
					return nil
				}
				for _, act := range actions {
					fmt.Fprintln(a.stdout, act.Name)
				}
				return nil
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

// applyOptions holds options for the apply command.
type applyOptions struct {
	actorOptions
	action  string
	comment string
}

func (a *App) newApplyCmd() *cobra.Command {
	opts := &applyOptions{}

	cmd := &cobra.Command{
		Use:   "apply <document-id>",
		Short: "Apply an action to a document",
		Long: `Apply an approval action to a single document.

Examples:
  approvalctl apply exp-1 --as hod-a --action approve
  approvalctl apply exp-1 --as fin --action reject --comment "missing receipt"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e Engine) error {
				return a.apply(cmd.Context(), e, args[0], opts)
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.action, "action", "", "Action name (required)")
	cmd.Flags().StringVar(&opts.comment, "comment", "", "Comment stored with the action")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func (a *App) apply(ctx context.Context, e Engine, documentID string, opts *applyOptions) error {
	res, err := e.Apply(ctx, workflow.ApplyRequest{
		DocumentID: documentID,
		Action:     opts.action,
		ActorID:    opts.actorID,
		Comment:    opts.comment,
	})
	if err != nil {
		return err
	}
	if opts.outputJSON {
		return a.printJSON(res)
	}
	a.printResult(res)
	return nil
}

func (a *App) printResult(res domain.Result) {
	switch res.Outcome {
	case domain.OutcomeWaiting:
		fmt.Fprintf(a.stdout, "%s: waiting at stage %d (%d/%d approvals)\n", res.DocumentID, res.Stage, res.Satisfied, res.Required)
	default:
		fmt.Fprintf(a.stdout, "%s: %s, now %s\n", res.DocumentID, strings.ToLower(string(res.Outcome)), res.State)
	}
}

func (a *App) newBulkCmd() *cobra.Command {
	opts := &applyOptions{}

	cmd := &cobra.Command{
		Use:   "bulk <document-id>...",
		Short: "Apply one action to many documents",
		Long: `Apply one action to each listed document in turn. Documents the user
may not act on are reported as skipped and do not stop the batch.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e Engine) error {
				res, err := e.ApplyBulk(cmd.Context(), workflow.BulkRequest{
					DocumentIDs: args,
					Action:      opts.action,
					ActorID:     opts.actorID,
					Comment:     opts.comment,
				})
				if err != nil {
					return err
				}
				if opts.outputJSON {
					return a.printJSON(res)
				}
				for _, item := range res.Items {
					if item.Result != nil {
						a.printResult(*item.Result)
						continue
					}
					fmt.Fprintf(a.stdout, "%s: failed: %s\n", item.DocumentID, item.Error)
				}
				for _, skip := range res.Skipped {
					fmt.Fprintf(a.stdout, "%s: skipped: %s\n", skip.DocumentID, skip.Reason)
				}
				return nil
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.action, "action", "", "Action name (required)")
	cmd.Flags().StringVar(&opts.comment, "comment", "", "Comment stored with each action")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func (a *App) newResubmitCmd() *cobra.Command {
	opts := &actorOptions{}

	cmd := &cobra.Command{
		Use:   "resubmit <document-id>",
		Short: "Send a document in revision back to the first stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e Engine) error {
				doc, err := e.Resubmit(cmd.Context(), args[0], opts.actorID)
				if err != nil {
					return err
				}
				if opts.outputJSON {
					return a.printJSON(doc)
				}
				fmt.Fprintf(a.stdout, "%s: resubmitted, now %s at stage %d\n", doc.ID, doc.State, doc.CurrentStage)
				return nil
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

func (a *App) newHistoryCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "history <document-id>",
		Short: "Show the approval history of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e Engine) error {
				items, err := e.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if outputJSON {
					return a.printJSON(items)
				}
				for _, rec := range items {
					fmt.Fprintf(a.stdout, "stage %d\t%s\t%s\n", rec.Stage, rec.UserID, rec.ActionType)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output as JSON")
	return cmd
}
