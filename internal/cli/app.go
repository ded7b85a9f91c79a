// Package cli provides the operator command line for the approval engine.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"correction-workflow/internal/domain"
	"correction-workflow/internal/workflow"
)

// Engine is the part of the workflow engine the CLI drives.
type Engine interface {
	Apply(ctx context.Context, req workflow.ApplyRequest) (domain.Result, error)
	ApplyBulk(ctx context.Context, req workflow.BulkRequest) (workflow.BulkResult, error)
	PossibleActions(ctx context.Context, documentID, actorID string) ([]domain.Action, error)
	Resubmit(ctx context.Context, documentID, actorID string) (domain.Document, error)
	History(ctx context.Context, documentID string) ([]domain.HistoryRecord, error)
}

// Opener connects to the backing store and returns an engine plus a
// release func. It is called once per command that needs the engine.
type Opener func(ctx context.Context) (Engine, func(), error)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	open   Opener
	stdout io.Writer
	stderr io.Writer
}

// New creates the CLI. open is only invoked by commands that touch documents.
func New(open Opener) *App {
	app := &App{
		open:   open,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "approvalctl",
		Short: "Operate the correction request approval workflow",
		Long: `approvalctl applies approval actions to correction requests from the
command line, using the same engine and database as the HTTP API.

Every document command runs as the user given with --as.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	app.root.AddCommand(
		app.newActionsCmd(),
		app.newApplyCmd(),
		app.newBulkCmd(),
		app.newResubmitCmd(),
		app.newHistoryCmd(),
		app.newRolesCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// withEngine opens the engine, runs fn and releases the connection.
func (a *App) withEngine(ctx context.Context, fn func(Engine) error) error {
	if a.open == nil {
		return errors.New("no engine configured")
	}
	engine, release, err := a.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	if release != nil {
		defer release()
	}
	return fn(engine)
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
