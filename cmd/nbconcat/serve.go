package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nbconcat/internal/journal"
	"nbconcat/internal/lsp"
	"nbconcat/internal/trace"
)

// backendGrace is how long the backend may take to exit after its input closes.
const backendGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve [-- backend-command...]",
	Short: "Proxy a language server over stdio, folding notebook cells into one document",
	Long: `serve starts the backend language server and sits between it and the editor.
The backend command comes from the arguments after -- or from [backend].command
in nbconcat.toml.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	serveCmd.Flags().String("journal", "", "append cell events to this file for later replay")
}

func runServe(cmd *cobra.Command, args []string) error {
	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	command := cfg.Backend.Command
	if len(args) > 0 {
		command = args
	}
	if len(command) == 0 {
		return errors.New("no backend command: pass one after -- or set [backend].command")
	}
	journalPath, err := cmd.Flags().GetString("journal")
	if err != nil {
		return fmt.Errorf("failed to get journal flag: %w", err)
	}
	if journalPath == "" {
		journalPath = cfg.Journal.Path
	}

	cleanup, err := setupTracing(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	tracer := trace.FromContext(cmd.Context())

	nbOpts, err := cfg.NotebookOptions(tracer)
	if err != nil {
		return err
	}
	opts := lsp.ServerOptions{
		Notebook: nbOpts,
		Tracer:   tracer,
		Log:      cmd.ErrOrStderr(),
	}
	if journalPath != "" {
		w, err := journal.Create(journalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer func() {
			if err := w.Close(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "journal: close error: %v\n", err)
			}
		}()
		opts.Recorder = w
	}

	// #nosec G204 -- the backend command is chosen by the user
	backend := exec.Command(command[0], command[1:]...)
	backend.Stderr = cmd.ErrOrStderr()
	backendIn, err := backend.StdinPipe()
	if err != nil {
		return err
	}
	backendOut, err := backend.StdoutPipe()
	if err != nil {
		return err
	}
	if err := backend.Start(); err != nil {
		return fmt.Errorf("failed to start backend %q: %w", command[0], err)
	}

	server := lsp.NewServer(os.Stdin, os.Stdout, backendIn, opts)
	heartbeat, err := startHeartbeat(cmd, server.Status)
	if err != nil {
		return err
	}
	defer heartbeat.Stop()
	err = serve(cmd, server, backend, backendIn, backendOut)
	if errors.Is(err, lsp.ErrExit) {
		return nil
	}
	if errors.Is(err, lsp.ErrExitWithoutShutdown) {
		return fmt.Errorf("lsp exit without shutdown")
	}
	return err
}

// serve runs both directions of the proxy and reaps the backend. The host
// loop ending closes the backend's input; a backend that outlives the grace
// period is killed.
func serve(cmd *cobra.Command, server *lsp.Server, backend *exec.Cmd, backendIn io.Closer, backendOut io.Reader) error {
	g, ctx := errgroup.WithContext(cmd.Context())
	var killer *time.Timer
	g.Go(func() error {
		err := server.Run(ctx)
		if closeErr := backendIn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		killer = time.AfterFunc(backendGrace, func() {
			_ = backend.Process.Kill()
		})
		return err
	})
	g.Go(func() error {
		return server.RunBackend(ctx, backendOut)
	})
	err := g.Wait()
	if killer != nil {
		killer.Stop()
	}
	if waitErr := backend.Wait(); waitErr != nil && err == nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) || exitErr.ExitCode() != 0 {
			err = fmt.Errorf("backend: %w", waitErr)
		}
	}
	return err
}
