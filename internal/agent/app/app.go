// Package app wires the medh-passkey agent: a headless passkey holder that
// signs in to the Medh platform from the terminal using a software
// authenticator.
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/medhcloud/passkey/internal/agent/store/sqlite"
	"github.com/medhcloud/passkey/pkg/authenticator"
	"github.com/medhcloud/passkey/pkg/passkeysdk"
	"github.com/medhcloud/passkey/pkg/sessionstore"
	"github.com/medhcloud/passkey/pkg/slogx"
)

const BuildVersion = "v0.1.0"

// Application holds the agent's wired dependencies for one invocation.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store sessionstore.Store
	token *authenticator.SoftToken

	client       *passkeysdk.Client
	orchestrator *passkeysdk.Orchestrator
	inventory    *passkeysdk.Inventory
	materializer *sessionstore.Materializer

	stdin  io.Reader
	stdout io.Writer

	readerOnce sync.Once
	lines      chan string

	closers []func() error
}

// New creates an Application from config: the session store is opened, the
// software authenticator's credentials are loaded, and the SDK is wired on
// top.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "medh-passkey",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}
	if err := app.initAuthenticator(); err != nil {
		return nil, err
	}
	app.initSDK()

	return app, nil
}

func (app *Application) initStore() error {
	if err := os.MkdirAll(app.cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("app: create state dir: %w", err)
	}

	switch app.cfg.StoreBackend {
	case "memory":
		app.store = sessionstore.NewMemStore()
	case "sqlite":
		s, err := sqlite.NewStore(filepath.Join(app.cfg.StateDir, "agent.db"))
		if err != nil {
			return err
		}
		app.store = s
		app.closers = append(app.closers, s.Close)
	case "file", "":
		s, err := sessionstore.OpenFileStore(
			filepath.Join(app.cfg.StateDir, "state.bin"),
			app.cfg.StorePassphrase,
		)
		if err != nil {
			return err
		}
		app.store = s
	default:
		return fmt.Errorf("app: unknown store backend %q", app.cfg.StoreBackend)
	}
	return nil
}

func (app *Application) initAuthenticator() error {
	var prompt authenticator.PromptFunc
	if !app.cfg.AutoApprove {
		prompt = app.gesturePrompt
	}

	token, err := authenticator.NewSoftToken(authenticator.SoftTokenConfig{
		Origin: app.cfg.Origin,
		Prompt: prompt,
	})
	if err != nil {
		return err
	}

	state, err := app.store.Get(sessionstore.KeyAuthenticatorState)
	switch {
	case err == nil:
		if err := token.ImportState(state); err != nil {
			return fmt.Errorf("app: load authenticator state: %w", err)
		}
	case err != sessionstore.ErrNotFound:
		return fmt.Errorf("app: read authenticator state: %w", err)
	}

	app.token = token
	return nil
}

func (app *Application) initSDK() {
	app.client = passkeysdk.NewClient(app.cfg.APIBaseURL)
	app.materializer = sessionstore.NewMaterializer(app.store)
	app.client.AuthToken = func() string {
		session, err := app.materializer.Current()
		if err != nil {
			return ""
		}
		return session.AccessToken
	}

	app.orchestrator = passkeysdk.NewOrchestrator(app.client, app.token)
	app.orchestrator.OnStateChange = func(s passkeysdk.State) {
		app.logger.Debug("ceremony_state", "state", string(s))
	}
	app.inventory = passkeysdk.NewInventory(app.client)
}

// Run dispatches a single agent command and releases resources.
func (app *Application) Run(ctx context.Context, args []string) error {
	defer func() {
		for _, close := range app.closers {
			if err := close(); err != nil {
				app.logger.Warn("close_failed", "error", err)
			}
		}
	}()

	ctx = slogx.WithContext(ctx, app.logger)

	if len(args) == 0 {
		app.printUsage()
		return fmt.Errorf("app: no command given")
	}

	switch args[0] {
	case "register":
		return app.cmdRegister(ctx, rest(args))
	case "login":
		return app.cmdLogin(ctx, rest(args))
	case "login-conditional":
		return app.cmdLoginConditional(ctx, rest(args))
	case "passkeys":
		return app.cmdPasskeys(ctx, rest(args))
	case "whoami":
		return app.cmdWhoami(ctx)
	case "logout":
		return app.cmdLogout(ctx)
	case "version":
		fmt.Fprintln(app.stdout, "medh-passkey", BuildVersion)
		return nil
	default:
		app.printUsage()
		return fmt.Errorf("app: unknown command %q", args[0])
	}
}

// saveAuthenticatorState persists the soft token's credentials after a
// ceremony may have changed them.
func (app *Application) saveAuthenticatorState() error {
	state, err := app.token.ExportState()
	if err != nil {
		return fmt.Errorf("app: export authenticator state: %w", err)
	}
	if err := app.store.Set(sessionstore.KeyAuthenticatorState, state); err != nil {
		return fmt.Errorf("app: persist authenticator state: %w", err)
	}
	return nil
}

// gesturePrompt is the agent's stand-in for the platform gesture: a y/N
// question on the terminal.
func (app *Application) gesturePrompt(ctx context.Context, kind authenticator.PromptKind, rpID string) error {
	fmt.Fprintf(app.stdout, "Approve %s for %s? [y/N]: ", kind, rpID)

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case line, ok := <-app.promptLines():
		if !ok {
			// stdin is gone, nothing can be approved any more.
			return authenticator.ErrCancelled
		}
		if line == "y" || line == "yes" {
			return nil
		}
		return authenticator.ErrCancelled
	}
}

// promptLines lazily starts the single stdin reader behind every gesture
// prompt. One goroutine reads for the life of the process, so a prompt
// abandoned on cancellation leaves no extra reader behind; an answer typed
// too late goes to the next prompt instead.
func (app *Application) promptLines() <-chan string {
	app.readerOnce.Do(func() {
		app.lines = make(chan string)
		go func() {
			reader := bufio.NewReader(app.stdin)
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					if line != "" {
						app.lines <- strings.ToLower(strings.TrimSpace(line))
					}
					close(app.lines)
					return
				}
				// A bare newline still counts as an answer (the N default).
				app.lines <- strings.ToLower(strings.TrimSpace(line))
			}
		}()
	})
	return app.lines
}

func (app *Application) printUsage() {
	fmt.Fprintln(app.stdout, `Usage: medh-passkey <command>

Commands:
  register [label]             Register a passkey for the signed-in account
  login [identifier]           Sign in with a passkey
  login-conditional [id]       Sign in via conditional mediation
  passkeys list                List registered passkeys
  passkeys rename <id> <name>  Rename a passkey
  passkeys revoke <id>         Revoke a passkey
  whoami                       Show the current session
  logout                       Clear the local session
  version                      Print the agent version`)
}

func rest(args []string) []string {
	if len(args) <= 1 {
		return nil
	}
	return args[1:]
}
