package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/medhcloud/passkey/pkg/cryptox"
	"github.com/medhcloud/passkey/pkg/passkeysdk"
	"github.com/medhcloud/passkey/pkg/sessionstore"
)

func (app *Application) cmdRegister(ctx context.Context, args []string) error {
	label := strings.Join(args, " ")

	result, err := app.orchestrator.Register(ctx, label)
	if err != nil {
		return app.reportCeremonyErr(err)
	}
	if err := app.saveAuthenticatorState(); err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "Passkey %q registered (id %s)\n", result.Passkey.Name, result.Passkey.ID)
	return nil
}

func (app *Application) cmdLogin(ctx context.Context, args []string) error {
	identifier := ""
	if len(args) > 0 {
		identifier = args[0]
	}

	result, err := app.orchestrator.Authenticate(ctx, identifier)
	if err != nil {
		return app.reportCeremonyErr(err)
	}
	return app.completeLogin(ctx, result)
}

func (app *Application) cmdLoginConditional(ctx context.Context, args []string) error {
	identifier := ""
	if len(args) > 0 {
		identifier = args[0]
	}

	handle, err := app.orchestrator.AuthenticateConditional(ctx, identifier)
	if err != nil {
		return app.reportCeremonyErr(err)
	}

	fmt.Fprintln(app.stdout, "Waiting for a passkey...")

	select {
	case <-ctx.Done():
		handle.Cancel()
		out := <-handle.Outcome()
		if out.Err != nil {
			return app.reportCeremonyErr(out.Err)
		}
		return app.completeLogin(ctx, out.Result)
	case out := <-handle.Outcome():
		if out.Err != nil {
			return app.reportCeremonyErr(out.Err)
		}
		return app.completeLogin(ctx, out.Result)
	}
}

// completeLogin drives step-up when the server demands it, then materializes
// the session and persists any authenticator changes (sign counters moved).
func (app *Application) completeLogin(ctx context.Context, result *passkeysdk.AuthResult) error {
	if err := app.saveAuthenticatorState(); err != nil {
		return err
	}

	if result.RequiresAdditionalVerification {
		verified, err := app.completeStepUp(ctx, result)
		if err != nil {
			return err
		}
		result = verified
	}

	session, err := app.materializer.Materialize(result)
	if err != nil {
		return err
	}
	app.logger.Debug("session_materialized",
		"user_id", session.UserID,
		"token_fp", cryptox.FingerprintToken(session.AccessToken),
	)

	fmt.Fprintf(app.stdout, "Signed in as %s (%s)\n", session.Email, session.Role)
	fmt.Fprintf(app.stdout, "Landing path: %s\n", session.LandingPath)
	if result.IsNewDevice {
		fmt.Fprintln(app.stdout, "Note: this device was not seen before.")
	}
	return nil
}

func (app *Application) cmdPasskeys(ctx context.Context, args []string) error {
	if len(args) == 0 {
		app.printUsage()
		return fmt.Errorf("app: passkeys needs a subcommand")
	}

	switch args[0] {
	case "list":
		return app.cmdPasskeysList(ctx)
	case "rename":
		if len(args) < 3 {
			return fmt.Errorf("app: usage: passkeys rename <id> <name>")
		}
		return app.cmdPasskeysRename(ctx, args[1], strings.Join(args[2:], " "))
	case "revoke":
		if len(args) < 2 {
			return fmt.Errorf("app: usage: passkeys revoke <id>")
		}
		return app.cmdPasskeysRevoke(ctx, args[1])
	default:
		return fmt.Errorf("app: unknown passkeys subcommand %q", args[0])
	}
}

func (app *Application) cmdPasskeysList(ctx context.Context) error {
	creds, err := app.inventory.List(ctx)
	if err != nil {
		return app.reportCeremonyErr(err)
	}

	if len(creds) == 0 {
		fmt.Fprintln(app.stdout, "No passkeys registered.")
		return nil
	}

	w := tabwriter.NewWriter(app.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tUSES\tLAST USED\tCREATED")
	for _, c := range creds {
		lastUsed := "never"
		if c.LastUsedAt != nil {
			lastUsed = c.LastUsedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			c.ID, c.Name, c.DeviceType, c.UsageCount, lastUsed, c.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func (app *Application) cmdPasskeysRename(ctx context.Context, id, name string) error {
	renamed, err := app.inventory.Rename(ctx, id, name)
	if err != nil {
		return app.reportCeremonyErr(err)
	}
	fmt.Fprintf(app.stdout, "Passkey %s renamed to %q\n", renamed.ID, renamed.Name)
	return nil
}

func (app *Application) cmdPasskeysRevoke(ctx context.Context, id string) error {
	if err := app.inventory.Revoke(ctx, id); err != nil {
		return app.reportCeremonyErr(err)
	}
	fmt.Fprintf(app.stdout, "Passkey %s revoked\n", id)
	return nil
}

func (app *Application) cmdWhoami(_ context.Context) error {
	session, err := app.materializer.Current()
	if errors.Is(err, sessionstore.ErrNotFound) {
		fmt.Fprintln(app.stdout, "Not signed in.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "User:    %s\n", session.Email)
	fmt.Fprintf(app.stdout, "Role:    %s\n", session.Role)
	fmt.Fprintf(app.stdout, "Landing: %s\n", session.LandingPath)
	if !session.ExpiresAt.IsZero() {
		state := "valid"
		if time.Now().After(session.ExpiresAt) {
			state = "expired"
		}
		fmt.Fprintf(app.stdout, "Token:   %s (until %s)\n", state, session.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func (app *Application) cmdLogout(_ context.Context) error {
	if err := app.materializer.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(app.stdout, "Signed out.")
	return nil
}

// reportCeremonyErr prints a friendly line for expected outcomes and keeps
// the technical detail in the returned error for the exit path.
func (app *Application) reportCeremonyErr(err error) error {
	var ce *passkeysdk.CeremonyError
	if errors.As(err, &ce) && !ce.Alarming() {
		fmt.Fprintln(app.stdout, ce.Message)
		return nil
	}
	if errors.As(err, &ce) {
		fmt.Fprintln(app.stdout, "Error:", ce.Message)
	}
	return err
}
