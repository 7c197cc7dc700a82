package app

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/medhcloud/passkey/pkg/passkeysdk"
)

// completeStepUp answers the server's additional-verification demand with a
// TOTP code, either generated from a configured secret or typed in.
func (app *Application) completeStepUp(ctx context.Context, result *passkeysdk.AuthResult) (*passkeysdk.AuthResult, error) {
	if !slices.Contains(result.VerificationMethods, "totp") {
		return nil, fmt.Errorf("app: server requires verification via %v, agent only supports totp",
			result.VerificationMethods)
	}

	code, err := app.totpCode()
	if err != nil {
		return nil, err
	}

	verified, err := app.orchestrator.CompleteStepUp(ctx, result.VerificationToken, "totp", code)
	if err != nil {
		return nil, err
	}
	return verified, nil
}

func (app *Application) totpCode() (string, error) {
	if app.cfg.TOTPSecret != "" {
		code, err := totp.GenerateCode(app.cfg.TOTPSecret, time.Now())
		if err != nil {
			return "", fmt.Errorf("app: generate TOTP code: %w", err)
		}
		return code, nil
	}

	fmt.Fprint(app.stdout, "Enter verification code: ")
	code, ok := <-app.promptLines()
	if !ok {
		return "", fmt.Errorf("app: read verification code: stdin closed")
	}
	return code, nil
}
