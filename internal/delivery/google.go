package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

// ADCTokenProvider mints Google identity tokens from the process's
// Application Default Credentials. Acquisition happens per call: tokens are
// short-lived and never cached.
type ADCTokenProvider struct{}

// IdentityToken resolves the ambient credential, verifies it can mint
// identity tokens and returns a bearer token scoped to audience.
func (ADCTokenProvider) IdentityToken(ctx context.Context, audience string) (string, error) {
	creds, err := google.FindDefaultCredentials(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}

	var opts []option.ClientOption
	if len(creds.JSON) > 0 {
		// File-based credentials only support identity tokens when they
		// belong to a service account; user credentials do not.
		var meta struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(creds.JSON, &meta); err != nil {
			return "", fmt.Errorf("%w: unreadable credential file: %v", ErrUnsupportedCredential, err)
		}
		if meta.Type != "service_account" {
			return "", fmt.Errorf("%w: credential type %q", ErrUnsupportedCredential, meta.Type)
		}
		opts = append(opts, option.WithCredentialsJSON(creds.JSON))
	}

	ts, err := idtoken.NewTokenSource(ctx, audience, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedCredential, err)
	}

	tok, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("delivery: mint identity token: %w", err)
	}
	return tok.AccessToken, nil
}
