package credprovider

import "context"

// hydrate fills in scopes and expiry on a freshly loaded record by calling
// the identity service's introspection endpoint, when either is missing.
// It never re-hydrates a record that already carries both: this is the
// one pass that runs as part of the initial load, before the Credential
// Cell first settles.
func hydrate(ctx context.Context, identity IdentityService, creds Credentials) (Credentials, error) {
	if creds.Scopes != nil && creds.ExpiryDate != nil {
		return creds, nil
	}
	if !creds.Loadable() {
		return creds, newFatalError("hydrate", "loaded credentials are missing clientId or accessToken", nil)
	}

	info, err := identity.GetTokenInfo(ctx, creds.AccessToken, creds.ClientID)
	if err != nil {
		return Credentials{}, newUpstreamError("hydrate", "calling getTokenInfo", err)
	}

	out := creds.Clone()
	if out.Scopes == nil {
		if info.Scopes == nil {
			return Credentials{}, newFatalError("hydrate", "failed to hydrate missing data", nil)
		}
		out.Scopes = info.Scopes
	}
	if out.ExpiryDate == nil {
		// A missing expiry from the identity service means "permanent or
		// unknown validity" — represented the same way, nil, and it never
		// triggers automatic refresh on time grounds (P5).
		out.ExpiryDate = info.ExpiryDate
	}
	if !out.Loadable() {
		return Credentials{}, newFatalError("hydrate", "failed to hydrate missing data", nil)
	}
	return out, nil
}
