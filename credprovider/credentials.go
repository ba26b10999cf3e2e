package credprovider

import "time"

// Credentials is the canonical Twitch credential record. Instances are
// treated as immutable once constructed; callers may share references
// freely.
type Credentials struct {
	ClientID     string
	AccessToken  string
	ClientSecret string
	RefreshToken string
	Scopes       []string

	// ExpiryDate is nil when the token never expires or the identity
	// service did not report an expiry. A nil ExpiryDate means "never
	// auto-refresh on time grounds" (P5).
	ExpiryDate *time.Time
	ExpiresIn  time.Duration
	Timestamp  time.Time
}

// Clone returns a deep copy so callers cannot mutate a record another
// goroutine is holding.
func (c Credentials) Clone() Credentials {
	out := c
	if c.Scopes != nil {
		out.Scopes = append([]string(nil), c.Scopes...)
	}
	if c.ExpiryDate != nil {
		t := *c.ExpiryDate
		out.ExpiryDate = &t
	}
	return out
}

// Loadable reports whether c satisfies the minimum shape an external store
// must supply: a non-empty client ID and access token.
func (c Credentials) Loadable() bool {
	return c.ClientID != "" && c.AccessToken != ""
}

// Refreshable reports whether c carries what's needed to drive a refresh:
// Loadable plus a client secret and refresh token.
func (c Credentials) Refreshable() bool {
	return c.Loadable() && c.ClientSecret != "" && c.RefreshToken != ""
}

// WithExpiry returns a copy of c with ExpiryDate set to timestamp+expiresIn.
func (c Credentials) WithExpiry(timestamp time.Time, expiresIn time.Duration) Credentials {
	out := c.Clone()
	expiry := timestamp.Add(expiresIn)
	out.ExpiryDate = &expiry
	out.ExpiresIn = expiresIn
	out.Timestamp = timestamp
	return out
}
