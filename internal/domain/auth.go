package domain

import "time"

// AuthSession is the short-lived record that links an authorization redirect
// to its callback. It is single use.
type AuthSession struct {
	State         string   `json:"state"`
	Platform      Platform `json:"platform"`
	UserID        string   `json:"userId"`
	CodeVerifier  string   `json:"codeVerifier,omitempty"`
	CodeChallenge string   `json:"codeChallenge,omitempty"`
	RedirectURI   string   `json:"redirectUri"`
	// OAuth1.0a three-legged flow only.
	RequestToken       string `json:"requestToken,omitempty"`
	RequestTokenSecret string `json:"requestTokenSecret,omitempty"`
	CreatedAt          int64  `json:"createdAt"`
}

// PlatformToken is the persisted credential set for one (platform, user) pair.
type PlatformToken struct {
	Platform          Platform   `json:"platform"`
	UserID            string     `json:"userId"`
	AccessToken       string     `json:"accessToken"`
	RefreshToken      string     `json:"refreshToken,omitempty"`
	TokenType         string     `json:"tokenType,omitempty"`
	LegacyToken       string     `json:"legacyToken,omitempty"`
	LegacyTokenSecret string     `json:"legacyTokenSecret,omitempty"`
	PlatformUserID    string     `json:"platformUserId,omitempty"`
	Username          string     `json:"username,omitempty"`
	Scopes            []string   `json:"scopes,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
}

// HasLegacyCredentials reports whether OAuth1.0a user credentials are linked.
func (t *PlatformToken) HasLegacyCredentials() bool {
	return t != nil && t.LegacyToken != "" && t.LegacyTokenSecret != ""
}

// ExpiresWithin reports whether the access token lapses inside d of now.
// Tokens without a known expiry never do.
func (t *PlatformToken) ExpiresWithin(now time.Time, d time.Duration) bool {
	if t == nil || t.ExpiresAt == nil {
		return false
	}
	return t.ExpiresAt.Before(now.Add(d))
}

// Profile is the minimal identity fetched from a platform after a code exchange.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

type AuthStart struct {
	AuthURL     string   `json:"authUrl"`
	State       string   `json:"state"`
	Platform    Platform `json:"platform"`
	RedirectURI string   `json:"redirectUri"`
}

type ConnectionStatus struct {
	Platform  Platform   `json:"platform"`
	Connected bool       `json:"connected"`
	Username  string     `json:"username,omitempty"`
	Legacy    bool       `json:"legacyLinked"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Refreshed bool       `json:"refreshed,omitempty"`
}
