package domain

// Identity is the profile returned by the identity provider. It is replaced
// wholesale on every successful authentication.
type Identity struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Picture    string `json:"picture"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

// TokenSet holds the OAuth2 tokens returned by a code exchange or a refresh.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token,omitempty"`
}

// Merge applies a refresh response on top of the current token set. An empty
// refresh token in next never discards the one already held.
func (t TokenSet) Merge(next TokenSet) TokenSet {
	merged := next
	if merged.RefreshToken == "" {
		merged.RefreshToken = t.RefreshToken
	}
	if merged.IDToken == "" {
		merged.IDToken = t.IDToken
	}
	if merged.TokenType == "" {
		merged.TokenType = t.TokenType
	}
	if merged.Scope == "" {
		merged.Scope = t.Scope
	}
	return merged
}

// Session is the application's notion of who is currently using it.
type Session struct {
	Provider string    `json:"provider,omitempty"`
	Identity *Identity `json:"identity"`
	Tokens   *TokenSet `json:"tokens"`
}

// Authenticated reports whether an identity is present. It is the only
// authorization gate the marketplace uses.
func (s Session) Authenticated() bool {
	return s.Identity != nil
}

// Profile is the local marketplace user record kept on this device.
type Profile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	Year       string `json:"year,omitempty"`
	Department string `json:"department,omitempty"`
}

// ProfilePatch carries the fields of a partial profile update. Nil fields are
// left unchanged.
type ProfilePatch struct {
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	Avatar     *string `json:"avatar"`
	Year       *string `json:"year"`
	Department *string `json:"department"`
}
