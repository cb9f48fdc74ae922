package gmail

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2"
)

// storedToken is the authorized-user file layout written by Google's
// installed-app OAuth flow, so an existing token.json keeps working.
type storedToken struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	TokenURI     string    `json:"token_uri,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	ClientSecret string    `json:"client_secret,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// TokenFile persists the OAuth token of the mailbox owner
type TokenFile struct {
	path string
	mu   sync.Mutex
}

func NewTokenFile(path string) *TokenFile {
	return &TokenFile{path: path}
}

// Load returns the stored token plus the client id and secret saved with it
func (f *TokenFile) Load() (*oauth2.Token, storedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, storedToken{}, errors.Wrapf(err, "read token file %s", f.path)
	}
	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, storedToken{}, errors.Wrapf(err, "parse token file %s", f.path)
	}
	if st.Token == "" && st.RefreshToken == "" {
		return nil, storedToken{}, errors.Newf("token file %s has no tokens", f.path)
	}
	return &oauth2.Token{
		AccessToken:  st.Token,
		RefreshToken: st.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       st.Expiry,
	}, st, nil
}

// Save writes a refreshed token back, keeping the other stored fields
func (f *TokenFile) Save(t *oauth2.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var st storedToken
	if data, err := os.ReadFile(f.path); err == nil {
		_ = json.Unmarshal(data, &st)
	}
	st.Token = t.AccessToken
	if t.RefreshToken != "" {
		st.RefreshToken = t.RefreshToken
	}
	st.Expiry = t.Expiry.UTC()

	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "encode token")
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp token file")
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "write token")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "close token file")
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "chmod token file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), f.path), "replace token file")
}
