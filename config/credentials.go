package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// CredentialsEnv holds the credentials JSON in CI environments.
const CredentialsEnv = "CREDENTIALS_JSON"

// ErrNoCredentials is returned when neither source yields credentials.
var ErrNoCredentials = errors.New("no valid credentials found in env or local file")

// Credentials authorize the OAuth refresh-token grant.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

func (c Credentials) complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// ResolvedCredentials records where credentials came from and which sources
// were skipped.
type ResolvedCredentials struct {
	Credentials
	Source   string
	Warnings []string
}

// ResolveCredentials tries the CREDENTIALS_JSON variable, then the JSON file
// at path. A malformed source is reported as a warning and the next one is
// tried.
func ResolveCredentials(lookupEnv func(string) (string, bool), path string) (*ResolvedCredentials, error) {
	res := &ResolvedCredentials{}

	if raw, ok := lookupEnv(CredentialsEnv); ok && strings.TrimSpace(raw) != "" {
		creds, err := parseCredentials([]byte(raw))
		if err == nil {
			res.Credentials = creds
			res.Source = "env:" + CredentialsEnv
			return res, nil
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("parse %s env var: %v", CredentialsEnv, err))
	}

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			creds, perr := parseCredentials(data)
			if perr == nil {
				res.Credentials = creds
				res.Source = "file:" + path
				return res, nil
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("read local credentials file %s: %v", path, perr))
		case !errors.Is(err, os.ErrNotExist):
			res.Warnings = append(res.Warnings, fmt.Sprintf("read local credentials file %s: %v", path, err))
		}
	}

	if len(res.Warnings) > 0 {
		return nil, fmt.Errorf("%w (%s)", ErrNoCredentials, strings.Join(res.Warnings, "; "))
	}
	return nil, ErrNoCredentials
}

func parseCredentials(data []byte) (Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}, err
	}
	if !c.complete() {
		return Credentials{}, fmt.Errorf("client_id, client_secret and refresh_token are required")
	}
	return c, nil
}
