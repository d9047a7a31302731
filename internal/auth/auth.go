// Package auth provides Back Market API authentication using Basic tokens.
package auth

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Credentials holds the Basic token issued in the Back Market seller portal.
// The token is the base64 encoding of "client_id:secret".
type Credentials struct {
	ClientID string // Decoded client id (for logging, never the secret)
	token    string
}

// NewCredentials builds credentials from a client id and secret.
func NewCredentials(clientID, secret string) (*Credentials, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if secret == "" {
		return nil, fmt.Errorf("secret is required")
	}
	token := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + secret))
	return &Credentials{ClientID: clientID, token: token}, nil
}

// FromToken parses an already encoded Basic token.
func FromToken(token string) (*Credentials, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("API token is required")
	}

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}

	clientID, secret, ok := strings.Cut(string(decoded), ":")
	if !ok || clientID == "" || secret == "" {
		return nil, fmt.Errorf("token must encode client_id:secret")
	}

	return &Credentials{ClientID: clientID, token: token}, nil
}

// LoadToken reads a token from a file (e.g. a mounted secret).
func LoadToken(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	return FromToken(string(data))
}

// Token returns the encoded token.
func (c *Credentials) Token() string {
	return c.token
}

// Headers returns the authentication headers for an API request.
func (c *Credentials) Headers() map[string]string {
	return map[string]string{
		"Authorization": "Basic " + c.token,
	}
}

// SignRequest adds authentication headers to req.
func (c *Credentials) SignRequest(req *http.Request) {
	for k, v := range c.Headers() {
		req.Header.Set(k, v)
	}
}

// String redacts the secret.
func (c *Credentials) String() string {
	return "Basic(" + c.ClientID + ":***)"
}
