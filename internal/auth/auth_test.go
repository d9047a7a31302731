package auth

import (
	"encoding/base64"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewCredentials(t *testing.T) {
	creds, err := NewCredentials("a06bf54a", "BMT-secret")
	if err != nil {
		t.Fatalf("NewCredentials failed: %v", err)
	}

	want := base64.StdEncoding.EncodeToString([]byte("a06bf54a:BMT-secret"))
	if creds.Token() != want {
		t.Errorf("Token() = %q, want %q", creds.Token(), want)
	}
	if creds.ClientID != "a06bf54a" {
		t.Errorf("ClientID = %q, want %q", creds.ClientID, "a06bf54a")
	}

	if _, err := NewCredentials("", "x"); err == nil {
		t.Error("expected error for empty client id")
	}
	if _, err := NewCredentials("x", ""); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestFromToken(t *testing.T) {
	valid := base64.StdEncoding.EncodeToString([]byte("client:secret"))

	tests := []struct {
		name    string
		token   string
		wantErr string
	}{
		{name: "valid", token: valid},
		{name: "valid with whitespace", token: "  " + valid + "\n"},
		{name: "empty", token: "", wantErr: "API token is required"},
		{name: "not base64", token: "%%%", wantErr: "decode token"},
		{name: "missing separator", token: base64.StdEncoding.EncodeToString([]byte("nocolon")), wantErr: "token must encode client_id:secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := FromToken(tt.token)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("FromToken() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromToken() unexpected error: %v", err)
			}
			if creds.ClientID != "client" {
				t.Errorf("ClientID = %q, want %q", creds.ClientID, "client")
			}
			if creds.Token() != valid {
				t.Errorf("Token() = %q, want %q", creds.Token(), valid)
			}
		})
	}
}

func TestLoadToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	token := base64.StdEncoding.EncodeToString([]byte("id:secret"))
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		t.Fatalf("write token: %v", err)
	}

	creds, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if creds.ClientID != "id" {
		t.Errorf("ClientID = %q, want %q", creds.ClientID, "id")
	}

	if _, err := LoadToken(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCredentials_SignRequest(t *testing.T) {
	creds, _ := NewCredentials("id", "secret")
	req, _ := http.NewRequest(http.MethodGet, "https://example.com/ws/listings", nil)

	creds.SignRequest(req)

	want := "Basic " + creds.Token()
	if got := req.Header.Get("Authorization"); got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
}

func TestCredentials_StringRedacts(t *testing.T) {
	creds, _ := NewCredentials("id", "super-secret")
	if s := creds.String(); strings.Contains(s, "super-secret") {
		t.Errorf("String() = %q leaks the secret", s)
	}
}
