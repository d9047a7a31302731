package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/bm-repricer/internal/config"
)

// BuildConnString builds a postgres:// URL from config. User and password go
// through url.UserPassword so any character survives pgx's URL parsing.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
