package config

import (
	"net/url"
	"os"
)

// ValueSource represents where a sensitive setting comes from.
type ValueSource string

const (
	SourceEnv    ValueSource = "env"
	SourceConfig ValueSource = "config"
	SourceNone   ValueSource = "none"
)

// SecretStatus describes a sensitive setting without revealing it.
type SecretStatus struct {
	Name   string      `json:"name"`
	Source ValueSource `json:"source"`
	IsSet  bool        `json:"is_set"`
	Masked string      `json:"masked,omitempty"`
}

// CheckSecrets returns the status of sensitive settings for display.
func CheckSecrets(cfg *Config) []SecretStatus {
	dsnEnv := EnvPrefix + "_STORAGE_DSN"
	if os.Getenv(dsnEnv) == "" && os.Getenv("DATABASE_URL") != "" {
		dsnEnv = "DATABASE_URL"
	}
	return []SecretStatus{
		checkSecret("Storage DSN", cfg.Storage.DSN, dsnEnv, MaskDSN),
	}
}

func checkSecret(name, value, envVar string, mask func(string) string) SecretStatus {
	status := SecretStatus{
		Name:  name,
		IsSet: value != "",
	}

	if value == "" {
		status.Source = SourceNone
		return status
	}

	if os.Getenv(envVar) != "" {
		status.Source = SourceEnv
	} else {
		status.Source = SourceConfig
	}
	status.Masked = mask(value)
	return status
}

// MaskDSN hides the password in a connection URL.
// Non-URL DSNs are masked entirely.
func MaskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxx")
		}
	}
	return u.String()
}
