package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/jpalmerr/parkwatch"
)

// LoadCredentials reads the portal account from the environment.
//
// The configured env file is loaded first when it exists; variables already
// present in the environment are not overridden. A missing file is not an
// error. Missing variables are reported as [parkwatch.ErrMissingCredentials]
// naming the variables to set.
func LoadCredentials(cc CredentialsConfig) (parkwatch.Credentials, error) {
	if cc.EnvFile != "" {
		if err := godotenv.Load(cc.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return parkwatch.Credentials{}, fmt.Errorf("failed to load %s: %w", cc.EnvFile, err)
		}
	}

	usernameEnv := cc.UsernameEnv
	if usernameEnv == "" {
		usernameEnv = DefaultUsernameEnv
	}
	passwordEnv := cc.PasswordEnv
	if passwordEnv == "" {
		passwordEnv = DefaultPasswordEnv
	}

	creds := parkwatch.Credentials{
		Username: strings.TrimSpace(os.Getenv(usernameEnv)),
		Password: os.Getenv(passwordEnv),
	}

	var missing []string
	if creds.Username == "" {
		missing = append(missing, usernameEnv)
	}
	if creds.Password == "" {
		missing = append(missing, passwordEnv)
	}
	if len(missing) > 0 {
		return parkwatch.Credentials{}, fmt.Errorf("%w: set %s", parkwatch.ErrMissingCredentials, strings.Join(missing, " and "))
	}
	return creds, nil
}
