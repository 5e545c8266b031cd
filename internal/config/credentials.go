package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Credentials is the optional gateway service token pair.
// Both values set or both empty is a valid state.
type Credentials struct {
	ClientID     string `yaml:"clientId,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`
}

// Complete reports whether both values are set.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// Empty reports whether neither value is set.
func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.ClientID) == "" && strings.TrimSpace(c.ClientSecret) == ""
}

// Partial reports whether exactly one value is set.
func (c Credentials) Partial() bool {
	return !c.Complete() && !c.Empty()
}

// Warning returns an operator-facing message for a partial pair,
// or an empty string.
func (c Credentials) Warning() string {
	switch {
	case !c.Partial():
		return ""
	case strings.TrimSpace(c.ClientID) == "":
		return "client secret is set but client id is missing; authentication will be skipped"
	default:
		return "client id is set but client secret is missing; authentication will be skipped"
	}
}

// AccessSettings is the remembered gateway credential state.
type AccessSettings struct {
	Credentials `yaml:",inline"`

	// Remember keeps the pair across runs.
	Remember bool `yaml:"remember"`
}

// PagesSettings is the remembered deployment configuration.
// Project and Branch are always kept; AccountID and APIToken only when
// Remember is set.
type PagesSettings struct {
	Project   string `yaml:"project,omitempty"`
	Branch    string `yaml:"branch,omitempty"`
	AccountID string `yaml:"accountId,omitempty"`
	APIToken  string `yaml:"apiToken,omitempty"`
	Remember  bool   `yaml:"remember"`
}

// Secrets is the on-disk content of the credential store.
type Secrets struct {
	Access AccessSettings `yaml:"access"`
	Pages  PagesSettings  `yaml:"pages"`
}

// credentialsFileName is the store file name inside the XDG config directory.
const credentialsFileName = "credentials.yaml"

// CredentialStore persists Secrets as a YAML file readable only by the owner.
type CredentialStore struct {
	path string
}

// NewCredentialStore returns a store backed by path.
// If path is empty, the XDG config directory is used.
func NewCredentialStore(path string) *CredentialStore {
	if path == "" {
		path = filepath.Join(XDGConfigDir(), credentialsFileName)
	}
	return &CredentialStore{path: path}
}

// Path returns the file backing the store.
func (s *CredentialStore) Path() string {
	return s.path
}

// Load reads the stored secrets. A missing file yields empty secrets.
func (s *CredentialStore) Load() (*Secrets, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Secrets{}, nil
		}
		return nil, fmt.Errorf("failed to read credential store: %w", err)
	}

	var secrets Secrets
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse credential store: %w", err)
	}
	return &secrets, nil
}

// Save writes the secrets with 0600 permissions.
func (s *CredentialStore) Save(secrets *Secrets) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to encode credential store: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential store: %w", err)
	}
	return nil
}

// RememberAccess stores creds when remember is true and clears any stored
// pair otherwise.
func (s *CredentialStore) RememberAccess(creds Credentials, remember bool) error {
	secrets, err := s.Load()
	if err != nil {
		return err
	}

	if remember {
		secrets.Access = AccessSettings{Credentials: creds, Remember: true}
	} else {
		secrets.Access = AccessSettings{}
	}
	return s.Save(secrets)
}

// RememberPages stores the deployment settings. The account id and API
// token are dropped unless pages.Remember is set.
func (s *CredentialStore) RememberPages(pages PagesSettings) error {
	secrets, err := s.Load()
	if err != nil {
		return err
	}

	if !pages.Remember {
		pages.AccountID = ""
		pages.APIToken = ""
	}
	secrets.Pages = pages
	return s.Save(secrets)
}

// Clear removes the store file. Clearing a missing store is not an error.
func (s *CredentialStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credential store: %w", err)
	}
	return nil
}
