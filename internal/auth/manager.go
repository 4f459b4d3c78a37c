package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/oauth2"
)

const (
	// Hubspace accounts are Keycloak-backed; token refresh goes through the
	// openid-connect token endpoint.
	DefaultTokenURL        = "https://accounts.hubspaceconnect.com/auth/realms/thd/protocol/openid-connect/token"
	DefaultScope           = "openid offline_access"
	DefaultRefreshInterval = 10 * time.Minute
)

var ErrScopeMismatch = errors.New("auth scope mismatch")

// Config locates the credentials and the token endpoint. Zero-value URL and
// scope fall back to the Hubspace defaults.
type Config struct {
	TokenURL      string
	Scope         string
	StatePath     string
	BootstrapFile string
}

// Manager owns the refresh token and caches the access token. The refresh
// token rotates on every refresh, so state is persisted locally and mirrored
// to the blob store after each rotation.
type Manager struct {
	tokenURL   string
	scope      string
	statePath  string
	blobStore  BlobStore
	httpClient *http.Client

	mu              sync.Mutex
	accessToken     string
	expiresAt       time.Time
	refreshToken    string
	refreshInFlight bool
	config          *oauth2.Config
}

func NewManager(cfg Config, blobStore BlobStore) (*Manager, error) {
	if cfg.BootstrapFile == "" {
		return nil, fmt.Errorf("bootstrap file is required")
	}
	bootstrap, err := LoadBootstrap(cfg.BootstrapFile)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return NewManagerFromBootstrap(cfg, bootstrap, blobStore)
}

// NewManagerFromBootstrap creates a manager from inline seed credentials.
func NewManagerFromBootstrap(cfg Config, bootstrap Bootstrap, blobStore BlobStore) (*Manager, error) {
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if blobStore == nil {
		blobStore = NopStore{}
	}
	if err := bootstrap.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	scope := strings.TrimSpace(cfg.Scope)
	if scope == "" {
		scope = DefaultScope
	}

	m := &Manager{
		tokenURL:   tokenURL,
		scope:      scope,
		statePath:  cfg.StatePath,
		blobStore:  blobStore,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		config: &oauth2.Config{
			ClientID:     bootstrap.ClientID,
			ClientSecret: bootstrap.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
			Scopes:       strings.Fields(scope),
		},
	}

	state, err := m.loadInitialState(bootstrap)
	if err != nil {
		return nil, err
	}
	m.refreshToken = state.RefreshToken

	return m, nil
}

// Start performs an initial refresh and keeps the token fresh in the
// background until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.StartWithInterval(ctx, DefaultRefreshInterval)
}

func (m *Manager) StartWithInterval(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	threshold := interval
	if threshold < 30*time.Second {
		threshold = 30 * time.Second
	}
	m.refreshIfNeeded(ctx, threshold)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refreshIfNeeded(ctx, threshold)
			}
		}
	}()
}

// AccessToken returns the cached token. It never blocks on a refresh; the
// background loop owns that.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	_ = ctx

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accessToken != "" && time.Until(m.expiresAt) > 30*time.Second {
		return m.accessToken, nil
	}

	tokenValid.Set(0)
	return "", fmt.Errorf("auth token unavailable")
}

func (m *Manager) refreshIfNeeded(ctx context.Context, threshold time.Duration) {
	m.mu.Lock()
	need := m.accessToken == "" || time.Until(m.expiresAt) <= threshold
	if !need || m.refreshInFlight {
		m.mu.Unlock()
		return
	}
	m.refreshInFlight = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.refreshInFlight = false
		m.mu.Unlock()
	}()

	_ = m.refresh(ctx)
}

func (m *Manager) refresh(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	source := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: m.refreshToken})
	token, err := source.Token()
	if err != nil {
		refreshFailure.Inc()
		tokenValid.Set(0)
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			body := strings.TrimSpace(string(retrieveErr.Body))
			return fmt.Errorf("token refresh failed %d: %s", retrieveErr.Response.StatusCode, body)
		}
		return err
	}

	m.mu.Lock()
	m.accessToken = token.AccessToken
	m.expiresAt = token.Expiry
	if token.RefreshToken != "" {
		m.refreshToken = token.RefreshToken
	}
	state := State{
		SchemaVersion: SchemaVersion,
		ClientID:      m.config.ClientID,
		ClientSecret:  m.config.ClientSecret,
		RefreshToken:  m.refreshToken,
		Scope:         m.scope,
	}
	m.mu.Unlock()

	if err := WriteState(m.statePath, state); err != nil {
		refreshFailure.Inc()
		return fmt.Errorf("persist state: %w", err)
	}
	if err := m.persistBlob(ctx, state); err != nil {
		remotePersistOK.Set(0)
	} else {
		remotePersistOK.Set(1)
	}

	refreshSuccess.Inc()
	tokenValid.Set(1)
	return nil
}

func (m *Manager) loadInitialState(bootstrap Bootstrap) (State, error) {
	local, localErr := LoadState(m.statePath)
	if localErr == nil {
		if err := checkStateFile(m.statePath); err != nil {
			return State{}, err
		}
		if local.Scope != "" && local.Scope != m.scope {
			return State{}, ErrScopeMismatch
		}
		return local, nil
	}
	if !errors.Is(localErr, ErrStateNotFound) {
		return State{}, localErr
	}

	blob, blobErr := m.loadFromBlob(context.Background())
	if blobErr == nil {
		if blob.Scope != "" && blob.Scope != m.scope {
			return State{}, ErrScopeMismatch
		}
		if err := WriteState(m.statePath, blob); err != nil {
			return State{}, err
		}
		return blob, nil
	}
	if !errors.Is(blobErr, ErrBlobNotFound) {
		return State{}, blobErr
	}

	if bootstrap.RefreshToken == "" {
		return State{}, fmt.Errorf("bootstrap missing refresh_token; log in once and seed it")
	}

	state := State{
		SchemaVersion: SchemaVersion,
		ClientID:      bootstrap.ClientID,
		ClientSecret:  bootstrap.ClientSecret,
		RefreshToken:  bootstrap.RefreshToken,
		Scope:         m.scope,
	}
	if err := WriteState(m.statePath, state); err != nil {
		return State{}, err
	}
	return state, nil
}

func (m *Manager) loadFromBlob(ctx context.Context) (State, error) {
	data, err := m.blobStore.Load(ctx)
	if err != nil {
		return State{}, err
	}
	return DecodeState(data)
}

func (m *Manager) persistBlob(ctx context.Context, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return m.blobStore.Save(ctx, data)
}

func checkStateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0o600 {
		return fmt.Errorf("state file %s must have 0600 permissions", path)
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if int(stat.Uid) != os.Geteuid() {
			return fmt.Errorf("state file %s must be owned by uid %d", path, os.Geteuid())
		}
	}
	return nil
}
