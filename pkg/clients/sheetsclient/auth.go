package sheetsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jakechorley/rehab-roster/internal/config"
)

// SheetsScope covers reading the roster and publishing days. It is the only
// scope the application asks for.
const SheetsScope = "https://www.googleapis.com/auth/spreadsheets"

const (
	callbackPort   = 3000
	callbackPath   = "/oauth/callback"
	consentTimeout = 5 * time.Minute
	tokenDirName   = ".rehab-roster/tokens"
	tokenFilePerms = 0600
	tokenDirPerms  = 0700
)

// storedToken is the token file layout. Scope records what the token was
// granted for, so a token from an older scope set is never reused.
type storedToken struct {
	Scope string        `json:"scope"`
	Token *oauth2.Token `json:"token"`
}

// TokenFile is where one environment's Sheets token is kept between runs
type TokenFile struct {
	Path string
}

// TokenFileFor returns the token file for env under the home directory
func TokenFileFor(env string) (TokenFile, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return TokenFile{}, fmt.Errorf("failed to get home directory: %w", err)
	}
	return TokenFile{Path: filepath.Join(home, tokenDirName, fmt.Sprintf("sheets-%s.json", env))}, nil
}

// Load returns the saved token, or nil when there is none or it was granted
// for a different scope
func (f TokenFile) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var stored storedToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if stored.Scope != SheetsScope || stored.Token == nil {
		return nil, nil
	}
	return stored.Token, nil
}

// Save writes the token readable by the owner only
func (f TokenFile) Save(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), tokenDirPerms); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(storedToken{Scope: SheetsScope, Token: token})
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(f.Path, data, tokenFilePerms); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Delete removes the token file. A missing file is not an error.
func (f TokenFile) Delete() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

// oauthConfig builds the desktop client config for the Sheets scope with the
// redirect pointed at the local callback server
func oauthConfig(client *config.OAuthClientConfig) (*oauth2.Config, error) {
	raw, err := json.Marshal(client)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oauth config: %w", err)
	}

	cfg, err := google.ConfigFromJSON(raw, SheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to create google config: %w", err)
	}
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d%s", callbackPort, callbackPath)
	return cfg, nil
}

// authorize returns a usable token: the saved one, a refreshed one, or one
// obtained by asking the user for consent in the browser
func authorize(ctx context.Context, cfg *oauth2.Config, tokens TokenFile, logger *zap.Logger) (*oauth2.Token, error) {
	saved, err := tokens.Load()
	if err != nil {
		logger.Warn("Ignoring unreadable token file", zap.String("path", tokens.Path), zap.Error(err))
	}

	if saved != nil {
		if saved.Valid() {
			logger.Debug("Using saved sheets token")
			return saved, nil
		}
		if saved.RefreshToken != "" {
			fresh, err := cfg.TokenSource(ctx, saved).Token()
			if err == nil {
				logger.Info("Sheets token refreshed")
				if err := tokens.Save(fresh); err != nil {
					logger.Warn("Failed to save refreshed token", zap.Error(err))
				}
				return fresh, nil
			}
			logger.Warn("Could not refresh sheets token, asking for consent again", zap.Error(err))
		}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", callbackPort))
	if err != nil {
		return nil, fmt.Errorf("failed to listen for oauth callback: %w", err)
	}

	state := uuid.NewString()
	fmt.Printf("\nVisit this URL to allow access to your spreadsheets:\n%s\n\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	waitCtx, cancel := context.WithTimeout(ctx, consentTimeout)
	defer cancel()
	code, err := waitForCode(waitCtx, ln, state)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if err := tokens.Save(token); err != nil {
		logger.Warn("Failed to save sheets token", zap.Error(err))
	}
	logger.Info("Sheets access granted")
	return token, nil
}

// waitForCode serves the oauth callback on ln until it receives a code for
// state, ctx ends, or the provider reports an error. ln is closed on return.
func waitForCode(ctx context.Context, ln net.Listener, state string) (string, error) {
	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)
	send := func(r result) {
		select {
		case results <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "Unexpected authorization state", http.StatusBadRequest)
			return
		}
		if reason := q.Get("error"); reason != "" {
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			send(result{err: fmt.Errorf("authorization denied: %s", reason)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			send(result{err: fmt.Errorf("no authorization code received")})
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Authorization successful!</h1><p>You can close this window and return to the application.</p></body></html>`)
		send(result{code: code})
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			send(result{err: fmt.Errorf("callback server error: %w", err)})
		}
	}()

	var res result
	select {
	case res = <-results:
	case <-ctx.Done():
		res.err = fmt.Errorf("authorization not completed: %w", ctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	return res.code, res.err
}
