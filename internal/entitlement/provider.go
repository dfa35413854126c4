package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// licenseFile is the locally activated license persisted by the activation
// flow. Cryptographic validation of the token is the authority's concern;
// the provider only carries it on the wire.
type licenseFile struct {
	Key         string    `json:"key"`
	Token       string    `json:"token"`
	ActivatedAt time.Time `json:"activated_at"`
}

// entitlementResponse is the authority's answer to an entitlement query.
type entitlementResponse struct {
	Entitled bool   `json:"entitled"`
	Reason   string `json:"reason,omitempty"`
}

// HTTPProvider implements Provider against the licensing authority's JSON
// endpoint. Initialize loads the locally activated license file; IsEntitled
// asks the authority whether that activation still holds. Both calls respect
// the caller's context, which carries the guard deadline.
type HTTPProvider struct {
	authorityURL string
	licensePath  string
	client       *http.Client
	logger       *slog.Logger

	mu          sync.Mutex
	license     licenseFile
	initialized bool
}

// NewHTTPProvider creates a provider for the given authority base URL and
// license file path. The http.Client carries no timeout of its own; the
// timeout guard owns all deadlines.
func NewHTTPProvider(authorityURL, licensePath string, logger *slog.Logger) *HTTPProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProvider{
		authorityURL: strings.TrimRight(authorityURL, "/"),
		licensePath:  licensePath,
		client:       &http.Client{},
		logger:       logger.With(slog.String("component", "entitlement.provider")),
	}
}

// Initialize loads and sanity-checks the activated license. It is idempotent:
// once loaded, subsequent calls return immediately, so retry cycles are safe.
func (p *HTTPProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(p.licensePath)
	if err != nil {
		return fmt.Errorf("read license file: %w", err)
	}

	var lf licenseFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return fmt.Errorf("parse license file: %w", err)
	}
	if lf.Key == "" {
		return errors.New("license file has no key")
	}

	p.license = lf
	p.initialized = true

	p.logger.InfoContext(ctx, "license file loaded",
		slog.String("path", p.licensePath),
		slog.String("key", maskKey(lf.Key)))
	return nil
}

// IsEntitled queries the authority for the loaded activation.
func (p *HTTPProvider) IsEntitled(ctx context.Context) (bool, error) {
	p.mu.Lock()
	lf := p.license
	initialized := p.initialized
	p.mu.Unlock()

	if !initialized {
		return false, errors.New("provider not initialized")
	}

	body, err := json.Marshal(map[string]string{
		"key":   lf.Key,
		"token": lf.Token,
	})
	if err != nil {
		return false, fmt.Errorf("encode entitlement request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.authorityURL+"/v1/entitlement", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build entitlement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("contact licensing authority: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Cap the diagnostic read; the authority is not trusted to be brief.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("licensing authority returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out entitlementResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode entitlement response: %w", err)
	}

	p.logger.DebugContext(ctx, "entitlement answer received",
		slog.Bool("entitled", out.Entitled),
		slog.String("reason", out.Reason))
	return out.Entitled, nil
}

// maskKey hides most of a license key for logging.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "..."
}
