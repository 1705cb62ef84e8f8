// Package phonelocation resolves the approximate location of phone numbers
// through a CAMARA location-retrieval API, authenticating with OAuth2
// client credentials. It is a thin module-specific wrapper over the shared
// plugin contract; all the heavy lifting lives in the runtime.
package phonelocation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/Ashfaaq98/reconpipe/internal/event"
	"github.com/Ashfaaq98/reconpipe/internal/plugin"
)

// ModuleName is the registered short name.
const ModuleName = "phonelocation"

// Option keys.
const (
	optClientID     = "client_id"
	optClientSecret = "client_secret"
	optTokenURL     = "token_url"
	optAPIURL       = "api_url"
	optCorrelator   = "correlator"
)

const (
	defaultTokenURL = "https://api.orange.com/oauth/v3/token"
	defaultAPIURL   = "https://api.orange.com/camara/location-retrieval/orange-lab/v0/retrieve"
)

// Options documents the module's configuration surface.
func Options() plugin.Options {
	return plugin.Options{
		Defaults: map[string]string{
			optClientID:     "",
			optClientSecret: "",
			optTokenURL:     defaultTokenURL,
			optAPIURL:       defaultAPIURL,
			optCorrelator:   "reconpipe",
		},
		Descriptions: map[string]string{
			optClientID:     "OAuth2 client ID for the network API.",
			optClientSecret: "OAuth2 client secret for the network API.",
			optTokenURL:     "Token endpoint for the client-credentials exchange.",
			optAPIURL:       "CAMARA location-retrieval endpoint.",
			optCorrelator:   "x-correlator header value attached to API calls.",
		},
	}
}

type config struct {
	clientID     string
	clientSecret string
	tokenURL     string
	apiURL       string
	correlator   string
}

// Module is the phone-number location enrichment module.
type Module struct {
	plugin.Base
	cfg   config
	creds *clientcredentials.Config
}

// New returns an unconfigured module.
func New() *Module {
	return &Module{}
}

func (m *Module) Name() string { return ModuleName }

func (m *Module) WatchedEvents() []event.Type {
	return []event.Type{event.TypePhoneNumber}
}

func (m *Module) ProducedEvents() []event.Type {
	return []event.Type{event.TypePhoneLocation}
}

// Setup merges overrides onto the defaults and prepares the token source.
func (m *Module) Setup(deps plugin.Deps, overrides map[string]string) error {
	m.Init(ModuleName, deps)
	opts := Options().Merge(overrides)
	m.cfg = config{
		clientID:     opts[optClientID],
		clientSecret: opts[optClientSecret],
		tokenURL:     plugin.OptString(opts, optTokenURL, defaultTokenURL),
		apiURL:       plugin.OptString(opts, optAPIURL, defaultAPIURL),
		correlator:   plugin.OptString(opts, optCorrelator, "reconpipe"),
	}
	if m.cfg.clientID != "" && m.cfg.clientSecret != "" {
		m.creds = &clientcredentials.Config{
			ClientID:     m.cfg.clientID,
			ClientSecret: m.cfg.clientSecret,
			TokenURL:     m.cfg.tokenURL,
		}
	}
	return nil
}

// retrieveRequest is the CAMARA location-retrieval payload.
type retrieveRequest struct {
	Device device `json:"device"`
	Area   area   `json:"area"`
	MaxAge int    `json:"maxAge"`
}

type device struct {
	PhoneNumber             string `json:"phoneNumber"`
	NetworkAccessIdentifier string `json:"networkAccessIdentifier"`
}

type area struct {
	AreaType string `json:"areaType"`
	Center   center `json:"center"`
	Radius   int    `json:"radius"`
}

type center struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// HandleEvent processes one PHONE_NUMBER finding. Missing credentials and
// API failures latch the module for the rest of the run.
func (m *Module) HandleEvent(ctx context.Context, ev *event.Event) error {
	if m.Latched() {
		return nil
	}
	log := m.Log().WithField("data", ev.Data)

	if m.creds == nil {
		log.Error("module enabled but client ID or client secret is not set")
		m.Latch()
		return nil
	}

	if !m.Ledger().CheckAndRecord(ev.Data) {
		log.Debug("already checked, skipping")
		return nil
	}

	if ev.Type != event.TypePhoneNumber {
		return nil
	}

	body, err := m.retrieve(ctx, ev.Data)
	if err != nil {
		log.WithError(err).Error("location retrieval failed")
		m.Latch()
		return nil
	}

	log.Info("received location data")
	return m.Emit(ctx, event.TypePhoneLocation, string(body), ev)
}

// retrieve exchanges client credentials for a token and posts the
// location-retrieval request for one phone number.
func (m *Module) retrieve(ctx context.Context, phoneNumber string) ([]byte, error) {
	payload := retrieveRequest{
		Device: device{
			PhoneNumber:             phoneNumber,
			NetworkAccessIdentifier: phoneNumber + "@domain.com",
		},
		Area: area{
			AreaType: "CIRCLE",
			Center:   center{Latitude: 50.735851, Longitude: 7.10066},
			Radius:   50000,
		},
		MaxAge: 60,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.apiURL, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-correlator", m.cfg.correlator)

	// The oauth2 client injects the bearer token, fetching and refreshing
	// it through the client-credentials flow as needed.
	resp, err := m.creds.Client(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", m.cfg.apiURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("call %s: unexpected status %d", m.cfg.apiURL, resp.StatusCode)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("call %s: empty response", m.cfg.apiURL)
	}
	return body, nil
}
