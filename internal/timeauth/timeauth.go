package timeauth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/drand/tlock"
	thttp "github.com/drand/tlock/networks/http"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public drand HTTP relay.
	DefaultBaseURL = "https://api.drand.sh"

	// MainnetChainHash identifies the League of Entropy mainnet (30s period, chained).
	MainnetChainHash = "8990e7a9aaed2ffed73dbd7092123d6f289930540d7651336225dc172e51b2ce"

	// QuicknetChainHash identifies drand quicknet (3s period, unchained, tlock capable).
	QuicknetChainHash = "52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971"
)

// HTTPDoer is an interface for making HTTP requests.
// This allows injecting mock HTTP clients for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// TimelockBox abstracts tlock encryption/decryption for testing.
type TimelockBox interface {
	// Encrypt time-locks data to the target round.
	// Returns base64-encoded ciphertext.
	Encrypt(data []byte, targetRound uint64) (string, error)

	// Decrypt decrypts the tlock ciphertext.
	// Ciphertext is base64-encoded.
	Decrypt(ciphertextB64 string) ([]byte, error)
}

// DrandSource is a Source backed by a drand HTTP endpoint.
type DrandSource struct {
	BaseURL    string
	ChainHash  string
	HTTPClient HTTPDoer      // injectable HTTP client
	Limiter    *rate.Limiter // optional request pacing
	Timeout    time.Duration // per-request timeout, zero means none
}

type drandInfo struct {
	Period      int64  `json:"period"`
	GenesisTime int64  `json:"genesis_time"`
	Hash        string `json:"hash"`
	SchemeID    string `json:"schemeID,omitempty"`
	BeaconID    string `json:"beaconID,omitempty"`
}

type drandPublicResponse struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
	Signature  string `json:"signature"`
}

var errStatusNotFound = errors.New("status 404")

// NewDrandSource creates a source for the given relay and chain using http.DefaultClient.
func NewDrandSource(baseURL, chainHash string) *DrandSource {
	return NewDrandSourceWithDeps(http.DefaultClient, baseURL, chainHash)
}

// NewDrandSourceWithDeps creates a source with an injectable HTTP client.
func NewDrandSourceWithDeps(httpClient HTTPDoer, baseURL, chainHash string) *DrandSource {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &DrandSource{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ChainHash:  chainHash,
		HTTPClient: httpClient,
	}
}

// FetchParameters fetches /info and validates it.
func (d *DrandSource) FetchParameters(ctx context.Context) (ChainParameters, error) {
	var info drandInfo
	if err := d.getJSON(ctx, "info", "/info", &info); err != nil {
		if errors.Is(err, errStatusNotFound) {
			return ChainParameters{}, fmt.Errorf("%w: chain info not found", ErrUnavailable)
		}
		return ChainParameters{}, err
	}

	params := ChainParameters{
		GenesisTime: info.GenesisTime,
		Period:      info.Period,
		ChainHash:   info.Hash,
	}
	if err := params.Validate(); err != nil {
		return ChainParameters{}, err
	}

	if d.ChainHash != "" && info.Hash != "" && info.Hash != d.ChainHash {
		return ChainParameters{}, fmt.Errorf("%w: chain hash mismatch: expected %s, got %s", ErrInvalidParameters, d.ChainHash, info.Hash)
	}
	if params.ChainHash == "" {
		params.ChainHash = d.ChainHash
	}

	return params, nil
}

// FetchLatest fetches the most recent round.
func (d *DrandSource) FetchLatest(ctx context.Context) (Round, error) {
	var resp drandPublicResponse
	if err := d.getJSON(ctx, "latest", d.publicPath()+"/latest", &resp); err != nil {
		if errors.Is(err, errStatusNotFound) {
			return Round{}, fmt.Errorf("%w: latest round not found", ErrUnavailable)
		}
		return Round{}, err
	}

	return resp.toRound()
}

// FetchRound fetches a specific round. A 404 maps to ErrRoundNotFound.
func (d *DrandSource) FetchRound(ctx context.Context, index uint64) (Round, error) {
	if index < 1 {
		return Round{}, fmt.Errorf("%w: round must be >= 1", ErrInvalidInput)
	}

	var resp drandPublicResponse
	path := d.publicPath() + "/round/" + strconv.FormatUint(index, 10)
	if err := d.getJSON(ctx, "round", path, &resp); err != nil {
		if errors.Is(err, errStatusNotFound) {
			return Round{}, fmt.Errorf("%w: round %d", ErrRoundNotFound, index)
		}
		return Round{}, err
	}

	return resp.toRound()
}

func (d *DrandSource) publicPath() string {
	if d.ChainHash == "" {
		return "/public"
	}
	return "/public/" + d.ChainHash
}

// getJSON performs a GET and decodes the body into out. Every failure other than
// a 404 is reported as ErrUnavailable.
func (d *DrandSource) getJSON(ctx context.Context, endpoint, path string, out any) error {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			beaconRequestsTotal.WithLabelValues(endpoint, "error").Inc()
			return fmt.Errorf("%w: rate limiter: %w", ErrUnavailable, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		beaconRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%w: drand %s request: %w", ErrUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		beaconRequestsTotal.WithLabelValues(endpoint, "not_found").Inc()
		return errStatusNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		beaconRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%w: drand %s request failed: %d", ErrUnavailable, endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		beaconRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%w: read drand %s response: %w", ErrUnavailable, endpoint, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		beaconRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%w: decode drand %s response: %w", ErrUnavailable, endpoint, err)
	}

	beaconRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

func (r drandPublicResponse) toRound() (Round, error) {
	randomness, err := hex.DecodeString(r.Randomness)
	if err != nil {
		return Round{}, fmt.Errorf("%w: failed to decode randomness: %w", ErrUnavailable, err)
	}
	signature, err := hex.DecodeString(r.Signature)
	if err != nil {
		return Round{}, fmt.Errorf("%w: failed to decode signature: %w", ErrUnavailable, err)
	}

	return Round{Index: r.Round, Randomness: randomness, Signature: signature}, nil
}

// RealTimelockBox implements TimelockBox using the actual tlock library.
type RealTimelockBox struct {
	BaseURL   string
	ChainHash string
}

// Encrypt time-locks data using tlock.
func (r *RealTimelockBox) Encrypt(data []byte, targetRound uint64) (string, error) {
	network, err := thttp.NewNetwork(r.BaseURL, r.ChainHash)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create tlock network: %w", ErrUnavailable, err)
	}

	var ciphertext bytes.Buffer
	if err := tlock.New(network).Encrypt(&ciphertext, bytes.NewReader(data), targetRound); err != nil {
		return "", tlockError("failed to tlock encrypt", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Decrypt decrypts the tlock ciphertext.
func (r *RealTimelockBox) Decrypt(ciphertextB64 string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tlock ciphertext: %w", err)
	}

	network, err := thttp.NewNetwork(r.BaseURL, r.ChainHash)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create tlock network: %w", ErrUnavailable, err)
	}

	var plaintext bytes.Buffer
	if err := tlock.New(network).Decrypt(&plaintext, bytes.NewReader(ciphertext)); err != nil {
		return nil, tlockError("failed to tlock decrypt", err)
	}

	return plaintext.Bytes(), nil
}

// tlockError reports beacon transport failures and unpublished rounds from
// inside tlock as ErrUnavailable. Other failures keep their cause only.
func tlockError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, tlock.ErrTooEarly) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
