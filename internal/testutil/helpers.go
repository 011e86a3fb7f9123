package testutil

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
)

// Chain used by most tests: the League of Entropy mainnet genesis with a 30s period.
const (
	GenesisTime = int64(1595431050)
	Period      = int64(30)
	ChainHash   = "8990e7a9aaed2ffed73dbd7092123d6f289930540d7651336225dc172e51b2ce"
)

// FakeHTTPDoer is a mock HTTP client for testing.
type FakeHTTPDoer struct {
	// Responses maps URL path suffixes to responses
	Responses map[string]*http.Response
	// Errors maps URL path suffixes to errors
	Errors map[string]error
}

func (f *FakeHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	for suffix, err := range f.Errors {
		if strings.HasSuffix(path, suffix) {
			return nil, err
		}
	}
	for suffix, resp := range f.Responses {
		if strings.HasSuffix(path, suffix) {
			return CloneResponse(resp), nil
		}
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

// CloneResponse creates a copy of an http.Response with a fresh body reader.
func CloneResponse(resp *http.Response) *http.Response {
	bodyBytes, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	return &http.Response{
		StatusCode: resp.StatusCode,
		Body:       io.NopCloser(bytes.NewReader(bodyBytes)),
	}
}

// MakeJSONResponse wraps v as an HTTP response with the given status.
func MakeJSONResponse(status int, v any) *http.Response {
	body, _ := json.Marshal(v)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

// MakeDrandInfoResponse creates a fake drand /info response.
func MakeDrandInfoResponse(genesis, period int64, hash string) *http.Response {
	return MakeJSONResponse(http.StatusOK, drandInfo{
		Period:      period,
		GenesisTime: genesis,
		Hash:        hash,
	})
}

// MakeDrandRoundResponse creates a fake drand round response.
func MakeDrandRoundResponse(round uint64) *http.Response {
	return MakeJSONResponse(http.StatusOK, roundBody(round))
}

type drandInfo struct {
	Period      int64  `json:"period"`
	GenesisTime int64  `json:"genesis_time"`
	Hash        string `json:"hash"`
}

type drandRound struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
	Signature  string `json:"signature"`
}

func roundBody(round uint64) drandRound {
	return drandRound{
		Round:      round,
		Randomness: hex.EncodeToString([]byte(fmt.Sprintf("randomness-%d", round))),
		Signature:  hex.EncodeToString([]byte(fmt.Sprintf("signature-%d", round))),
	}
}

// BeaconServer is an in-process drand HTTP relay serving /info, latest and
// round-by-number for a single chain. Rounds above Latest return 404.
type BeaconServer struct {
	*httptest.Server

	Genesis   int64
	Period    int64
	ChainHash string

	latest   atomic.Uint64
	failing  atomic.Bool
	mu       sync.Mutex
	requests map[string]int
}

// NewBeaconServer starts a fake beacon at the given head round. It is closed via t.Cleanup.
func NewBeaconServer(t *testing.T, latest uint64) *BeaconServer {
	t.Helper()

	b := &BeaconServer{
		Genesis:   GenesisTime,
		Period:    Period,
		ChainHash: ChainHash,
		requests:  make(map[string]int),
	}
	b.latest.Store(latest)

	r := mux.NewRouter()
	r.Use(b.middleware)
	r.HandleFunc("/info", b.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/public/{chain}/latest", b.handleLatest).Methods(http.MethodGet)
	r.HandleFunc("/public/{chain}/round/{round:[0-9]+}", b.handleRound).Methods(http.MethodGet)

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Server.Close)
	return b
}

// SetLatest moves the chain head.
func (b *BeaconServer) SetLatest(round uint64) { b.latest.Store(round) }

// SetFailing makes every endpoint answer 503.
func (b *BeaconServer) SetFailing(failing bool) { b.failing.Store(failing) }

// Requests returns how many requests hit the named route ("info", "latest", "round").
func (b *BeaconServer) Requests(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[route]
}

func (b *BeaconServer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.failing.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *BeaconServer) count(route string) {
	b.mu.Lock()
	b.requests[route]++
	b.mu.Unlock()
}

func (b *BeaconServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	b.count("info")
	writeJSON(w, drandInfo{Period: b.Period, GenesisTime: b.Genesis, Hash: b.ChainHash})
}

func (b *BeaconServer) handleLatest(w http.ResponseWriter, r *http.Request) {
	b.count("latest")
	if mux.Vars(r)["chain"] != b.ChainHash {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, roundBody(b.latest.Load()))
}

func (b *BeaconServer) handleRound(w http.ResponseWriter, r *http.Request) {
	b.count("round")
	vars := mux.Vars(r)
	if vars["chain"] != b.ChainHash {
		http.NotFound(w, r)
		return
	}
	round, err := strconv.ParseUint(vars["round"], 10, 64)
	if err != nil || round == 0 || round > b.latest.Load() {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, roundBody(round))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
