// ABOUTME: Platform/chain directory cache backed by the SolidityScan ids endpoint
// ABOUTME: Fetches once per process, degrades to an empty table on failure

package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Sentinel errors for resolution failures. Tool handlers match on these to
// build actionable error results.
var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrUnsupportedChain    = errors.New("unsupported chain")
	ErrPlatformRequired    = errors.New("platform is required. Use a supported platform name or ID from get_supported_platforms_chains")
	ErrChainRequired       = errors.New("chain is required. Use a supported chain name or ID from get_supported_platforms_chains")
)

// Platform holds one platform's canonical id and its chain name→id table.
// Chain ids may be empty when the upstream reports null for a chain.
type Platform struct {
	ID           string
	ChainsByName map[string]string
}

// Directory is the memoized platform/chain lookup table. It is immutable
// once built; sessions share a single instance for the process lifetime.
type Directory struct {
	// Platforms and Chains are sorted; Chains is the union across all
	// platforms and is advisory only (a chain is validated within its
	// owning platform).
	Platforms []string
	Chains    []string

	ByName map[string]Platform
	ByID   map[string]string // platform id → platform name
}

// Resolved is the canonical result of a platform/chain lookup.
type Resolved struct {
	PlatformID   string
	PlatformName string
	ChainID      string
	ChainName    string
}

// Service lazily fetches and memoizes the directory. Load guarantees at most
// one upstream fetch per process: concurrent callers wait on the same
// in-flight fetch, and a failed fetch memoizes an empty directory rather
// than retrying.
type Service struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger

	once chan struct{} // closed when the fetch completes
	dir  *Directory    // set exactly once, before once is closed

	begin chan struct{} // buffered(1); take a token to become the fetcher
}

// New creates a directory service fetching from the given URL.
func New(url string, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		url:     url,
		timeout: timeout,
		client:  &http.Client{},
		logger:  logger.With("component", "directory"),
		once:    make(chan struct{}),
		begin:   make(chan struct{}, 1),
	}
	s.begin <- struct{}{}
	return s
}

// Load returns the directory, fetching it on first use. It never returns an
// error: fetch failures are logged and memoized as an empty directory so
// later lookups fail fast with unsupported-platform errors instead of
// re-hitting the network.
func (s *Service) Load(ctx context.Context) *Directory {
	select {
	case <-s.once:
		return s.dir
	default:
	}

	select {
	case <-s.begin:
		// We are the single fetcher.
		s.dir = s.fetch(ctx)
		close(s.once)
		return s.dir
	case <-s.once:
		return s.dir
	case <-ctx.Done():
		// The caller gave up; the in-flight fetch (if any) continues and
		// later callers still get the memoized result. Degrade locally.
		return &Directory{ByName: map[string]Platform{}, ByID: map[string]string{}}
	}
}

// upstreamPayload mirrors the api-get-platform-chain-ids response shape:
// {"data": {"<platform>": {"id": "1", "chains": [{"mainnet": "1"}, ...]}}}
type upstreamPayload struct {
	Data map[string]upstreamPlatform `json:"data"`
}

type upstreamPlatform struct {
	ID     string               `json:"id"`
	Chains []map[string]*string `json:"chains"`
}

func (s *Service) fetch(ctx context.Context) *Directory {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	dir, err := s.fetchDirectory(fetchCtx)
	if err != nil {
		s.logger.Error("failed to load platform/chain directory, degrading to empty table", "error", err, "url", s.url)
		return &Directory{ByName: map[string]Platform{}, ByID: map[string]string{}}
	}

	s.logger.Info("platform/chain directory loaded",
		"platforms", len(dir.Platforms),
		"chains", len(dir.Chains),
	)
	return dir
}

func (s *Service) fetchDirectory(ctx context.Context) (*Directory, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching directory: status %d", resp.StatusCode)
	}

	var payload upstreamPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding directory payload: %w", err)
	}
	if payload.Data == nil {
		return nil, errors.New("invalid directory payload: missing data object")
	}

	return buildDirectory(payload.Data), nil
}

// buildDirectory indexes the upstream payload into the lookup tables.
func buildDirectory(data map[string]upstreamPlatform) *Directory {
	dir := &Directory{
		ByName: make(map[string]Platform, len(data)),
		ByID:   make(map[string]string, len(data)),
	}

	chainSet := make(map[string]struct{})
	for platformName, entry := range data {
		chainsByName := make(map[string]string)
		for _, obj := range entry.Chains {
			for name, id := range obj {
				if name == "" {
					continue
				}
				if id != nil {
					chainsByName[name] = *id
				} else {
					chainsByName[name] = ""
				}
				chainSet[name] = struct{}{}
				break // each entry is a single-key object
			}
		}
		dir.ByName[platformName] = Platform{ID: entry.ID, ChainsByName: chainsByName}
		dir.ByID[entry.ID] = platformName
		dir.Platforms = append(dir.Platforms, platformName)
	}

	for name := range chainSet {
		dir.Chains = append(dir.Chains, name)
	}
	sort.Strings(dir.Platforms)
	sort.Strings(dir.Chains)
	return dir
}

// ResolvePlatformAndChain resolves caller-supplied platform and chain inputs
// to canonical names and ids. Platform input is matched by name first, then
// by id. Chain input is matched by name within the resolved platform, then
// by id string equality. Unsupported-chain errors enumerate the platform's
// valid chain names: that list is the caller's only recovery path.
func (s *Service) ResolvePlatformAndChain(ctx context.Context, platformInput, chainInput string) (*Resolved, error) {
	if strings.TrimSpace(platformInput) == "" {
		return nil, ErrPlatformRequired
	}
	if strings.TrimSpace(chainInput) == "" {
		return nil, ErrChainRequired
	}

	dir := s.Load(ctx)

	var platformName, platformID string
	if entry, ok := dir.ByName[platformInput]; ok {
		platformName = platformInput
		platformID = entry.ID
	} else if name, ok := dir.ByID[platformInput]; ok {
		platformID = platformInput
		platformName = name
	} else {
		return nil, fmt.Errorf("%w: %s. Use get_supported_platforms_chains to see allowed values", ErrUnsupportedPlatform, platformInput)
	}

	chainsByName := dir.ByName[platformName].ChainsByName

	if id, ok := chainsByName[chainInput]; ok {
		return &Resolved{
			PlatformID:   platformID,
			PlatformName: platformName,
			ChainID:      id,
			ChainName:    chainInput,
		}, nil
	}

	for name, id := range chainsByName {
		if id != "" && id == chainInput {
			return &Resolved{
				PlatformID:   platformID,
				PlatformName: platformName,
				ChainID:      id,
				ChainName:    name,
			}, nil
		}
	}

	available := make([]string, 0, len(chainsByName))
	for name := range chainsByName {
		available = append(available, name)
	}
	sort.Strings(available)
	return nil, fmt.Errorf("%w: %s for platform %s. Available chains: %s",
		ErrUnsupportedChain, chainInput, platformName, strings.Join(available, ", "))
}
