package embed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/spektr-org/chartspec/schema"
	"github.com/spektr-org/chartspec/spec"
)

// ============================================================================
// PROBER — Checks remote data against what a chart reads
// ============================================================================
// The browser fetches chart data only at draw time, so a renamed CSV column
// or a missing TopoJSON object shows up as a silently empty chart. The prober
// fetches each source first, discovers its schema, and fails the target
// instead. Responses go through an RFC 7234 cache (memory or disk).
// ============================================================================

// ErrSchemaMismatch matches every *MismatchError.
var ErrSchemaMismatch = errors.New("schema mismatch")

// MismatchError lists what a chart reads that its source does not provide.
type MismatchError struct {
	Source  string // DataRef.Key
	Missing []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: %s lacks %s", e.Source, strings.Join(e.Missing, ", "))
}

func (e *MismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// Prober fetches and inspects chart data sources.
type Prober struct {
	client *http.Client
	logger logrus.FieldLogger

	mu      sync.Mutex
	schemas map[string]*schema.Config // DataRef.Key → last discovered schema
}

// ProbeOption configures a Prober.
type ProbeOption func(*probeConfig)

type probeConfig struct {
	CacheDir  string
	Transport http.RoundTripper
	Logger    logrus.FieldLogger
}

// WithCacheDir keeps fetched sources on disk under dir across runs.
func WithCacheDir(dir string) ProbeOption {
	return func(c *probeConfig) {
		c.CacheDir = dir
	}
}

// WithTransport sets the transport beneath the cache.
func WithTransport(rt http.RoundTripper) ProbeOption {
	return func(c *probeConfig) {
		c.Transport = rt
	}
}

// WithProbeLogger sets the logger fetches are reported to.
func WithProbeLogger(l logrus.FieldLogger) ProbeOption {
	return func(c *probeConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// NewProber returns a prober with an in-memory cache unless WithCacheDir is given.
func NewProber(opts ...ProbeOption) *Prober {
	cfg := &probeConfig{
		Transport: http.DefaultTransport,
		Logger:    logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(cfg)
	}

	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if cfg.CacheDir != "" {
		cache = diskcache.New(cfg.CacheDir)
	}
	transport := httpcache.NewTransport(cache)
	transport.Transport = cfg.Transport

	return &Prober{
		client:  &http.Client{Transport: transport},
		logger:  cfg.Logger,
		schemas: map[string]*schema.Config{},
	}
}

// Check fetches every remote source of s and verifies it provides the
// fields s reads. Sources whose shape cannot be inferred (plain JSON) are
// fetched but not field-checked.
func (p *Prober) Check(ctx context.Context, s *spec.ChartSpec) error {
	reads := s.Fields()
	for _, ref := range s.Sources() {
		sch, err := p.Discover(ctx, ref)
		if err != nil {
			return err
		}
		if sch == nil {
			continue
		}
		if missing := missingFields(sch, reads[ref.Key()]); len(missing) > 0 {
			return &MismatchError{Source: ref.Key(), Missing: missing}
		}
	}
	return nil
}

// Discover fetches ref and returns its schema, or nil for formats without one.
func (p *Prober) Discover(ctx context.Context, ref spec.DataRef) (*schema.Config, error) {
	body, err := p.fetch(ctx, ref.URL)
	if err != nil {
		return nil, err
	}

	var sch *schema.Config
	switch formatOf(ref) {
	case spec.FormatTopoJSON:
		sch, err = schema.DiscoverFromTopoJSON(body, ref.Format.Feature)
		if errors.Is(err, schema.ErrFeatureNotFound) {
			return nil, &MismatchError{Source: ref.Key(), Missing: []string{ref.Format.Feature}}
		}
	case spec.FormatCSV:
		sch, err = schema.DiscoverFromCSV(body, schema.DiscoverOptions{SampleSize: 1000, Name: ref.URL})
	default:
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "probe %s", ref.Key())
	}

	p.mu.Lock()
	p.schemas[ref.Key()] = sch
	p.mu.Unlock()
	return sch, nil
}

// Schemas returns the schemas discovered so far, keyed by DataRef.Key.
func (p *Prober) Schemas() map[string]*schema.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]*schema.Config, len(p.schemas))
	for k, v := range p.schemas {
		out[k] = v
	}
	return out
}

func (p *Prober) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "probe %s", url)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch %s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", url)
	}
	p.logger.WithFields(logrus.Fields{
		"url":    url,
		"bytes":  len(body),
		"cached": resp.Header.Get(httpcache.XFromCache) == "1",
	}).Debug("🔎 probe: fetched source")
	return body, nil
}

func formatOf(ref spec.DataRef) string {
	if ref.Format.Type != "" {
		return ref.Format.Type
	}
	u := ref.URL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch strings.ToLower(path.Ext(u)) {
	case ".csv":
		return spec.FormatCSV
	case ".topojson":
		return spec.FormatTopoJSON
	}
	return spec.FormatJSON
}

// missingFields reports reads the source lacks. A nested read such as
// "geometry.type" is satisfied by its top-level field, except under a
// TopoJSON feature's properties, whose keys are known exactly.
func missingFields(sch *schema.Config, reads []string) []string {
	var out []string
	for _, f := range reads {
		if !covers(sch, f) {
			out = append(out, f)
		}
	}
	return out
}

func covers(sch *schema.Config, field string) bool {
	if sch.Has(field) {
		return true
	}
	for i := strings.Index(field, "."); i > 0; i = nextDot(field, i) {
		prefix := field[:i]
		if prefix == "properties" && sch.Format == "topojson" {
			continue
		}
		if sch.Has(prefix) {
			return true
		}
	}
	return false
}

func nextDot(s string, i int) int {
	j := strings.Index(s[i+1:], ".")
	if j < 0 {
		return -1
	}
	return i + 1 + j
}
