package mcp

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
	"github.com/NOVA-ALLRounder/main-sub002/internal/ui"
)

type fakeSearcher struct {
	hits    []search.Hit
	err     error
	gotK    int
	gotOpts search.Options
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, topK int, opts search.Options) ([]search.Hit, error) {
	f.calls++
	f.gotK = topK
	f.gotOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeStatus struct{ info ui.StatusInfo }

func (f fakeStatus) Status() ui.StatusInfo { return f.info }

type docSet map[string]struct{}

func newDocSet(paths ...string) docSet {
	d := docSet{}
	for _, p := range paths {
		d[p] = struct{}{}
	}
	return d
}

func (d docSet) Paths() []string {
	out := make([]string, 0, len(d))
	for p := range d {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (d docSet) HasPath(path string) bool {
	_, ok := d[path]
	return ok
}

func newTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	if cfg.Status == nil {
		cfg.Status = fakeStatus{info: ui.StatusInfo{Indexed: true, Documents: 2, Rows: 5, Model: "hash-64"}}
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	return srv
}
