package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
	"github.com/NOVA-ALLRounder/main-sub002/internal/policy"
)

// Scanner walks roots and classifies files.
type Scanner struct {
	opts       Options
	extensions map[string]struct{}
	skipDirs   map[string]struct{}
}

// New creates a Scanner, filling defaults for unset options.
func New(opts Options) *Scanner {
	if opts.Extensions == nil {
		opts.Extensions = DefaultExtensions
	}
	if opts.SkipDirs == nil {
		opts.SkipDirs = DefaultSkipDirs
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Oracle == nil {
		opts.Oracle = policy.AllowAll
	}
	exts := make([]string, 0, len(opts.Extensions))
	for _, e := range opts.Extensions {
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return &Scanner{
		opts:       opts,
		extensions: toSet(exts, true),
		skipDirs:   toSet(opts.SkipDirs, false),
	}
}

// Scan walks every root and returns all candidate files with their policy
// decisions. Unreadable directories and files that cannot be stat'ed are
// skipped, never reported as errors. A missing root is an error.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	candidates, err := s.walk(ctx)
	if err != nil {
		return nil, err
	}

	// Each worker writes only its own slot; the merge happens after Wait.
	slots := make([]*ScannedFile, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, path := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = s.inspect(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Files: make([]ScannedFile, 0, len(slots))}
	for _, f := range slots {
		if f == nil {
			res.StatFailed++
			continue
		}
		res.Files = append(res.Files, *f)
	}
	sortFiles(res.Files)

	slog.Debug("scan_complete",
		slog.Int("candidates", len(candidates)),
		slog.Int("files", len(res.Files)),
		slog.Int("stat_failed", res.StatFailed))

	return res, nil
}

// walk collects candidate paths, pruning skipped and hidden directories.
func (s *Scanner) walk(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	for _, root := range s.opts.Roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			return nil, docerrors.ScanError(absRoot, err).WithSuggestion("Check paths.roots in the configuration")
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
		}

		err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				slog.Debug("scan_skip_unreadable", slog.String("path", path), slog.String("error", err.Error()))
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if path != absRoot && s.pruneDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
				return nil
			}
			if !s.keepFile(d.Name()) {
				return nil
			}
			if _, dup := seen[path]; dup {
				return nil
			}
			seen[path] = struct{}{}
			out = append(out, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// pruneDir reports whether a directory should not be descended into. Every
// dot-directory is pruned except the allow-listed one.
func (s *Scanner) pruneDir(name string) bool {
	if _, skip := s.skipDirs[name]; skip {
		return true
	}
	if strings.HasPrefix(name, ".") {
		return name != s.opts.AllowedDotDir || s.opts.AllowedDotDir == ""
	}
	return false
}

// keepFile applies the hidden-file and extension filters.
func (s *Scanner) keepFile(name string) bool {
	if strings.HasPrefix(name, ".") && (s.opts.AllowedHiddenFile == "" || name != s.opts.AllowedHiddenFile) {
		return false
	}
	_, ok := s.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// inspect stats one file and asks the oracle about it. Returns nil when the
// file cannot be stat'ed.
func (s *Scanner) inspect(path string) *ScannedFile {
	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("scan_stat_failed", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}

	f := &ScannedFile{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		CTime:   changeTime(info),
		Ext:     strings.ToLower(filepath.Ext(path)),
		Owner:   ownerName(info),
		Drive:   driveOf(path),
	}

	d := s.opts.Oracle.Check(path, s.opts.Agent)
	if d.Allowed {
		f.Allowed = true
		return f
	}
	if d.Reason == "" || d.Reason == policy.ReasonOK {
		d = policy.Deny(d.Reason)
	}
	f.DenyReason = d.Reason
	slog.Debug("scan_policy_denied", slog.String("path", path), slog.String("reason", string(d.Reason)))
	return f
}

func driveOf(path string) string {
	if v := filepath.VolumeName(path); v != "" {
		return v
	}
	return string(filepath.Separator)
}
