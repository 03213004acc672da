package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// IgnoreFileName is read from each scope root and adds manual deny patterns.
const IgnoreFileName = ".docindexignore"

// defaultDecisionCacheSize bounds the decision cache.
const defaultDecisionCacheSize = 8192

// Oracle answers allow/deny for a path on behalf of an agent.
// Implementations must be safe for concurrent use.
type Oracle interface {
	Check(path, agent string) Decision
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(path, agent string) Decision

// Check implements Oracle.
func (f OracleFunc) Check(path, agent string) Decision { return f(path, agent) }

// AllowAll is an Oracle that allows every path.
var AllowAll Oracle = OracleFunc(func(string, string) Decision { return Allow() })

// Rules configures a RuleOracle.
type Rules struct {
	// ScopeRoots limits access to files under these directories.
	// Empty means no scope restriction.
	ScopeRoots []string

	// SensitivePatterns are gitignore-style patterns matched case-insensitively.
	SensitivePatterns []string

	// DeniedTypes and AllowedTypes are extensions with a leading dot.
	// AllowedTypes empty means every non-denied type is allowed.
	DeniedTypes  []string
	AllowedTypes []string

	// MaxFileSize in bytes. Zero disables the check.
	MaxFileSize int64

	// ManualDeny are gitignore-style patterns denied outright.
	ManualDeny []string

	// AgentDenied maps an agent name to patterns that agent may not read.
	AgentDenied map[string][]string

	// CacheSize bounds the decision cache. Zero uses the default.
	CacheSize int
}

// RuleOracle is the built-in configuration-driven Oracle.
//
// Checks run in a fixed order and the first failing check names the reason:
// stat, scope, manual deny, sensitive path, agent, denied type, allowed type, size.
type RuleOracle struct {
	scope     []string
	manual    *Matcher
	sensitive *Matcher
	agents    map[string]*Matcher
	denied    map[string]struct{}
	allowed   map[string]struct{}
	maxSize   int64

	cache *lru.Cache[string, Decision]
}

// NewRuleOracle compiles rules into an oracle.
func NewRuleOracle(rules Rules) (*RuleOracle, error) {
	size := rules.CacheSize
	if size <= 0 {
		size = defaultDecisionCacheSize
	}
	cache, err := lru.New[string, Decision](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	o := &RuleOracle{
		manual:    NewMatcher(false, rules.ManualDeny...),
		sensitive: NewMatcher(true, rules.SensitivePatterns...),
		agents:    make(map[string]*Matcher, len(rules.AgentDenied)),
		denied:    extSet(rules.DeniedTypes),
		allowed:   extSet(rules.AllowedTypes),
		maxSize:   rules.MaxFileSize,
		cache:     cache,
	}

	for _, root := range rules.ScopeRoots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("invalid scope root %q: %w", root, err)
		}
		o.scope = append(o.scope, filepath.Clean(abs))

		ignore := filepath.Join(abs, IgnoreFileName)
		if _, err := os.Stat(ignore); err == nil {
			if err := o.manual.AddFromFile(ignore); err != nil {
				return nil, err
			}
		}
	}

	for agent, patterns := range rules.AgentDenied {
		o.agents[agent] = NewMatcher(false, patterns...)
	}

	return o, nil
}

// Check implements Oracle.
func (o *RuleOracle) Check(path, agent string) Decision {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Deny(ReasonStatFailed)
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return Deny(ReasonStatFailed)
	}

	key := fmt.Sprintf("%s\x00%s\x00%d\x00%d", agent, abs, info.Size(), info.ModTime().UnixNano())
	if d, ok := o.cache.Get(key); ok {
		return d
	}
	d := o.decide(abs, agent, info.Size())
	o.cache.Add(key, d)
	return d
}

func (o *RuleOracle) decide(abs, agent string, size int64) Decision {
	if !o.inScope(abs) {
		return Deny(ReasonOutOfScope)
	}
	if o.manual.Match(abs, false) {
		return Deny(ReasonManualPolicy)
	}
	if o.sensitive.Match(abs, false) {
		return Deny(ReasonSensitivePath)
	}
	if m, ok := o.agents[agent]; ok && m.Match(abs, false) {
		return Deny(ReasonAgentDenied)
	}

	ext := strings.ToLower(filepath.Ext(abs))
	if _, ok := o.denied[ext]; ok {
		return Deny(ReasonTypeDenied)
	}
	if len(o.allowed) > 0 {
		if _, ok := o.allowed[ext]; !ok {
			return Deny(ReasonTypeNotAllowed)
		}
	}

	if o.maxSize > 0 && size > o.maxSize {
		return Deny(ReasonFileTooLarge)
	}
	return Allow()
}

func (o *RuleOracle) inScope(abs string) bool {
	if len(o.scope) == 0 {
		return true
	}
	for _, root := range o.scope {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func extSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}
