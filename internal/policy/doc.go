// Package policy decides whether a file may enter the indexing pipeline.
//
// The pipeline consumes policy through the Oracle interface: one call per
// file returning an allow/deny Decision with a Reason drawn from a closed
// enumeration. RuleOracle is the built-in implementation, driven by
// configuration:
//
//   - scope roots (anything outside is out_of_scope)
//   - manual deny patterns, including <scope root>/.docindexignore files
//   - sensitive path patterns (gitignore syntax, case-insensitive)
//   - per-agent denied path prefixes
//   - denied and allowed extension lists
//   - a maximum file size
//
// Denials are fail-closed: a denied file is recorded for auditing but never
// extracted, chunked or embedded.
//
// Usage:
//
//	o, err := policy.NewRuleOracle(policy.Rules{ScopeRoots: roots, DeniedTypes: []string{".exe"}})
//	d := o.Check("/corpus/a.txt", "indexer")
//	if !d.Allowed {
//	    log.Println(d.Reason)
//	}
package policy
