// Package security implements the Security Gate (spec.md §4.1): path
// validation, input sanitization, advisory locks and audit logging. The
// Storage Engine takes the gate's per-entity write locks; its file reads and
// writes do not pass through ValidatePath.
package security

import (
	"path/filepath"
	"strings"

	"taskforge/internal/config"
	"taskforge/internal/core"
)

// Op is the kind of filesystem access being validated.
type Op string

const (
	OpRead    Op = "read"
	OpWrite   Op = "write"
	OpExecute Op = "execute"
)

// ViolationKind classifies why validatePath rejected a path.
type ViolationKind string

const (
	ViolationPathTraversal   ViolationKind = "pathTraversal"
	ViolationOutsideBoundary ViolationKind = "outsideBoundary"
	ViolationInvalidPath     ViolationKind = "invalidPath"
	ViolationInvalidExtension ViolationKind = "invalidExtension"
)

// Gate is the Security Gate: it owns the allowed-path policy, the lock
// table (locks.go) and the audit ring (audit.go).
type Gate struct {
	cfg *config.SecurityConfig

	locks *lockTable
	audit *AuditLog
}

// New builds a Gate from the security section of a Config plus an audit
// retention window (days).
func New(cfg *config.SecurityConfig, retentionDays int) *Gate {
	return &Gate{
		cfg:   cfg,
		locks: newLockTable(),
		audit: NewAuditLog(retentionDays),
	}
}

// ValidatePath resolves input against the configured allowed roots for op,
// rejecting traversal, extension or boundary violations (spec.md §4.1).
func (g *Gate) ValidatePath(input string, op Op) (string, *core.Error) {
	if strings.Contains(input, "..") || strings.Contains(input, "~") {
		g.audit.Log(EventSecurity, SeverityHigh, "validatePath", "denied",
			map[string]any{"path": input, "kind": ViolationPathTraversal})
		return "", core.NewError(core.KindPermission, "path traversal rejected: %s", input).
			WithDetail("kind", ViolationPathTraversal)
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return "", core.NewError(core.KindValidation, "invalid path %q: %v", input, err).
			WithDetail("kind", ViolationInvalidPath)
	}
	abs = filepath.Clean(abs)

	roots := g.cfg.AllowedReadPaths
	if op == OpWrite {
		roots = g.cfg.AllowedWritePaths
	}
	if len(roots) == 0 {
		// No boundary configured: treat as unrestricted, matching a test/dev
		// default; production configs set explicit roots.
		return abs, nil
	}

	ok := false
	for _, root := range roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rootAbs = filepath.Clean(rootAbs)
		if abs == rootAbs || strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
			ok = true
			break
		}
	}
	if !ok {
		g.audit.Log(EventSecurity, SeverityHigh, "validatePath", "denied",
			map[string]any{"path": abs, "kind": ViolationOutsideBoundary})
		return "", core.NewError(core.KindPermission, "path outside allowed boundary: %s", abs).
			WithDetail("kind", ViolationOutsideBoundary)
	}

	if len(g.cfg.AllowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(abs))
		allowed := false
		for _, e := range g.cfg.AllowedExtensions {
			if strings.ToLower(e) == ext {
				allowed = true
				break
			}
		}
		if !allowed {
			g.audit.Log(EventSecurity, SeverityMedium, "validatePath", "denied",
				map[string]any{"path": abs, "kind": ViolationInvalidExtension})
			return "", core.NewError(core.KindValidation, "extension %q not allowed", ext).
				WithDetail("kind", ViolationInvalidExtension)
		}
	}

	g.audit.Log(EventSecurity, SeverityLow, "validatePath", "allowed", map[string]any{"path": abs})
	return abs, nil
}

// Audit exposes the gate's audit log for read access (e.g. diagnostics).
func (g *Gate) Audit() *AuditLog { return g.audit }
