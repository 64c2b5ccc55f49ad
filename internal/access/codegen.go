package access

import (
	"strconv"
	"strings"
	"sync/atomic"
)

const (
	maxCodeLength = 50

	// GlobalScopeLabel is used in place of a facility code for
	// platform-wide grants.
	GlobalScopeLabel = "GLOBAL"

	rolePrefix        = "ROLE_"
	fallbackRoleLabel = "ROLE"
)

// CodeGenerator produces unique human-legible assignment codes of the form
// SCOPE-ROLE-SEQ. The sequence is a process-wide monotone counter; two
// concurrent calls never observe the same value.
type CodeGenerator struct {
	seq atomic.Int64
}

func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{}
}

// Seed raises the sequence to at least n. It never lowers it, so seeding
// after codes were already handed out is safe.
func (g *CodeGenerator) Seed(n int64) {
	for {
		cur := g.seq.Load()
		if cur >= n {
			return
		}
		if g.seq.CompareAndSwap(cur, n) {
			return
		}
	}
}

// SeedFromCodes raises the sequence above the largest numeric suffix found
// in the given codes. Called once at startup with every stored code.
func (g *CodeGenerator) SeedFromCodes(codes []string) {
	var max int64
	for _, code := range codes {
		if seq, ok := SequenceFromCode(code); ok && seq > max {
			max = seq
		}
	}
	g.Seed(max)
}

// Generate returns the next assignment code for the given scope label
// (a facility code, or GlobalScopeLabel for platform-wide grants) and role
// code. The result is uppercase and at most 50 characters; when truncation
// is needed the scope/role portion is cut, never the numeric suffix.
func (g *CodeGenerator) Generate(scopeLabel, roleCode string) string {
	scope := strings.TrimSpace(scopeLabel)
	if scope == "" {
		scope = GlobalScopeLabel
	}
	seq := g.seq.Add(1)
	suffix := "-" + strconv.FormatInt(seq, 10)
	prefix := strings.ToUpper(scope + "-" + StripRolePrefix(roleCode))
	if len(prefix)+len(suffix) > maxCodeLength {
		prefix = prefix[:maxCodeLength-len(suffix)]
	}
	return prefix + suffix
}

// Sequence returns the last emitted sequence value.
func (g *CodeGenerator) Sequence() int64 { return g.seq.Load() }

// StripRolePrefix removes the ROLE_ namespace from a role code for use
// inside assignment codes. Blank input falls back to a fixed literal.
func StripRolePrefix(roleCode string) string {
	code := strings.TrimSpace(roleCode)
	if code == "" {
		return fallbackRoleLabel
	}
	if len(code) >= len(rolePrefix) && strings.EqualFold(code[:len(rolePrefix)], rolePrefix) {
		code = code[len(rolePrefix):]
	}
	if code == "" {
		return fallbackRoleLabel
	}
	return code
}

// SequenceFromCode extracts the trailing numeric suffix of an assignment
// code. The second return is false when the code carries no parsable suffix.
func SequenceFromCode(code string) (int64, bool) {
	idx := strings.LastIndexByte(code, '-')
	if idx < 0 || idx == len(code)-1 {
		return 0, false
	}
	seq, err := strconv.ParseInt(code[idx+1:], 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}
