package variables

import (
	"regexp"
	"strings"

	"github.com/pipelinedk/pdk/pkg/pdkerrors"
)

// MaxExpansionRounds is the hard cap on nested expansion: the expander
// terminates in at most this many rounds or reports CircularVariableReference.
const MaxExpansionRounds = 10

var (
	// ${NAME:?message}
	reRequired = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*):\?([^}]*)\}`)
	// ${NAME:-default}
	reDefault = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*):-([^}]*)\}`)
	// ${NAME}
	reBraced = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	// $NAME
	reBare = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	// escaped \${...}
	reEscaped = regexp.MustCompile(`\\\$(\{[^}]*\})`)

	escapePlaceholder = "\x00PDK_ESCAPED_DOLLAR\x00"
)

// Warner receives a warning when a bare/braced reference can't be resolved.
type Warner func(message string)

// Expand expands name references in s to a fixed point, honoring
// ${NAME:-default}, ${NAME:?message}, and backslash-escaped ${...} literals.
// It returns CircularVariableReference if expansion does not converge within
// MaxExpansionRounds, or MissingRequiredVariable if a ${NAME:?msg} reference
// is unset. A variable whose own value references itself (directly or
// through a chain) never reaches a fixed point and is caught by the round
// cap, which doubles as the cycle detector.
func Expand(s string, lookup func(string) (string, bool), warn Warner) (string, error) {
	out, err := expandRounds(s, lookup, warn, 0)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(out, escapePlaceholder, "$"), nil
}

func expandRounds(s string, lookup func(string) (string, bool), warn Warner, round int) (string, error) {
	if round >= MaxExpansionRounds {
		return "", pdkerrors.New(pdkerrors.CircularVariableReference).
			Message("variable expansion did not converge within the round cap").
			Build()
	}

	// Protect escaped sequences before matching real references.
	protected := reEscaped.ReplaceAllString(s, escapePlaceholder+"$1")

	changed := false
	var expErr error

	replaceWithTracking := func(re *regexp.Regexp, f func(match []string) string) string {
		return re.ReplaceAllStringFunc(protected, func(m string) string {
			if expErr != nil {
				return m
			}
			groups := re.FindStringSubmatch(m)
			out := f(groups)
			if out != m {
				changed = true
			}
			return out
		})
	}

	protected = replaceWithTracking(reRequired, func(g []string) string {
		name, msg := g[1], g[2]
		v, ok := lookup(name)
		if !ok {
			expErr = pdkerrors.New(pdkerrors.MissingRequiredVariable).
				Messagef("%s", msg).
				Context("name", name).
				Build()
			return g[0]
		}
		return v
	})
	if expErr != nil {
		return "", expErr
	}

	protected = replaceWithTracking(reDefault, func(g []string) string {
		name, def := g[1], g[2]
		v, ok := lookup(name)
		if !ok || v == "" {
			return def
		}
		return v
	})

	protected = replaceWithTracking(reBraced, func(g []string) string {
		name := g[1]
		v, ok := lookup(name)
		if !ok {
			if warn != nil {
				warn("unresolved variable reference: ${" + name + "}")
			}
			return g[0]
		}
		return v
	})

	protected = replaceWithTracking(reBare, func(g []string) string {
		name := g[1]
		v, ok := lookup(name)
		if !ok {
			if warn != nil {
				warn("unresolved variable reference: $" + name)
			}
			return g[0]
		}
		return v
	})

	result := protected

	if !changed || result == s {
		return result, nil
	}

	return expandRounds(result, lookup, warn, round+1)
}
