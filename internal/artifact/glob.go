package artifact

import (
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// expandBraces expands a single `{a,b,c}` alternation (non-nested) into one
// pattern per alternative. Patterns with no braces expand to themselves.
func expandBraces(pattern string) []string {
	start := strings.IndexByte(pattern, '{')
	if start < 0 {
		return []string{pattern}
	}
	rel := strings.IndexByte(pattern[start:], '}')
	if rel < 0 {
		return []string{pattern}
	}
	end := start + rel
	prefix, suffix := pattern[:start], pattern[end+1:]

	var out []string
	for _, alt := range strings.Split(pattern[start+1:end], ",") {
		out = append(out, expandBraces(prefix+alt+suffix)...)
	}
	return out
}

// compileGlob translates one glob pattern into an anchored regexp:
// `**` matches any depth, `*` matches a path segment, `?` matches one
// char, `[...]` is a character class.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")

	runes := []rune(pattern)
	n := len(runes)
	for i := 0; i < n; {
		switch c := runes[i]; {
		case c == '*' && i+1 < n && runes[i+1] == '*':
			i += 2
			if i < n && runes[i] == '/' {
				i++
				sb.WriteString("(?:.*/)?")
			} else {
				sb.WriteString(".*")
			}
		case c == '*':
			sb.WriteString("[^/]*")
			i++
		case c == '?':
			sb.WriteString("[^/]")
			i++
		case c == '[':
			j := i + 1
			for j < n && runes[j] != ']' {
				j++
			}
			if j >= n {
				sb.WriteString(regexp.QuoteMeta(string(c)))
				i++
				continue
			}
			sb.WriteString(string(runes[i : j+1]))
			i = j + 1
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// ResolveGlob walks root and returns the slash-separated relative paths of
// regular files selected by include (honoring leading `!` negation entries
// within the include list) and not removed by exclude.
func ResolveGlob(fsys afero.Fs, root string, include, exclude []string) ([]string, error) {
	var allFiles []string
	err := afero.Walk(fsys, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := relSlash(root, p)
		if relErr != nil {
			return relErr
		}
		allFiles = append(allFiles, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	type rule struct {
		re      *regexp.Regexp
		negate  bool
	}
	var rules []rule
	for _, pat := range include {
		negate := strings.HasPrefix(pat, "!")
		clean := strings.TrimPrefix(pat, "!")
		for _, expanded := range expandBraces(clean) {
			re, cErr := compileGlob(expanded)
			if cErr != nil {
				return nil, cErr
			}
			rules = append(rules, rule{re: re, negate: negate})
		}
	}

	var excludeRes []*regexp.Regexp
	for _, pat := range exclude {
		for _, expanded := range expandBraces(strings.TrimPrefix(pat, "!")) {
			re, cErr := compileGlob(expanded)
			if cErr != nil {
				return nil, cErr
			}
			excludeRes = append(excludeRes, re)
		}
	}

	selected := make(map[string]bool, len(allFiles))
	for _, f := range allFiles {
		for _, r := range rules {
			if r.re.MatchString(f) {
				selected[f] = !r.negate
			}
		}
	}

	var out []string
	for f, keep := range selected {
		if !keep {
			continue
		}
		excluded := false
		for _, re := range excludeRes {
			if re.MatchString(f) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out, nil
}

// relSlash returns p relative to root using forward slashes regardless of
// platform, so glob patterns are portable.
func relSlash(root, p string) (string, error) {
	rel := strings.TrimPrefix(p, root)
	rel = strings.TrimPrefix(rel, "/")
	return path.Clean(filepathToSlash(rel)), nil
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
