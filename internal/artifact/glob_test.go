package artifact

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandBraces(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		{"no braces", "bin/*.dll", []string{"bin/*.dll"}},
		{"simple alternation", "*.{yml,yaml}", []string{"*.yml", "*.yaml"}},
		{"alternation with prefix and suffix", "cfg/{a,b}/app.json", []string{"cfg/a/app.json", "cfg/b/app.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, expandBraces(tt.pattern))
		})
	}
}

func TestCompileGlob(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"star matches one segment", "*.dll", "a.dll", true},
		{"star does not cross segment", "*.dll", "bin/a.dll", false},
		{"doublestar crosses segments", "bin/**/*.dll", "bin/debug/x64/a.dll", true},
		{"doublestar matches zero segments", "bin/**/*.dll", "bin/a.dll", true},
		{"question mark matches one char", "a?.txt", "ab.txt", true},
		{"question mark rejects extra char", "a?.txt", "abc.txt", false},
		{"character class", "file[0-9].log", "file3.log", true},
		{"character class rejects out of range", "file[0-9].log", "filex.log", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re, err := compileGlob(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, re.MatchString(tt.path))
		})
	}
}

func TestResolveGlob(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ws/bin/a.dll", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/ws/bin/b.dll", []byte("b"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/ws/bin/b.pdb", []byte("c"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/ws/README.md", []byte("d"), 0o644))

	matched, err := ResolveGlob(fs, "/ws", []string{"bin/**/*.dll"}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bin/a.dll", "bin/b.dll"}, matched)

	matched, err = ResolveGlob(fs, "/ws", []string{"bin/*"}, []string{"**/*.pdb"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bin/a.dll", "bin/b.dll"}, matched)

	matched, err = ResolveGlob(fs, "/ws", []string{"**/*", "!bin/b.dll"}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bin/a.dll", "bin/b.pdb", "README.md"}, matched)
}
