package substrate

import "strings"

// runnerImages is the fixed table translating symbolic runner names to
// concrete image references.
var runnerImages = map[string]string{
	"ubuntu-latest":  "ubuntu:22.04",
	"ubuntu-22.04":   "ubuntu:22.04",
	"ubuntu-20.04":   "ubuntu:20.04",
	"windows-latest": "mcr.microsoft.com/windows/servercore:ltsc2022",
	"macos-latest":   "ubuntu:22.04", // no macOS container equivalent; closest POSIX image
}

// ResolveImage translates a symbolic runner designation to a concrete image
// reference. Any value already containing ":" or "/" is passed through as a
// literal reference.
func ResolveImage(runner string) string {
	if strings.ContainsAny(runner, ":/") {
		return runner
	}
	if image, ok := runnerImages[runner]; ok {
		return image
	}
	return runner
}
