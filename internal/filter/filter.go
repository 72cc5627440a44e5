// Package filter implements step-selection expressions: include/skip by
// name, 1-based index, name range, and job, with "skip beats include"
// precedence and Levenshtein-based fuzzy name matching.
package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

// NameRange is an inclusive "From-To" step name range, e.g. "Build-Test".
type NameRange struct {
	From string
	To   string
}

// Filter composes the include/skip predicates for a run. Step indexes are
// 1-based within their owning job's Steps slice.
type Filter struct {
	IncludeNames   []string
	IncludeIndexes []int
	IncludeRanges  []NameRange
	IncludeJobs    []string
	SkipNames      []string
	SkipIndexes    []int

	// FuzzyThreshold is the maximum Levenshtein edit distance an
	// IncludeNames entry may be from a step name and still match. Zero means
	// exact, case-insensitive matching only.
	FuzzyThreshold int
}

// HasIncludes reports whether any include expression was configured. An
// empty include set means "all non-skipped steps run."
func (f *Filter) HasIncludes() bool {
	if f == nil {
		return false
	}
	return len(f.IncludeNames) > 0 || len(f.IncludeIndexes) > 0 ||
		len(f.IncludeRanges) > 0 || len(f.IncludeJobs) > 0
}

// Decision is a filter's verdict on one step, ignoring dependency effects
// (see the Preview package-level function for the dependency-aware pass).
type Decision struct {
	Include bool
	Reason  string
}

// Evaluate returns skip-beats-include decisions for every step of job, with
// index 1-based matching the --step-index CLI spec.
func (f *Filter) Evaluate(job pdkmodel.Job) []Decision {
	decisions := make([]Decision, len(job.Steps))
	for i, step := range job.Steps {
		decisions[i] = f.decide(job, step, i+1)
	}
	return decisions
}

func (f *Filter) decide(job pdkmodel.Job, step pdkmodel.Step, index int) Decision {
	if f.matchesSkipName(step.Name) {
		return Decision{Include: false, Reason: fmt.Sprintf("skipped by name %q", step.Name)}
	}
	if f.matchesSkipIndex(index) {
		return Decision{Include: false, Reason: fmt.Sprintf("skipped by index %d", index)}
	}

	if !f.HasIncludes() {
		return Decision{Include: true, Reason: "no include expressions configured"}
	}

	if reason, ok := f.matchesInclude(job, step, index); ok {
		return Decision{Include: true, Reason: reason}
	}
	return Decision{Include: false, Reason: "did not match any include expression"}
}

func (f *Filter) matchesInclude(job pdkmodel.Job, step pdkmodel.Step, index int) (string, bool) {
	if containsFold(f.IncludeJobs, job.Name) {
		return fmt.Sprintf("job %q included", job.Name), true
	}
	for _, name := range f.IncludeNames {
		if f.fuzzyMatch(name, step.Name) {
			return fmt.Sprintf("name matched %q", name), true
		}
	}
	for _, idx := range f.IncludeIndexes {
		if idx == index {
			return fmt.Sprintf("index matched %d", idx), true
		}
	}
	for _, r := range f.IncludeRanges {
		if inRange(job.Steps, step.Name, r) {
			return fmt.Sprintf("in range %s-%s", r.From, r.To), true
		}
	}
	return "", false
}

func (f *Filter) matchesSkipName(name string) bool {
	return containsFold(f.SkipNames, name)
}

func (f *Filter) matchesSkipIndex(index int) bool {
	for _, idx := range f.SkipIndexes {
		if idx == index {
			return true
		}
	}
	return false
}

func (f *Filter) fuzzyMatch(pattern, candidate string) bool {
	if strings.EqualFold(pattern, candidate) {
		return true
	}
	if f.FuzzyThreshold <= 0 {
		return false
	}
	return levenshtein.ComputeDistance(strings.ToLower(pattern), strings.ToLower(candidate)) <= f.FuzzyThreshold
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

// inRange reports whether stepName falls between r.From and r.To inclusive,
// in the declaration order of steps.
func inRange(steps []pdkmodel.Step, stepName string, r NameRange) bool {
	inside := false
	for _, s := range steps {
		if strings.EqualFold(s.Name, r.From) {
			inside = true
		}
		if inside && strings.EqualFold(s.Name, stepName) {
			return true
		}
		if strings.EqualFold(s.Name, r.To) {
			inside = false
		}
	}
	return false
}

// ParseIndexSpec parses a --step-index style spec ("2,4" or "2-5" or a mix,
// "2,4-6") into a sorted, de-duplicated set of 1-based indexes.
func ParseIndexSpec(spec string) ([]int, error) {
	seen := map[int]bool{}
	var out []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			if len(bounds) != 2 {
				return nil, fmt.Errorf("invalid index range %q", part)
			}
			from, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid index range %q: %w", part, err)
			}
			to, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid index range %q: %w", part, err)
			}
			if from > to {
				return nil, fmt.Errorf("invalid index range %q: from > to", part)
			}
			for i := from; i <= to; i++ {
				if !seen[i] {
					seen[i] = true
					out = append(out, i)
				}
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q: %w", part, err)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out, nil
}

// ParseNameRange parses a --step-range style spec ("Build-Test") into a
// NameRange. The separator is the first hyphen, so range endpoints may not
// themselves contain hyphens.
func ParseNameRange(spec string) (NameRange, error) {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return NameRange{}, fmt.Errorf("invalid step range %q, want From-To", spec)
	}
	return NameRange{From: parts[0], To: parts[1]}, nil
}
