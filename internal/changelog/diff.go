package changelog

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffResult partitions the lines of two texts.
type DiffResult struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged []string `json:"unchanged"`
}

// GenerateDiff compares two texts by line-set membership. Reordered but
// otherwise identical lines count as unchanged, so this diff cannot express
// moves or partial-line edits; use GenerateDiffLCS when positional fidelity
// matters. Lines in each partition are sorted lexically.
func GenerateDiff(oldText, newText string) DiffResult {
	oldLines := lineSet(oldText)
	newLines := lineSet(newText)

	added := make(map[string]struct{})
	removed := make(map[string]struct{})
	unchanged := make(map[string]struct{})

	for line := range newLines {
		if _, ok := oldLines[line]; ok {
			unchanged[line] = struct{}{}
		} else {
			added[line] = struct{}{}
		}
	}
	for line := range oldLines {
		if _, ok := newLines[line]; !ok {
			removed[line] = struct{}{}
		}
	}

	return DiffResult{
		Added:     sortedLines(added),
		Removed:   sortedLines(removed),
		Unchanged: sortedLines(unchanged),
	}
}

// GenerateDiffLCS compares two texts with a sequence-aligned line diff, so
// moved lines report as removed-then-added instead of unchanged. Lines keep
// document order within each partition.
func GenerateDiffLCS(oldText, newText string) DiffResult {
	dmp := diffmatchpatch.New()
	oldChars, newChars, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(oldChars, newChars, false), lines)

	var result DiffResult
	for _, diff := range diffs {
		for _, line := range splitLines(diff.Text) {
			switch diff.Type {
			case diffmatchpatch.DiffInsert:
				result.Added = append(result.Added, line)
			case diffmatchpatch.DiffDelete:
				result.Removed = append(result.Removed, line)
			case diffmatchpatch.DiffEqual:
				result.Unchanged = append(result.Unchanged, line)
			}
		}
	}
	return result
}

// FormatDiff renders a diff with unified-style +/- prefixes: removals first,
// then additions.
func FormatDiff(diff DiffResult) string {
	var b strings.Builder
	for _, line := range diff.Removed {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, line := range diff.Added {
		b.WriteString("+ ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func lineSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range splitLines(text) {
		set[line] = struct{}{}
	}
	return set
}

// splitLines breaks text into non-empty trimmed lines.
func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
