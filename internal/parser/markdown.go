package parser

import (
	"regexp"
	"strings"
)

const (
	argumentsMarker = "## Arguments"
	exportsMarker   = "## Exported fields"
	blocksMarker    = "## Blocks"
	usageMarker     = "## Usage"

	argumentColumns = 5
	exportColumns   = 3
	blockColumns    = 4

	codeFence = "```"
)

// lookupPattern matches the shared include directive, e.g.
// {{< docs/shared lookup="flow/reference/components/tls-config-block.md" ... >}}
var lookupPattern = regexp.MustCompile(`lookup="(?:[^"]*/)?([^"/]+)\.md"`)

// headingLevel returns the markdown heading level of a line, or 0.
func headingLevel(line string) int {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level == len(line) || line[level] != ' ' {
		return 0
	}
	return level
}

// sectionLines returns the lines following the heading that starts with
// marker, up to the first heading for which stop returns true. Headings inside
// code fences are ignored. The second result is false when no heading matched.
func sectionLines(lines []string, marker string, stop func(level int) bool) ([]string, bool) {
	start := -1
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), codeFence) {
			inFence = !inFence
			continue
		}
		if !inFence && strings.HasPrefix(line, marker) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, false
	}

	end := len(lines)
	inFence = false
	for i := start; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(strings.TrimSpace(line), codeFence) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if level := headingLevel(line); level > 0 && stop(level) {
			end = i
			break
		}
	}
	return lines[start:end], true
}

// anyHeading ends a section at the next heading of any level.
func anyHeading(int) bool { return true }

// headingAtMost ends a section at the next heading of level <= limit.
func headingAtMost(limit int) func(int) bool {
	return func(level int) bool { return level <= limit }
}

// subsection is a heading inside a section together with its body.
type subsection struct {
	title string
	lines []string
}

// subsections splits lines at headings of exactly the given level.
func subsections(lines []string, level int) []subsection {
	var (
		out     []subsection
		current *subsection
		inFence bool
	)
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), codeFence) {
			inFence = !inFence
		}
		if !inFence {
			if l := headingLevel(line); l > 0 && l <= level {
				if current != nil {
					out = append(out, *current)
					current = nil
				}
				if l == level {
					current = &subsection{title: strings.TrimSpace(line[l:])}
				}
				continue
			}
		}
		if current != nil {
			current.lines = append(current.lines, line)
		}
	}
	if current != nil {
		out = append(out, *current)
	}
	return out
}

// leadingTable keeps only the lines before the first heading, the part of a
// section a table can belong to.
func leadingTable(lines []string) []string {
	for i, line := range lines {
		if headingLevel(line) > 0 {
			return lines[:i]
		}
	}
	return lines
}

// tableRows extracts the data rows of pipe tables with exactly columns cells.
// A row is accepted only if, after stripping one leading and one trailing
// pipe, it splits into exactly columns cells. The first two accepted rows are
// the header and separator and are discarded.
func tableRows(lines []string, columns int) [][]string {
	var accepted [][]string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.Contains(trimmed, "|") {
			continue
		}
		trimmed = strings.TrimPrefix(trimmed, "|")
		trimmed = strings.TrimSuffix(trimmed, "|")

		cells := strings.Split(trimmed, "|")
		if len(cells) != columns {
			continue
		}
		for i, cell := range cells {
			cells[i] = strings.TrimSpace(strings.ReplaceAll(cell, "`", ""))
		}
		accepted = append(accepted, cells)
	}

	if len(accepted) <= 2 {
		return nil
	}
	return accepted[2:]
}

// lookupReference returns the shared definition name referenced in lines.
func lookupReference(lines []string) (string, bool) {
	for _, line := range lines {
		if match := lookupPattern.FindStringSubmatch(line); match != nil {
			return match[1], true
		}
	}
	return "", false
}

// documentation returns the excerpt starting at the back-ticked name up to
// the next blank line.
func documentation(name, text string) string {
	start := strings.Index(text, "`"+name+"`")
	if start < 0 {
		return ""
	}
	rest := text[start:]
	if end := strings.Index(rest, "\n\n"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// hasLabel reports whether the usage sample declares the component with a
// label. Components are labeled unless the sample opens them as `name {`.
func hasLabel(name string, lines []string) bool {
	usage, ok := sectionLines(lines, usageMarker, headingAtMost(2))
	if !ok {
		return true
	}
	unlabeled := regexp.MustCompile(`^\s*` + regexp.QuoteMeta(name) + `\s*\{`)
	for _, line := range usage {
		if unlabeled.MatchString(line) {
			return false
		}
	}
	return true
}

func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}
