// Package validator checks suggestion line ranges against the pull
// request's diff, so inline comments only target lines the diff can anchor.
package validator

import (
	"regexp"
	"strconv"
	"strings"

	"review-orchestrator/internal/domain"
)

// LineRange represents a range of commentable lines in a file.
type LineRange struct {
	Start int
	End   int
}

// LineValidator validates suggestion locations against diff ranges. Only
// lines added by the diff are valid anchors for inline suggestions.
type LineValidator struct {
	validRanges map[string][]LineRange
	allFiles    map[string]bool
}

var hunkPattern = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)

// NewLineValidator builds a validator from the changed files' patches.
func NewLineValidator(files []domain.ChangedFile) *LineValidator {
	v := &LineValidator{
		validRanges: make(map[string][]LineRange),
		allFiles:    make(map[string]bool),
	}
	for _, f := range files {
		file := domain.NormalizePath(f.Path)
		v.allFiles[file] = true
		v.parsePatch(file, f.Patch)
	}
	return v
}

// parsePatch extracts added-line ranges from one file's unified diff hunks.
func (v *LineValidator) parsePatch(file, patch string) {
	var lineNum int
	inHunk := false

	for _, line := range strings.Split(patch, "\n") {
		if m := hunkPattern.FindStringSubmatch(line); len(m) > 1 {
			lineNum, _ = strconv.Atoi(m[1])
			inHunk = true
			continue
		}
		if !inHunk {
			continue
		}

		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			v.addValidLine(file, lineNum)
			lineNum++
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			// Deleted lines do not advance the new-file line number.
		default:
			lineNum++
		}
	}
}

// addValidLine extends the last range when contiguous, otherwise opens a new
// one.
func (v *LineValidator) addValidLine(file string, line int) {
	ranges := v.validRanges[file]
	if n := len(ranges); n > 0 && ranges[n-1].End == line-1 {
		ranges[n-1].End = line
	} else {
		ranges = append(ranges, LineRange{Start: line, End: line})
	}
	v.validRanges[file] = ranges
}

// FileInDiff reports whether the file is part of the PR diff at all.
func (v *LineValidator) FileInDiff(file string) bool {
	return v.allFiles[domain.NormalizePath(file)]
}

// IsValid reports whether the suggestion's line range overlaps an added-line
// range of its file. Suggestions without line information are valid as long
// as the file is in the diff.
func (v *LineValidator) IsValid(s domain.CodeSuggestion) bool {
	file := domain.NormalizePath(s.RelevantFile)
	if file == "" {
		return true // PR-level suggestion, no anchor needed
	}
	if !v.allFiles[file] {
		return false
	}
	if s.RelevantLinesStart == 0 {
		return true
	}

	end := s.RelevantLinesEnd
	if end < s.RelevantLinesStart {
		end = s.RelevantLinesStart
	}
	for _, r := range v.validRanges[file] {
		if s.RelevantLinesStart <= r.End && end >= r.Start {
			return true
		}
	}
	return false
}
