package tool

import (
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// fileDiff summarizes one file change for tool result metadata.
type fileDiff struct {
	Text      string
	Additions int
	Deletions int
}

// diffFile computes a line-based patch between two versions of a file. The
// patch text carries ---/+++ headers with the path relative to workDir so
// the conversation log reads like git output.
func diffFile(path, before, after, workDir string) fileDiff {
	if before == after {
		return fileDiff{}
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	var d fileDiff
	for _, chunk := range diffs {
		switch chunk.Type {
		case diffmatchpatch.DiffInsert:
			d.Additions += countLines(chunk.Text)
		case diffmatchpatch.DiffDelete:
			d.Deletions += countLines(chunk.Text)
		}
	}

	patchText := dmp.PatchToText(dmp.PatchMake(before, diffs))
	if patchText == "" {
		return d
	}

	header := ""
	if rel := displayPath(path, workDir); rel != "" {
		header = "--- " + rel + "\n+++ " + rel + "\n"
	}
	d.Text = header + patchText
	return d
}

// displayPath shortens path relative to workDir when possible.
func displayPath(path, workDir string) string {
	if path == "" || workDir == "" {
		return path
	}
	if rel, err := filepath.Rel(workDir, path); err == nil {
		return rel
	}
	return path
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	lines := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		lines++
	}
	return lines
}
