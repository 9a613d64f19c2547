package revision

import (
	"encoding/json"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	// FormatPatch is a JSON object of diffmatchpatch patch texts keyed by field.
	FormatPatch = "dmp-patch+json"
	// FormatSnapshot marks a revision that stores no diff.
	FormatSnapshot = "snapshot"
)

// Snapshot is the diffed state of a note.
type Snapshot struct {
	Title   string
	Content string
}

// Differ computes the diff stored in a revision.
type Differ func(before, after Snapshot) (string, error)

type patchEnvelope struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// PatchDiff is the default Differ.
func PatchDiff(before, after Snapshot) (string, error) {
	dmp := diffmatchpatch.New()
	env := patchEnvelope{
		Title:   dmp.PatchToText(dmp.PatchMake(before.Title, after.Title)),
		Content: dmp.PatchToText(dmp.PatchMake(before.Content, after.Content)),
	}

	out, err := json.Marshal(env)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

// ApplyPatch replays a FormatPatch diff on top of before.
func ApplyPatch(before Snapshot, diff string) (Snapshot, error) {
	if diff == "" {
		return before, nil
	}

	var env patchEnvelope
	if err := json.Unmarshal([]byte(diff), &env); err != nil {
		return Snapshot{}, err
	}

	dmp := diffmatchpatch.New()
	title, err := apply(dmp, before.Title, env.Title)
	if err != nil {
		return Snapshot{}, fmt.Errorf("title: %w", err)
	}
	content, err := apply(dmp, before.Content, env.Content)
	if err != nil {
		return Snapshot{}, fmt.Errorf("content: %w", err)
	}

	return Snapshot{Title: title, Content: content}, nil
}

func apply(dmp *diffmatchpatch.DiffMatchPatch, text, patchText string) (string, error) {
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return "", err
	}

	out, applied := dmp.PatchApply(patches, text)
	for _, ok := range applied {
		if !ok {
			return "", fmt.Errorf("patch did not apply")
		}
	}

	return out, nil
}
