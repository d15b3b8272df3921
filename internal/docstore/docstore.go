// Package docstore persists the analysis document and the impact-set
// document to the stable on-disk schema described in §6: plain JSON,
// unit keys sorted ascending, file-tree children in discovery order.
package docstore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/deltascope/deltascope/internal/unitmodel"
)

// MissingAnalysisError reports that a document named on the command line
// could not be opened or deserialized.
type MissingAnalysisError struct {
	Path   string
	Reason string
}

func (e *MissingAnalysisError) Error() string {
	return fmt.Sprintf("analysis document %s: %s", e.Path, e.Reason)
}

// sortedAnalysisDocument is the on-disk shape: a map doesn't guarantee
// Go's encoding/json preserves insertion order, but Go's json package
// does sort map keys lexically when marshaling map[string]V, which is
// exactly the ascending-by-name guarantee §4.5 requires. It's spelled out
// here instead of relied on silently because that guarantee is the whole
// reason this package doesn't need its own sorting pass before encoding.
type sortedAnalysisDocument struct {
	Files  map[string]*unitmodel.FileNode `json:"files"`
	Crates map[string][]string            `json:"crates"`
}

// WriteAnalysis encodes doc as the stable analysis-document JSON schema.
func WriteAnalysis(w io.Writer, doc *unitmodel.AnalysisDocument) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sortedAnalysisDocument{Files: doc.Files, Crates: doc.Crates})
}

// ReadAnalysis opens and deserializes an analysis document from path. A
// missing or malformed document is a *MissingAnalysisError, per §7.
func ReadAnalysis(path string) (*unitmodel.AnalysisDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &MissingAnalysisError{Path: path, Reason: err.Error()}
	}
	var doc unitmodel.AnalysisDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &MissingAnalysisError{Path: path, Reason: err.Error()}
	}
	return &doc, nil
}

// WriteImpact encodes set as the stable impact-set JSON schema: three
// top-level keys, each a sorted ascending list, per §6.
func WriteImpact(w io.Writer, set unitmodel.ImpactSet) error {
	set.Modified = sortedCopy(set.Modified)
	set.Affected = sortedCopy(set.Affected)
	set.Required = sortedCopy(set.Required)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(set)
}

func sortedCopy(list []string) []string {
	out := append([]string{}, list...)
	sort.Strings(out)
	return out
}
