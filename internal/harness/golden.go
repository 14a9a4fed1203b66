package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// snapshotDoc is the serialized form compared against golden files.
type snapshotDoc struct {
	Scenario string    `json:"scenario"`
	Pass     bool      `json:"pass"`
	Errors   []string  `json:"errors,omitempty"`
	Outcomes []Outcome `json:"outcomes,omitempty"`
	State    State     `json:"state"`
}

// RunWithGolden executes a scenario and compares its final state against
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	doc := snapshotDoc{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Errors:   result.Errors,
		Outcomes: result.Outcomes,
		State:    result.State,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
