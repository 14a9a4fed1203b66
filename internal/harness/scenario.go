package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a declarative end-to-end exercise of the sync core: a set
// of scripted server responses, a sequence of intents and push frames,
// and assertions on the final cache state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Viewer is the identity optimistic entities are authored under.
	Viewer Viewer `yaml:"viewer,omitempty"`

	// Mint lists the provisional ids and correlation refs to hand out, in
	// order. A scenario that mints more than it lists fails loudly.
	Mint []string `yaml:"mint,omitempty"`

	// Responses scripts the transport, queued per method and path.
	Responses []ScriptedResponse `yaml:"responses,omitempty"`

	// Steps is the intent/push sequence to execute.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Viewer is the scenario's local identity.
type Viewer struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

// ScriptedResponse is one queued transport reply.
type ScriptedResponse struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`

	// Body is the raw JSON reply. Ignored when Status is set.
	Body string `yaml:"body,omitempty"`

	// Status, when non-zero, scripts an API error with this HTTP status.
	Status int `yaml:"status,omitempty"`

	// Message is the server's error message for a Status reply.
	Message string `yaml:"message,omitempty"`
}

// Step is one scenario action: either an intent dispatched to a store
// (Op set) or a push frame delivered to the channel (Push set).
type Step struct {
	// Op names a store operation, e.g. "create_post" or "select_group".
	Op string `yaml:"op,omitempty"`

	// Args carries the operation's parameters.
	Args map[string]any `yaml:"args,omitempty"`

	// Push names a push event to deliver instead of an op.
	Push string `yaml:"push,omitempty"`

	// Data is the push frame payload, serialized to JSON before delivery.
	Data map[string]any `yaml:"data,omitempty"`

	// Expect is "ok" (default) or "error". A step whose outcome differs
	// fails the scenario.
	Expect string `yaml:"expect,omitempty"`
}

// Assertion validates one aspect of the final state.
type Assertion struct {
	// Type selects the check; see the Assert* constants.
	Type string `yaml:"type"`

	// ID targets an entity (post, comment, group, message).
	ID string `yaml:"id,omitempty"`

	// Key scopes collection checks: a post id for comments, a group id
	// for messages. Unused for the feed.
	Key string `yaml:"key,omitempty"`

	// Count is the expected collection size.
	Count int `yaml:"count,omitempty"`

	// IDs is the expected newest-first id order.
	IDs []string `yaml:"ids,omitempty"`

	// Total and ViewerChoice check an entity's reaction state.
	Total        int    `yaml:"total,omitempty"`
	ViewerChoice string `yaml:"viewer_choice,omitempty"`

	// Name checks a group's name; Selected the selected group id ("" for
	// none).
	Name     string `yaml:"name,omitempty"`
	Selected string `yaml:"selected,omitempty"`

	// Op and Outcome check that a mutation outcome was recorded.
	Op      string `yaml:"op,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`
}

// Assertion type constants.
const (
	AssertFeedOrder     = "feed_order"
	AssertFeedCount     = "feed_count"
	AssertPostReactions = "post_reactions"
	AssertCommentCount  = "comment_count"
	AssertCommentsOrder = "comments_order"
	AssertGroupsCount   = "groups_count"
	AssertGroupName     = "group_name"
	AssertSelected      = "selected"
	AssertMessagesOrder = "messages_order"
	AssertOutcome       = "outcome"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so a typoed key fails instead of silently validating nothing.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, r := range s.Responses {
		if r.Method == "" || r.Path == "" {
			return fmt.Errorf("responses[%d]: method and path are required", i)
		}
		if r.Status == 0 && r.Body == "" {
			return fmt.Errorf("responses[%d]: body or status is required", i)
		}
	}

	for i, step := range s.Steps {
		switch {
		case step.Op != "" && step.Push != "":
			return fmt.Errorf("steps[%d]: op and push are mutually exclusive", i)
		case step.Op == "" && step.Push == "":
			return fmt.Errorf("steps[%d]: op or push is required", i)
		}
		if step.Expect != "" && step.Expect != "ok" && step.Expect != "error" {
			return fmt.Errorf("steps[%d]: expect must be \"ok\" or \"error\"", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertFeedOrder, AssertCommentsOrder, AssertMessagesOrder:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for %s", index, a.Type)
		}
	case AssertFeedCount, AssertGroupsCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertPostReactions, AssertCommentCount:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for %s", index, a.Type)
		}
	case AssertGroupName:
		if a.ID == "" || a.Name == "" {
			return fmt.Errorf("assertions[%d]: id and name are required for group_name", index)
		}
	case AssertSelected:
		// Empty Selected asserts no selection.
	case AssertOutcome:
		if a.Op == "" || a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: op and outcome are required for outcome", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
