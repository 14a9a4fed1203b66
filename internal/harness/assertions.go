package harness

import "fmt"

// evaluateAssertions checks every assertion against the final state,
// appending a descriptive error to the result for each mismatch.
func evaluateAssertions(result *Result, assertions []Assertion) {
	for i, a := range assertions {
		if msg := evaluate(result, &a); msg != "" {
			result.addError(fmt.Sprintf("assertions[%d] (%s): %s", i, a.Type, msg))
		}
	}
}

func evaluate(result *Result, a *Assertion) string {
	state := &result.State
	switch a.Type {
	case AssertFeedCount:
		if len(state.Feed) != a.Count {
			return fmt.Sprintf("feed has %d posts, want %d", len(state.Feed), a.Count)
		}
	case AssertFeedOrder:
		got := make([]string, len(state.Feed))
		for i, p := range state.Feed {
			got[i] = p.ID
		}
		if !equalIDs(got, a.IDs) {
			return fmt.Sprintf("feed order is %v, want %v", got, a.IDs)
		}
	case AssertPostReactions:
		for _, p := range state.Feed {
			if p.ID != a.ID {
				continue
			}
			if p.Total != a.Total {
				return fmt.Sprintf("post %s has %d reactions, want %d", a.ID, p.Total, a.Total)
			}
			if p.ViewerChoice != a.ViewerChoice {
				return fmt.Sprintf("post %s viewer choice is %q, want %q", a.ID, p.ViewerChoice, a.ViewerChoice)
			}
			return ""
		}
		return fmt.Sprintf("post %s not in feed", a.ID)
	case AssertCommentCount:
		for _, p := range state.Feed {
			if p.ID == a.ID {
				if p.CommentCount != a.Count {
					return fmt.Sprintf("post %s has comment count %d, want %d", a.ID, p.CommentCount, a.Count)
				}
				return ""
			}
		}
		return fmt.Sprintf("post %s not in feed", a.ID)
	case AssertCommentsOrder:
		got := make([]string, 0, 8)
		for _, c := range state.Comments[a.Key] {
			got = append(got, c.ID)
		}
		if !equalIDs(got, a.IDs) {
			return fmt.Sprintf("comments for %s are %v, want %v", a.Key, got, a.IDs)
		}
	case AssertGroupsCount:
		if len(state.Groups) != a.Count {
			return fmt.Sprintf("have %d groups, want %d", len(state.Groups), a.Count)
		}
	case AssertGroupName:
		for _, g := range state.Groups {
			if g.ID == a.ID {
				if g.Name != a.Name {
					return fmt.Sprintf("group %s is named %q, want %q", a.ID, g.Name, a.Name)
				}
				return ""
			}
		}
		return fmt.Sprintf("group %s not present", a.ID)
	case AssertSelected:
		if state.Selected != a.Selected {
			return fmt.Sprintf("selected group is %q, want %q", state.Selected, a.Selected)
		}
	case AssertMessagesOrder:
		got := make([]string, 0, 8)
		for _, m := range state.Messages[a.Key] {
			got = append(got, m.ID)
		}
		if !equalIDs(got, a.IDs) {
			return fmt.Sprintf("messages for %s are %v, want %v", a.Key, got, a.IDs)
		}
	case AssertOutcome:
		for _, o := range result.Outcomes {
			if o.Op == a.Op && o.Outcome == a.Outcome && (a.ID == "" || o.Target == a.ID) {
				return ""
			}
		}
		return fmt.Sprintf("no recorded outcome %s/%s", a.Op, a.Outcome)
	}
	return ""
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
