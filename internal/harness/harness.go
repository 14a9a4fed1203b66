// Package harness executes declarative YAML scenarios against the real
// feed and chat stores, with a scripted transport standing in for the
// server and an in-memory channel standing in for the push socket. The
// final cache state is snapshotted for assertions and golden comparison.
package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/inankarim/feedsync/internal/chat"
	"github.com/inankarim/feedsync/internal/entity"
	"github.com/inankarim/feedsync/internal/feed"
	"github.com/inankarim/feedsync/internal/push"
	"github.com/inankarim/feedsync/internal/testutil"
)

// Result is the outcome of a scenario execution.
type Result struct {
	Pass     bool      `json:"pass"`
	Errors   []string  `json:"errors,omitempty"`
	Outcomes []Outcome `json:"outcomes,omitempty"`
	State    State     `json:"state"`
}

// Outcome is one recorded mutation outcome.
type Outcome struct {
	Op      string `json:"op"`
	Target  string `json:"target"`
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
}

// State is the final cache state, flattened for assertions and goldens.
type State struct {
	Feed     []PostView               `json:"feed"`
	Comments map[string][]CommentView `json:"comments,omitempty"`
	Groups   []GroupView              `json:"groups,omitempty"`
	Selected string                   `json:"selected,omitempty"`
	Messages map[string][]MessageView `json:"messages,omitempty"`
}

// PostView is the snapshot of one feed entry.
type PostView struct {
	ID           string `json:"id"`
	Text         string `json:"text,omitempty"`
	Total        int    `json:"reactions"`
	ViewerChoice string `json:"viewer_choice,omitempty"`
	CommentCount int    `json:"comment_count,omitempty"`
}

// CommentView is the snapshot of one thread entry.
type CommentView struct {
	ID           string `json:"id"`
	Text         string `json:"text,omitempty"`
	Total        int    `json:"reactions"`
	ViewerChoice string `json:"viewer_choice,omitempty"`
}

// GroupView is the snapshot of one group.
type GroupView struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members,omitempty"`
}

// MessageView is the snapshot of one chat message.
type MessageView struct {
	ID         string `json:"id"`
	Text       string `json:"text,omitempty"`
	Sender     string `json:"sender,omitempty"`
	Optimistic bool   `json:"optimistic,omitempty"`
}

func (r *Result) addError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// memoryRecorder collects mutation outcomes for assertions.
type memoryRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (m *memoryRecorder) Record(op, target, outcome, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, Outcome{Op: op, Target: target, Outcome: outcome, Message: message})
}

// Run executes a scenario against fresh stores. Each scenario is fully
// isolated: its own transport script, push channel, clock, and minted ids.
func Run(scenario *Scenario) (*Result, error) {
	api := testutil.NewTransport()
	for _, r := range scenario.Responses {
		if r.Status != 0 {
			api.ScriptError(r.Method, r.Path, r.Status, r.Message)
			continue
		}
		api.Script(r.Method, r.Path, testutil.Response{Body: r.Body})
	}

	ch := push.NewFake()
	rec := &memoryRecorder{}
	clk := entity.NewClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	viewer := func() entity.UserRef {
		if scenario.Viewer.ID == "" {
			return entity.PlaceholderViewer()
		}
		return entity.UserRef{ID: scenario.Viewer.ID, FullName: scenario.Viewer.Name}
	}

	var mint entity.Minter = entity.UUIDMinter{}
	if len(scenario.Mint) > 0 {
		mint = entity.NewFixedMinter(scenario.Mint...)
	}

	feedStore := feed.NewStore(api,
		feed.WithLogger(logger),
		feed.WithRecorder(rec),
		feed.WithMinter(mint),
		feed.WithClock(clk),
		feed.WithNow(testutil.Now),
		feed.WithViewer(viewer),
	)
	chatStore := chat.NewStore(api, ch,
		chat.WithLogger(logger),
		chat.WithRecorder(rec),
		chat.WithMinter(mint),
		chat.WithClock(clk),
		chat.WithNow(testutil.Now),
		chat.WithViewer(viewer),
	)
	chatStore.Start()

	run := &runner{
		feed:    feedStore,
		chat:    chatStore,
		ch:      ch,
		result:  &Result{Pass: true},
		threads: map[string]bool{},
		rooms:   map[string]bool{},
	}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := run.execute(ctx, i, step); err != nil {
			return nil, err
		}
	}

	run.result.Outcomes = rec.outcomes
	run.snapshot()
	evaluateAssertions(run.result, scenario.Assertions)
	return run.result, nil
}

type runner struct {
	feed   *feed.Store
	chat   *chat.Store
	ch     *push.Fake
	result *Result

	// Collection keys touched by steps, so the snapshot covers exactly
	// what the scenario exercised.
	threads map[string]bool
	rooms   map[string]bool
}

// execute runs one step. A step error is a scenario outcome, not a
// harness failure; only unknown ops and malformed payloads abort the run.
func (r *runner) execute(ctx context.Context, index int, step Step) error {
	if step.Push != "" {
		data, err := json.Marshal(step.Data)
		if err != nil {
			return fmt.Errorf("steps[%d]: marshal push data: %w", index, err)
		}
		if !r.ch.Deliver(push.Event(step.Push), json.RawMessage(data)) {
			r.result.addError(fmt.Sprintf("steps[%d]: no handler subscribed for push event %q", index, step.Push))
		}
		return nil
	}

	err, known := r.dispatch(ctx, step)
	if !known {
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	wantErr := step.Expect == "error"
	if wantErr && err == nil {
		r.result.addError(fmt.Sprintf("steps[%d]: %s succeeded, expected an error", index, step.Op))
	}
	if !wantErr && err != nil {
		r.result.addError(fmt.Sprintf("steps[%d]: %s failed: %v", index, step.Op, err))
	}
	return nil
}

func (r *runner) dispatch(ctx context.Context, step Step) (err error, known bool) {
	a := step.Args
	switch step.Op {
	case "fetch_posts":
		_, err = r.feed.FetchPosts(ctx, argInt(a, "page", 1), argInt(a, "limit", 10))
	case "create_post":
		_, err = r.feed.CreatePost(ctx, feed.Draft{Text: argString(a, "text"), Image: argString(a, "image")})
	case "update_post":
		_, err = r.feed.UpdatePost(ctx, argString(a, "id"), feed.Draft{Text: argString(a, "text"), Image: argString(a, "image")})
	case "delete_post":
		_, err = r.feed.DeletePost(ctx, argString(a, "id"))
	case "react_post":
		_, err = r.feed.ReactToPost(ctx, argString(a, "id"), entity.ReactionKind(argString(a, "kind")))
	case "fetch_comments":
		post := argString(a, "post")
		r.threads[post] = true
		_, err = r.feed.FetchComments(ctx, post, argInt(a, "page", 1), argInt(a, "limit", 10))
	case "add_comment":
		post := argString(a, "post")
		r.threads[post] = true
		_, err = r.feed.AddComment(ctx, post, feed.CommentDraft{
			Text:     argString(a, "text"),
			Image:    argString(a, "image"),
			ParentID: argString(a, "parent"),
		})
	case "update_comment":
		post := argString(a, "post")
		r.threads[post] = true
		_, err = r.feed.UpdateComment(ctx, post, argString(a, "id"), feed.CommentDraft{
			Text:  argString(a, "text"),
			Image: argString(a, "image"),
		})
	case "delete_comment":
		post := argString(a, "post")
		r.threads[post] = true
		_, err = r.feed.DeleteComment(ctx, post, argString(a, "id"))
	case "react_comment":
		post := argString(a, "post")
		r.threads[post] = true
		_, err = r.feed.ReactToComment(ctx, post, argString(a, "id"), entity.ReactionKind(argString(a, "kind")))
	case "fetch_groups":
		err = r.chat.FetchGroups(ctx)
	case "create_group":
		_, err = r.chat.CreateGroup(ctx, argString(a, "name"), argStrings(a, "members"))
	case "add_member":
		_, err = r.chat.AddMember(ctx, argString(a, "group"), argString(a, "user"))
	case "remove_member":
		_, err = r.chat.RemoveMember(ctx, argString(a, "group"), argString(a, "user"))
	case "rename_group":
		_, err = r.chat.RenameGroup(ctx, argString(a, "group"), argString(a, "name"))
	case "leave_group":
		_, err = r.chat.LeaveGroup(ctx, argString(a, "group"))
	case "select_group":
		group := argString(a, "group")
		if group != "" {
			r.rooms[group] = true
		}
		err = r.chat.Select(ctx, group)
	case "fetch_messages":
		group := argString(a, "group")
		r.rooms[group] = true
		_, err = r.chat.FetchMessages(ctx, group, argInt(a, "page", 1), argInt(a, "limit", 50))
	case "send_message":
		group := argString(a, "group")
		r.rooms[group] = true
		_, err = r.chat.SendMessage(ctx, group, chat.MessageDraft{
			Text:  argString(a, "text"),
			Image: argString(a, "image"),
		})
	default:
		return nil, false
	}
	return err, true
}

// snapshot flattens the stores' final state into the result.
func (r *runner) snapshot() {
	state := &r.result.State

	for _, p := range r.feed.Posts().Items {
		state.Feed = append(state.Feed, PostView{
			ID:           p.ID,
			Text:         p.Text,
			Total:        p.Reactions.Total,
			ViewerChoice: string(p.Reactions.ViewerChoice),
			CommentCount: p.CommentCount,
		})
	}
	if state.Feed == nil {
		state.Feed = []PostView{}
	}

	for post := range r.threads {
		views := []CommentView{}
		for _, c := range r.feed.Comments(post).Items {
			views = append(views, CommentView{
				ID:           c.ID,
				Text:         c.Text,
				Total:        c.Reactions.Total,
				ViewerChoice: string(c.Reactions.ViewerChoice),
			})
		}
		if state.Comments == nil {
			state.Comments = map[string][]CommentView{}
		}
		state.Comments[post] = views
	}

	for _, g := range r.chat.Groups() {
		view := GroupView{ID: g.ID, Name: g.Name}
		for _, m := range g.Members {
			view.Members = append(view.Members, m.ID)
		}
		state.Groups = append(state.Groups, view)
	}
	if selected, ok := r.chat.Selected(); ok {
		state.Selected = selected.ID
	}

	for group := range r.rooms {
		views := []MessageView{}
		for _, m := range r.chat.Messages(group).Items {
			views = append(views, MessageView{
				ID:         m.ID,
				Text:       m.Text,
				Sender:     m.Sender.ID,
				Optimistic: m.Optimistic,
			})
		}
		if state.Messages == nil {
			state.Messages = map[string][]MessageView{}
		}
		state.Messages[group] = views
	}
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func argStrings(args map[string]any, key string) []string {
	list, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
