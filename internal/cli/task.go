package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/quadrant/internal/render"
	"github.com/roach88/quadrant/internal/task"
)

// TaskOptions holds the field flags shared by task add, subtask and update.
type TaskOptions struct {
	*RootOptions
	Title      string
	Importance float64
	Urgency    float64
	Due        string
	Link       string
	Notes      string
	Parent     string
	Completed  bool
	Clear      []string
}

// clearableFields are the fields update --clear accepts.
var clearableFields = []string{"due", "link", "notes", "parent"}

// NewTaskCommand creates the task command group.
func NewTaskCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, change and list tasks on a running server",
		Long: `Send task mutations to a running quadrant server.

Every subcommand connects to client.url, waits for the initial snapshot,
sends one event and prints the record the server acknowledged.

Examples:
  quadrant task add "Pay rent" --importance 8 --urgency 9 --due 2026-11-01
  quadrant task subtask 42 "Book flights"
  quadrant task update 0190b0c4-5c1e-7a3b-9f1e-1c2d3e4f5a6b --urgency 3 --clear due
  quadrant task toggle 0190b0c4-5c1e-7a3b-9f1e-1c2d3e4f5a6b
  quadrant task list --format json`,
	}

	cmd.PersistentFlags().String("url", "", "server WebSocket URL (overrides client.url)")

	cmd.AddCommand(newTaskAddCommand(rootOpts))
	cmd.AddCommand(newTaskSubtaskCommand(rootOpts))
	cmd.AddCommand(newTaskUpdateCommand(rootOpts))
	cmd.AddCommand(newTaskToggleCommand(rootOpts))
	cmd.AddCommand(newTaskDeleteCommand(rootOpts))
	cmd.AddCommand(newTaskListCommand(rootOpts))
	return cmd
}

func addFieldFlags(cmd *cobra.Command, opts *TaskOptions) {
	cmd.Flags().Float64Var(&opts.Importance, "importance", task.DefaultImportance, "importance score 0-10")
	cmd.Flags().Float64Var(&opts.Urgency, "urgency", task.DefaultUrgency, "urgency score 0-10")
	cmd.Flags().StringVar(&opts.Due, "due", "", "due date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&opts.Link, "link", "", "related URL")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")
}

// createInput builds a create payload from the flags the user set.
func (o *TaskOptions) createInput(cmd *cobra.Command, title string) task.CreateInput {
	in := task.CreateInput{
		Title:     title,
		DueDate:   o.Due,
		Link:      o.Link,
		Notes:     o.Notes,
		ParentRef: o.Parent,
	}
	if cmd.Flags().Changed("importance") {
		in.Importance = &o.Importance
	}
	if cmd.Flags().Changed("urgency") {
		in.Urgency = &o.Urgency
	}
	return in
}

// patchInput builds a patch holding only the flags the user set.
func (o *TaskOptions) patchInput(cmd *cobra.Command) (task.PatchInput, error) {
	var p task.PatchInput
	flags := cmd.Flags()
	if flags.Changed("title") {
		p.Title = &o.Title
	}
	if flags.Changed("importance") {
		p.Importance = &o.Importance
	}
	if flags.Changed("urgency") {
		p.Urgency = &o.Urgency
	}
	if flags.Changed("completed") {
		p.Completed = &o.Completed
	}
	if flags.Changed("due") {
		p.DueDate = task.Some(o.Due)
	}
	if flags.Changed("link") {
		p.Link = task.Some(o.Link)
	}
	if flags.Changed("notes") {
		p.Notes = task.Some(o.Notes)
	}
	if flags.Changed("parent") {
		p.ParentRef = task.Some(o.Parent)
	}

	for _, field := range o.Clear {
		switch field {
		case "due":
			p.DueDate = task.Null[string]()
		case "link":
			p.Link = task.Null[string]()
		case "notes":
			p.Notes = task.Null[string]()
		case "parent":
			p.ParentRef = task.Null[string]()
		default:
			return p, NewExitError(ExitCommandError,
				fmt.Sprintf("cannot clear %q: must be one of %v", field, clearableFields))
		}
	}
	return p, nil
}

func newTaskAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TaskOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordCommand(cmd, rootOpts, "create-task", func(cs *clientSession) (task.Task, error) {
				return cs.CreateTask(cmd.Context(), opts.createInput(cmd, strings.Join(args, " ")))
			})
		},
	}
	addFieldFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "parent task id or legacy id")
	return cmd
}

func newTaskSubtaskCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TaskOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "subtask <parent-ref> <title>",
		Short: "Create a subtask under a root task",
		Long: `Create a subtask. The parent is named by its id or by the identifier
it had before migration.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordCommand(cmd, rootOpts, "create-subtask", func(cs *clientSession) (task.Task, error) {
				in := opts.createInput(cmd, strings.Join(args[1:], " "))
				return cs.CreateSubtask(cmd.Context(), args[0], in)
			})
		},
	}
	addFieldFlags(cmd, opts)
	return cmd
}

func newTaskUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TaskOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a task",
		Long: `Change fields of a task. Only the flags given are sent; --clear removes
an optional field (due, link, notes, parent).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := opts.patchInput(cmd)
			if err != nil {
				return err
			}
			return runRecordCommand(cmd, rootOpts, "update-task", func(cs *clientSession) (task.Task, error) {
				return cs.UpdateTask(cmd.Context(), args[0], patch)
			})
		},
	}
	addFieldFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Title, "title", "", "new title")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "new parent task id or legacy id")
	cmd.Flags().BoolVar(&opts.Completed, "completed", false, "set completion state")
	cmd.Flags().StringSliceVar(&opts.Clear, "clear", nil, "optional fields to clear")
	return cmd
}

func newTaskToggleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip a task between active and completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordCommand(cmd, rootOpts, "toggle-completion", func(cs *clientSession) (task.Task, error) {
				return cs.ToggleCompletion(cmd.Context(), args[0])
			})
		},
	}
}

func newTaskDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Long:  "Delete a task. Its subtasks are kept and shown as root tasks.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			cs, err := openSession(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer cs.Close()

			if err := cs.DeleteTask(cmd.Context(), args[0]); err != nil {
				return f.Rejected("delete-task", err)
			}
			if f.Format == "json" {
				return f.Success(map[string]string{"id": args[0]})
			}
			return f.Success("deleted " + args[0])
		},
	}
}

func newTaskListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the reconciled task list once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			cs, err := openSession(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer cs.Close()

			v := cs.Reconciler().View()
			if f.Format == "json" {
				return f.Success(v)
			}
			return render.Text(cmd.OutOrStdout(), v)
		},
	}
}

// runRecordCommand opens a session, sends one record-returning request and
// prints the acknowledged record.
func runRecordCommand(cmd *cobra.Command, opts *RootOptions, op string, send func(*clientSession) (task.Task, error)) error {
	f := opts.formatter(cmd)
	cs, err := openSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer cs.Close()

	rec, err := send(cs)
	if err != nil {
		return f.Rejected(op, err)
	}
	f.VerboseLog("%s acknowledged: %s", op, rec.ID)

	if f.Format == "json" {
		return f.Success(rec)
	}
	return f.Success(render.Line(cs.node(rec)))
}
