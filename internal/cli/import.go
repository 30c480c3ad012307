package cli

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/quadrant/internal/store"
	"github.com/roach88/quadrant/internal/task"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	File   string
	DryRun bool
}

// LegacyFile is the export format of the prior storage system.
type LegacyFile struct {
	// Owner applies to tasks that carry none; defaults to owner.id.
	Owner string       `yaml:"owner,omitempty"`
	Tasks []LegacyTask `yaml:"tasks"`
}

// LegacyTask is one exported task. ID and ParentRef are the legacy
// identifiers and are stored unchanged.
type LegacyTask struct {
	ID          string     `yaml:"id"`
	Title       string     `yaml:"title"`
	Importance  *float64   `yaml:"importance,omitempty"`
	Urgency     *float64   `yaml:"urgency,omitempty"`
	Completed   bool       `yaml:"completed,omitempty"`
	CompletedAt *time.Time `yaml:"completedAt,omitempty"`
	ParentRef   string     `yaml:"parentRef,omitempty"`
	DueDate     string     `yaml:"dueDate,omitempty"`
	Link        string     `yaml:"link,omitempty"`
	Notes       string     `yaml:"notes,omitempty"`
	Owner       string     `yaml:"owner,omitempty"`
	CreatedAt   time.Time  `yaml:"createdAt,omitempty"`
}

// ImportResult summarises one import run.
type ImportResult struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
	DryRun   bool     `json:"dry_run,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import tasks exported from the legacy store",
		Long: `Import tasks from a legacy YAML export directly into the task store.

Each task keeps its original identifier as legacyId and its parentRef
unchanged, so clients resolve legacy parent links on their own. Importing
the same file twice inserts nothing the second time.

Exit codes:
  0 - All tasks imported or already present
  1 - One or more tasks were rejected
  2 - Command error (unreadable file, database not found, etc.)

Example:
  quadrant import --file legacy.yaml --db ./quadrant.db
  quadrant import --file legacy.yaml --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "legacy YAML export (required)")
	cmd.Flags().String("db", "", "path to SQLite database (overrides store.path)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "validate without writing")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions) error {
	f := opts.formatter(cmd)

	legacy, err := LoadLegacyFile(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read legacy file", err)
	}
	defaultOwner := legacy.Owner
	if defaultOwner == "" {
		defaultOwner = opts.Config.Owner.ID
	}

	validator, err := task.NewValidator()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load task schema", err)
	}

	var st *store.Store
	if !opts.DryRun {
		st, err = store.Open(opts.Config.Store.Path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	result := ImportResult{DryRun: opts.DryRun}
	for i, lt := range legacy.Tasks {
		rec, err := lt.record(validator, defaultOwner)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("tasks[%d] (id %q): %v", i, lt.ID, err))
			continue
		}
		if st == nil {
			result.Inserted++
			continue
		}

		_, inserted, err := st.ImportLegacy(cmd.Context(), rec)
		if err != nil {
			return WrapExitError(ExitCommandError, "import aborted", err)
		}
		if inserted {
			result.Inserted++
			f.VerboseLog("imported %s: %s", lt.ID, rec.Fields.Title)
		} else {
			result.Skipped++
			f.VerboseLog("skipped %s: already imported", lt.ID)
		}
	}

	if err := outputImport(f, result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d tasks rejected", result.Failed, len(legacy.Tasks)))
	}
	return nil
}

// LoadLegacyFile reads and parses a legacy export. Unknown keys are rejected.
func LoadLegacyFile(path string) (*LegacyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lf LegacyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&lf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &lf, nil
}

// record validates lt through the create schema and converts it for the store.
func (lt LegacyTask) record(v *task.Validator, defaultOwner string) (store.LegacyRecord, error) {
	id := strings.TrimSpace(lt.ID)
	if id == "" {
		return store.LegacyRecord{}, &task.ValidationError{Field: "id", Reason: "is required"}
	}
	owner := lt.Owner
	if owner == "" {
		owner = defaultOwner
	}

	fields, err := v.Create(task.CreateInput{
		Title:      lt.Title,
		Importance: lt.Importance,
		Urgency:    lt.Urgency,
		Link:       lt.Link,
		DueDate:    lt.DueDate,
		Notes:      lt.Notes,
		ParentRef:  lt.ParentRef,
	}, owner)
	if err != nil {
		return store.LegacyRecord{}, err
	}
	fields.LegacyID = id

	return store.LegacyRecord{
		Fields:      fields,
		Completed:   lt.Completed,
		CompletedAt: lt.CompletedAt,
		CreatedAt:   lt.CreatedAt,
	}, nil
}

func outputImport(f *OutputFormatter, result ImportResult) error {
	if f.Format == "json" {
		return f.Success(result)
	}

	w := f.Writer
	verb := "imported"
	if result.DryRun {
		verb = "would import"
	}
	fmt.Fprintf(w, "%s %d, skipped %d, rejected %d\n", verb, result.Inserted, result.Skipped, result.Failed)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  ✗ %s\n", e)
	}
	return nil
}
