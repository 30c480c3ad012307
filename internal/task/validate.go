package task

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"golang.org/x/text/unicode/norm"
)

//go:embed schema.cue
var schemaSource string

// Validator checks inbound payloads against the embedded CUE schema.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so every
// check is serialised behind mu.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	create cue.Value
	patch  cue.Value
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile task schema: %w", err)
	}

	create := schema.LookupPath(cue.ParsePath("#CreateTask"))
	if !create.Exists() {
		return nil, fmt.Errorf("task schema: #CreateTask not defined")
	}
	patch := schema.LookupPath(cue.ParsePath("#PatchTask"))
	if !patch.Exists() {
		return nil, fmt.Errorf("task schema: #PatchTask not defined")
	}

	return &Validator{ctx: ctx, create: create, patch: patch}, nil
}

// MustNewValidator is NewValidator for the embedded schema, which is known good.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// NormalizeTitle NFC-normalises and trims a title.
func NormalizeTitle(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// Create validates a create payload and applies defaults.
// ownerID scopes the new record and must be non-empty.
func (v *Validator) Create(in CreateInput, ownerID string) (Fields, error) {
	title := NormalizeTitle(in.Title)

	doc := map[string]any{"title": title}
	if in.Importance != nil {
		doc["importance"] = *in.Importance
	}
	if in.Urgency != nil {
		doc["urgency"] = *in.Urgency
	}
	if in.Link != "" {
		doc["link"] = in.Link
	}
	if in.Notes != "" {
		doc["notes"] = in.Notes
	}
	if in.DueDate != "" {
		doc["dueDate"] = in.DueDate
	}
	if in.ParentRef != "" {
		doc["parentRef"] = in.ParentRef
	}
	if err := v.check(v.create, doc); err != nil {
		return Fields{}, err
	}

	if ownerID == "" {
		return Fields{}, &ValidationError{Field: "ownerId", Reason: "is required"}
	}

	f := Fields{
		Title:      title,
		Importance: DefaultImportance,
		Urgency:    DefaultUrgency,
		Link:       strings.TrimSpace(in.Link),
		Notes:      strings.TrimSpace(in.Notes),
		ParentRef:  strings.TrimSpace(in.ParentRef),
		OwnerID:    ownerID,
	}
	if in.Importance != nil {
		f.Importance = *in.Importance
	}
	if in.Urgency != nil {
		f.Urgency = *in.Urgency
	}
	if in.DueDate != "" {
		due, err := ParseDueDate(in.DueDate)
		if err != nil {
			return Fields{}, &ValidationError{Field: "dueDate", Reason: err.Error()}
		}
		f.DueDate = &due
	}

	return f, nil
}

// Patch validates an update payload. An empty patch is rejected.
func (v *Validator) Patch(in PatchInput) (Patch, error) {
	doc := map[string]any{}
	var p Patch

	if in.Title != nil {
		title := NormalizeTitle(*in.Title)
		doc["title"] = title
		p.Title = &title
	}
	if in.Importance != nil {
		doc["importance"] = *in.Importance
		p.Importance = in.Importance
	}
	if in.Urgency != nil {
		doc["urgency"] = *in.Urgency
		p.Urgency = in.Urgency
	}
	if in.Completed != nil {
		doc["completed"] = *in.Completed
		p.Completed = in.Completed
	}
	p.ParentRef = clearable(in.ParentRef, doc, "parentRef")
	p.Link = clearable(in.Link, doc, "link")
	p.Notes = clearable(in.Notes, doc, "notes")

	dueRaw := clearable(in.DueDate, doc, "dueDate")
	if dueRaw.Set {
		p.DueDate = Null[time.Time]()
		if dueRaw.Value != nil {
			due, err := ParseDueDate(*dueRaw.Value)
			if err != nil {
				return Patch{}, &ValidationError{Field: "dueDate", Reason: err.Error()}
			}
			p.DueDate = Some(due)
		}
	}

	if p.IsEmpty() {
		return Patch{}, &ValidationError{Reason: "patch contains no fields"}
	}
	if err := v.check(v.patch, doc); err != nil {
		return Patch{}, err
	}
	return p, nil
}

// clearable trims a nullable text field, treating blank as an explicit clear,
// and records present values in doc for schema checking.
func clearable(in Nullable[string], doc map[string]any, key string) Nullable[string] {
	if !in.Set {
		return Nullable[string]{}
	}
	if in.Value == nil {
		return Null[string]()
	}
	s := strings.TrimSpace(*in.Value)
	if s == "" {
		return Null[string]()
	}
	doc[key] = s
	return Some(s)
}

func (v *Validator) check(def cue.Value, doc map[string]any) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	val := def.Unify(v.ctx.Encode(doc))
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return fromCUE(err)
	}
	return nil
}

// fromCUE converts the first CUE error into a ValidationError.
func fromCUE(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	ve := &ValidationError{Reason: fmt.Sprintf(format, args...)}
	// Paths are rooted at the schema definition; the leaf is the payload key.
	if path := first.Path(); len(path) > 0 {
		ve.Field = path[len(path)-1]
	}
	return ve
}
