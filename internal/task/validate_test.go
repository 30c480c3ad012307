package task

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestValidator_CreateAppliesDefaults(t *testing.T) {
	v := MustNewValidator()

	f, err := v.Create(CreateInput{Title: "  Pay rent  "}, "owner-1")
	require.NoError(t, err)

	assert.Equal(t, "Pay rent", f.Title)
	assert.Equal(t, float64(DefaultImportance), f.Importance)
	assert.Equal(t, float64(DefaultUrgency), f.Urgency)
	assert.Equal(t, "owner-1", f.OwnerID)
	assert.Nil(t, f.DueDate)
	assert.Empty(t, f.ParentRef)
}

func TestValidator_CreateKeepsProvidedFields(t *testing.T) {
	v := MustNewValidator()

	f, err := v.Create(CreateInput{
		Title:      "File taxes",
		Importance: ptr(9.0),
		Urgency:    ptr(0.0),
		Link:       "https://example.com",
		DueDate:    "2026-04-15",
		Notes:      "bring receipts",
		ParentRef:  "parent-1",
	}, "owner-1")
	require.NoError(t, err)

	assert.Equal(t, 9.0, f.Importance)
	assert.Equal(t, 0.0, f.Urgency)
	assert.Equal(t, "https://example.com", f.Link)
	assert.Equal(t, "bring receipts", f.Notes)
	assert.Equal(t, "parent-1", f.ParentRef)
	require.NotNil(t, f.DueDate)
	assert.Equal(t, time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), *f.DueDate)
}

func TestValidator_CreateNormalizesTitle(t *testing.T) {
	v := MustNewValidator()

	// "e" followed by a combining acute accent composes to U+00E9.
	f, err := v.Create(CreateInput{Title: "Cafe\u0301"}, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "Caf\u00e9", f.Title)
}

func TestValidator_CreateRejects(t *testing.T) {
	v := MustNewValidator()

	tests := []struct {
		name  string
		in    CreateInput
		owner string
		field string
	}{
		{"blank title", CreateInput{Title: "   "}, "o", "title"},
		{"importance above range", CreateInput{Title: "x", Importance: ptr(11.0)}, "o", "importance"},
		{"urgency below range", CreateInput{Title: "x", Urgency: ptr(-1.0)}, "o", "urgency"},
		{"bad due date", CreateInput{Title: "x", DueDate: "next tuesday"}, "o", "dueDate"},
		{"due date past year 9999 in UTC", CreateInput{Title: "x", DueDate: "9999-12-31T23:00:00-05:00"}, "o", "dueDate"},
		{"missing owner", CreateInput{Title: "x"}, "", "ownerId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Create(tt.in, tt.owner)
			require.Error(t, err)
			assert.True(t, IsValidation(err))

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidator_Patch(t *testing.T) {
	v := MustNewValidator()

	var in PatchInput
	require.NoError(t, json.Unmarshal([]byte(`{"title":"Renamed","completed":true,"dueDate":null,"link":"  "}`), &in))

	p, err := v.Patch(in)
	require.NoError(t, err)

	require.NotNil(t, p.Title)
	assert.Equal(t, "Renamed", *p.Title)
	require.NotNil(t, p.Completed)
	assert.True(t, *p.Completed)
	assert.True(t, p.DueDate.Set)
	assert.Nil(t, p.DueDate.Value, "null clears the due date")
	assert.True(t, p.Link.Set)
	assert.Nil(t, p.Link.Value, "blank clears the link")
	assert.False(t, p.Notes.Set, "absent keys stay unset")
	assert.Nil(t, p.Importance)
}

func TestValidator_PatchRejects(t *testing.T) {
	v := MustNewValidator()

	_, err := v.Patch(PatchInput{})
	assert.True(t, IsValidation(err), "empty patch")

	_, err = v.Patch(PatchInput{Urgency: ptr(10.5)})
	assert.True(t, IsValidation(err), "out of range")

	_, err = v.Patch(PatchInput{Title: ptr("")})
	assert.True(t, IsValidation(err), "blank title")

	_, err = v.Patch(PatchInput{DueDate: Some("soon")})
	assert.True(t, IsValidation(err), "bad due date")

	_, err = v.Patch(PatchInput{DueDate: Some("0000-01-01T00:30:00+01:00")})
	assert.True(t, IsValidation(err), "due date before year 0000 in UTC")
}

func TestValidator_KeepsFarFutureDueDate(t *testing.T) {
	v := MustNewValidator()

	f, err := v.Create(CreateInput{Title: "Renew lease", DueDate: "2300-01-01"}, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, f.DueDate)
	assert.Equal(t, time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC), *f.DueDate)

	p, err := v.Patch(PatchInput{DueDate: Some("9999-12-31")})
	require.NoError(t, err)
	require.NotNil(t, p.DueDate.Value)
	assert.Equal(t, 9999, p.DueDate.Value.Year())
}

func TestPatchInput_MarshalOmitsUnset(t *testing.T) {
	in := PatchInput{Title: ptr("x"), Notes: Null[string]()}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"x","notes":null}`, string(data))
}

func TestParseDueDate(t *testing.T) {
	d, err := ParseDueDate("2026-10-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDueDate("2026-10-01T09:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 1, 7, 30, 0, 0, time.UTC), d)

	d, err = ParseDueDate("2026-10-01T09:30:00.123456789Z")
	require.NoError(t, err)
	assert.Equal(t, 123456000, d.Nanosecond(), "truncated to microseconds")

	_, err = ParseDueDate("tomorrow")
	assert.Error(t, err)
}
