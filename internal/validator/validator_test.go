package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Email    string `json:"email" validate:"required,email,no_disposable_email"`
	Password string `json:"password" validate:"required,password_strength"`
	Name     string `json:"name" validate:"required,min=2,max=50"`
}

type schedule struct {
	StartsAt time.Time `json:"startsAt" validate:"future"`
	At       string    `json:"at" validate:"hhmm"`
	Timezone string    `json:"timezone" validate:"iana_tz"`
	Level    string    `json:"level" validate:"oneof=beginner intermediate advanced"`
}

func TestValidator_Signup(t *testing.T) {
	v := New()

	tests := []struct {
		name  string
		input signup
		field string
		rule  string
	}{
		{name: "valid", input: signup{Email: "ada@example.com", Password: "abc123", Name: "Ada"}},
		{name: "missing_email", input: signup{Password: "abc123", Name: "Ada"}, field: "email", rule: "required"},
		{name: "disposable_email", input: signup{Email: "ada@Mailinator.com", Password: "abc123", Name: "Ada"}, field: "email", rule: "no_disposable_email"},
		{name: "short_password", input: signup{Email: "ada@example.com", Password: "ab12", Name: "Ada"}, field: "password", rule: "password_strength"},
		{name: "password_without_digit", input: signup{Email: "ada@example.com", Password: "abcdefgh", Name: "Ada"}, field: "password", rule: "password_strength"},
		{name: "short_name", input: signup{Email: "ada@example.com", Password: "abc123", Name: "A"}, field: "name", rule: "min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if tt.field == "" {
				assert.NoError(t, err)
				assert.Nil(t, FieldErrors(err))
				return
			}
			fields := FieldErrors(err)
			require.Len(t, fields, 1)
			assert.Equal(t, tt.field, fields[0].Field)
			assert.Equal(t, tt.rule, fields[0].Rule)
			assert.NotEmpty(t, fields[0].Message)
		})
	}
}

func TestValidator_Schedule(t *testing.T) {
	v := New()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	valid := schedule{StartsAt: now.Add(time.Hour), At: "09:30", Timezone: "Europe/Amsterdam", Level: "beginner"}
	require.NoError(t, v.Validate(valid))

	tests := []struct {
		name    string
		mutate  func(s *schedule)
		field   string
		message string
	}{
		{name: "past_start", mutate: func(s *schedule) { s.StartsAt = now.Add(-time.Minute) }, field: "startsAt", message: "startsAt must be in the future"},
		{name: "bad_clock", mutate: func(s *schedule) { s.At = "24:00" }, field: "at", message: "at must use the HH:MM format"},
		{name: "local_timezone", mutate: func(s *schedule) { s.Timezone = "Local" }, field: "timezone", message: "timezone must be an IANA timezone name"},
		{name: "unknown_timezone", mutate: func(s *schedule) { s.Timezone = "Mars/Olympus" }, field: "timezone", message: "timezone must be an IANA timezone name"},
		{name: "bad_level", mutate: func(s *schedule) { s.Level = "expert" }, field: "level", message: "level must be one of: beginner, intermediate, advanced"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			fields := FieldErrors(v.Validate(s))
			require.Len(t, fields, 1)
			assert.Equal(t, tt.field, fields[0].Field)
			assert.Equal(t, tt.message, fields[0].Message)
		})
	}
}

func TestValidator_Var(t *testing.T) {
	v := New()
	assert.NoError(t, v.Var("ada@example.com", "email"))
	assert.Error(t, v.Var("not-an-email", "email"))
}
