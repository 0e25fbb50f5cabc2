package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "nightly-backup", false},
		{"dots and underscores", "db.dump_v2", false},
		{"digits first", "1st-of-month", false},
		{"empty", "", true},
		{"space", "nightly backup", true},
		{"slash", "../etc/passwd", true},
		{"hash", "job#1", true},
		{"leading dash", "-job", true},
		{"too long", strings.Repeat("a", MaxNameLength+1), true},
		{"max length", strings.Repeat("a", MaxNameLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestJobPatch_Apply(t *testing.T) {
	job := Job{
		Name:        "report",
		Expression:  "0 9 * * *",
		Command:     "echo hi",
		Description: "old",
		Enabled:     true,
	}

	// Только описание — crontab не затрагивается
	desc := "new"
	changed := JobPatch{Description: &desc}.Apply(&job)
	assert.False(t, changed)
	assert.Equal(t, "new", job.Description)

	// Выражение обрезается от пробелов
	expr := "  */5 * * * * "
	changed = JobPatch{Expression: &expr}.Apply(&job)
	assert.True(t, changed)
	assert.Equal(t, "*/5 * * * *", job.Expression)

	// То же значение — не изменение
	same := "*/5 * * * *"
	changed = JobPatch{Expression: &same}.Apply(&job)
	assert.False(t, changed)

	disabled := false
	changed = JobPatch{Enabled: &disabled}.Apply(&job)
	assert.True(t, changed)
	assert.False(t, job.Enabled)

	// Остальные поля не тронуты
	assert.Equal(t, "report", job.Name)
	assert.Equal(t, "echo hi", job.Command)
}

func TestJobPatch_IsEmpty(t *testing.T) {
	assert.True(t, JobPatch{}.IsEmpty())

	name := "x"
	assert.False(t, JobPatch{Name: &name}.IsEmpty())
}
