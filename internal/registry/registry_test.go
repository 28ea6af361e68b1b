package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/workcrew/internal/errors"
)

func TestNew_Builtins(t *testing.T) {
	r := New()

	w, ok := r.Get("analyst")
	require.True(t, ok)
	assert.True(t, w.Builtin)
	assert.Equal(t, CategoryAnalysis, w.Category)
	assert.NotEmpty(t, w.DefaultPrompt)

	assert.Len(t, r.List(), len(builtins))
	assert.Empty(t, r.Custom())
	assert.False(t, NewEmpty().Has("analyst"))
}

func TestRegister(t *testing.T) {
	r := New()

	custom := Worker{ID: "legal-review", Label: "Legal", DefaultPrompt: "Check for legal risk.", Category: "compliance"}
	require.NoError(t, r.Register(custom))

	got, ok := r.Get("legal-review")
	require.True(t, ok)
	assert.False(t, got.Builtin)
	assert.Equal(t, []Worker{got}, r.Custom())
	assert.Len(t, r.ByCategory("compliance"), 1)

	custom.Label = "Legal Review"
	require.NoError(t, r.Register(custom))
	got, _ = r.Get("legal-review")
	assert.Equal(t, "Legal Review", got.Label)
}

func TestRegister_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		worker Worker
		field  string
	}{
		{"bad id", Worker{ID: "Bad ID", Label: "x", DefaultPrompt: "p", Category: "c"}, "id"},
		{"empty id", Worker{Label: "x", DefaultPrompt: "p", Category: "c"}, "id"},
		{"empty label", Worker{ID: "w", Label: "  ", DefaultPrompt: "p", Category: "c"}, "label"},
		{"empty prompt", Worker{ID: "w", Label: "x", Category: "c"}, "default_prompt"},
		{"empty category", Worker{ID: "w", Label: "x", DefaultPrompt: "p"}, "category"},
		{"builtin override", Worker{ID: "writer", Label: "x", DefaultPrompt: "p", Category: "c"}, "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Register(tt.worker)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)

			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestRequire(t *testing.T) {
	r := New()
	assert.NoError(t, r.Require("writer", "editor"))

	err := r.Require("writer", "ghost")
	require.Error(t, err)
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "ghost", ve.Value)
}

func TestList_Sorted(t *testing.T) {
	list := New().List()
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		if prev.Category == cur.Category {
			assert.Less(t, prev.ID, cur.ID)
		} else {
			assert.Less(t, prev.Category, cur.Category)
		}
	}
}
