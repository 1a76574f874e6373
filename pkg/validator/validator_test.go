package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Text string `json:"text" validate:"notblank"`
	K    int    `json:"k" validate:"min=1,max=20"`
}

func TestStruct(t *testing.T) {
	v := New()

	assert.NoError(t, v.Struct(sample{Text: "refund policy", K: 4}))

	err := v.Struct(sample{Text: "   ", K: 0})
	require.Error(t, err)

	var verrs *ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs.Errors, 2)
	assert.Equal(t, []string{"text must not be blank"}, verrs.ForField("text"))
	assert.NotEmpty(t, verrs.ForField("k"))
	assert.Contains(t, err.Error(), "validation failed: ")
}

func TestStructWithLang(t *testing.T) {
	v := New()

	err := v.StructWithLang(sample{Text: "", K: 1}, "zh-CN")
	var verrs *ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "text不能为空白", verrs.First())
}
