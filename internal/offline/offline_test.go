package offline

import (
	"context"
	"testing"

	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = New(ModeDemo)
	require.NoError(t, err)
	assert.Equal(t, ModeDemo, s.Name())

	_, err = New("cached")
	assert.Error(t, err)
}

func TestDemoExam(t *testing.T) {
	exam, err := Demo{}.Exam(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, "42", exam.ID)
	assert.Equal(t, 30*60, exam.DurationSeconds())
	require.Len(t, exam.Questions, 3)
	for _, q := range exam.Questions {
		require.NotNil(t, q.CorrectOption)
		assert.True(t, q.HasOption(*q.CorrectOption))
	}
	assert.Nil(t, validator.Struct(exam))

	// Copies are independent.
	again, _ := Demo{}.Exam(context.Background(), "42")
	*again.Questions[0].CorrectOption = 0
	assert.Equal(t, 2, *exam.Questions[0].CorrectOption)
}
