package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := NewMappingError("u1/2024-13-01", "invalid date")
	assert.Equal(t, "MAPPING_ERROR [u1/2024-13-01]: invalid date", err.Error())

	cause := errors.New("connection refused")
	open := NewSourceOpenError("emotion_records", cause)
	assert.Contains(t, open.Error(), "SOURCE_OPEN_ERROR [emotion_records]")
	assert.Contains(t, open.Error(), "connection refused")
	assert.ErrorIs(t, open, cause)
}

func TestError_IsAlreadyRunning(t *testing.T) {
	err := fmt.Errorf("trigger: %w", NewAlreadyRunning("backup log 7 is running"))
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
	assert.False(t, errors.Is(NewUpsertError("u1", errors.New("x")), ErrAlreadyRunning))
}

func TestIsKind(t *testing.T) {
	nested := NewUpsertError("s1#2", NewMappingError("s1#2", "empty content"))
	assert.True(t, IsKind(nested, KindUpsert))
	assert.True(t, IsKind(nested, KindMapping))
	assert.False(t, IsKind(nested, KindSourceOpen))
	assert.False(t, IsKind(errors.New("plain"), KindUpsert))
}
