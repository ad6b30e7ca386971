package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("property %s not found", "p1")))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("creating: %w", Conflict("duplicate"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", InvalidState("transfer is %s", "completed"))

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestInconsistentUnwraps(t *testing.T) {
	cause := errors.New("no rows")
	err := Inconsistent(cause, "cascade for transfer %s", "t1")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrInconsistent)
	assert.Contains(t, err.Error(), "no rows")
}

func TestMessageHidesInternalDetail(t *testing.T) {
	assert.Equal(t, "lsNumber already exists", Message(Conflict("lsNumber already exists")))
	assert.Equal(t, "internal error", Message(errors.New("database is locked")))
	assert.Equal(t, "internal error", Message(Inconsistent(errors.New("x"), "cascade")))
}
