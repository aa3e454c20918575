package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "db error: boom", Db("boom").Error())
	assert.Equal(t, "boom", Other("boom").Error())

	var cause = errors.New("dial tcp: refused")
	var wrapped = Wrap(KindDb, cause, "connect error")
	assert.Contains(t, wrapped.Error(), "connect error")
	assert.Contains(t, wrapped.Error(), "dial tcp: refused")
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestToDetail(t *testing.T) {
	var d = ToDetail(Db("boom"))
	assert.Contains(t, d.What, "Database error: boom")
	assert.NotEmpty(t, d.Why)
	assert.NotEmpty(t, d.How)

	var d2 = ToDetail(Other("x"))
	assert.Contains(t, d2.What, "Unexpected error: x")

	var d3 = ToDetail(errors.New("plain"))
	assert.Contains(t, d3.What, "Unexpected error: plain")
}
