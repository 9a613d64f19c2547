package report

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport_Record(t *testing.T) {
	r := New("tag_sync")
	assert.True(t, r.OK())
	assert.NoError(t, r.Err())

	assert.False(t, r.Record("create_tag", "q1", nil))
	assert.True(t, r.OK())

	cause := errors.New("boom")
	assert.True(t, r.Record("create_tag", "q1", cause))
	assert.False(t, r.OK())

	errs := r.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "tag_sync", errs[0].Op)
	assert.Equal(t, "q1", errs[0].Target)
	assert.ErrorIs(t, r.Err(), cause)
	assert.Equal(t, "tag_sync/create_tag q1: boom", errs[0].Error())
}

func TestReport_Merge(t *testing.T) {
	parent := New("update_note")
	child := New("tag_sync")
	child.Record("delete_pivot", "row-1", errors.New("gone"))

	parent.Merge(child)
	parent.Merge(nil)
	parent.Merge(parent)

	assert.Equal(t, []string{"delete_pivot"}, parent.Steps())
	assert.Equal(t, "tag_sync", parent.Errors()[0].Op)
}
