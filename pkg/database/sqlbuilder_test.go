package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type upsertRow struct {
	ID    string `db:"id"`
	Label string `db:"label"`
}

func TestStructInsertOnConflict(t *testing.T) {
	s := NewStruct(new(upsertRow))
	ib := s.InsertInto("things", &upsertRow{ID: "t1", Label: "first"})
	ub := ib.OnConflict("id")
	ub.Set(ub.Assign("label", Excluded("label")))

	sql, args := ib.Build()
	assert.Contains(t, sql, "INSERT INTO things")
	assert.Contains(t, sql, "ON CONFLICT (id) DO UPDATE")
	assert.Contains(t, sql, "label = EXCLUDED.label")
	assert.NotEmpty(t, args)
}
