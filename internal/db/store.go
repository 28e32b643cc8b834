package db

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Destination writes mirrored rows into the relational store.
type Destination struct {
	db *gorm.DB
}

func NewDestination(gdb *gorm.DB) *Destination {
	return &Destination{db: gdb}
}

// Upsert inserts row, or overwrites its UpdateColumns when a row with the same
// natural key already exists.
func (d *Destination) Upsert(ctx context.Context, row Row) error {
	conflict := make([]clause.Column, 0, len(row.ConflictColumns()))
	for _, name := range row.ConflictColumns() {
		conflict = append(conflict, clause.Column{Name: name})
	}

	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   conflict,
			DoUpdates: clause.AssignmentColumns(row.UpdateColumns()),
		}).
		Create(row).Error
}
