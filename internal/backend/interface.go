package backend

import (
	"context"

	"mcdry/internal/sheets"
)

// MirrorType names a balance mirror implementation.
type MirrorType string

const (
	MemoryMirror MirrorType = "memory"
	SheetsMirror MirrorType = "sheets"
)

func (t MirrorType) String() string {
	return string(t)
}

func (t MirrorType) IsValid() bool {
	switch t {
	case MemoryMirror, SheetsMirror:
		return true
	default:
		return false
	}
}

// Config holds what the factory needs to build a mirror.
type Config struct {
	Type MirrorType

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// Factory creates mirrors based on configuration.
type Factory interface {
	CreateMirror(ctx context.Context, config Config) (sheets.BalanceMirror, error)
}
