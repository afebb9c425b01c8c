package ports

import (
	"context"

	"github.com/Arg0xel/SCM---current-work/domain/panel"
)

// PanelSource loads the raw observational panel from wherever it lives
// (workbook, CSV export, database). Implementations return the panel as
// observed; gap interpolation and coverage filtering happen downstream.
type PanelSource interface {
	LoadPanel(ctx context.Context) (*panel.Panel, error)
}
