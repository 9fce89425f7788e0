package reconcile

import (
	"fmt"

	"github.com/starford/plansync/internal/apperr"
	"github.com/starford/plansync/internal/models"
)

// Export returns the current document with its export summary.
func (e *Engine) Export() *models.ExportDocument {
	return models.Export(e.ledger.Snapshot(), e.now())
}

// Compare diffs the current document against an earlier export.
func (e *Engine) Compare(exported *models.ExportDocument) models.ProgressComparison {
	return models.Compare(e.ledger.Snapshot(), exported, e.now())
}

// Import replaces the document with an exported one. The export summary is
// dropped; the replacement is saved like any user edit.
func (e *Engine) Import(exported *models.ExportDocument) error {
	if exported == nil || exported.ProjectName == "" {
		return fmt.Errorf("reconcile: import: missing project name: %w", apperr.ErrInvalidInput)
	}
	doc := exported.ProjectDocument
	doc.Normalize()
	e.ledger.Replace(&doc, "")
	e.logger.Info("reconcile: document imported")
	return nil
}
