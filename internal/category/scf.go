package category

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
)

// ReportRowsPrefix is where scf_no_row_tray stores one row per flagged item
const ReportRowsPrefix = "report-rows"

// ReportRow is the artifact scf_no_row_tray writes for an item it flags
type ReportRow struct {
	JobID                 string    `json:"job_id"`
	Barcode               string    `json:"barcode"`
	InstitutionCode       string    `json:"institution_code"`
	Location              string    `json:"location,omitempty"`
	AlternativeCallNumber string    `json:"alternative_call_number,omitempty"`
	InternalNote1         string    `json:"internal_note_1,omitempty"`
	ProcessedAt           time.Time `json:"processed_at"`
}

// SCFNoRowTray flags SCF items whose row/tray data is missing or malformed
// and records them for the staff report.
type SCFNoRowTray struct {
	logger    *slog.Logger
	artifacts domain.ArtifactStore
	now       func() time.Time
}

// NewSCFNoRowTray creates the scf_no_row_tray category
func NewSCFNoRowTray(logger *slog.Logger, artifacts domain.ArtifactStore) *SCFNoRowTray {
	return &SCFNoRowTray{
		logger:    logger,
		artifacts: artifacts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source
func (c *SCFNoRowTray) WithClock(now func() time.Time) *SCFNoRowTray {
	c.now = now
	return c
}

func (c *SCFNoRowTray) Name() string {
	return SCFNoRowTrayName
}

func (c *SCFNoRowTray) Matches(item *domain.Item) bool {
	if inDiscardLocation(item) {
		return false
	}
	if !slices.Contains(checkedProvenance, item.Provenance) {
		return false
	}
	if hasExcludedNote(item) {
		return false
	}
	return missingRowTray(item) || wrongRowTray(item, true)
}

func (c *SCFNoRowTray) Apply(ctx context.Context, tc TriageContext) error {
	row := ReportRow{
		JobID:                 tc.JobID,
		Barcode:               tc.Item.Barcode,
		InstitutionCode:       tc.Item.InstitutionCode,
		Location:              tc.Item.Location,
		AlternativeCallNumber: tc.Item.AlternativeCallNumber,
		InternalNote1:         tc.Item.InternalNote1,
		ProcessedAt:           c.now(),
	}

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal report row: %w", err)
	}

	name := domain.ArtifactName(ReportRowsPrefix, tc.JobID, tc.Item.Barcode)
	if err := c.artifacts.PutArtifact(ctx, name, "application/json", data); err != nil {
		return fmt.Errorf("failed to store report row: %w", err)
	}

	c.logger.Debug("Item added to report",
		slog.String("job_id", tc.JobID),
		slog.String("barcode", tc.Item.Barcode),
		slog.String("artifact", name),
	)
	return nil
}
