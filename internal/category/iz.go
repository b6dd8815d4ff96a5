package category

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
)

// UpdatedItemsPrefix is where corrected item records are stored for the update service
const UpdatedItemsPrefix = "updated-items"

// ErrTwinMissingRowTray is returned when the SCF copy has no usable row/tray data to copy
var ErrTwinMissingRowTray = errors.New("SCF item does not have correct row/tray data")

// IZNoRowTrayConfig holds iz_no_row_tray dependencies
type IZNoRowTrayConfig struct {
	Logger       *slog.Logger
	Directory    domain.ItemDirectory
	Institutions domain.InstitutionStore
	Artifacts    domain.ArtifactStore
	Publisher    domain.Publisher
	// SCFInstitution is the institution code the SCF twin is fetched from
	SCFInstitution string
}

// IZNoRowTray repairs institution-zone items shelved at SCF by copying
// row/tray data from their SCF twin (same barcode with an "X" suffix).
type IZNoRowTray struct {
	logger         *slog.Logger
	directory      domain.ItemDirectory
	institutions   domain.InstitutionStore
	artifacts      domain.ArtifactStore
	publisher      domain.Publisher
	scfInstitution string
}

// NewIZNoRowTray creates the iz_no_row_tray category
func NewIZNoRowTray(cfg *IZNoRowTrayConfig) *IZNoRowTray {
	scf := cfg.SCFInstitution
	if scf == "" {
		scf = "scf"
	}
	return &IZNoRowTray{
		logger:         cfg.Logger,
		directory:      cfg.Directory,
		institutions:   cfg.Institutions,
		artifacts:      cfg.Artifacts,
		publisher:      cfg.Publisher,
		scfInstitution: scf,
	}
}

func (c *IZNoRowTray) Name() string {
	return IZNoRowTrayName
}

func (c *IZNoRowTray) Matches(item *domain.Item) bool {
	if item.InstitutionCode == "" {
		return false
	}
	if !inCheckedIZLocation(item) {
		return false
	}
	return missingRowTray(item) || wrongRowTray(item, false)
}

func (c *IZNoRowTray) Apply(ctx context.Context, tc TriageContext) error {
	institution, err := c.institutions.GetByCode(ctx, tc.Item.InstitutionCode)
	if err != nil {
		return fmt.Errorf("failed to resolve institution %s: %w", tc.Item.InstitutionCode, err)
	}

	twinBarcode := tc.Item.Barcode + "X"
	twin, err := c.directory.FetchItem(ctx, c.scfInstitution, twinBarcode)
	if err != nil {
		return fmt.Errorf("failed to fetch SCF item %s: %w", twinBarcode, err)
	}

	if !hasValidRowTray(twin) {
		return ErrTwinMissingRowTray
	}

	updated := *tc.Item
	if !isBlank(twin.AlternativeCallNumber) {
		updated.AlternativeCallNumber = twin.AlternativeCallNumber
	}
	if !isBlank(twin.InternalNote1) {
		updated.InternalNote1 = twin.InternalNote1
	}

	data, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("failed to marshal updated item: %w", err)
	}

	name := domain.ArtifactName(UpdatedItemsPrefix, tc.JobID, tc.Item.Barcode)
	if err := c.artifacts.PutArtifact(ctx, name, "application/json", data); err != nil {
		return fmt.Errorf("failed to store updated item: %w", err)
	}

	msg := domain.UpdateMessage{
		JobID:         tc.JobID,
		ItemKey:       tc.Item.Barcode,
		InstitutionID: institution.ID,
		ProcessType:   IZNoRowTrayName,
		Artifact:      name,
	}
	if err := c.publisher.SendUpdate(ctx, msg); err != nil {
		return fmt.Errorf("failed to queue update message: %w", err)
	}

	c.logger.Info("Updated IZ item with SCF row/tray data",
		slog.String("job_id", tc.JobID),
		slog.String("barcode", tc.Item.Barcode),
		slog.String("scf_barcode", twinBarcode),
	)
	return nil
}
