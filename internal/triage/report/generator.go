// Package report compiles the final report of a completed batch job.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
)

// FinalReport is the artifact written once per completed job
type FinalReport struct {
	ReportType            string     `json:"report_type"`
	JobID                 string     `json:"job_id"`
	Category              string     `json:"category"`
	InstitutionID         *int64     `json:"institution_id"`
	InstitutionCode       string     `json:"institution_code"`
	GeneratedAt           time.Time  `json:"generated_at"`
	ProcessingStartedAt   time.Time  `json:"processing_started_at"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at"`
	Summary               Summary    `json:"summary"`
	ProcessedItems        []Entry    `json:"processed_items"`
	FailedItems           []Entry    `json:"failed_items"`
}

// Summary holds the report counts. Processed and Failed are counted from the
// stored outcomes, not copied from the job counters.
type Summary struct {
	TotalItems   int `json:"total_items"`
	TotalBatches int `json:"total_batches"`
	Processed    int `json:"processed"`
	Failed       int `json:"failed"`
}

// Entry is one item line of the report
type Entry struct {
	ItemKey         string    `json:"item_key"`
	InstitutionCode string    `json:"institution_code"`
	ProcessedAt     time.Time `json:"processed_at"`
	Reason          string    `json:"reason,omitempty"`
}

// Config holds report generator configuration
type Config struct {
	Logger       *slog.Logger
	Outcomes     domain.OutcomeStore
	Artifacts    domain.ArtifactStore
	Publisher    domain.Publisher
	Institutions domain.InstitutionStore
	// Prefix is prepended to artifact names, defaults to "reports"
	Prefix string
	// Workbook also stores an .xlsx rendition next to the JSON report
	Workbook bool
}

// Generator builds, stores and announces final reports
type Generator struct {
	logger       *slog.Logger
	outcomes     domain.OutcomeStore
	artifacts    domain.ArtifactStore
	publisher    domain.Publisher
	institutions domain.InstitutionStore
	prefix       string
	workbook     bool
	now          func() time.Time
}

// New creates a report generator
func New(cfg *Config) *Generator {
	prefix := strings.TrimSuffix(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "reports"
	}
	return &Generator{
		logger:       cfg.Logger,
		outcomes:     cfg.Outcomes,
		artifacts:    cfg.Artifacts,
		publisher:    cfg.Publisher,
		institutions: cfg.Institutions,
		prefix:       prefix,
		workbook:     cfg.Workbook,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// GenerateFinalReport stores the report for job and, once stored, sends one
// notification. A storage failure is logged, skips the notification and is
// returned; it is not retried.
func (g *Generator) GenerateFinalReport(ctx context.Context, job *domain.BatchJob) error {
	logger := g.logger.With(slog.String("job_id", job.JobID), slog.String("category", job.Category))
	logger.Info("Generating final report")

	outcomes, err := g.outcomes.ListByJob(ctx, job.JobID)
	if err != nil {
		logger.Error("Failed to read item outcomes", slog.String("error", err.Error()))
		return fmt.Errorf("failed to list item outcomes: %w", err)
	}

	institution := g.resolveInstitution(ctx, logger, job.InstitutionCode)

	generatedAt := g.now()
	report := Build(job, outcomes, institution, generatedAt)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal final report: %w", err)
	}

	name := Name(g.prefix, job, generatedAt)
	if err := g.artifacts.PutArtifact(ctx, name+".json", "application/json", data); err != nil {
		logger.Error("Failed to store final report, notification not sent",
			slog.String("artifact", name+".json"),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to store final report: %w", err)
	}
	logger.Info("Final report stored", slog.String("artifact", name+".json"))

	if g.workbook {
		g.storeWorkbook(ctx, logger, name+".xlsx", report)
	}

	n := domain.Notification{
		JobID:           job.JobID,
		InstitutionID:   report.InstitutionID,
		InstitutionCode: job.InstitutionCode,
		ProcessType:     report.ReportType,
		Artifact:        name + ".json",
	}
	if err := g.publisher.SendNotification(ctx, n); err != nil {
		logger.Error("Failed to send report notification", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("Report notification sent",
		slog.Int("processed", report.Summary.Processed),
		slog.Int("failed", report.Summary.Failed),
	)
	return nil
}

func (g *Generator) resolveInstitution(ctx context.Context, logger *slog.Logger, code string) *domain.Institution {
	if code == "" || g.institutions == nil {
		return nil
	}
	institution, err := g.institutions.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrInstitutionNotFound) {
			logger.Warn("Report institution not found", slog.String("institution_code", code))
		} else {
			logger.Error("Failed to resolve report institution",
				slog.String("institution_code", code),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	return institution
}

func (g *Generator) storeWorkbook(ctx context.Context, logger *slog.Logger, name string, report *FinalReport) {
	data, err := Workbook(report)
	if err != nil {
		logger.Error("Failed to render report workbook", slog.String("error", err.Error()))
		return
	}
	if err := g.artifacts.PutArtifact(ctx, name, WorkbookContentType, data); err != nil {
		logger.Error("Failed to store report workbook",
			slog.String("artifact", name),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Info("Report workbook stored", slog.String("artifact", name))
}

// Build assembles the report from the job record and its outcomes.
// Outcomes keep their stored order within each list.
func Build(job *domain.BatchJob, outcomes []domain.ItemOutcome, institution *domain.Institution, generatedAt time.Time) *FinalReport {
	report := &FinalReport{
		ReportType:            job.Category + "_report",
		JobID:                 job.JobID,
		Category:              job.Category,
		InstitutionCode:       job.InstitutionCode,
		GeneratedAt:           generatedAt,
		ProcessingStartedAt:   job.CreatedAt,
		ProcessingCompletedAt: job.CompletedAt,
		ProcessedItems:        []Entry{},
		FailedItems:           []Entry{},
	}
	if institution != nil {
		id := institution.ID
		report.InstitutionID = &id
	}

	for _, o := range outcomes {
		entry := Entry{ItemKey: o.ItemKey, InstitutionCode: o.InstitutionCode, ProcessedAt: o.ProcessedAt}
		if o.Success {
			report.ProcessedItems = append(report.ProcessedItems, entry)
			continue
		}
		entry.Reason = o.Reason
		report.FailedItems = append(report.FailedItems, entry)
	}

	report.Summary = Summary{
		TotalItems:   job.TotalItems,
		TotalBatches: job.TotalBatches,
		Processed:    len(report.ProcessedItems),
		Failed:       len(report.FailedItems),
	}
	return report
}

// Name returns the artifact name without extension, e.g.
// reports/iz_no_row_tray_report_<job>_20261018_234500
func Name(prefix string, job *domain.BatchJob, at time.Time) string {
	return fmt.Sprintf("%s/%s_report_%s_%s", prefix, job.Category, job.JobID, at.UTC().Format("20060102_150405"))
}
