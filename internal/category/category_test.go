package category

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
	"github.com/cuongbtq/item-triage/internal/triage/triagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC)

func TestRegistry(t *testing.T) {
	scf := NewSCFNoRowTray(triagetest.Logger(), triagetest.NewArtifactStore())
	iz := NewIZNoRowTray(&IZNoRowTrayConfig{Logger: triagetest.Logger()})
	reg := NewRegistry(scf, iz)

	got, err := reg.Get(SCFNoRowTrayName)
	require.NoError(t, err)
	assert.Same(t, scf, got)

	_, err = reg.Get("scf_duplicates")
	assert.ErrorIs(t, err, domain.ErrUnknownCategory)

	assert.True(t, reg.Has(IZNoRowTrayName))
	assert.False(t, reg.Has(""))
	assert.Equal(t, []string{IZNoRowTrayName, SCFNoRowTrayName}, reg.Names())
}

func TestSCFNoRowTray_Matches(t *testing.T) {
	base := domain.Item{
		Barcode:               "32882019876543X",
		InstitutionCode:       "scf",
		Location:              "WRLC SCF",
		AlternativeCallNumber: "R12M03S04",
		Provenance:            "Property of Georgetown University",
	}

	tests := []struct {
		name   string
		mutate func(*domain.Item)
		want   bool
	}{
		{name: "correct row/tray data", mutate: func(*domain.Item) {}, want: false},
		{name: "missing alt call number", mutate: func(i *domain.Item) { i.AlternativeCallNumber = "" }, want: true},
		{name: "malformed alt call number", mutate: func(i *domain.Item) { i.AlternativeCallNumber = "12-03-04" }, want: true},
		{name: "malformed internal note", mutate: func(i *domain.Item) { i.InternalNote1 = "shelf 4" }, want: true},
		{name: "skip location in field is ignored", mutate: func(i *domain.Item) { i.InternalNote1 = "WRLC Microfilm Cabinet 3" }, want: false},
		{name: "excluded note", mutate: func(i *domain.Item) {
			i.AlternativeCallNumber = ""
			i.InternalNote1 = " do not delete "
		}, want: false},
		{name: "discard location", mutate: func(i *domain.Item) {
			i.AlternativeCallNumber = ""
			i.Location = "scfdisc"
		}, want: false},
		{name: "discard temp location", mutate: func(i *domain.Item) {
			i.AlternativeCallNumber = ""
			i.TempLocation = "DISCARD"
		}, want: false},
		{name: "unchecked provenance", mutate: func(i *domain.Item) {
			i.AlternativeCallNumber = ""
			i.Provenance = "Property of Somewhere Else"
		}, want: false},
	}

	c := NewSCFNoRowTray(triagetest.Logger(), triagetest.NewArtifactStore())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := base
			tt.mutate(&item)
			assert.Equal(t, tt.want, c.Matches(&item))
		})
	}
}

func TestSCFNoRowTray_Apply(t *testing.T) {
	artifacts := triagetest.NewArtifactStore()
	c := NewSCFNoRowTray(triagetest.Logger(), artifacts).WithClock(func() time.Time { return fixedNow })
	item := &domain.Item{Barcode: "B1X", InstitutionCode: "scf", InternalNote1: "bad"}

	require.NoError(t, c.Apply(context.Background(), TriageContext{JobID: "job-1", Item: item}))
	// repeating the side effect overwrites the same artifact
	require.NoError(t, c.Apply(context.Background(), TriageContext{JobID: "job-1", Item: item}))

	assert.Equal(t, []string{"report-rows/job-1/B1X.json"}, artifacts.Names())
	stored := artifacts.Artifacts["report-rows/job-1/B1X.json"]
	assert.Equal(t, "application/json", stored.ContentType)

	var row ReportRow
	require.NoError(t, json.Unmarshal(stored.Data, &row))
	assert.Equal(t, "job-1", row.JobID)
	assert.Equal(t, "B1X", row.Barcode)
	assert.Equal(t, "bad", row.InternalNote1)
	assert.Equal(t, fixedNow, row.ProcessedAt)
}

func TestSCFNoRowTray_ApplyStoreFailure(t *testing.T) {
	artifacts := triagetest.NewArtifactStore()
	artifacts.Err = errors.New("quota exceeded")
	c := NewSCFNoRowTray(triagetest.Logger(), artifacts)

	err := c.Apply(context.Background(), TriageContext{JobID: "job-1", Item: &domain.Item{Barcode: "B1X"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestIZNoRowTray_Matches(t *testing.T) {
	tests := []struct {
		name string
		item domain.Item
		want bool
	}{
		{
			name: "checked location without row/tray",
			item: domain.Item{Barcode: "A1", InstitutionCode: "gt", Location: "wrlc gtdp"},
			want: true,
		},
		{
			name: "checked temp location with malformed data",
			item: domain.Item{Barcode: "A1", InstitutionCode: "gt", Location: "main", TempLocation: "ocs", AlternativeCallNumber: "Stacks"},
			want: true,
		},
		{
			name: "checked location with correct data",
			item: domain.Item{Barcode: "A1", InstitutionCode: "gt", Location: "ocs", AlternativeCallNumber: "R1M2S3"},
			want: false,
		},
		{
			name: "unchecked location",
			item: domain.Item{Barcode: "A1", InstitutionCode: "gt", Location: "main"},
			want: false,
		},
		{
			name: "skip locations are not exempt outside SCF",
			item: domain.Item{Barcode: "A1", InstitutionCode: "gt", Location: "ocs", AlternativeCallNumber: "R1M2S3", InternalNote1: "WRLC Gemtrac Drawer"},
			want: true,
		},
		{
			name: "no institution",
			item: domain.Item{Barcode: "A1", Location: "ocs"},
			want: false,
		},
	}

	c := NewIZNoRowTray(&IZNoRowTrayConfig{Logger: triagetest.Logger()})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Matches(&tt.item))
		})
	}
}

type izFixture struct {
	directory *triagetest.Directory
	artifacts *triagetest.ArtifactStore
	publisher *triagetest.Publisher
	category  *IZNoRowTray
}

func newIZFixture() *izFixture {
	f := &izFixture{
		directory: triagetest.NewDirectory(),
		artifacts: triagetest.NewArtifactStore(),
		publisher: &triagetest.Publisher{},
	}
	f.category = NewIZNoRowTray(&IZNoRowTrayConfig{
		Logger:    triagetest.Logger(),
		Directory: f.directory,
		Institutions: triagetest.Institutions{
			"gt":  {ID: 7, Code: "gt", Name: "Georgetown"},
			"scf": {ID: 1, Code: "scf", Name: "Shared Collections Facility"},
		},
		Artifacts: f.artifacts,
		Publisher: f.publisher,
	})
	return f
}

func TestIZNoRowTray_Apply(t *testing.T) {
	f := newIZFixture()
	f.directory.Add(domain.Item{Barcode: "A1X", InstitutionCode: "scf", AlternativeCallNumber: "R4M5S6", InternalNote1: " "})
	item := &domain.Item{Barcode: "A1", InstitutionCode: "gt", Location: "ocs", InternalNote1: "old note"}

	require.NoError(t, f.category.Apply(context.Background(), TriageContext{JobID: "job-9", Item: item}))

	name := "updated-items/job-9/A1.json"
	require.Contains(t, f.artifacts.Artifacts, name)
	var updated domain.Item
	require.NoError(t, json.Unmarshal(f.artifacts.Artifacts[name].Data, &updated))
	assert.Equal(t, "R4M5S6", updated.AlternativeCallNumber)
	assert.Equal(t, "old note", updated.InternalNote1)
	assert.Equal(t, "A1", updated.Barcode)
	assert.Empty(t, item.AlternativeCallNumber, "staged item must not be mutated")

	require.Len(t, f.publisher.Updates, 1)
	assert.Equal(t, domain.UpdateMessage{
		JobID:         "job-9",
		ItemKey:       "A1",
		InstitutionID: 7,
		ProcessType:   IZNoRowTrayName,
		Artifact:      name,
	}, f.publisher.Updates[0])
}

func TestIZNoRowTray_ApplyFailures(t *testing.T) {
	t.Run("twin not found", func(t *testing.T) {
		f := newIZFixture()
		err := f.category.Apply(context.Background(), TriageContext{JobID: "job-9", Item: &domain.Item{Barcode: "A1", InstitutionCode: "gt"}})
		assert.ErrorIs(t, err, domain.ErrItemNotFound)
		assert.Empty(t, f.artifacts.Names())
		assert.Empty(t, f.publisher.Updates)
	})

	t.Run("twin without row/tray data", func(t *testing.T) {
		f := newIZFixture()
		f.directory.Add(domain.Item{Barcode: "A1X", InstitutionCode: "scf", AlternativeCallNumber: "Stacks"})
		err := f.category.Apply(context.Background(), TriageContext{JobID: "job-9", Item: &domain.Item{Barcode: "A1", InstitutionCode: "gt"}})
		assert.ErrorIs(t, err, ErrTwinMissingRowTray)
		assert.Empty(t, f.publisher.Updates)
	})

	t.Run("unknown institution", func(t *testing.T) {
		f := newIZFixture()
		err := f.category.Apply(context.Background(), TriageContext{JobID: "job-9", Item: &domain.Item{Barcode: "A1", InstitutionCode: "zz"}})
		assert.ErrorIs(t, err, domain.ErrInstitutionNotFound)
		assert.Zero(t, f.directory.Calls)
	})

	t.Run("update publish fails", func(t *testing.T) {
		f := newIZFixture()
		f.directory.Add(domain.Item{Barcode: "A1X", InstitutionCode: "scf", InternalNote1: "R1M1S1"})
		f.publisher.UpdateErr = errors.New("channel closed")
		err := f.category.Apply(context.Background(), TriageContext{JobID: "job-9", Item: &domain.Item{Barcode: "A1", InstitutionCode: "gt"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to queue update message")
		// the artifact is keyed by job and item, so a retry overwrites it
		assert.Equal(t, []string{"updated-items/job-9/A1.json"}, f.artifacts.Names())
	})
}
