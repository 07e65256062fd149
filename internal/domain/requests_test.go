package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput() SpecimenInput {
	section := 2
	return SpecimenInput{
		DonorIdentifier:    "DONOR1",
		LifeStage:          "adult",
		Species:            "Human",
		Hmdmc:              "20/123",
		TissueType:         "Heart",
		SpatialLocation:    1,
		Replicate:          "1",
		ExternalIdentifier: "EXT-1",
		Medium:             "OCT",
		Fixative:           "None",
		CellClass:          "Tissue",
		BioRiskCode:        "ABC",
		CollectionDate:     "2024-03-01",
		Addresses:          []string{"A2"},
		SectionNumber:      &section,
		ExistingTissue:     true,
	}
}

func TestBlockNormalize(t *testing.T) {
	req := &BlockRegisterRequest{
		Labware: []LabwareInput{{
			LabwareType:     "Proviasette",
			ExternalBarcode: "X-100",
			Contents:        []SpecimenInput{sampleInput()},
		}},
		WorkNumbers: []string{"SGP1"},
	}

	normalized := req.Normalize()
	require.Len(t, normalized.Labware, 1)
	require.Len(t, normalized.Labware[0].Entries, 1)
	entry := normalized.Labware[0].Entries[0]

	assert.Equal(t, BlockRegistration, normalized.Kind)
	assert.Equal(t, []string{"SGP1"}, normalized.WorkNumbers)
	assert.Equal(t, "Proviasette", normalized.Labware[0].LabwareTypeName)
	assert.Equal(t, "X-100", normalized.Labware[0].ExternalBarcode)
	assert.Equal(t, "DONOR1", entry.DonorName)
	assert.Equal(t, "EXT-1", entry.ExternalName)

	// Blocks never carry section numbers and keep their existing flag.
	assert.Nil(t, entry.SectionNumber)
	assert.True(t, entry.ExistingTissue)
	assert.Equal(t, []string{"A2"}, entry.Addresses)
}

func TestBlockNormalizeDefaultsAddress(t *testing.T) {
	in := sampleInput()
	in.Addresses = nil
	req := &BlockRegisterRequest{
		Labware: []LabwareInput{{LabwareType: "Pot", Contents: []SpecimenInput{in}}},
	}

	entry := req.Normalize().Labware[0].Entries[0]
	assert.Equal(t, []string{"A1"}, entry.Addresses)
}

func TestOriginalSampleNormalize(t *testing.T) {
	in := sampleInput()
	in.Addresses = nil
	req := &OriginalSampleRegisterRequest{
		Labware: []LabwareInput{{LabwareType: "Pot", Contents: []SpecimenInput{in}}},
	}

	normalized := req.Normalize()
	entry := normalized.Labware[0].Entries[0]

	assert.Equal(t, OriginalSampleRegistration, normalized.Kind)
	// Original samples are always new tissue.
	assert.False(t, entry.ExistingTissue)
	assert.Nil(t, entry.SectionNumber)
	assert.Equal(t, []string{"A1"}, entry.Addresses)
}

func TestSectionNormalize(t *testing.T) {
	req := &SectionRegisterRequest{
		Labware: []LabwareInput{{LabwareType: "Slide", Contents: []SpecimenInput{sampleInput()}}},
	}

	normalized := req.Normalize()
	entry := normalized.Labware[0].Entries[0]

	assert.Equal(t, SectionRegistration, normalized.Kind)
	assert.False(t, entry.ExistingTissue)
	require.NotNil(t, entry.SectionNumber)
	assert.Equal(t, 2, *entry.SectionNumber)
	// Sections keep their explicit addresses; no default applies.
	assert.Equal(t, []string{"A2"}, entry.Addresses)
}

func TestRegistrationRequestEmpty(t *testing.T) {
	var nilReq *RegistrationRequest
	assert.True(t, nilReq.Empty())
	assert.True(t, (&RegistrationRequest{}).Empty())
	assert.True(t, (&BlockRegisterRequest{WorkNumbers: []string{"SGP1"}}).Normalize().Empty())

	populated := &RegistrationRequest{Labware: []LabwareItem{{LabwareTypeName: "Pot"}}}
	assert.False(t, populated.Empty())
}

func TestRegistrationRequestEntries(t *testing.T) {
	req := &RegistrationRequest{
		Labware: []LabwareItem{
			{Entries: []SpecimenEntry{{ExternalName: "A"}, {ExternalName: "B"}}},
			{Entries: []SpecimenEntry{{ExternalName: "C"}}},
		},
	}

	entries := req.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "A", entries[0].ExternalName)
	assert.Equal(t, "C", entries[2].ExternalName)

	// Entries are pointers into the request, so callers can annotate.
	entries[0].ExternalName = "A2"
	assert.Equal(t, "A2", req.Labware[0].Entries[0].ExternalName)
}
