package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/specimen-registry-server/internal/database"
	"github.com/specimen-registry-server/internal/domain"
)

// setupTestStore starts a disposable Postgres container, runs the
// migrations against it and returns a connected store.
func setupTestStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "starting postgres container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	url := fmt.Sprintf("postgres://testuser:testpass@%s:%d/testdb?sslmode=disable", host, port.Int())
	migrationsPath, err := filepath.Abs(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)

	migrator, err := database.NewMigrationRunner(url, migrationsPath, logger)
	require.NoError(t, err, "creating migration runner")
	require.NoError(t, migrator.Up(ctx), "running migrations")
	require.NoError(t, migrator.Close())

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	seedReferenceData(t, pool)

	return NewStore(pool, logger), pool
}

// seedReferenceData inserts the rows the seed migration leaves to
// operations tooling: tissue types, HuMFre numbers, bio risks, works.
func seedReferenceData(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	statements := []string{
		`INSERT INTO tissue_types (name) VALUES ('Heart')`,
		`INSERT INTO spatial_locations (tissue_type_id, code, name)
		 SELECT id, 0, 'Unknown' FROM tissue_types WHERE name = 'Heart'`,
		`INSERT INTO spatial_locations (tissue_type_id, code, name)
		 SELECT id, 1, 'Left ventricle' FROM tissue_types WHERE name = 'Heart'`,
		`INSERT INTO hmdmcs (hmdmc) VALUES ('20/123')`,
		`INSERT INTO bio_risks (code) VALUES ('ABC')`,
		`INSERT INTO works (work_number, status) VALUES ('SGP1', 'active'), ('SGP2', 'completed')`,
	}
	for _, stmt := range statements {
		_, err := pool.Exec(ctx, stmt)
		require.NoError(t, err, stmt)
	}
}

func findSpecies(t *testing.T, store *Store, name string) *domain.Species {
	t.Helper()
	species, err := store.RefData().FindSpecies(context.Background(), name)
	require.NoError(t, err)
	require.NotNil(t, species)
	return species
}

func createTestDonor(t *testing.T, store *Store, name string) *domain.Donor {
	t.Helper()
	donor := &domain.Donor{
		DonorName: name,
		LifeStage: domain.ADULT,
		Species:   findSpecies(t, store, "Human"),
	}
	require.NoError(t, store.Donors().Create(context.Background(), donor))
	return donor
}

func createTestTissue(t *testing.T, store *Store, donor *domain.Donor, externalName string, collected *time.Time) *domain.Tissue {
	t.Helper()
	ctx := context.Background()

	tissueType, err := store.RefData().FindTissueType(ctx, "Heart")
	require.NoError(t, err)
	require.NotNil(t, tissueType)
	medium, err := store.RefData().FindMedium(ctx, "OCT")
	require.NoError(t, err)
	fixative, err := store.RefData().FindFixative(ctx, "None")
	require.NoError(t, err)
	cellClass, err := store.RefData().FindCellClass(ctx, "Tissue")
	require.NoError(t, err)
	hmdmc, err := store.RefData().FindHmdmc(ctx, "20/123")
	require.NoError(t, err)

	tissue := &domain.Tissue{
		ExternalName:    externalName,
		Replicate:       "1",
		SpatialLocation: &tissueType.SpatialLocations[1],
		TissueType:      tissueType,
		Donor:           donor,
		Medium:          medium,
		Fixative:        fixative,
		CellClass:       cellClass,
		Hmdmc:           hmdmc,
		CollectionDate:  collected,
	}
	require.NoError(t, store.Tissues().Create(ctx, tissue))
	return tissue
}

func TestStoreRoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	t.Run("reference data lookups", func(t *testing.T) {
		species := findSpecies(t, store, "human") // case-insensitive
		assert.Equal(t, "Human", species.Name)
		assert.True(t, species.RequiresHmdmc)

		missing, err := store.RefData().FindSpecies(ctx, "Martian")
		require.NoError(t, err)
		assert.Nil(t, missing)

		tissueType, err := store.RefData().FindTissueType(ctx, "Heart")
		require.NoError(t, err)
		require.NotNil(t, tissueType)
		require.Len(t, tissueType.SpatialLocations, 2)
		assert.Equal(t, 0, tissueType.SpatialLocations[0].Code)

		risks, err := store.RefData().FindBioRisks(ctx, []string{"abc", "missing"})
		require.NoError(t, err)
		require.Contains(t, risks, "ABC")
		assert.NotContains(t, risks, "MISSING")

		state, err := store.RefData().FindBioState(ctx, domain.BioStateTissue)
		require.NoError(t, err)
		require.NotNil(t, state)
	})

	t.Run("donors", func(t *testing.T) {
		donor := createTestDonor(t, store, "DONOR1")
		assert.NotZero(t, donor.ID)

		found, err := store.Donors().FindByName(ctx, "donor1")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, donor.ID, found.ID)
		assert.Equal(t, domain.ADULT, found.LifeStage)
		require.NotNil(t, found.Species)
		assert.Equal(t, "Human", found.Species.Name)

		absent, err := store.Donors().FindByName(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, absent)
	})

	t.Run("tissues", func(t *testing.T) {
		donor := createTestDonor(t, store, "DONOR2")
		tissue := createTestTissue(t, store, donor, "TISSUE-RT-1", nil)
		assert.NotZero(t, tissue.ID)

		found, err := store.Tissues().FindByExternalName(ctx, "tissue-rt-1")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, tissue.ID, found.ID)
		assert.Equal(t, "TISSUE-RT-1", found.ExternalName)
		require.NotNil(t, found.Donor)
		assert.Equal(t, donor.ID, found.Donor.ID)
		require.NotNil(t, found.Hmdmc)
		assert.Equal(t, "20/123", found.Hmdmc.Hmdmc)
		assert.Nil(t, found.CollectionDate)

		// Backfill succeeds once and only once.
		date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.Tissues().UpdateCollectionDate(ctx, tissue.ID, date))
		err = store.Tissues().UpdateCollectionDate(ctx, tissue.ID, date.AddDate(0, 0, 1))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrPrecondition))

		found, err = store.Tissues().FindByExternalName(ctx, "TISSUE-RT-1")
		require.NoError(t, err)
		require.NotNil(t, found.CollectionDate)
		assert.Equal(t, "2024-03-01", found.CollectionDate.Format("2006-01-02"))
	})

	t.Run("labware and placement", func(t *testing.T) {
		labwareType, err := store.RefData().FindLabwareType(ctx, "Slide")
		require.NoError(t, err)
		require.NotNil(t, labwareType)

		labware, err := store.Labware().Create(ctx, labwareType, "EXT-IT-1")
		require.NoError(t, err)
		assert.Contains(t, labware.Barcode, domain.BarcodePrefix)
		assert.Len(t, labware.Slots, labwareType.NumRows*labwareType.NumColumns)

		exists, err := store.Labware().BarcodeExists(ctx, labware.Barcode)
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = store.Labware().ExternalBarcodeExists(ctx, "ext-it-1")
		require.NoError(t, err)
		assert.True(t, exists)

		donor := createTestDonor(t, store, "DONOR3")
		tissue := createTestTissue(t, store, donor, "TISSUE-RT-2", nil)

		bioState, err := store.RefData().FindBioState(ctx, domain.BioStateTissue)
		require.NoError(t, err)
		sample := &domain.Sample{Tissue: tissue, BioState: bioState}
		require.NoError(t, store.Samples().Create(ctx, sample))

		slot := labware.Slot(domain.NewAddress(1, 2))
		require.NotNil(t, slot)
		require.NoError(t, store.Labware().PlaceSample(ctx, slot.ID, sample.ID))

		op, err := store.Operations().Create(ctx, domain.OperationTypeRegister, "tester", []domain.Action{
			{SourceSlot: slot.ID, DestSlot: slot.ID, SampleID: sample.ID},
		})
		require.NoError(t, err)
		assert.NotZero(t, op.ID)
		require.Len(t, op.Actions, 1)

		// The clash query traces the placement back to this labware.
		containing, err := store.Labware().ContainingTissues(ctx, []int{tissue.ID})
		require.NoError(t, err)
		require.Len(t, containing[tissue.ID], 1)
		assert.Equal(t, labware.Barcode, containing[tissue.ID][0].Barcode)

		// And FindByBarcode returns the occupied slot.
		found, err := store.Labware().FindByBarcode(ctx, labware.Barcode)
		require.NoError(t, err)
		require.NotNil(t, found)
		foundSlot := found.Slot(domain.NewAddress(1, 2))
		require.NotNil(t, foundSlot)
		require.Len(t, foundSlot.Samples, 1)
		assert.Equal(t, sample.ID, foundSlot.Samples[0].ID)

		// Bio risk and work links.
		risks, err := store.RefData().FindBioRisks(ctx, []string{"ABC"})
		require.NoError(t, err)
		require.NoError(t, store.Operations().LinkBioRisks(ctx, []domain.SampleBioRisk{
			{SampleID: sample.ID, BioRiskID: risks["ABC"].ID, OperationID: op.ID},
		}))

		works, err := store.Works().FindByWorkNumbers(ctx, []string{"SGP1", "SGP2", "SGP99"})
		require.NoError(t, err)
		require.Len(t, works, 2)
		require.NoError(t, store.Works().LinkOperations(ctx, []int{works[0].ID}, []int{op.ID}))
		// Linking again is a no-op, not an error.
		require.NoError(t, store.Works().LinkOperations(ctx, []int{works[0].ID}, []int{op.ID}))
	})

	t.Run("transaction rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.Transact(ctx, func(tx domain.Store) error {
			donor := &domain.Donor{
				DonorName: "ROLLBACK-DONOR",
				LifeStage: domain.ADULT,
				Species:   findSpecies(t, store, "Human"),
			}
			if err := tx.Donors().Create(ctx, donor); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		absent, err := store.Donors().FindByName(ctx, "ROLLBACK-DONOR")
		require.NoError(t, err)
		assert.Nil(t, absent)
	})

	t.Run("unique index backstop", func(t *testing.T) {
		donor := createTestDonor(t, store, "DONOR4")
		createTestTissue(t, store, donor, "TISSUE-RT-3", nil)

		dup := &domain.Tissue{ExternalName: "tissue-rt-3"}
		dup.Replicate = "1"
		dup.Donor = donor
		tissueType, err := store.RefData().FindTissueType(ctx, "Heart")
		require.NoError(t, err)
		dup.TissueType = tissueType
		dup.SpatialLocation = &tissueType.SpatialLocations[1]
		dup.Medium, _ = store.RefData().FindMedium(ctx, "OCT")
		dup.Fixative, _ = store.RefData().FindFixative(ctx, "None")
		dup.CellClass, _ = store.RefData().FindCellClass(ctx, "Tissue")

		err = store.Tissues().Create(ctx, dup)
		assert.Error(t, err, "case-insensitive unique index must reject the duplicate")
	})
}
