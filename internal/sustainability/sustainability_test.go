package sustainability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	e, err := Calculate(Shipment{Packaging: PackagingPlastic, PackagingWeight: 2, Transport: TransportVan, DistanceKm: 10})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, e.Packaging, 1e-9)
	assert.InDelta(t, 2.5, e.Delivery, 1e-9)
	assert.InDelta(t, 7.5, e.Total, 1e-9)
}

func TestCalculateRejectsUnknownTypes(t *testing.T) {
	_, err := Calculate(Shipment{Packaging: "STYROFOAM", Transport: TransportBike})
	assert.ErrorIs(t, err, ErrUnknownPackaging)

	_, err = Calculate(Shipment{Packaging: PackagingPaper, Transport: "DRONE"})
	assert.ErrorIs(t, err, ErrUnknownTransport)

	_, err = Calculate(Shipment{Packaging: PackagingPaper, Transport: TransportCar, DistanceKm: -1})
	assert.Error(t, err)
}

func TestEcoScore(t *testing.T) {
	score, err := EcoScore(Shipment{Packaging: PackagingEcoFriendly, PackagingWeight: 1, Transport: TransportBike, DistanceKm: 5})
	require.NoError(t, err)
	assert.Equal(t, 100.0, score)

	score, err = EcoScore(Shipment{Packaging: PackagingPlastic, PackagingWeight: 10, Transport: TransportVan, DistanceKm: 100})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	score, err = EcoScore(Shipment{Packaging: PackagingPaper, PackagingWeight: 2, Transport: TransportCar, DistanceKm: 10})
	require.NoError(t, err)
	assert.InDelta(t, 94.0, score, 1e-9)
}

func TestBuildReport(t *testing.T) {
	report, err := BuildReport([]Shipment{
		{Packaging: PackagingPlastic, PackagingWeight: 4, Transport: TransportVan, DistanceKm: 20},
		{Packaging: PackagingPlastic, PackagingWeight: 4, Transport: TransportVan, DistanceKm: 20},
		{Packaging: PackagingEcoFriendly, PackagingWeight: 1, Transport: TransportBike, DistanceKm: 5},
	})
	require.NoError(t, err)

	assert.InDelta(t, 30.7, report.TotalEmissions, 1e-9)
	assert.Equal(t, 2, report.TreesNeeded)
	assert.Equal(t, 2, report.PackagingStats[PackagingPlastic])
	assert.Equal(t, 1, report.DeliveryStats[TransportBike])
	assert.Equal(t, []string{RecommendEcoPackaging, RecommendLightFleet}, report.Recommendations)
}

func TestBuildReportEmpty(t *testing.T) {
	report, err := BuildReport(nil)
	require.NoError(t, err)
	assert.Zero(t, report.TotalEmissions)
	assert.Zero(t, report.TreesNeeded)
	assert.Empty(t, report.Recommendations)
}
