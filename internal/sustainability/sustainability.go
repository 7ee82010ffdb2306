// Package sustainability estimates the carbon footprint of deliveries.
package sustainability

import (
	"errors"
	"fmt"
	"math"
)

type Packaging string

const (
	PackagingPaper       Packaging = "PAPER"
	PackagingPlastic     Packaging = "PLASTIC"
	PackagingCardboard   Packaging = "CARDBOARD"
	PackagingEcoFriendly Packaging = "ECO_FRIENDLY"
)

type Transport string

const (
	TransportBike    Transport = "BIKE"
	TransportScooter Transport = "SCOOTER"
	TransportCar     Transport = "CAR"
	TransportVan     Transport = "VAN"
)

// kg CO2 per kg of packaging.
var packagingFactors = map[Packaging]float64{
	PackagingPaper:       0.5,
	PackagingPlastic:     2.5,
	PackagingCardboard:   0.8,
	PackagingEcoFriendly: 0.3,
}

// kg CO2 per km travelled.
var transportFactors = map[Transport]float64{
	TransportBike:    0.08,
	TransportScooter: 0.12,
	TransportCar:     0.2,
	TransportVan:     0.25,
}

// TreeAbsorptionKg is the CO2 an average tree absorbs in a year.
const TreeAbsorptionKg = 22.0

var (
	ErrUnknownPackaging = errors.New("unknown packaging type")
	ErrUnknownTransport = errors.New("unknown delivery method")
)

type Shipment struct {
	Packaging       Packaging `json:"packagingType"`
	PackagingWeight float64   `json:"packagingWeight"`
	Transport       Transport `json:"deliveryMethod"`
	DistanceKm      float64   `json:"distance"`
}

type Emissions struct {
	Packaging float64 `json:"packaging"`
	Delivery  float64 `json:"delivery"`
	Total     float64 `json:"total"`
}

func (s Shipment) Validate() error {
	if _, ok := packagingFactors[s.Packaging]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPackaging, s.Packaging)
	}
	if _, ok := transportFactors[s.Transport]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTransport, s.Transport)
	}
	if s.PackagingWeight < 0 || s.DistanceKm < 0 {
		return errors.New("weight and distance must not be negative")
	}
	return nil
}

func Calculate(s Shipment) (Emissions, error) {
	if err := s.Validate(); err != nil {
		return Emissions{}, err
	}
	packaging := packagingFactors[s.Packaging] * s.PackagingWeight
	delivery := transportFactors[s.Transport] * s.DistanceKm
	return Emissions{
		Packaging: packaging,
		Delivery:  delivery,
		Total:     packaging + delivery,
	}, nil
}

// EcoScore rates a shipment from 0 to 100. Each kg of CO2 costs two points;
// eco-friendly packaging and bike delivery earn ten each.
func EcoScore(s Shipment) (float64, error) {
	e, err := Calculate(s)
	if err != nil {
		return 0, err
	}

	score := 100 - e.Total*2
	if s.Packaging == PackagingEcoFriendly {
		score += 10
	}
	if s.Transport == TransportBike {
		score += 10
	}

	return math.Max(0, math.Min(100, score)), nil
}

func TreesNeeded(totalKg float64) int {
	return int(math.Ceil(totalKg / TreeAbsorptionKg))
}

type Report struct {
	TotalEmissions  float64           `json:"totalEmissions"`
	PackagingStats  map[Packaging]int `json:"packagingStats"`
	DeliveryStats   map[Transport]int `json:"deliveryStats"`
	TreesNeeded     int               `json:"treesNeeded"`
	Recommendations []string          `json:"recommendations"`
}

const (
	RecommendEcoPackaging = "Consider switching to more eco-friendly packaging options"
	RecommendLightFleet   = "Consider using more bikes/scooters for short-distance deliveries"
)

func BuildReport(shipments []Shipment) (Report, error) {
	report := Report{
		PackagingStats:  make(map[Packaging]int),
		DeliveryStats:   make(map[Transport]int),
		Recommendations: []string{},
	}

	for i, s := range shipments {
		e, err := Calculate(s)
		if err != nil {
			return Report{}, fmt.Errorf("shipment %d: %w", i, err)
		}
		report.TotalEmissions += e.Total
		report.PackagingStats[s.Packaging]++
		report.DeliveryStats[s.Transport]++
	}

	report.TreesNeeded = TreesNeeded(report.TotalEmissions)

	if report.PackagingStats[PackagingPlastic] > report.PackagingStats[PackagingEcoFriendly] {
		report.Recommendations = append(report.Recommendations, RecommendEcoPackaging)
	}
	if float64(report.DeliveryStats[TransportVan]) > float64(len(shipments))*0.5 {
		report.Recommendations = append(report.Recommendations, RecommendLightFleet)
	}

	return report, nil
}
