package api

import (
	"net/http"

	"github.com/safar/go-grocery-store/internal/sustainability"
)

type shipmentRequest struct {
	PackagingType   string  `json:"packagingType" validate:"required,oneof=PAPER PLASTIC CARDBOARD ECO_FRIENDLY"`
	PackagingWeight float64 `json:"packagingWeight" validate:"gte=0"`
	DeliveryMethod  string  `json:"deliveryMethod" validate:"required,oneof=BIKE SCOOTER CAR VAN"`
	Distance        float64 `json:"distance" validate:"gte=0"`
}

type sustainabilityRequest struct {
	Shipments []shipmentRequest `json:"shipments" validate:"required,min=1,dive"`
}

// POST /api/sustainability/report
func (h *Handler) SustainabilityReport(w http.ResponseWriter, r *http.Request) {
	var req sustainabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	shipments := make([]sustainability.Shipment, 0, len(req.Shipments))
	for _, s := range req.Shipments {
		shipments = append(shipments, sustainability.Shipment{
			Packaging:       sustainability.Packaging(s.PackagingType),
			PackagingWeight: s.PackagingWeight,
			Transport:       sustainability.Transport(s.DeliveryMethod),
			DistanceKm:      s.Distance,
		})
	}

	report, err := sustainability.BuildReport(shipments)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
