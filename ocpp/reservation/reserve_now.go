package reservation

import "vcpsim/types"

const ReserveNowFeatureName = "ReserveNow"

type ReservationStatus string

const (
	ReservationStatusAccepted    ReservationStatus = "Accepted"
	ReservationStatusFaulted     ReservationStatus = "Faulted"
	ReservationStatusOccupied    ReservationStatus = "Occupied"
	ReservationStatusRejected    ReservationStatus = "Rejected"
	ReservationStatusUnavailable ReservationStatus = "Unavailable"
)

type ReserveNowRequest struct {
	ConnectorId   int             `json:"connectorId" validate:"gte=0"`
	ExpiryDate    *types.DateTime `json:"expiryDate" validate:"required"`
	IdTag         string          `json:"idTag" validate:"required,max=20"`
	ParentIdTag   string          `json:"parentIdTag,omitempty" validate:"max=20"`
	ReservationId int             `json:"reservationId"`
}

type ReserveNowResponse struct {
	Status ReservationStatus `json:"status" validate:"required,reservationStatus"`
}

func (r ReserveNowRequest) GetFeatureName() string {
	return ReserveNowFeatureName
}

func (c ReserveNowResponse) GetFeatureName() string {
	return ReserveNowFeatureName
}

func NewReserveNowResponse(status ReservationStatus) *ReserveNowResponse {
	return &ReserveNowResponse{Status: status}
}
