/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Structural validation of protocol definitions lives in the factory
  package; handlers validate the rest (dates, amounts, statuses).

SEE ALSO:
  - handlers.go: Uses these types
  - factory/protocol.go: ProtocolJSON / ItemJSON schema
*/
package api

import (
	"github.com/peptra/dose-engine/cadence"
	"github.com/peptra/dose-engine/dosing"
	"github.com/peptra/dose-engine/factory"
)

// =============================================================================
// PROTOCOL TYPES
// =============================================================================

// ProtocolDTO represents a protocol in API responses.
type ProtocolDTO struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	StartDate string    `json:"start_date"`
	EndDate   *string   `json:"end_date,omitempty"`
	IsActive  bool      `json:"is_active"`
	Items     []ItemDTO `json:"items,omitempty"`
}

// ItemDTO represents one dosing rule in API responses.
type ItemDTO struct {
	ID          string `json:"id"`
	PeptideID   string `json:"peptide_id"`
	PeptideName string `json:"peptide_name"`
	DoseMg      string `json:"dose_mg"`

	Schedule   string `json:"schedule"`
	CustomDays []int  `json:"custom_days,omitempty"`
	EveryNDays int    `json:"every_n_days,omitempty"`

	CycleOnWeeks  int `json:"cycle_on_weeks,omitempty"`
	CycleOffWeeks int `json:"cycle_off_weeks,omitempty"`

	TitrationIntervalDays int    `json:"titration_interval_days,omitempty"`
	TitrationAmountMg     string `json:"titration_amount_mg,omitempty"`
	TitrationTargetMg     string `json:"titration_target_mg,omitempty"`

	TimeOfDay string `json:"time_of_day,omitempty"`
}

// CreateProtocolRequest is the request to create a protocol; the body is
// the factory schema verbatim.
type CreateProtocolRequest = factory.ProtocolJSON

// ReplaceItemsRequest replaces a protocol's items wholesale.
type ReplaceItemsRequest struct {
	Items []factory.ItemJSON `json:"items"`
}

// =============================================================================
// DOSE TYPES
// =============================================================================

// DoseRowDTO is one calendar/"today" row.
type DoseRowDTO struct {
	Date        string `json:"date"`
	ProtocolID  string `json:"protocol_id"`
	PeptideID   string `json:"peptide_id"`
	PeptideName string `json:"peptide_name"`
	DoseMg      string `json:"dose_mg"`
	Status      string `json:"status"`
	TimeOfDay   string `json:"time_of_day,omitempty"`
	SiteLabel   string `json:"site_label,omitempty"`
	RecordID    string `json:"record_id,omitempty"`
}

// LogDoseRequest records an ad-hoc or scheduled dose.
type LogDoseRequest struct {
	ProtocolID string `json:"protocol_id"`
	PeptideID  string `json:"peptide_id"`
	Date       string `json:"date"`
	DoseMg     string `json:"dose_mg"`
	Status     string `json:"status,omitempty"` // default TAKEN
	SiteLabel  string `json:"site_label,omitempty"`
	TimeOfDay  string `json:"time_of_day,omitempty"`
}

// SetStatusRequest toggles a dose record's status.
type SetStatusRequest struct {
	ProtocolID string `json:"protocol_id"`
	PeptideID  string `json:"peptide_id"`
	Date       string `json:"date"`
	Status     string `json:"status"`
}

// =============================================================================
// FORECAST / REGENERATION / INVENTORY TYPES
// =============================================================================

// ForecastDTO is the per-item depletion projection.
type ForecastDTO struct {
	PeptideID      string  `json:"peptide_id"`
	PeptideName    string  `json:"peptide_name"`
	RemainingDoses *int64  `json:"remaining_doses"`
	ReorderDate    *string `json:"reorder_date"`
}

// RegenerationDTO reports an applied regeneration.
type RegenerationDTO struct {
	ProtocolID string `json:"protocol_id"`
	Inserted   int    `json:"inserted"`
	Deleted    int    `json:"deleted"`
	Leftover   int    `json:"leftover"`
}

// InventoryDTO is one peptide's mg figure.
type InventoryDTO struct {
	PeptideID string `json:"peptide_id"`
	TotalMg   string `json:"total_mg"`
}

// SetInventoryRequest updates one peptide's mg figure.
type SetInventoryRequest struct {
	TotalMg string `json:"total_mg"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toProtocolDTO(p dosing.Protocol, items []cadence.Item) ProtocolDTO {
	dto := ProtocolDTO{
		ID:        p.ID,
		UserID:    p.UserID,
		Name:      p.Name,
		StartDate: p.StartDate.String(),
		IsActive:  p.IsActive,
	}
	if p.EndDate != nil {
		end := p.EndDate.String()
		dto.EndDate = &end
	}
	for _, item := range items {
		dto.Items = append(dto.Items, toItemDTO(item))
	}
	return dto
}

func toItemDTO(item cadence.Item) ItemDTO {
	dto := ItemDTO{
		ID:            item.ID,
		PeptideID:     item.PeptideID,
		PeptideName:   item.PeptideName,
		DoseMg:        item.DoseMg.String(),
		Schedule:      string(item.Schedule.Kind),
		EveryNDays:    item.Schedule.EveryNDays,
		CycleOnWeeks:  item.Cycle.OnWeeks,
		CycleOffWeeks: item.Cycle.OffWeeks,
		TimeOfDay:     item.TimeOfDay,
	}
	for _, d := range item.Schedule.CustomDays {
		dto.CustomDays = append(dto.CustomDays, int(d))
	}
	if item.Titration != nil {
		dto.TitrationIntervalDays = item.Titration.IntervalDays
		dto.TitrationAmountMg = item.Titration.StepMg.String()
		if item.Titration.TargetMg != nil {
			dto.TitrationTargetMg = item.Titration.TargetMg.String()
		}
	}
	return dto
}

func toDoseRowDTOs(rows []dosing.DoseRow) []DoseRowDTO {
	dtos := make([]DoseRowDTO, len(rows))
	for i, row := range rows {
		dtos[i] = DoseRowDTO{
			Date:        row.Date.String(),
			ProtocolID:  row.ProtocolID,
			PeptideID:   row.PeptideID,
			PeptideName: row.PeptideName,
			DoseMg:      row.DoseMg.String(),
			Status:      string(row.Status),
			TimeOfDay:   row.TimeOfDay,
			SiteLabel:   row.SiteLabel,
			RecordID:    row.RecordID,
		}
	}
	return dtos
}

func toForecastDTOs(forecasts []dosing.ItemForecast) []ForecastDTO {
	dtos := make([]ForecastDTO, len(forecasts))
	for i, f := range forecasts {
		dto := ForecastDTO{
			PeptideID:      f.PeptideID,
			PeptideName:    f.PeptideName,
			RemainingDoses: f.Result.RemainingDoses,
		}
		if f.Result.ReorderDate != nil {
			s := f.Result.ReorderDate.String()
			dto.ReorderDate = &s
		}
		dtos[i] = dto
	}
	return dtos
}
