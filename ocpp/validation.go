package ocpp

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
)

// Validate enforces the validate tags carried by all message structs.
var Validate = validator.New()

func init() {
	for tag, values := range enumTags {
		mustRegister(tag, values)
	}
}

func mustRegister(tag string, allowed []string) {
	err := Validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		for _, v := range allowed {
			if v == value {
				return true
			}
		}
		return false
	})
	if err != nil {
		panic(err)
	}
}

// enumTags maps each custom validation tag used in message structs to the
// string values it admits.
var enumTags = map[string][]string{
	"authorizationStatus":        {"Accepted", "Blocked", "Expired", "Invalid", "ConcurrentTx"},
	"registrationStatus":         {"Accepted", "Pending", "Rejected"},
	"chargePointStatus":          {"Available", "Preparing", "Charging", "SuspendedEVSE", "SuspendedEV", "Finishing", "Reserved", "Unavailable", "Faulted"},
	"chargePointErrorCode":       {"ConnectorLockFailure", "EVCommunicationError", "GroundFailure", "HighTemperature", "InternalError", "LocalListConflict", "NoError", "OtherError", "OverCurrentFailure", "OverVoltage", "PowerMeterFailure", "PowerSwitchFailure", "ReaderFailure", "ResetFailure", "UnderVoltage", "WeakSignal"},
	"reason":                     {"DeAuthorized", "EmergencyStop", "EVDisconnected", "HardReset", "Local", "Other", "PowerLoss", "Reboot", "Remote", "SoftReset", "UnlockCommand"},
	"readingContext":             {"Interruption.Begin", "Interruption.End", "Other", "Sample.Clock", "Sample.Periodic", "Transaction.Begin", "Transaction.End", "Trigger"},
	"valueFormat":                {"Raw", "SignedData"},
	"measurand":                  {"Current.Export", "Current.Import", "Current.Offered", "Energy.Active.Export.Register", "Energy.Active.Import.Register", "Energy.Active.Import.Interval", "Frequency", "Power.Active.Export", "Power.Active.Import", "Power.Factor", "Power.Offered", "SoC", "Temperature", "Voltage"},
	"phase":                      {"L1", "L2", "L3", "N", "L1-N", "L2-N", "L3-N", "L1-L2", "L2-L3", "L3-L1"},
	"location":                   {"Body", "Cable", "EV", "Inlet", "Outlet"},
	"unitOfMeasure":              {"Wh", "kWh", "W", "kW", "A", "V", "Celsius", "Percent"},
	"resetType":                  {"Hard", "Soft"},
	"resetStatus":                {"Accepted", "Rejected"},
	"availabilityType":           {"Inoperative", "Operative"},
	"availabilityStatus":         {"Accepted", "Rejected", "Scheduled"},
	"configurationStatus":        {"Accepted", "Rejected", "RebootRequired", "NotSupported"},
	"remoteStartStopStatus":      {"Accepted", "Rejected"},
	"unlockStatus":               {"Unlocked", "UnlockFailed", "NotSupported"},
	"dataTransferStatus":         {"Accepted", "Rejected", "UnknownMessageId", "UnknownVendorId"},
	"triggerMessageStatus":       {"Accepted", "Rejected", "NotImplemented"},
	"messageTrigger":             {"BootNotification", "DiagnosticsStatusNotification", "FirmwareStatusNotification", "Heartbeat", "MeterValues", "StatusNotification"},
	"updateType":                 {"Differential", "Full"},
	"updateStatus":               {"Accepted", "Failed", "NotSupported", "VersionMismatch"},
	"reservationStatus":          {"Accepted", "Faulted", "Occupied", "Rejected", "Unavailable"},
	"cancelReservationStatus":    {"Accepted", "Rejected"},
	"chargingProfilePurpose":     {"ChargePointMaxProfile", "TxDefaultProfile", "TxProfile"},
	"chargingProfileKind":        {"Absolute", "Recurring", "Relative"},
	"recurrencyKind":             {"Daily", "Weekly"},
	"chargingRateUnit":           {"W", "A"},
	"chargingProfileStatus":      {"Accepted", "Rejected", "NotSupported"},
	"clearChargingProfileStatus": {"Accepted", "Unknown"},
	"getCompositeScheduleStatus": {"Accepted", "Rejected"},
	"firmwareStatus":             {"Downloaded", "DownloadFailed", "Downloading", "Idle", "InstallationFailed", "Installing", "Installed"},
	"diagnosticsStatus":          {"Idle", "Uploaded", "UploadFailed", "Uploading"},
}

// decodePayload unmarshals a raw payload into the target struct and runs tag
// validation, mapping failures onto the OCPP-J error codes.
func decodePayload(raw json.RawMessage, target interface{}, uniqueId string) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return NewError(TypeConstraintViolation, err.Error(), uniqueId)
		}
		return NewError(FormatViolation, err.Error(), uniqueId)
	}
	if err := Validate.Struct(target); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			if validationErrors[0].Tag() == "required" {
				return NewError(OccurrenceConstraintViolation, validationErrors[0].Error(), uniqueId)
			}
			return NewError(PropertyConstraintViolation, validationErrors[0].Error(), uniqueId)
		}
		return NewError(FormatViolation, err.Error(), uniqueId)
	}
	return nil
}

// ValidateOutgoing checks a locally built payload before it is put on the wire.
func ValidateOutgoing(payload interface{}) error {
	if payload == nil {
		return nil
	}
	if err := Validate.Struct(payload); err != nil {
		return NewError(FormatViolation, err.Error(), "")
	}
	return nil
}
