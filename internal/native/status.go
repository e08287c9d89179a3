package native

import "fmt"

// Status is the raw result code of a native call.
//
// Values match the vendor stream engine error enumeration.
type Status int

const (
	StatusOK                        Status = 0
	StatusInternal                  Status = 1
	StatusInsufficientLicense       Status = 2
	StatusNotSupported              Status = 3
	StatusNotAvailable              Status = 4
	StatusConnectionFailed          Status = 5
	StatusTimedOut                  Status = 6
	StatusAllocationFailed          Status = 7
	StatusInvalidParameter          Status = 8
	StatusCalibrationAlreadyStarted Status = 9
	StatusCalibrationNotStarted     Status = 10
	StatusAlreadySubscribed         Status = 11
	StatusNotSubscribed             Status = 12
	StatusOperationFailed           Status = 13
	StatusConflictingAPIInstances   Status = 14
	StatusCalibrationBusy           Status = 15
	StatusCallbackInProgress        Status = 16
	StatusTooManySubscribers        Status = 17
	StatusConnectionFailedDriver    Status = 18
	StatusUnauthorized              Status = 19
	StatusFirmwareUpgradeInProgress Status = 20
)

var statusNames = map[Status]string{
	StatusOK:                        "no error",
	StatusInternal:                  "internal",
	StatusInsufficientLicense:       "insufficient license",
	StatusNotSupported:              "not supported",
	StatusNotAvailable:              "not available",
	StatusConnectionFailed:          "connection failed",
	StatusTimedOut:                  "timed out",
	StatusAllocationFailed:          "allocation failed",
	StatusInvalidParameter:          "invalid parameter",
	StatusCalibrationAlreadyStarted: "calibration already started",
	StatusCalibrationNotStarted:     "calibration not started",
	StatusAlreadySubscribed:         "already subscribed",
	StatusNotSubscribed:             "not subscribed",
	StatusOperationFailed:           "operation failed",
	StatusConflictingAPIInstances:   "conflicting api instances",
	StatusCalibrationBusy:           "calibration busy",
	StatusCallbackInProgress:        "callback in progress",
	StatusTooManySubscribers:        "too many subscribers",
	StatusConnectionFailedDriver:    "connection failed (driver)",
	StatusUnauthorized:              "unauthorized",
	StatusFirmwareUpgradeInProgress: "firmware upgrade in progress",
}

// String returns the vendor description of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}
