package seats

import "time"

const (
	operationReserve      = "reserve"
	operationAddTrain     = "add_train"
	operationBookingCache = "booking_cache"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	errorOperationService   = "service"
	errorSubjectReservation = "reservation"
	errorCodeRetries        = "retries_exhausted"
	errorCodeCanceled       = "canceled"

	defaultMetadataJSON = "{}"

	minTrainNameLength = 2
	minStationLength   = 2

	// DefaultReserveMaxAttempts bounds how many times a conflicting reservation is retried.
	DefaultReserveMaxAttempts = 5
	// DefaultReserveRetryDelay is the base linear backoff between reservation attempts.
	DefaultReserveRetryDelay = 10 * time.Millisecond
)
