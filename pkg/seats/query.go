package seats

import "context"

// FindAvailableTrains lists trains running exactly the given route, ordered by id.
// Sold-out trains are included with zero available seats.
func (service *Service) FindAvailableTrains(ctx context.Context, route Route) ([]TrainSummary, error) {
	return service.store.FindTrains(ctx, route)
}

// GetBooking returns a booking joined with its train. Bookings never change once
// written, so a configured cache is read first and filled on a miss.
func (service *Service) GetBooking(ctx context.Context, bookingID BookingID) (BookingDetail, error) {
	if service.bookingCache != nil {
		cached, found, err := service.bookingCache.GetBooking(ctx, bookingID)
		if err != nil {
			service.logCacheFailure(ctx, bookingID, err)
		} else if found {
			return cached, nil
		}
	}
	detail, err := service.store.GetBooking(ctx, bookingID)
	if err != nil {
		return BookingDetail{}, err
	}
	if service.bookingCache != nil {
		if err := service.bookingCache.PutBooking(ctx, detail); err != nil {
			service.logCacheFailure(ctx, bookingID, err)
		}
	}
	return detail, nil
}

// AddTrain registers a train with every seat available.
func (service *Service) AddTrain(ctx context.Context, input TrainInput) (Train, error) {
	train, err := service.store.CreateTrain(ctx, input, service.nowFn())
	service.logOperation(ctx, OperationLog{
		Operation: operationAddTrain,
		TrainID:   train.ID,
		Error:     err,
	})
	if err != nil {
		return Train{}, err
	}
	return train, nil
}

// AuditLedger reports every train whose available seats differ from total seats
// minus its booking count. An empty result means the ledger is consistent.
func (service *Service) AuditLedger(ctx context.Context) ([]SeatDrift, error) {
	return service.store.ListSeatDrift(ctx)
}

func (service *Service) logCacheFailure(ctx context.Context, bookingID BookingID, err error) {
	service.logOperation(ctx, OperationLog{
		Operation: operationBookingCache,
		BookingID: bookingID,
		Error:     err,
	})
}
