// Package rediscache caches booking details in Redis. Bookings are immutable,
// so entries only expire by TTL.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/seatledger/pkg/seats"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "seatledger:booking:"

// Cache implements seats.BookingCache.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// New returns a Cache storing entries for ttl. A zero ttl keeps entries forever.
func New(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Dial parses a redis:// URL and verifies the server answers PING.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (cache *Cache) GetBooking(ctx context.Context, bookingID seats.BookingID) (seats.BookingDetail, bool, error) {
	payload, err := cache.client.Get(ctx, bookingKey(bookingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return seats.BookingDetail{}, false, nil
	}
	if err != nil {
		return seats.BookingDetail{}, false, fmt.Errorf("redis get booking %s: %w", bookingID, err)
	}
	var entry cachedBooking
	if err := json.Unmarshal(payload, &entry); err != nil {
		return seats.BookingDetail{}, false, fmt.Errorf("decode cached booking %s: %w", bookingID, err)
	}
	detail, err := entry.toDetail()
	if err != nil {
		return seats.BookingDetail{}, false, fmt.Errorf("decode cached booking %s: %w", bookingID, err)
	}
	return detail, true, nil
}

func (cache *Cache) PutBooking(ctx context.Context, detail seats.BookingDetail) error {
	payload, err := json.Marshal(newCachedBooking(detail))
	if err != nil {
		return fmt.Errorf("encode booking %s: %w", detail.Booking.ID, err)
	}
	if err := cache.client.Set(ctx, bookingKey(detail.Booking.ID), payload, cache.ttl).Err(); err != nil {
		return fmt.Errorf("redis set booking %s: %w", detail.Booking.ID, err)
	}
	return nil
}

func bookingKey(bookingID seats.BookingID) string {
	return keyPrefix + bookingID.String()
}

type cachedBooking struct {
	ID                  int64           `json:"id"`
	UserID              int64           `json:"userId"`
	TrainID             int64           `json:"trainId"`
	Metadata            json.RawMessage `json:"metadata"`
	CreatedUnixUTC      int64           `json:"createdAt"`
	TrainName           string          `json:"trainName"`
	Source              string          `json:"source"`
	Destination         string          `json:"destination"`
	TotalSeats          int64           `json:"totalSeats"`
	AvailableSeats      int64           `json:"availableSeats"`
	TrainCreatedUnixUTC int64           `json:"trainCreatedAt"`
}

func newCachedBooking(detail seats.BookingDetail) cachedBooking {
	return cachedBooking{
		ID:                  detail.Booking.ID.Int64(),
		UserID:              detail.Booking.UserID.Int64(),
		TrainID:             detail.Booking.TrainID.Int64(),
		Metadata:            json.RawMessage(detail.Booking.Metadata.String()),
		CreatedUnixUTC:      detail.Booking.CreatedUnixUTC,
		TrainName:           detail.Train.Name,
		Source:              detail.Train.Route.Source(),
		Destination:         detail.Train.Route.Destination(),
		TotalSeats:          detail.Train.TotalSeats.Int64(),
		AvailableSeats:      detail.Train.AvailableSeats.Int64(),
		TrainCreatedUnixUTC: detail.Train.CreatedUnixUTC,
	}
}

func (entry cachedBooking) toDetail() (seats.BookingDetail, error) {
	bookingID, err := seats.NewBookingID(entry.ID)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	userID, err := seats.NewUserID(entry.UserID)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	trainID, err := seats.NewTrainID(entry.TrainID)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	metadata, err := seats.NewMetadataJSON(string(entry.Metadata))
	if err != nil {
		return seats.BookingDetail{}, err
	}
	route, err := seats.NewRoute(entry.Source, entry.Destination)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	availability, err := seats.NewAvailability(trainID, entry.TotalSeats, entry.AvailableSeats)
	if err != nil {
		return seats.BookingDetail{}, err
	}
	return seats.BookingDetail{
		Booking: seats.Booking{
			ID:             bookingID,
			UserID:         userID,
			TrainID:        trainID,
			Metadata:       metadata,
			CreatedUnixUTC: entry.CreatedUnixUTC,
		},
		Train: seats.Train{
			ID:             trainID,
			Name:           entry.TrainName,
			Route:          route,
			TotalSeats:     availability.TotalSeats,
			AvailableSeats: availability.AvailableSeats,
			CreatedUnixUTC: entry.TrainCreatedUnixUTC,
		},
	}, nil
}
