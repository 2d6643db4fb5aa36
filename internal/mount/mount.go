// Package mount implements the LX200 request/response protocol engine
// (spec.md section 4.A), grounded on
// original_source/services/mount_control/lx200.py for the exact opcode set
// and response parsing, generalized to Go's connection-state-machine and
// single-mutex-gate idiom.
package mount

import (
	"context"
	"errors"
	"time"

	"github.com/linnemanlabs/nightwatch/internal/coords"
)

// PierSide is the mount's meridian side.
type PierSide string

const (
	PierEast    PierSide = "east"
	PierWest    PierSide = "west"
	PierUnknown PierSide = "unknown"
)

// TrackingRate selects the LX200 tracking-rate opcode.
type TrackingRate string

const (
	RateSidereal TrackingRate = "TQ"
	RateLunar    TrackingRate = "TL"
	RateSolar    TrackingRate = "TS"
	RateKing     TrackingRate = "TK"
)

// Status is a snapshot of the mount's current state (spec.md section 3).
type Status struct {
	RA          coords.RA
	Dec         coords.Dec
	IsTracking  bool
	IsSlewing   bool
	IsParked    bool
	PierSide    PierSide
	Altitude    *float64
	Azimuth     *float64
	AcquiredAt  time.Time
}

// Errors returned by Client operations. Callers distinguish failure class
// by errors.Is against these sentinels, per spec.md section 7's error
// taxonomy (connection / device timeout / protocol).
var (
	ErrTimeout    = errors.New("mount: command timed out")
	ErrProtocol   = errors.New("mount: unrecognized response format")
	ErrConnection = errors.New("mount: connection error")
	ErrNotOpen    = errors.New("mount: connection is not open")
)

// Client is the abstraction the rest of NIGHTWATCH depends on (the
// "explicit interface abstraction" spec.md section 9 calls for in place
// of the source's duck-typed services). *Conn implements it.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error

	GetStatus(ctx context.Context) (*Status, error)
	GoToRADec(ctx context.Context, ra coords.RA, dec coords.Dec) error
	GoToAltAz(ctx context.Context, alt, az float64) error
	Sync(ctx context.Context, ra coords.RA, dec coords.Dec) error
	Stop(ctx context.Context) error
	StopAxis(ctx context.Context, axis string) error
	StartTracking(ctx context.Context) error
	StopTracking(ctx context.Context) error
	SetTrackingRate(ctx context.Context, rate TrackingRate) error
	Park(ctx context.Context) error
	Unpark(ctx context.Context) error
	IsParked(ctx context.Context) (bool, error)
	SetParkPosition(ctx context.Context) error
	Home(ctx context.Context) error
	HomeReset(ctx context.Context) error
	GetSiteLatLon(ctx context.Context) (lat, lon string, err error)
	SetSiteLatLon(ctx context.Context, lat, lon string) error
	GetFirmwareInfo(ctx context.Context) (string, error)
}
