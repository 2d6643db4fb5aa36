package mount

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/linnemanlabs/nightwatch/internal/coords"
)

const (
	terminator     = "#"
	commandTimeout = 5 * time.Second
)

// Conn is the LX200 protocol engine over a single logical connection
// (TCP or serial). All command exchanges are serialized through cmdMu so
// that request k completes before request k+1 is written (spec.md section
// 4.A's concurrency contract / command-singleness invariant).
type Conn struct {
	transport transport

	mu    sync.Mutex // guards state and consecutive timeout count
	state ConnState

	cmdMu              sync.Mutex // the single gate onto the wire
	consecutiveTimeout int
}

// NewTCP creates a mount connection over TCP to host:port.
func NewTCP(addr string) *Conn {
	return &Conn{
		transport: newTCPTransport(addr),
		state:     StateClosed,
	}
}

// NewSerial creates a mount connection over a serial port, opened lazily
// via open when Connect is called.
func NewSerial(open func(ctx context.Context) (SerialPort, error)) *Conn {
	return &Conn{
		transport: newSerialTransport(open),
		state:     StateClosed,
	}
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect attempts the transport. Failure transitions back to closed and
// surfaces the cause; the engine never auto-reconnects (spec.md section
// 4.A) — the orchestrator decides when to retry.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.transport.open(ctx); err != nil {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.state = StateOpen
	c.consecutiveTimeout = 0
	c.mu.Unlock()
	return nil
}

// Disconnect closes the transport and returns to the closed state.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.transport.close()
	c.state = StateClosed
	return err
}

// send writes a colon-prefixed, '#'-terminated command and returns the
// payload with the terminator stripped. Serialized by cmdMu: at most one
// exchange is in flight on the connection at a time. Two consecutive
// timeouts escalate the connection to faulted (spec.md section 4.A
// failure semantics); any transport error is immediately fatal to the
// connection.
func (c *Conn) send(ctx context.Context, command string) (string, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.State() != StateOpen {
		return "", ErrNotOpen
	}

	frame := ":" + command + terminator
	resp, err := c.transport.sendRecv(ctx, frame, commandTimeout)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.consecutiveTimeout = 0
		return resp, nil
	case err == ErrTimeout:
		c.consecutiveTimeout++
		if c.consecutiveTimeout >= 2 {
			c.state = StateFaulted
		}
		return "", ErrTimeout
	default:
		c.state = StateFaulted
		return "", err
	}
}

// --- position queries ---

func (c *Conn) getRA(ctx context.Context) (string, error)  { return c.send(ctx, "GR") }
func (c *Conn) getDec(ctx context.Context) (string, error) { return c.send(ctx, "GD") }

func (c *Conn) getAltitude(ctx context.Context) (string, error) { return c.send(ctx, "GA") }
func (c *Conn) getAzimuth(ctx context.Context) (string, error)  { return c.send(ctx, "GZ") }

func (c *Conn) getPierSide(ctx context.Context) (PierSide, error) {
	resp, err := c.send(ctx, "Gm")
	if err != nil {
		return PierUnknown, err
	}
	switch resp {
	case "E":
		return PierEast, nil
	case "W":
		return PierWest, nil
	default:
		return PierUnknown, nil
	}
}

var (
	raRe  = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})`)
	decRe = regexp.MustCompile(`^([+-]?\d{2})[*\x{00b0}](\d{2})[:'\x{2032}](\d{2})`)
)

// GetStatus issues position, tracking-state, and pier-side queries and
// composes a status snapshot, or ErrProtocol if a required field cannot
// be parsed (spec.md section 4.A).
func (c *Conn) GetStatus(ctx context.Context) (*Status, error) {
	raStr, err := c.getRA(ctx)
	if err != nil {
		return nil, err
	}
	decStr, err := c.getDec(ctx)
	if err != nil {
		return nil, err
	}

	if !raRe.MatchString(raStr) {
		return nil, fmt.Errorf("%w: RA %q", ErrProtocol, raStr)
	}
	ra, err := coords.ParseHMS(raStr)
	if err != nil {
		return nil, fmt.Errorf("%w: RA %q: %v", ErrProtocol, raStr, err)
	}

	if !decRe.MatchString(decStr) {
		return nil, fmt.Errorf("%w: Dec %q", ErrProtocol, decStr)
	}
	dec, err := coords.ParseSDMS(decStr)
	if err != nil {
		return nil, fmt.Errorf("%w: Dec %q: %v", ErrProtocol, decStr, err)
	}

	tracking, slewing, err := c.trackingSlewing(ctx)
	if err != nil {
		return nil, err
	}
	parked, err := c.IsParked(ctx)
	if err != nil {
		return nil, err
	}
	pier, err := c.getPierSide(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		RA:         ra,
		Dec:        dec,
		IsTracking: tracking,
		IsSlewing:  slewing,
		IsParked:   parked,
		PierSide:   pier,
		AcquiredAt: time.Now(),
	}, nil
}

// trackingSlewing issues GW and parses char 0 (T/N tracking) and char 1
// (S/N slewing) per spec.md section 6's opcode table.
func (c *Conn) trackingSlewing(ctx context.Context) (tracking, slewing bool, err error) {
	resp, err := c.send(ctx, "GW")
	if err != nil {
		return false, false, err
	}
	if len(resp) >= 1 {
		tracking = resp[0] == 'T'
	}
	if len(resp) >= 2 {
		slewing = resp[1] == 'S'
	}
	return tracking, slewing, nil
}

// --- motion control ---

// GoToRADec sets the target RA/Dec then initiates a slew, succeeding iff
// both target-set commands return "1" and the slew command returns "0"
// (spec.md section 4.A / 6).
func (c *Conn) GoToRADec(ctx context.Context, ra coords.RA, dec coords.Dec) error {
	raResult, err := c.send(ctx, "Sr"+ra.FormatHMS())
	if err != nil {
		return err
	}
	if raResult != "1" {
		return fmt.Errorf("%w: set target RA rejected", ErrProtocol)
	}
	decResult, err := c.send(ctx, "Sd"+dec.FormatSDMS())
	if err != nil {
		return err
	}
	if decResult != "1" {
		return fmt.Errorf("%w: set target Dec rejected", ErrProtocol)
	}
	slewResult, err := c.send(ctx, "MS")
	if err != nil {
		return err
	}
	if slewResult != "0" {
		return fmt.Errorf("%w: slew rejected: %s", ErrProtocol, slewResult)
	}
	return nil
}

// GoToAltAz sets target altitude/azimuth then slews.
func (c *Conn) GoToAltAz(ctx context.Context, alt, az float64) error {
	if _, err := c.send(ctx, "Sa"+coords.FormatAz(alt)); err != nil {
		return err
	}
	if _, err := c.send(ctx, "Sz"+coords.FormatAz(az)); err != nil {
		return err
	}
	result, err := c.send(ctx, "MA")
	if err != nil {
		return err
	}
	if result != "0" {
		return fmt.Errorf("%w: alt/az slew rejected: %s", ErrProtocol, result)
	}
	return nil
}

// Sync syncs the mount to the given coordinates.
func (c *Conn) Sync(ctx context.Context, ra coords.RA, dec coords.Dec) error {
	if _, err := c.send(ctx, "Sr"+ra.FormatHMS()); err != nil {
		return err
	}
	if _, err := c.send(ctx, "Sd"+dec.FormatSDMS()); err != nil {
		return err
	}
	_, err := c.send(ctx, "CM")
	return err
}

// Stop halts all mount motion.
func (c *Conn) Stop(ctx context.Context) error {
	return c.fireAndForget(ctx, "Q")
}

// StopAxis halts motion on one axis ('e','w','n','s').
func (c *Conn) StopAxis(ctx context.Context, axis string) error {
	return c.fireAndForget(ctx, "Q"+axis)
}

// fireAndForget issues a command that LX200 documents as having no reply
// (spec.md section 6: "Q"/"Qn/Qs/Qe/Qw" -> no reply). We still go through
// send so the singleness gate and fault escalation apply, but we tolerate
// a timeout as success since no terminator is ever coming.
func (c *Conn) fireAndForget(ctx context.Context, command string) error {
	_, err := c.send(ctx, command)
	if err == ErrTimeout {
		return nil
	}
	return err
}

// --- tracking control ---

func (c *Conn) StartTracking(ctx context.Context) error {
	result, err := c.send(ctx, "Te")
	if err != nil {
		return err
	}
	if result != "1" {
		return fmt.Errorf("%w: start tracking rejected", ErrProtocol)
	}
	return nil
}

func (c *Conn) StopTracking(ctx context.Context) error {
	result, err := c.send(ctx, "Td")
	if err != nil {
		return err
	}
	if result != "1" {
		return fmt.Errorf("%w: stop tracking rejected", ErrProtocol)
	}
	return nil
}

func (c *Conn) SetTrackingRate(ctx context.Context, rate TrackingRate) error {
	_, err := c.send(ctx, string(rate))
	return err
}

// --- park control ---

func (c *Conn) Park(ctx context.Context) error {
	result, err := c.send(ctx, "hP")
	if err != nil {
		return err
	}
	if result != "1" {
		return fmt.Errorf("%w: park rejected", ErrProtocol)
	}
	return nil
}

func (c *Conn) Unpark(ctx context.Context) error {
	result, err := c.send(ctx, "hR")
	if err != nil {
		return err
	}
	if result != "1" {
		return fmt.Errorf("%w: unpark rejected", ErrProtocol)
	}
	return nil
}

func (c *Conn) IsParked(ctx context.Context) (bool, error) {
	result, err := c.send(ctx, "GU")
	if err != nil {
		return false, err
	}
	for _, r := range result {
		if r == 'P' {
			return true, nil
		}
	}
	return false, nil
}

func (c *Conn) SetParkPosition(ctx context.Context) error {
	result, err := c.send(ctx, "hQ")
	if err != nil {
		return err
	}
	if result != "1" {
		return fmt.Errorf("%w: set park position rejected", ErrProtocol)
	}
	return nil
}

// --- homing ---

func (c *Conn) Home(ctx context.Context) error {
	result, err := c.send(ctx, "hC")
	if err != nil {
		return err
	}
	if result != "1" {
		return fmt.Errorf("%w: home rejected", ErrProtocol)
	}
	return nil
}

func (c *Conn) HomeReset(ctx context.Context) error {
	result, err := c.send(ctx, "hF")
	if err != nil {
		return err
	}
	if result != "1" {
		return fmt.Errorf("%w: home reset rejected", ErrProtocol)
	}
	return nil
}

// --- site information ---

func (c *Conn) GetSiteLatLon(ctx context.Context) (lat, lon string, err error) {
	lat, err = c.send(ctx, "Gt")
	if err != nil {
		return "", "", err
	}
	lon, err = c.send(ctx, "Gg")
	if err != nil {
		return "", "", err
	}
	return lat, lon, nil
}

func (c *Conn) SetSiteLatLon(ctx context.Context, lat, lon string) error {
	latResult, err := c.send(ctx, "St"+lat)
	if err != nil {
		return err
	}
	if latResult != "1" {
		return fmt.Errorf("%w: set latitude rejected", ErrProtocol)
	}
	lonResult, err := c.send(ctx, "Sg"+lon)
	if err != nil {
		return err
	}
	if lonResult != "1" {
		return fmt.Errorf("%w: set longitude rejected", ErrProtocol)
	}
	return nil
}

func (c *Conn) GetLocalTime(ctx context.Context) (string, error) {
	return c.send(ctx, "GL")
}

func (c *Conn) GetSiderealTime(ctx context.Context) (string, error) {
	return c.send(ctx, "GS")
}

// --- utility ---

func (c *Conn) GetFirmwareInfo(ctx context.Context) (string, error) {
	return c.send(ctx, "GVP")
}

func (c *Conn) GetFirmwareVersion(ctx context.Context) (string, error) {
	return c.send(ctx, "GVN")
}

var _ Client = (*Conn)(nil)
