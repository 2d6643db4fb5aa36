package safety

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/nightwatch/internal/events"
	"github.com/linnemanlabs/nightwatch/internal/mount"
	"github.com/linnemanlabs/nightwatch/internal/sensors"
)

// Callback is invoked whenever the derived action changes.
type Callback func(Status)

// Monitor evaluates the current sensor snapshot on a timer and, subject
// to debouncing, drives mount/enclosure actions. Not safe for concurrent
// mutation of input setters and Evaluate from multiple goroutines without
// external synchronization beyond what's documented per setter.
type Monitor struct {
	thresholds Thresholds
	mountCtl   mount.Client
	enclosure  EnclosureCloser
	logger     log.Logger
	bus        *events.Bus

	weatherCell *sensors.Cell[sensors.WeatherSample]
	cloudCell   *sensors.Cell[sensors.CloudSample]
	powerCell   *sensors.Cell[sensors.PowerSample]
	enclCell    *sensors.Cell[sensors.EnclosureSample]

	sunAltitude     *float64
	sunAltitudeAt   time.Time
	targetAltitude  *float64
	lastRainAt      time.Time

	windTriggered     bool
	humidityTriggered bool
	cloudTriggered    bool
	daylightTriggered bool

	batteryStage int

	networkConnected bool
	networkFailCount int
	networkLatencyMs *float64
	lastNetworkCheck time.Time

	unsafeSince time.Time
	safeSince   time.Time
	lastAction  SafetyAction

	statusMu   sync.RWMutex
	lastStatus Status

	callbacks []Callback
}

// EnclosureCloser is the minimal enclosure-control surface the monitor
// needs for emergency actions.
type EnclosureCloser interface {
	Close(ctx context.Context) error
}

// NewMonitor constructs a Monitor. Any of mountCtl, enclosure, bus, logger
// may be nil; sensor cells may be nil if that source is unavailable.
func NewMonitor(
	thresholds Thresholds,
	mountCtl mount.Client,
	enclosure EnclosureCloser,
	weatherCell *sensors.Cell[sensors.WeatherSample],
	cloudCell *sensors.Cell[sensors.CloudSample],
	powerCell *sensors.Cell[sensors.PowerSample],
	enclCell *sensors.Cell[sensors.EnclosureSample],
	bus *events.Bus,
	logger log.Logger,
) *Monitor {
	return &Monitor{
		thresholds:       thresholds,
		mountCtl:         mountCtl,
		enclosure:        enclosure,
		weatherCell:      weatherCell,
		cloudCell:        cloudCell,
		powerCell:        powerCell,
		enclCell:         enclCell,
		bus:              bus,
		logger:           logger,
		networkConnected: true,
	}
}

// RegisterCallback adds a listener invoked on every action change.
func (m *Monitor) RegisterCallback(cb Callback) { m.callbacks = append(m.callbacks, cb) }

// LastStatus returns the most recent Evaluate result computed by Run, the
// zero Status if evalOnce has never run. Used by internal/toolexec to
// veto motion-causing tools without forcing a fresh evaluation per call.
func (m *Monitor) LastStatus() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.lastStatus
}

// SafeToObserve reports the last evaluated safe-to-observe verdict and
// its reasons, satisfying internal/toolexec.SafetyChecker for the
// motion-causing-tool veto (spec.md section 4.G step 3).
func (m *Monitor) SafeToObserve() (bool, []string) {
	status := m.LastStatus()
	return status.IsSafe, status.Reasons
}

// UpdateSunAltitude records the current sun altitude from the ephemeris
// service.
func (m *Monitor) UpdateSunAltitude(altitude float64) {
	m.sunAltitude = &altitude
	m.sunAltitudeAt = time.Now()
}

// UpdateTargetAltitude records the current observing target's altitude.
func (m *Monitor) UpdateTargetAltitude(altitude float64) { m.targetAltitude = &altitude }

// ClearTarget clears the target altitude (no active target).
func (m *Monitor) ClearTarget() { m.targetAltitude = nil }

// RecordNetworkCheck records the result of a connectivity probe.
func (m *Monitor) RecordNetworkCheck(ok bool, latencyMs float64) {
	m.lastNetworkCheck = time.Now()
	if ok {
		m.networkConnected = true
		m.networkFailCount = 0
		m.networkLatencyMs = &latencyMs
		return
	}
	m.networkFailCount++
	if m.networkFailCount >= m.thresholds.NetworkFailCountPark {
		m.networkConnected = false
	}
}

func isStale(at time.Time, bound time.Duration) bool {
	if at.IsZero() {
		return true
	}
	return time.Since(at) > bound
}

func (m *Monitor) evaluateWeather() (bool, []string) {
	sample := m.weatherCell
	if sample == nil {
		return false, []string{"weather data unavailable"}
	}
	latest := sample.Latest()
	if latest == nil || isStale(latest.AcquiredAt, m.thresholds.WeatherSensorTimeout) {
		return false, []string{"weather data stale or unavailable - treating as unsafe"}
	}

	if latest.IsRaining || latest.RainRateInHr > 0 {
		m.lastRainAt = time.Now()
		return false, []string{errf("rain detected (rate %.2f in/hr) - EMERGENCY", latest.RainRateInHr)}
	}

	var reasons []string

	if latest.WindGustMPH > m.thresholds.WindGustLimitMPH {
		m.windTriggered = true
		return false, []string{errf("wind gust %.1f mph exceeds limit", latest.WindGustMPH)}
	}

	wind := latest.WindSpeedMPH
	if m.windTriggered {
		clearThreshold := m.thresholds.WindLimitMPH - m.thresholds.WindHysteresisMPH
		if wind < clearThreshold {
			m.windTriggered = false
		} else {
			reasons = append(reasons, errf("wind %.1f mph - waiting for drop below %.0f mph", wind, clearThreshold))
		}
	} else if wind > m.thresholds.WindLimitMPH {
		m.windTriggered = true
		reasons = append(reasons, errf("wind %.1f mph exceeds limit", wind))
	}

	humidity := latest.HumidityPct
	if m.humidityTriggered {
		clearThreshold := m.thresholds.HumidityLimit - m.thresholds.HumidityHysteresis
		if humidity < clearThreshold {
			m.humidityTriggered = false
		} else {
			reasons = append(reasons, errf("humidity %.1f%% - waiting for drop below %.0f%%", humidity, clearThreshold))
		}
	} else if humidity > m.thresholds.HumidityLimit {
		m.humidityTriggered = true
		reasons = append(reasons, errf("humidity %.1f%% exceeds limit", humidity))
	}

	if latest.TemperatureF < m.thresholds.TempMinF {
		reasons = append(reasons, errf("temperature %.1f°F below minimum", latest.TemperatureF))
	}

	margin := latest.TemperatureF - latest.DewPointF
	if margin < m.thresholds.DewPointMarginF {
		reasons = append(reasons, errf("temperature within %.1f°F of dew point - condensation risk", margin))
	}

	return len(reasons) == 0, reasons
}

func (m *Monitor) evaluateClouds() (bool, []string) {
	if m.cloudCell == nil {
		return true, nil
	}
	latest := m.cloudCell.Latest()
	if latest == nil || isStale(latest.AcquiredAt, m.thresholds.CloudSensorTimeout) {
		if m.logger != nil {
			m.logger.Warn(context.Background(), "cloud sensor data stale")
		}
		return true, []string{"cloud sensor data stale - relying on weather sensor"}
	}

	diff := latest.SkyAmbientDiffC
	if m.cloudTriggered {
		clearThreshold := m.thresholds.ClearSkyThresholdC - m.thresholds.CloudHysteresisC
		if diff < clearThreshold {
			m.cloudTriggered = false
			return true, []string{errf("clouds clearing: sky-ambient diff %.1f°C", diff)}
		}
		return false, []string{errf("cloudy: sky-ambient diff %.1f°C (waiting for < %.0f°C)", diff, clearThreshold)}
	}
	if diff > m.thresholds.CloudyThresholdC {
		m.cloudTriggered = true
		return false, []string{errf("cloudy: sky-ambient diff %.1f°C", diff)}
	}
	if diff > m.thresholds.ClearSkyThresholdC {
		return true, []string{errf("partly cloudy: sky-ambient diff %.1f°C", diff)}
	}
	return true, nil
}

func (m *Monitor) evaluateDaylight() (bool, []string) {
	if !m.sunAltitudeAt.IsZero() && isStale(m.sunAltitudeAt, m.thresholds.EphemerisTimeout) {
		if m.logger != nil {
			m.logger.Warn(context.Background(), "ephemeris data stale")
		}
	}
	if m.sunAltitude == nil {
		return true, nil
	}
	alt := *m.sunAltitude

	if m.daylightTriggered {
		clearThreshold := m.thresholds.TwilightAltitudeDeg - m.thresholds.TwilightHysteresisDeg
		if alt < clearThreshold {
			m.daylightTriggered = false
			return true, []string{errf("astronomical night beginning (sun at %.1f°)", alt)}
		}
		return false, []string{errf("sun altitude %.1f° - waiting for < %.0f°", alt, clearThreshold)}
	}
	if alt > m.thresholds.TwilightAltitudeDeg {
		m.daylightTriggered = true
		return false, []string{errf("sun altitude %.1f° - not astronomical night", alt)}
	}
	return true, nil
}

func (m *Monitor) evaluateRainHoldoff() (bool, []string, *float64) {
	if m.lastRainAt.IsZero() {
		return true, nil, nil
	}
	elapsed := time.Since(m.lastRainAt)
	if elapsed < m.thresholds.RainHoldoff {
		remaining := (m.thresholds.RainHoldoff - elapsed).Minutes()
		return false, []string{errf("rain holdoff: %.0f minutes remaining", remaining)}, &remaining
	}
	return true, nil, nil
}

func (m *Monitor) evaluateAltitude() (bool, []string) {
	if m.targetAltitude == nil {
		return true, nil
	}
	alt := *m.targetAltitude
	minAlt := m.thresholds.MinAltitudeDeg
	if alt < minAlt {
		return false, []string{errf("target altitude %.1f° below minimum %.0f°", alt, minAlt)}
	}
	if alt < minAlt+m.thresholds.HorizonAltitudeBuffer {
		return true, []string{errf("target altitude %.1f° near horizon limit", alt)}
	}
	return true, nil
}

func (m *Monitor) evaluatePower() (bool, []string, bool) {
	if m.powerCell == nil {
		return true, nil, false
	}
	latest := m.powerCell.Latest()
	if latest == nil {
		return true, nil, false
	}
	battery := latest.BatteryPercent
	var reasons []string

	if battery < m.thresholds.BatteryStage4Percent {
		return false, []string{errf("UPS battery CRITICAL: %.0f%% - EMERGENCY SHUTDOWN", battery)}, true
	}
	if battery < m.thresholds.BatteryStage3Percent {
		return false, []string{errf("UPS battery low: %.0f%% - parking telescope", battery)}, false
	}
	if battery < m.thresholds.BatteryStage1Percent {
		reasons = append(reasons, errf("UPS battery warning: %.0f%%", battery))
	}
	if latest.OnBattery {
		reasons = append(reasons, "running on battery power")
	}
	return true, reasons, false
}

func (m *Monitor) evaluateEnclosure() (bool, []string) {
	if !m.thresholds.RequireEnclosureOpen {
		return true, nil
	}
	if m.enclCell == nil {
		return true, []string{"enclosure status unknown"}
	}
	latest := m.enclCell.Latest()
	if latest == nil {
		return true, []string{"enclosure status unknown"}
	}
	if !latest.Open {
		return false, []string{"enclosure closed - cannot observe"}
	}
	return true, nil
}

func normalizeHourAngle(deg float64) float64 {
	for deg > 180 {
		deg -= 360
	}
	for deg < -180 {
		deg += 360
	}
	return deg
}

// evaluateMeridian checks a precomputed hour angle in degrees; the monitor
// has no ephemeris of its own. The orchestrator's Run call passes a
// callback that always returns nil, so there the check reports safe.
func (m *Monitor) evaluateMeridian(hourAngleDeg *float64) (bool, []string) {
	if hourAngleDeg == nil {
		return true, nil
	}
	ha := normalizeHourAngle(*hourAngleDeg)
	absHA := ha
	if absHA < 0 {
		absHA = -absHA
	}
	if absHA < m.thresholds.MeridianFlipDeg {
		return false, []string{errf("CRITICAL: at meridian (HA=%.1f°) - flip required", ha)}
	}
	if absHA < m.thresholds.MeridianWarnDeg {
		return true, []string{errf("approaching meridian (HA=%.1f°) - flip soon", ha)}
	}
	return true, nil
}

func (m *Monitor) evaluateStagedBattery() (bool, []string, string, SafetyAction) {
	if m.powerCell == nil {
		return true, nil, "", ActionSafeToObserve
	}
	latest := m.powerCell.Latest()
	if latest == nil {
		return true, nil, "", ActionSafeToObserve
	}
	battery := latest.BatteryPercent
	var reasons []string
	var stageName string
	action := ActionSafeToObserve
	newStage := 0

	switch {
	case battery < m.thresholds.BatteryStage4Percent:
		newStage = 4
		stageName = "shutdown"
		action = ActionLowBatteryShutdown
		reasons = append(reasons, errf("CRITICAL: battery %.0f%% - emergency shutdown required", battery))
	case battery < m.thresholds.BatteryStage3Percent:
		newStage = 3
		stageName = "close"
		action = ActionLowBatteryShutdown
		reasons = append(reasons, errf("battery %.0f%% - closing roof and preparing shutdown", battery))
	case battery < m.thresholds.BatteryStage2Percent:
		newStage = 2
		stageName = "park"
		action = ActionLowBatteryPark
		reasons = append(reasons, errf("battery %.0f%% - parking telescope", battery))
	case battery < m.thresholds.BatteryStage1Percent:
		newStage = 1
		stageName = "warning"
		action = ActionLowBatteryWarning
		reasons = append(reasons, errf("battery %.0f%% - low battery warning", battery))
	}

	if newStage != m.batteryStage && m.logger != nil {
		if newStage > m.batteryStage {
			m.logger.Warn(context.Background(), "battery shutdown stage increased", "from", m.batteryStage, "to", newStage)
		} else {
			m.logger.Info(context.Background(), "battery shutdown stage decreased", "from", m.batteryStage, "to", newStage)
		}
	}
	m.batteryStage = newStage

	return newStage < 2, reasons, stageName, action
}

func (m *Monitor) evaluateNetwork() (bool, []string) {
	if m.lastNetworkCheck.IsZero() {
		return true, []string{"network status not yet checked"}
	}
	var reasons []string
	if isStale(m.lastNetworkCheck, m.thresholds.NetworkStatusStaleAfter) {
		reasons = append(reasons, "network status stale - check may be failing")
	}
	if !m.networkConnected {
		reasons = append(reasons, errf("network disconnected (%d consecutive failures)", m.networkFailCount))
		return false, reasons
	}
	if m.networkLatencyMs != nil && *m.networkLatencyMs > m.thresholds.NetworkLatencyWarningMs {
		reasons = append(reasons, errf("high network latency: %.0fms", *m.networkLatencyMs))
	}
	return true, reasons
}

// Evaluate performs a single comprehensive safety evaluation (spec.md
// section 4.C's evaluation algorithm, steps 1-4). hourAngleDeg may be nil
// if the mount's position or local sidereal time is unavailable.
func (m *Monitor) Evaluate(hourAngleDeg *float64) Status {
	var reasons []string

	weatherOK, weatherReasons := m.evaluateWeather()
	cloudsOK, cloudReasons := m.evaluateClouds()
	daylightOK, daylightReasons := m.evaluateDaylight()
	holdoffOK, holdoffReasons, holdoffRemaining := m.evaluateRainHoldoff()
	altitudeOK, altitudeReasons := m.evaluateAltitude()
	powerOK, powerReasons, powerEmergency := m.evaluatePower()
	enclosureOK, enclosureReasons := m.evaluateEnclosure()
	meridianOK, meridianReasons := m.evaluateMeridian(hourAngleDeg)
	batteryOK, batteryReasons, batteryStage, batteryAction := m.evaluateStagedBattery()
	networkOK, networkReasons := m.evaluateNetwork()

	reasons = append(reasons, weatherReasons...)
	reasons = append(reasons, cloudReasons...)
	reasons = append(reasons, daylightReasons...)
	reasons = append(reasons, holdoffReasons...)
	reasons = append(reasons, altitudeReasons...)
	reasons = append(reasons, powerReasons...)
	reasons = append(reasons, enclosureReasons...)
	reasons = append(reasons, meridianReasons...)
	reasons = append(reasons, batteryReasons...)
	reasons = append(reasons, networkReasons...)

	isSafe := weatherOK && cloudsOK && daylightOK && holdoffOK && altitudeOK &&
		powerOK && enclosureOK && meridianOK && batteryOK && networkOK

	isEmergency := powerEmergency
	if w := m.weatherCell; w != nil {
		if latest := w.Latest(); latest != nil && (latest.IsRaining || latest.RainRateInHr > 0) {
			isEmergency = true
		}
	}
	if m.batteryStage >= 4 {
		isEmergency = true
	}

	action, level := deriveAction(isEmergency, batteryAction, networkOK, daylightOK, weatherOK, cloudsOK, holdoffOK, powerOK, altitudeOK, enclosureOK)

	if len(reasons) == 0 {
		reasons = []string{"all systems nominal"}
	}

	status := Status{
		At:          time.Now(),
		Action:      action,
		IsSafe:      isSafe,
		Reasons:     reasons,
		Level:       level,
		WeatherOK:   weatherOK,
		CloudsOK:    cloudsOK,
		DaylightOK:  daylightOK,
		PowerOK:     powerOK,
		EnclosureOK: enclosureOK,
		AltitudeOK:  altitudeOK,
		MeridianOK:  meridianOK,
		NetworkOK:   networkOK,

		RainHoldoffActive:       !holdoffOK,
		RainHoldoffRemainingMin: holdoffRemaining,
		BatteryStage:            batteryStage,
		TargetAltitudeDeg:       m.targetAltitude,
		NetworkConnected:        m.networkConnected,
		NetworkLatencyMs:        m.networkLatencyMs,
		SunAltitudeDeg:          m.sunAltitude,
	}

	if w := m.weatherCell; w != nil {
		if latest := w.Latest(); latest != nil {
			status.TemperatureF = ptr(latest.TemperatureF)
			status.HumidityPct = ptr(latest.HumidityPct)
			status.WindSpeedMPH = ptr(latest.WindSpeedMPH)
		}
	}
	if c := m.cloudCell; c != nil {
		if latest := c.Latest(); latest != nil {
			status.CloudCoverPct = ptr(cloudCoverFromDiff(latest.SkyAmbientDiffC))
		}
	}
	if p := m.powerCell; p != nil {
		if latest := p.Latest(); latest != nil {
			status.UPSBatteryPercent = ptr(latest.BatteryPercent)
			status.UPSOnBattery = latest.OnBattery
		}
	}
	if e := m.enclCell; e != nil {
		if latest := e.Latest(); latest != nil {
			status.EnclosureOpen = ptr(latest.Open)
		}
	}

	return status
}

func cloudCoverFromDiff(diff float64) float64 {
	switch {
	case diff < -25:
		return 0
	case diff > -5:
		return 100
	default:
		return ((diff + 25) / 20) * 100
	}
}

// deriveAction implements spec.md section 4.C step 3's priority order.
func deriveAction(isEmergency bool, batteryAction SafetyAction, networkOK, daylightOK, weatherOK, cloudsOK, holdoffOK, powerOK, altitudeOK, enclosureOK bool) (SafetyAction, AlertLevel) {
	candidates := []SafetyAction{}
	if isEmergency {
		candidates = append(candidates, ActionEmergencyClose)
	}
	if batteryAction == ActionLowBatteryShutdown {
		candidates = append(candidates, ActionLowBatteryShutdown)
	}
	if batteryAction == ActionLowBatteryPark {
		candidates = append(candidates, ActionLowBatteryPark)
	}
	if !networkOK {
		candidates = append(candidates, ActionNetworkFailure)
	}
	if !daylightOK {
		candidates = append(candidates, ActionParkForDaylight)
	}
	if !weatherOK || !cloudsOK || !holdoffOK || !powerOK || !altitudeOK || !enclosureOK {
		candidates = append(candidates, ActionParkAndWait)
	}
	if batteryAction == ActionLowBatteryWarning {
		candidates = append(candidates, ActionLowBatteryWarning)
	}
	if len(candidates) == 0 {
		return ActionSafeToObserve, LevelInfo
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if actionPriority(c) < actionPriority(best) {
			best = c
		}
	}
	return best, levelFor(best)
}

// ExecuteAction carries out a derived action against the mount/enclosure,
// mirroring original_source's execute_action dispatch. Errors are logged,
// not propagated: a failed safety action must not crash the monitor loop.
func (m *Monitor) ExecuteAction(ctx context.Context, action SafetyAction) {
	if m.mountCtl == nil {
		if m.logger != nil {
			m.logger.Warn(ctx, "no mount controller configured for safety action", "action", string(action))
		}
		return
	}
	switch action {
	case ActionEmergencyClose:
		if err := m.mountCtl.Stop(ctx); err != nil && m.logger != nil {
			m.logger.Error(ctx, err, "safety action: stop failed")
		}
		if err := m.mountCtl.Park(ctx); err != nil && m.logger != nil {
			m.logger.Error(ctx, err, "safety action: park failed")
		}
		if m.enclosure != nil {
			if err := m.enclosure.Close(ctx); err != nil && m.logger != nil {
				m.logger.Error(ctx, err, "safety action: close enclosure failed")
			}
		}
	case ActionParkAndWait, ActionLowBatteryPark, ActionNetworkFailure:
		if err := m.mountCtl.Stop(ctx); err != nil && m.logger != nil {
			m.logger.Error(ctx, err, "safety action: stop failed")
		}
		if err := m.mountCtl.Park(ctx); err != nil && m.logger != nil {
			m.logger.Error(ctx, err, "safety action: park failed")
		}
	case ActionParkForDaylight:
		if err := m.mountCtl.Park(ctx); err != nil && m.logger != nil {
			m.logger.Error(ctx, err, "safety action: park for daylight failed")
		}
	case ActionLowBatteryShutdown:
		if err := m.mountCtl.Stop(ctx); err != nil && m.logger != nil {
			m.logger.Error(ctx, err, "safety action: stop failed")
		}
		if err := m.mountCtl.Park(ctx); err != nil && m.logger != nil {
			m.logger.Error(ctx, err, "safety action: park failed")
		}
		if m.enclosure != nil {
			if err := m.enclosure.Close(ctx); err != nil && m.logger != nil {
				m.logger.Error(ctx, err, "safety action: close enclosure failed")
			}
		}
	case ActionSafeToObserve, ActionLowBatteryWarning:
		// no mount action required
	}
}

func (m *Monitor) notifyCallbacks(status Status) {
	for _, cb := range m.callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil && m.logger != nil {
					m.logger.Error(context.Background(), nil, "safety callback panicked", "recover", r)
				}
			}()
			cb(status)
		}()
	}
	if m.bus != nil {
		m.bus.Emit(context.Background(), events.Event{
			Kind:    events.KindSafetyStateChanged,
			Source:  "safety",
			Message: status.Reasons[0],
			Data: map[string]any{
				"action":  string(status.Action),
				"is_safe": status.IsSafe,
				"level":   string(status.Level),
			},
		})
	}
}

// Run evaluates on pollInterval until ctx is cancelled, applying the
// unsafe_since/safe_since debouncing rule from spec.md section 4.C
// (emergency actions bypass debouncing and execute on first evaluation).
func (m *Monitor) Run(ctx context.Context, pollInterval time.Duration, hourAngle func() *float64) {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	m.evalOnce(ctx, hourAngle)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evalOnce(ctx, hourAngle)
		}
	}
}

func (m *Monitor) evalOnce(ctx context.Context, hourAngle func() *float64) {
	var ha *float64
	if hourAngle != nil {
		ha = hourAngle()
	}
	status := m.Evaluate(ha)

	m.statusMu.Lock()
	m.lastStatus = status
	m.statusMu.Unlock()

	if !status.IsSafe {
		if m.unsafeSince.IsZero() {
			m.unsafeSince = time.Now()
		}
		m.safeSince = time.Time{}
	} else {
		if m.safeSince.IsZero() {
			m.safeSince = time.Now()
		}
		m.unsafeSince = time.Time{}
	}

	if status.Level == LevelEmergency {
		m.ExecuteAction(ctx, status.Action)
	} else if status.Action != ActionSafeToObserve {
		if !m.unsafeSince.IsZero() && time.Since(m.unsafeSince) >= m.thresholds.UnsafeDurationToPark {
			m.ExecuteAction(ctx, status.Action)
		}
	} else if m.lastAction != ActionSafeToObserve {
		if !m.safeSince.IsZero() && time.Since(m.safeSince) >= m.thresholds.SafeDurationToResume {
			m.ExecuteAction(ctx, status.Action)
		}
	}

	if status.Action != m.lastAction {
		m.notifyCallbacks(status)
		m.lastAction = status.Action
	} else if m.bus != nil {
		// still publish every evaluation per spec.md section 4.C's
		// "output" rule, just without re-invoking change callbacks
		m.bus.Emit(ctx, events.Event{
			Kind:    events.KindSafetyStateChanged,
			Source:  "safety",
			Message: status.Reasons[0],
			Data: map[string]any{
				"action":  string(status.Action),
				"is_safe": status.IsSafe,
				"level":   string(status.Level),
			},
		})
	}
}
