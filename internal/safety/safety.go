// Package safety implements the Safety Monitor (spec.md section 4.C),
// grounded on original_source/services/safety_monitor/monitor.py: it
// reduces the current sensor snapshot to a boolean safe-to-observe
// verdict, a SafetyAction in a closed set, and a severity level, then
// drives mount/enclosure/power actions accordingly.
package safety

import (
	"fmt"
	"time"
)

// SafetyAction is the closed set of actions the monitor can derive.
type SafetyAction string

const (
	ActionSafeToObserve     SafetyAction = "safe_to_observe"
	ActionParkAndWait       SafetyAction = "park_and_wait"
	ActionParkForDaylight   SafetyAction = "park_for_daylight"
	ActionEmergencyClose    SafetyAction = "emergency_close"
	ActionLowBatteryWarning SafetyAction = "low_battery_warning"
	ActionLowBatteryPark    SafetyAction = "low_battery_park"
	ActionLowBatteryShutdown SafetyAction = "low_battery_shutdown"
	ActionNetworkFailure    SafetyAction = "network_failure"
)

// AlertLevel is the severity derived from the chosen action.
type AlertLevel string

const (
	LevelInfo      AlertLevel = "info"
	LevelWarning   AlertLevel = "warning"
	LevelCritical  AlertLevel = "critical"
	LevelEmergency AlertLevel = "emergency"
)

// Thresholds are the configurable safety limits; defaults per spec.md
// section 4.C and original_source's SafetyThresholds.
type Thresholds struct {
	WindLimitMPH     float64
	WindGustLimitMPH float64
	WindHysteresisMPH float64

	HumidityLimit      float64
	HumidityHysteresis float64
	TempMinF           float64
	DewPointMarginF    float64

	ClearSkyThresholdC float64
	CloudyThresholdC   float64
	CloudHysteresisC   float64

	TwilightAltitudeDeg   float64
	TwilightHysteresisDeg float64

	UnsafeDurationToPark time.Duration
	SafeDurationToResume time.Duration

	WeatherSensorTimeout  time.Duration
	CloudSensorTimeout    time.Duration
	EphemerisTimeout      time.Duration

	RainHoldoff time.Duration

	MinAltitudeDeg        float64
	HorizonAltitudeBuffer float64

	MeridianWarnDeg float64
	MeridianFlipDeg float64

	BatteryStage1Percent float64 // warn
	BatteryStage2Percent float64 // park
	BatteryStage3Percent float64 // close
	BatteryStage4Percent float64 // emergency shutdown

	RequireEnclosureOpen bool

	NetworkFailCountPark     int
	NetworkLatencyWarningMs  float64
	NetworkStatusStaleAfter  time.Duration
}

// DefaultThresholds returns the defaults named in spec.md section 4.C.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WindLimitMPH:      25.0,
		WindGustLimitMPH:  35.0,
		WindHysteresisMPH: 5.0,

		HumidityLimit:      85.0,
		HumidityHysteresis: 5.0,
		TempMinF:           20.0,
		DewPointMarginF:    5.0,

		ClearSkyThresholdC: -25.0,
		CloudyThresholdC:   -15.0,
		CloudHysteresisC:   3.0,

		TwilightAltitudeDeg:   -12.0,
		TwilightHysteresisDeg: 2.0,

		UnsafeDurationToPark: 60 * time.Second,
		SafeDurationToResume: 300 * time.Second,

		WeatherSensorTimeout: 120 * time.Second,
		CloudSensorTimeout:   180 * time.Second,
		EphemerisTimeout:     600 * time.Second,

		RainHoldoff: 30 * time.Minute,

		MinAltitudeDeg:        10.0,
		HorizonAltitudeBuffer: 2.0,

		MeridianWarnDeg: 5.0,
		MeridianFlipDeg: 2.0,

		BatteryStage1Percent: 50.0,
		BatteryStage2Percent: 30.0,
		BatteryStage3Percent: 15.0,
		BatteryStage4Percent: 10.0,

		RequireEnclosureOpen: true,

		NetworkFailCountPark:    3,
		NetworkLatencyWarningMs: 500.0,
		NetworkStatusStaleAfter: 120 * time.Second,
	}
}

// Status is a single safety evaluation's result.
type Status struct {
	At         time.Time
	Action     SafetyAction
	IsSafe     bool
	Reasons    []string
	Level      AlertLevel

	WeatherOK   bool
	CloudsOK    bool
	DaylightOK  bool
	PowerOK     bool
	EnclosureOK bool
	AltitudeOK  bool
	MeridianOK  bool
	NetworkOK   bool

	TemperatureF   *float64
	HumidityPct    *float64
	WindSpeedMPH   *float64
	CloudCoverPct  *float64
	SunAltitudeDeg *float64

	RainHoldoffActive       bool
	RainHoldoffRemainingMin *float64

	UPSBatteryPercent *float64
	UPSOnBattery      bool
	BatteryStage      string

	EnclosureOpen    *bool
	TargetAltitudeDeg *float64

	NetworkConnected  bool
	NetworkLatencyMs  *float64
}

func ptr[T any](v T) *T { return &v }

func actionPriority(a SafetyAction) int {
	// Lower number wins: EMERGENCY_CLOSE > LOW_BATTERY_SHUTDOWN >
	// LOW_BATTERY_PARK > NETWORK_FAILURE > PARK_FOR_DAYLIGHT >
	// PARK_AND_WAIT > LOW_BATTERY_WARNING > SAFE_TO_OBSERVE (spec.md
	// section 4.C step 3).
	switch a {
	case ActionEmergencyClose:
		return 0
	case ActionLowBatteryShutdown:
		return 1
	case ActionLowBatteryPark:
		return 2
	case ActionNetworkFailure:
		return 3
	case ActionParkForDaylight:
		return 4
	case ActionParkAndWait:
		return 5
	case ActionLowBatteryWarning:
		return 6
	default:
		return 7
	}
}

func levelFor(a SafetyAction) AlertLevel {
	switch a {
	case ActionEmergencyClose:
		return LevelEmergency
	case ActionLowBatteryShutdown, ActionLowBatteryPark:
		return LevelCritical
	case ActionNetworkFailure, ActionParkAndWait, ActionLowBatteryWarning:
		return LevelWarning
	case ActionParkForDaylight:
		return LevelInfo
	default:
		return LevelInfo
	}
}

func errf(format string, args ...any) string { return fmt.Sprintf(format, args...) }
