// Package alerts implements the Alert Manager (spec.md section 4.D),
// grounded on original_source/services/alerts/alert_manager.py: accepts
// alerts from any subsystem and dispatches them to severity-appropriate
// channels subject to rate limits, deduplication, quiet hours, and
// escalation.
package alerts

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// newAlertID generates the 8-character unique token spec.md section 3
// names for Alert.Id.
func newAlertID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%08x", uint32(time.Now().UnixNano()))
	}
	return hex.EncodeToString(b[:])
}

// Level is alert severity, ordered for quiet-hours comparison.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelCritical
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Channel is a notification delivery mechanism.
type Channel string

const (
	ChannelLog     Channel = "log"
	ChannelEmail   Channel = "email"
	ChannelPush    Channel = "push"
	ChannelSMS     Channel = "sms"
	ChannelCall    Channel = "call"
	ChannelWebhook Channel = "webhook"
)

// defaultChannelRouting is spec.md section 4.D's default routing table.
var defaultChannelRouting = map[Level][]Channel{
	LevelDebug:     {ChannelLog},
	LevelInfo:      {ChannelLog, ChannelEmail},
	LevelWarning:   {ChannelLog, ChannelPush, ChannelEmail},
	LevelCritical:  {ChannelLog, ChannelPush, ChannelSMS, ChannelEmail},
	LevelEmergency: {ChannelLog, ChannelPush, ChannelSMS, ChannelEmail, ChannelCall},
}

// Alert is a single system alert.
type Alert struct {
	ID             string
	Level          Level
	Source         string
	Message        string
	At             time.Time
	Data           map[string]any
	Acknowledged   bool
	AcknowledgedBy string
	AcknowledgedAt time.Time
	ChannelsSent   []Channel
}

// Template is a name-indexed alert template (spec.md section 4.D).
type Template struct {
	Level    Level
	Format   string
	Channels []Channel // nil means use the default routing for Level
}

// DefaultTemplates mirrors original_source's ALERT_TEMPLATES table.
var DefaultTemplates = map[string]Template{
	"weather_unsafe": {
		Level:    LevelWarning,
		Format:   "Weather conditions unsafe: %s. Telescope parking.",
		Channels: []Channel{ChannelPush, ChannelEmail},
	},
	"rain_detected": {
		Level:    LevelEmergency,
		Format:   "RAIN DETECTED! Emergency close initiated.",
		Channels: []Channel{ChannelPush, ChannelSMS, ChannelEmail, ChannelCall},
	},
	"guiding_failed": {
		Level:    LevelWarning,
		Format:   "Autoguiding lost star. RMS was %s\".",
		Channels: []Channel{ChannelPush},
	},
	"capture_complete": {
		Level:    LevelInfo,
		Format:   "Capture of %s complete. %s frames captured.",
		Channels: []Channel{ChannelEmail},
	},
	"sensor_offline": {
		Level:    LevelCritical,
		Format:   "Sensor %s offline for %s. Safety degraded.",
		Channels: []Channel{ChannelPush, ChannelSMS, ChannelEmail},
	},
	"mount_error": {
		Level:    LevelCritical,
		Format:   "Mount error: %s. Manual intervention may be required.",
		Channels: []Channel{ChannelPush, ChannelSMS, ChannelEmail},
	},
	"system_startup": {
		Level:    LevelInfo,
		Format:   "NIGHTWATCH system started successfully.",
		Channels: []Channel{ChannelEmail},
	},
	"system_shutdown": {
		Level:    LevelInfo,
		Format:   "NIGHTWATCH system shutting down: %s.",
		Channels: []Channel{ChannelEmail},
	},
}

func formatTemplate(t Template, args ...any) string {
	return fmt.Sprintf(t.Format, args...)
}
