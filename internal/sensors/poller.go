package sensors

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// Default poll intervals per spec.md section 4.B.
const (
	DefaultWeatherPollInterval   = 30 * time.Second
	DefaultCloudPollInterval     = 45 * time.Second
	DefaultPowerPollInterval     = 5 * time.Second
	DefaultEnclosurePollInterval = 5 * time.Second
)

// WeatherSource fetches a single weather sample.
type WeatherSource interface {
	Fetch(ctx context.Context) (*WeatherSample, error)
}

// CloudSource fetches a single cloud sample.
type CloudSource interface {
	Fetch(ctx context.Context) (*CloudSample, error)
}

// PowerSource fetches a single power/UPS sample.
type PowerSource interface {
	Fetch(ctx context.Context) (*PowerSample, error)
}

// EnclosureSource fetches a single enclosure sample.
type EnclosureSource interface {
	Fetch(ctx context.Context) (*EnclosureSample, error)
}

// WeatherAdapter polls a WeatherSource on a timer and publishes to a Cell.
// Parse/fetch failures are logged and leave the previous sample (and its
// timestamp) in place, per spec.md section 4.B, so staleness takes effect.
type WeatherAdapter struct {
	source   WeatherSource
	cell     *Cell[WeatherSample]
	interval time.Duration
	logger   log.Logger
}

func NewWeatherAdapter(source WeatherSource, interval time.Duration, logger log.Logger) *WeatherAdapter {
	if interval <= 0 {
		interval = DefaultWeatherPollInterval
	}
	return &WeatherAdapter{
		source:   source,
		cell:     NewCell[WeatherSample](120),
		interval: interval,
		logger:   logger,
	}
}

func (a *WeatherAdapter) Cell() *Cell[WeatherSample] { return a.cell }

// Run polls until ctx is cancelled.
func (a *WeatherAdapter) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	a.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

func (a *WeatherAdapter) pollOnce(ctx context.Context) {
	sample, err := a.source.Fetch(ctx)
	if err != nil {
		if a.logger != nil {
			a.logger.Error(ctx, err, "weather poll failed")
		}
		return
	}
	a.cell.Publish(*sample)
}

// CloudAdapter mirrors WeatherAdapter for cloud samples.
type CloudAdapter struct {
	source   CloudSource
	cell     *Cell[CloudSample]
	interval time.Duration
	logger   log.Logger
}

func NewCloudAdapter(source CloudSource, interval time.Duration, logger log.Logger) *CloudAdapter {
	if interval <= 0 {
		interval = DefaultCloudPollInterval
	}
	return &CloudAdapter{source: source, cell: NewCell[CloudSample](60), interval: interval, logger: logger}
}

func (a *CloudAdapter) Cell() *Cell[CloudSample] { return a.cell }

func (a *CloudAdapter) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	a.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

func (a *CloudAdapter) pollOnce(ctx context.Context) {
	sample, err := a.source.Fetch(ctx)
	if err != nil {
		if a.logger != nil {
			a.logger.Error(ctx, err, "cloud poll failed")
		}
		return
	}
	a.cell.Publish(*sample)
}

// PowerAdapter mirrors WeatherAdapter for power/UPS samples.
type PowerAdapter struct {
	source   PowerSource
	cell     *Cell[PowerSample]
	interval time.Duration
	logger   log.Logger
}

func NewPowerAdapter(source PowerSource, interval time.Duration, logger log.Logger) *PowerAdapter {
	if interval <= 0 {
		interval = DefaultPowerPollInterval
	}
	return &PowerAdapter{source: source, cell: NewCell[PowerSample](120), interval: interval, logger: logger}
}

func (a *PowerAdapter) Cell() *Cell[PowerSample] { return a.cell }

func (a *PowerAdapter) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	a.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

func (a *PowerAdapter) pollOnce(ctx context.Context) {
	sample, err := a.source.Fetch(ctx)
	if err != nil {
		if a.logger != nil {
			a.logger.Error(ctx, err, "power poll failed")
		}
		return
	}
	a.cell.Publish(*sample)
}

// EnclosureAdapter mirrors WeatherAdapter for enclosure state.
type EnclosureAdapter struct {
	source   EnclosureSource
	cell     *Cell[EnclosureSample]
	interval time.Duration
	logger   log.Logger
}

func NewEnclosureAdapter(source EnclosureSource, interval time.Duration, logger log.Logger) *EnclosureAdapter {
	if interval <= 0 {
		interval = DefaultEnclosurePollInterval
	}
	return &EnclosureAdapter{source: source, cell: NewCell[EnclosureSample](60), interval: interval, logger: logger}
}

func (a *EnclosureAdapter) Cell() *Cell[EnclosureSample] { return a.cell }

func (a *EnclosureAdapter) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	a.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

func (a *EnclosureAdapter) pollOnce(ctx context.Context) {
	sample, err := a.source.Fetch(ctx)
	if err != nil {
		if a.logger != nil {
			a.logger.Error(ctx, err, "enclosure poll failed")
		}
		return
	}
	a.cell.Publish(*sample)
}
