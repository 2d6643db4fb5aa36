package safety

import (
	"context"

	"github.com/linnemanlabs/nightwatch/internal/coords"
	"github.com/linnemanlabs/nightwatch/internal/mount"
)

func contextBG() context.Context { return context.Background() }

// fakeMountClient is a minimal hand-written stub of mount.Client for
// exercising safety-action dispatch without a real connection.
type fakeMountClient struct {
	onStop func()
	onPark func()
}

var _ mount.Client = (*fakeMountClient)(nil)

func (f *fakeMountClient) Connect(ctx context.Context) error    { return nil }
func (f *fakeMountClient) Disconnect() error                    { return nil }
func (f *fakeMountClient) GetStatus(ctx context.Context) (*mount.Status, error) {
	return &mount.Status{}, nil
}
func (f *fakeMountClient) GoToRADec(ctx context.Context, ra coords.RA, dec coords.Dec) error {
	return nil
}
func (f *fakeMountClient) GoToAltAz(ctx context.Context, alt, az float64) error { return nil }
func (f *fakeMountClient) Sync(ctx context.Context, ra coords.RA, dec coords.Dec) error {
	return nil
}
func (f *fakeMountClient) Stop(ctx context.Context) error {
	if f.onStop != nil {
		f.onStop()
	}
	return nil
}
func (f *fakeMountClient) StopAxis(ctx context.Context, axis string) error { return nil }
func (f *fakeMountClient) StartTracking(ctx context.Context) error        { return nil }
func (f *fakeMountClient) StopTracking(ctx context.Context) error         { return nil }
func (f *fakeMountClient) SetTrackingRate(ctx context.Context, rate mount.TrackingRate) error {
	return nil
}
func (f *fakeMountClient) Park(ctx context.Context) error {
	if f.onPark != nil {
		f.onPark()
	}
	return nil
}
func (f *fakeMountClient) Unpark(ctx context.Context) error             { return nil }
func (f *fakeMountClient) IsParked(ctx context.Context) (bool, error)   { return false, nil }
func (f *fakeMountClient) SetParkPosition(ctx context.Context) error    { return nil }
func (f *fakeMountClient) Home(ctx context.Context) error               { return nil }
func (f *fakeMountClient) HomeReset(ctx context.Context) error          { return nil }
func (f *fakeMountClient) GetSiteLatLon(ctx context.Context) (string, string, error) {
	return "", "", nil
}
func (f *fakeMountClient) SetSiteLatLon(ctx context.Context, lat, lon string) error { return nil }
func (f *fakeMountClient) GetFirmwareInfo(ctx context.Context) (string, error)      { return "", nil }

// fakeEnclosure is a minimal hand-written stub of EnclosureCloser that
// counts Close calls for assertions.
type fakeEnclosure struct {
	closes int
}

var _ EnclosureCloser = (*fakeEnclosure)(nil)

func (f *fakeEnclosure) Close(ctx context.Context) error {
	f.closes++
	return nil
}
