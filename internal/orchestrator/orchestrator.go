// Package orchestrator drives the host-side firmware update sequence
// (SPEC_FULL.md §4.9): enumerate the serials present on the bus, assign a
// device a dynamic id, upload an image, and finally ask the device to
// activate it. Grounded on raspberry/src/main.rs (the UpgradeFw/ShowSerials
// command bodies) and raspberry/src/util.rs (wait_data's decode-and-match
// loop with a hard timeout).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/hostbus"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/logging"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/uploader"
	"github.com/BrMisha/stm32-canbus-firmware-update/internal/wire"
)

// defaultWaitTimeout is how long a host operation waits for a device reply
// before giving up.
const defaultWaitTimeout = 2 * time.Second

// ErrTimeout is returned by any wait step that did not see a matching frame
// within its deadline.
var ErrTimeout = errors.New("orchestrator: timed out waiting for a reply")

// ErrDynIDRejected is returned by Assign when the device echoes back a
// dynamic id different from the one requested.
var ErrDynIDRejected = errors.New("orchestrator: device rejected dynamic id assignment")

// ErrNoPendingImage is returned by Activate when the device reports no
// validated pending image after an upload.
var ErrNoPendingImage = errors.New("orchestrator: device has no validated pending image to activate")

// waitData mirrors util::wait_data: read from sub until match returns a
// non-nil value, a timeout elapses, or the subscription is force-closed. On a
// hit it returns the SubId the matching frame was addressed with.
func waitData(ctx context.Context, sub *hostbus.Subscriber, timeout time.Duration, match func(wire.Frame) (any, wire.SubId, bool)) (any, wire.SubId, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-deadline.C:
			return nil, 0, ErrTimeout
		case r, ok := <-sub.In:
			if !ok {
				return nil, 0, ErrTimeout
			}
			if v, _, hit := match(r.Frame); hit {
				return v, r.Sub, nil
			}
		case <-sub.Lagged:
			logging.L().Warn("orchestrator subscriber lagged during wait")
			return nil, 0, ErrTimeout
		}
	}
}

// EnumerateSerials broadcasts a Serial remote request and collects every
// reply seen within window, mirroring Args::ShowSerials.
func EnumerateSerials(ctx context.Context, bus *hostbus.Bus, w hostbus.Writer, window time.Duration) ([]wire.Serial, error) {
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	if err := hostbus.WriteTo(w, wire.NewSerialRequest(), wire.SubId(0)); err != nil {
		return nil, fmt.Errorf("orchestrator: request serials: %w", err)
	}

	var serials []wire.Serial
	deadline := time.NewTimer(window)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return serials, ctx.Err()
		case <-deadline.C:
			return serials, nil
		case r, ok := <-sub.In:
			if !ok {
				return serials, nil
			}
			if r.Frame.Kind == wire.KindSerial && !r.Frame.Remote {
				serials = append(serials, r.Frame.Serial)
			}
		}
	}
}

// Assign requests dynamic id dynID for serial, then confirms the device
// echoed it back correctly and resolves the resulting SubId from the
// addressing of its own confirmation reply, mirroring the DynId +
// Serial-confirmation dance at the top of Args::UpgradeFw.
func Assign(ctx context.Context, bus *hostbus.Bus, w hostbus.Writer, serial wire.Serial, dynID byte) (wire.SubId, error) {
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	assignment := wire.DynIdAssignment{Serial: serial, DynID: dynID}
	if err := hostbus.WriteTo(w, wire.NewDynID(assignment), wire.SubId(0)); err != nil {
		return 0, fmt.Errorf("orchestrator: send dyn id: %w", err)
	}
	if err := hostbus.WriteTo(w, wire.NewSerialRequest(), wire.SubId(0)); err != nil {
		return 0, fmt.Errorf("orchestrator: request serial confirmation: %w", err)
	}

	_, fromSub, err := waitData(ctx, sub, defaultWaitTimeout, func(f wire.Frame) (any, wire.SubId, bool) {
		if f.Kind == wire.KindSerial && !f.Remote && f.Serial == serial {
			return struct{}{}, 0, true
		}
		return nil, 0, false
	})
	if err != nil {
		return 0, fmt.Errorf("orchestrator: confirm serial after assignment: %w", err)
	}
	if fromSub.Split()[1] != dynID {
		return 0, ErrDynIDRejected
	}
	return fromSub, nil
}

// Upload sends the full image to sub and waits for the device to drain its
// upload queue, then signals UploadFinished, mirroring
// fw_upload::upload(...) followed by the FirmwareUploadFinished send.
func Upload(ctx context.Context, bus *hostbus.Bus, w hostbus.Writer, sub wire.SubId, image []byte) error {
	if err := uploader.Upload(ctx, bus, uploader.NewBusWriter(w), sub, image); err != nil {
		return fmt.Errorf("orchestrator: upload: %w", err)
	}
	if err := hostbus.WriteTo(w, wire.NewUploadFinished(), sub); err != nil {
		return fmt.Errorf("orchestrator: send upload finished: %w", err)
	}
	return nil
}

// Activate asks sub to validate its pending image (PendingFirmwareVersion
// request) and, if one validates, sends FirmwareStartUpdate. It returns the
// validated version when activation succeeds.
func Activate(ctx context.Context, bus *hostbus.Bus, w hostbus.Writer, sub wire.SubId) (wire.Version, error) {
	s := bus.Subscribe()
	defer s.Unsubscribe()

	if err := hostbus.WriteTo(w, wire.NewPendingFirmwareVersionRequest(), sub); err != nil {
		return wire.Version{}, fmt.Errorf("orchestrator: request pending version: %w", err)
	}

	v, _, err := waitData(ctx, s, defaultWaitTimeout, func(f wire.Frame) (any, wire.SubId, bool) {
		if f.Kind == wire.KindPendingFirmwareVersion && !f.Remote {
			return f, 0, true
		}
		return nil, 0, false
	})
	if err != nil {
		return wire.Version{}, fmt.Errorf("orchestrator: wait pending version: %w", err)
	}

	reply := v.(wire.Frame)
	if !reply.HasVersion {
		return wire.Version{}, ErrNoPendingImage
	}

	if err := hostbus.WriteTo(w, wire.NewStartUpdate(), sub); err != nil {
		return wire.Version{}, fmt.Errorf("orchestrator: send start update: %w", err)
	}
	return reply.Version, nil
}
