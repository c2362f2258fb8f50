package adb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"screenrelay/internal/core/domain"
	"screenrelay/internal/core/ports"

	"go.uber.org/zap"
)

// InputInjector performs taps and swipes through `adb shell input`.
// Fire-and-forget: success means the command was accepted, not that the
// gesture landed.
type InputInjector struct {
	client  *Client
	timeout time.Duration
	logger  *zap.SugaredLogger
}

func NewInputInjector(client *Client, timeout time.Duration, logger *zap.SugaredLogger) ports.InputInjector {
	return &InputInjector{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

func (i *InputInjector) Inject(ctx context.Context, deviceID domain.DeviceID, event domain.InputEvent) error {
	injectCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	var args []string
	switch event.Action {
	case domain.ActionTap:
		args = []string{"shell", "input", "tap",
			strconv.Itoa(event.X), strconv.Itoa(event.Y)}
	case domain.ActionSwipe:
		args = []string{"shell", "input", "swipe",
			strconv.Itoa(event.X), strconv.Itoa(event.Y),
			strconv.Itoa(event.X2), strconv.Itoa(event.Y2)}
		if event.DurationMs > 0 {
			args = append(args, strconv.Itoa(event.DurationMs))
		}
	default:
		return fmt.Errorf("unsupported input action: %s", event.Action)
	}

	if _, err := i.client.runOnDevice(injectCtx, deviceID, args...); err != nil {
		return fmt.Errorf("input %s on %s: %w", event.Action, deviceID, err)
	}
	return nil
}
