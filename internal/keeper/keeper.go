// Package keeper runs the autonomous settlement loop: probe the payroll
// surface for due salaries and fire the trigger when there are any. The
// trigger re-validates server-side, so a stale probe result costs one
// harmless conflict, never a wrong payment.
package keeper

import (
	"context"
	"errors"
	"time"

	"payvault.org/internal/obs"
	"payvault.org/internal/payroll"
)

const defaultInterval = 15 * time.Second

type Keeper struct {
	svc      payroll.Service
	interval time.Duration
}

func New(svc payroll.Service, interval time.Duration) *Keeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Keeper{svc: svc, interval: interval}
}

// Run polls until the context is canceled. The first probe happens
// immediately, subsequent ones on the configured interval.
func (k *Keeper) Run(ctx context.Context) error {
	k.tick(ctx)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			k.tick(ctx)
		}
	}
}

func (k *Keeper) tick(ctx context.Context) {
	due, err := k.svc.AnyDue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		obs.Logger().Error().Err(err).Msg("keeper probe failed")
		return
	}
	if !due {
		return
	}

	pass, err := k.svc.Trigger(ctx)
	if err != nil {
		// Someone else settled between the probe and the trigger.
		if errors.Is(err, payroll.ErrNothingDue) {
			obs.Logger().Debug().Msg("trigger raced, nothing due")
			return
		}
		if ctx.Err() != nil {
			return
		}
		obs.Logger().Error().Err(err).Msg("keeper trigger failed")
		return
	}
	obs.Logger().Info().
		Int("evaluated", pass.Evaluated).
		Int("payments", len(pass.Payments)).
		Int64("balance", pass.Balance).
		Msg("settlement pass fired")
}
