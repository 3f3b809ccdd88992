// Package sched runs the wall-clock-triggered maintenance jobs: the
// weekly event is enabled Wednesday evening and disabled Thursday
// night, by rewriting server config files and (for the enable leg)
// applying the changes immediately over the command channel.
package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/ernie/fortress-ops/internal/registry"
	"github.com/ernie/fortress-ops/internal/remotefile"
)

// Config file lines managed by the weekly jobs. These jobs are the only
// writers of these lines, so each line exists in exactly one form at a
// time.
const (
	serverCfgPath = "tf/cfg/server.cfg"

	eventIncludeOn  = "exec event_weekend.cfg"
	eventIncludeOff = "// exec event_weekend.cfg"

	mapcycleOn  = `mapcyclefile "cfg/mapcycle_event.txt"`
	mapcycleOff = `mapcyclefile "cfg/mapcycle.txt"`
	mapcyclePfx = "mapcyclefile"

	reservedSlotsOn  = "sm_reserved_slots 0"
	reservedSlotsOff = "sm_reserved_slots 2"
	reservedSlotsPfx = "sm_reserved_slots"

	visibleMaxOn  = "sv_visiblemaxplayers 32"
	visibleMaxOff = "sv_visiblemaxplayers 24"
	visibleMaxPfx = "sv_visiblemaxplayers"
)

const jobTimeout = 2 * time.Minute

// Scheduler owns the cron runner for the weekly event jobs.
type Scheduler struct {
	reg  *registry.Registry
	cron *cron.Cron
}

// New creates a scheduler in the named timezone
func New(reg *registry.Registry, timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}

	s := &Scheduler{
		reg:  reg,
		cron: cron.New(cron.WithLocation(loc)),
	}

	// Wednesday 18:00: enable the weekly event.
	if _, err := s.cron.AddFunc("0 18 * * 3", s.enableWeekly); err != nil {
		return nil, fmt.Errorf("registering enable job: %w", err)
	}
	// Thursday 00:00: disable it again. File changes only; the next
	// map change picks them up.
	if _, err := s.cron.AddFunc("0 0 * * 4", s.disableWeekly); err != nil {
		return nil, fmt.Errorf("registering disable job: %w", err)
	}

	return s, nil
}

// Start begins running jobs
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Msg("Weekly event scheduler started")
}

// Stop stops the cron runner, waiting for a running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) enableWeekly() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	for _, handle := range s.reg.Schedulable() {
		if err := s.enableServer(ctx, handle); err != nil {
			log.Error().Err(err).Str("server", handle.Desc.Address).Msg("Weekly event enable failed")
			continue
		}
		log.Info().Str("server", handle.Desc.Address).Msg("Weekly event enabled")
	}
}

func (s *Scheduler) disableWeekly() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	for _, handle := range s.reg.Schedulable() {
		if err := s.disableServer(ctx, handle); err != nil {
			log.Error().Err(err).Str("server", handle.Desc.Address).Msg("Weekly event disable failed")
			continue
		}
		log.Info().Str("server", handle.Desc.Address).Msg("Weekly event disabled")
	}
}

func (s *Scheduler) enableServer(ctx context.Context, handle *registry.Handle) error {
	if handle.Files == nil {
		return fmt.Errorf("no file channel configured")
	}

	edits := []struct{ prefix, replacement string }{
		{eventIncludeOff, eventIncludeOn},
		{mapcyclePfx, mapcycleOn},
		{reservedSlotsPfx, reservedSlotsOn},
		{visibleMaxPfx, visibleMaxOn},
	}
	for _, edit := range edits {
		if _, err := remotefile.AddOrEditLine(ctx, handle.Files, serverCfgPath, edit.prefix, edit.replacement); err != nil {
			return fmt.Errorf("editing %s: %w", serverCfgPath, err)
		}
	}

	// Apply immediately; the file edits alone only take effect on the
	// next map change.
	apply := fmt.Sprintf("%s; %s; %s; %s", eventIncludeOn, visibleMaxOn, reservedSlotsOn, mapcycleOn)
	if _, err := handle.Rcon.Run(ctx, apply); err != nil {
		return fmt.Errorf("applying event config: %w", err)
	}
	return nil
}

func (s *Scheduler) disableServer(ctx context.Context, handle *registry.Handle) error {
	if handle.Files == nil {
		return fmt.Errorf("no file channel configured")
	}

	edits := []struct{ prefix, replacement string }{
		{eventIncludeOn, eventIncludeOff},
		{mapcyclePfx, mapcycleOff},
		{reservedSlotsPfx, reservedSlotsOff},
		{visibleMaxPfx, visibleMaxOff},
	}
	for _, edit := range edits {
		if _, err := remotefile.AddOrEditLine(ctx, handle.Files, serverCfgPath, edit.prefix, edit.replacement); err != nil {
			return fmt.Errorf("editing %s: %w", serverCfgPath, err)
		}
	}
	return nil
}
