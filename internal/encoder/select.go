package encoder

import (
	"context"
	"log/slog"

	"squeeze/internal/logging"
	"squeeze/internal/services"
)

// Select probes the registry in priority order and returns the first profile
// whose trial encode succeeds. The selected profile is reused for every file
// in the run. When nothing works the run cannot proceed.
func Select(ctx context.Context, runner Runner, logger *slog.Logger) (Profile, error) {
	log := logging.NewComponentLogger(logger, "encoder")
	for _, profile := range Registry() {
		if err := ctx.Err(); err != nil {
			return Profile{}, err
		}
		if err := runner.ProbeProfile(ctx, profile); err != nil {
			log.Debug("encoder profile unavailable",
				logging.String(logging.FieldProfile, profile.ID),
				logging.Error(err),
			)
			continue
		}
		log.Info("selected encoder profile",
			logging.String(logging.FieldProfile, profile.ID),
			logging.String("label", profile.Label),
		)
		return profile, nil
	}
	return Profile{}, services.Wrap(services.ErrNotFound, "encoder", "select", "no usable encoder profile", nil)
}
