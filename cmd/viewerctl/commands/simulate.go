package commands

import (
	"context"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
	"github.com/BarkinBalci/viewer-analytics-service/internal/dto"
)

var (
	simCountries = []string{"US", "IN", "BR", "DE", "GB", "CA", "AU", "JP", "MX", "ZA", "FR", "IT", "ES", "AE", "SG"}
	simVideos    = []string{"video_1", "video_2", "video_3", "video_4", "video_5"}
)

// SimulatorConfig holds the per-tick probabilities of the traffic generator
type SimulatorConfig struct {
	StartProb     float64
	HeartbeatProb float64
	EndProb       float64
}

type simViewer struct {
	id      string
	videoID string
	country string
}

// Simulator generates synthetic viewer sessions one tick at a time
type Simulator struct {
	config SimulatorConfig
	rng    *rand.Rand
	active []simViewer
}

// NewSimulator creates a simulator seeded with seed
func NewSimulator(config SimulatorConfig, seed int64) *Simulator {
	return &Simulator{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Active returns the number of viewers with an open session
func (s *Simulator) Active() int {
	return len(s.active)
}

// Tick advances the simulation by one step and returns the events it produced,
// all stamped with now. A viewer is always started when none are active.
func (s *Simulator) Tick(now time.Time) []dto.PublishEventRequest {
	ts := now.UTC().Format(time.RFC3339Nano)
	var events []dto.PublishEventRequest

	emit := func(v simViewer, t domain.EventType) {
		events = append(events, dto.PublishEventRequest{
			TS:        ts,
			ViewerID:  v.id,
			VideoID:   v.videoID,
			EventType: t.String(),
			Country:   v.country,
		})
	}

	if len(s.active) == 0 || s.rng.Float64() < s.config.StartProb {
		v := simViewer{
			id:      uuid.NewString(),
			videoID: simVideos[s.rng.Intn(len(simVideos))],
			country: simCountries[s.rng.Intn(len(simCountries))],
		}
		s.active = append(s.active, v)
		emit(v, domain.EventTypeViewStart)
	}

	for _, v := range s.active {
		if s.rng.Float64() < s.config.HeartbeatProb {
			emit(v, domain.EventTypeHeartbeat)
		}
	}

	remaining := s.active[:0]
	for _, v := range s.active {
		if s.rng.Float64() < s.config.EndProb {
			emit(v, domain.EventTypeViewEnd)
			continue
		}
		remaining = append(remaining, v)
	}
	s.active = remaining

	return events
}

// NewSimulateCommand publishes synthetic viewer traffic through the configured transport
func NewSimulateCommand() *cobra.Command {
	var (
		config   SimulatorConfig
		tick     time.Duration
		duration time.Duration
		seed     int64
	)

	command := &cobra.Command{
		Use:   "simulate",
		Short: "Publish synthetic viewer sessions to the message source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tick <= 0 {
				return fmt.Errorf("tick must be positive, got %s", tick)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			publisher, log, closeFn, err := openPublisher(ctx)
			if err != nil {
				return fmt.Errorf("failed to open publisher: %w", err)
			}
			defer func() { _ = closeFn() }()

			sim := NewSimulator(config, seed)
			ticker := time.NewTicker(tick)
			defer ticker.Stop()

			log.Info("Simulating viewer events",
				zap.Duration("tick", tick),
				zap.Duration("duration", duration),
				zap.Int64("seed", seed))

			var published, failed int
			for {
				for _, event := range sim.Tick(time.Now()) {
					if err := publisher.PublishEvent(ctx, &event); err != nil {
						if ctx.Err() != nil {
							break
						}
						failed++
						log.Warn("Failed to publish simulated event",
							zap.String("viewer_id", event.ViewerID),
							zap.Error(err))
						continue
					}
					published++
				}

				select {
				case <-ctx.Done():
					log.Info("Simulation stopped",
						zap.Int("published", published),
						zap.Int("failed", failed),
						zap.Int("active_viewers", sim.Active()))
					fmt.Fprintf(cmd.OutOrStdout(), "published %d events (%d failed)\n", published, failed)
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	command.Flags().Float64Var(&config.StartProb, "start-prob", 0.35, "Probability of a new viewer per tick")
	command.Flags().Float64Var(&config.HeartbeatProb, "heartbeat-prob", 0.65, "Probability of a heartbeat per active viewer per tick")
	command.Flags().Float64Var(&config.EndProb, "end-prob", 0.12, "Probability of a session ending per active viewer per tick")
	command.Flags().DurationVar(&tick, "tick", time.Second, "Interval between simulation steps")
	command.Flags().DurationVar(&duration, "duration", 0, "Stop after this long, 0 runs until interrupted")
	command.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "Random seed")
	return command
}
