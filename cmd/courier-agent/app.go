package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/config"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/broker/kafka"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/broker/messages"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/channel"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/errs"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/integrations/courierapi"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/integrations/routing"
	routingfake "github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/integrations/routing/fake"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/integrations/routing/osrmhttp"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/location"
	locationfake "github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/location/fake"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/location/gpshttp"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/services/consignments"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/services/rating"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/services/tracker"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/storage/pgjournal"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/store/redisstore"
)

type agentFactories struct {
	newStore    func(cfg *config.Config) *redisstore.Store
	newJournal  func(cfg *config.Config) (*pgjournal.Storage, func(), error)
	newChannel  func(cfg *config.Config, sess models.Session) *channel.Manager
	newAPI      func(baseURL string) *courierapi.Client
	newRouter   func(cfg *config.Config) routing.Client
	newProvider func(cfg *config.Config) location.Provider
	newProducer func(cfg *config.Config) *kafka.Producer
	newConsumer func(cfg *config.Config) *kafka.Consumer
}

func defaultAgentFactories() agentFactories {
	return agentFactories{
		newStore: func(cfg *config.Config) *redisstore.Store {
			return redisstore.New(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))
		},
		newJournal: func(cfg *config.Config) (*pgjournal.Storage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgjournal.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newChannel: func(cfg *config.Config, sess models.Session) *channel.Manager {
			m := channel.New(cfg.Agent.ChannelURL, sess, channel.WebsocketDialer())
			return m.WithRetryPolicy(
				cfg.Agent.ChannelMaxAttempts,
				time.Duration(cfg.Agent.ChannelBackoffStepSeconds)*time.Second,
				time.Duration(cfg.Agent.ChannelBackoffMaxSeconds)*time.Second,
			)
		},
		newAPI: func(baseURL string) *courierapi.Client {
			return courierapi.New(baseURL)
		},
		newRouter: func(cfg *config.Config) routing.Client {
			// Без OSRM расстояние и ETA считаем офлайн.
			if cfg.Agent.OSRMBaseURL != "" {
				return osrmhttp.New(cfg.Agent.OSRMBaseURL)
			}
			return routingfake.New()
		},
		newProvider: func(cfg *config.Config) location.Provider {
			if cfg.Agent.GPSGatewayURL != "" {
				return gpshttp.New(cfg.Agent.GPSGatewayURL)
			}
			return locationfake.New(cfg.Agent.DeviceLat, cfg.Agent.DeviceLng)
		},
		newProducer: func(cfg *config.Config) *kafka.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			topic := cfg.Kafka.TelemetryTopicName
			if topic == "" {
				topic = "consignment.telemetry"
			}
			return kafka.NewProducer(brokers, topic)
		},
		newConsumer: func(cfg *config.Config) *kafka.Consumer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			topic := cfg.Kafka.TelemetryTopicName
			if topic == "" {
				topic = "consignment.telemetry"
			}
			group := cfg.Kafka.TelemetryConsumerGroup
			if group == "" {
				group = "courier-agent"
			}
			return kafka.NewConsumer(brokers, topic, group)
		},
	}
}

func RunAgent(ctx context.Context, cfg *config.Config, f agentFactories) error {
	store := f.newStore(cfg)
	defer store.Close()

	sess, err := store.LoadSession(ctx)
	if err != nil {
		return err
	}
	if sess.PhoneNumber == "" {
		return errs.Configuration("session is not initialized: phoneNumber missing")
	}
	if sess.APIBaseURL == "" {
		sess.APIBaseURL = cfg.Agent.APIBaseURL
	}

	api := f.newAPI(sess.APIBaseURL)

	ch := f.newChannel(cfg, sess)
	if err := ch.Connect(ctx); err != nil {
		// Бюджет попыток исчерпан; дальше только ручной retry с ops-эндпоинта,
		// поллинг трекера работает и без канала.
		slog.Warn("channel connect failed", "error", err.Error())
	}
	defer ch.Disconnect()

	var journal *pgjournal.Storage
	if cfg.Database.Host != "" {
		j, closeFn, err := f.newJournal(cfg)
		if err != nil {
			return err
		}
		journal = j
		defer closeFn()
	}

	var producer *kafka.Producer
	if cfg.Kafka.Host != "" {
		producer = f.newProducer(cfg)
		defer producer.Close()
	}

	locator := location.NewAcquirer(f.newProvider(cfg))
	router := f.newRouter(cfg)

	consignmentsSvc := consignments.New(api, locator, sess.PhoneNumber)
	if journal != nil {
		consignmentsSvc.WithJournal(journal)
	}
	if producer != nil {
		consignmentsSvc.WithPublisher(producer)
	}

	ratingSvc := rating.New(api, store, sess.PhoneNumber)

	trackerSvc := tracker.New(ch, api, router, sess.PhoneNumber).
		WithMarkers(store).
		WithLocator(locator).
		WithIntervals(
			time.Duration(cfg.Agent.TrackPollIntervalSeconds)*time.Second,
			time.Duration(cfg.Agent.LocationPublishPeriodSeconds)*time.Second,
			time.Duration(cfg.Agent.LocationStaleAfterSeconds)*time.Second,
		)
	if producer != nil {
		trackerSvc.WithPublisher(producer)
	}
	defer trackerSvc.StopAll()

	resumeTracking(ctx, store, trackerSvc)

	if journal != nil && cfg.Kafka.Host != "" {
		consumer := f.newConsumer(cfg)
		defer consumer.Close()
		go func() {
			if err := runTelemetryReplay(ctx, consumer, journal); err != nil && ctx.Err() == nil {
				slog.Warn("telemetry replay stopped", "error", err.Error())
			}
		}()
	}

	return runAgentHTTPServer(ctx, agentHTTPOpts{
		httpAddr:     cfg.Agent.HTTPAddr,
		channel:      ch,
		consignments: consignmentsSvc,
		tracker:      trackerSvc,
		rating:       ratingSvc,
		journal:      journal,
	})
}

// resumeTracking restores live sessions persisted before the last shutdown.
func resumeTracking(ctx context.Context, store *redisstore.Store, trackerSvc *tracker.Service) {
	markers, err := store.ListTrackingMarkers(ctx)
	if err != nil {
		slog.Warn("tracking markers unavailable", "error", err.Error())
		return
	}
	for _, m := range markers {
		if _, err := trackerSvc.Start(ctx, m.TravelID, m.ConsignmentID, m.Destination); err != nil {
			slog.Warn("resume tracking failed", "consignment_id", m.ConsignmentID, "error", err.Error())
			continue
		}
		slog.Info("tracking resumed", "consignment_id", m.ConsignmentID, "travel_id", m.TravelID)
	}
}

// runTelemetryReplay applies the telemetry topic back into the journal, so a
// reinstalled agent catches up on what other devices of the account saw.
func runTelemetryReplay(ctx context.Context, consumer *kafka.Consumer, journal *pgjournal.Storage) error {
	return consumer.Consume(ctx, func(t messages.ConsignmentTelemetry) error {
		switch t.Kind {
		case messages.TelemetryLocation:
			return journal.RecordLocation(ctx, t.ConsignmentID,
				models.GeoPoint{Latitude: t.Latitude, Longitude: t.Longitude}, t.RecordedAt)
		case messages.TelemetryLifecycle:
			return journal.SaveSnapshot(ctx, models.Consignment{
				ConsignmentID: t.ConsignmentID,
				TravelID:      t.TravelID,
				Status:        t.Status,
				UpdatedAt:     t.RecordedAt,
			})
		default:
			return nil
		}
	})
}
