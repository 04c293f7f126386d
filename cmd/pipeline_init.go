package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/contact"
	"github.com/sells-group/outreach-cli/internal/coordinator"
	"github.com/sells-group/outreach-cli/internal/discovery"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/mail"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/store"
)

// pipelineEnv holds the initialized store, coordinator, and monitoring
// needed by the serve/process/buildings/reconcile commands.
type pipelineEnv struct {
	Store     store.Store
	Coord     *coordinator.Coordinator
	Collector *monitoring.Collector
	Alerter   *monitoring.Alerter
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if pe.Coord != nil {
		if err := pe.Coord.Shutdown(ctx); err != nil {
			zap.L().Warn("coordinator shutdown", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config, opens the store, and wires the
// coordinator's collaborators. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var sources []discovery.Source
	switch cfg.Discovery.Source {
	case "overpass":
		sources = append(sources, discovery.NewOverpass(discovery.WithOverpassURL(cfg.Discovery.OverpassURL)))
	case "mock":
		sources = append(sources, &discovery.MockSource{})
		zap.L().Warn("discovery using mock source; no real candidates will be found")
	}

	var enrichers []enrich.Source
	if cfg.Geocode.Enabled {
		enrichers = append(enrichers, enrich.NewGeocode(enrich.WithNominatimURL(cfg.Geocode.NominatimURL)))
	}

	contactCfg := contact.DefaultConfig()
	if cfg.Contact.ConfigPath != "" {
		contactCfg, err = contact.LoadConfig(cfg.Contact.ConfigPath)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	resolver := contact.NewResolver(contactCfg, contactSources())

	var transport mail.Transport
	switch cfg.Mail.Transport {
	case "rest":
		transport = mail.NewREST(cfg.Mail.BaseURL, cfg.Mail.APIKey)
	case "mock":
		transport = &mail.MockTransport{}
		zap.L().Warn("mail using mock transport; no email will be delivered")
	}

	coord := coordinator.New(coordinator.Config{
		MaxConcurrentBuildings: cfg.Pipeline.MaxConcurrentBuildings,
		StageTimeout:           time.Duration(cfg.Pipeline.StageTimeoutSecs) * time.Second,
	}, coordinator.Deps{
		Store:     st,
		Discovery: sources,
		Enrichers: enrichers,
		Resolver:  resolver,
		Transport: transport,
	})

	return &pipelineEnv{
		Store:     st,
		Coord:     coord,
		Collector: monitoring.NewCollector(st),
		Alerter:   monitoring.NewAlerter(cfg.Monitoring),
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// contactSources builds the lookup cascade. Registry and listing
// scrapers register here as they come online; the pattern source is
// always available since it derives inboxes from the building itself.
func contactSources() []contact.Source {
	return []contact.Source{
		contact.NewPatternSource(),
	}
}
