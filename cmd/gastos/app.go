package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/gastos/internal/anthropic"
	"github.com/kalambet/gastos/internal/config"
	"github.com/kalambet/gastos/internal/events"
	"github.com/kalambet/gastos/internal/intake"
	"github.com/kalambet/gastos/internal/ledger"
	"github.com/kalambet/gastos/internal/storage"
)

// app is everything a command needs to work on the local document.
type app struct {
	store     *storage.Store
	ledger    *ledger.Service
	publisher *events.AMQPPublisher // nil when events are disabled
	pipeline  *intake.Pipeline      // nil unless intake was requested
}

// openApp opens storage and, when configured, the event publisher. With
// withIntake it also builds the extraction pipeline, which needs the API key.
var openApp = func(c config.Config, withIntake bool) (*app, error) {
	if withIntake {
		if err := config.RequireAPIKey(c); err != nil {
			return nil, err
		}
	}

	store, err := storage.Open(c.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a := &app{store: store}

	var pub events.Publisher
	if c.Events.AMQPURL != "" {
		p, err := events.DialAMQP(c.Events.AMQPURL, c.Events.Exchange, c.Events.Queue)
		if err != nil {
			slog.Warn("events disabled", "error", err)
		} else {
			a.publisher = p
			pub = p
		}
	}
	a.ledger = ledger.NewService(store, pub)

	if withIntake {
		client := anthropic.NewClientWithBaseURL(c.Anthropic.APIKey, c.Anthropic.BaseURL, c.Anthropic.Timeout)
		extractor := intake.NewExtractor(client, c.Anthropic.Model, c.Anthropic.MaxTokens)
		a.pipeline = intake.NewPipeline(a.ledger, store, extractor, c.Intake.Concurrency)
	}
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
