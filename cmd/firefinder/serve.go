package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Geocene/firefinder/internal/metrics"
	"github.com/Geocene/firefinder/internal/mqtt"
	"github.com/Geocene/firefinder/internal/pipeline"
	"github.com/Geocene/firefinder/internal/status"
	"github.com/Geocene/firefinder/internal/web"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status page and detection API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("http") {
				a.cfg.HTTP.Addr = httpAddr
			}
			return runServe(a)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", ":8080", "HTTP listen address")
	return cmd
}

func runServe(a *app) error {
	cfg := a.cfg
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	opts, err := cfg.PrepareOptions(params.Correction)
	if err != nil {
		return err
	}

	s, err := openSinks(cfg, cfg.Store.Path, true)
	if err != nil {
		return err
	}
	defer s.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:     cfg.MQTT.Broker,
		KafkaTopic: kafkaTopic(cfg.Kafka.Brokers, cfg.Kafka.Topic),
		HTTPAddr:   cfg.HTTP.Addr,
		StorePath:  cfg.Store.Path,
		Params:     params,
	})
	m := metrics.New()

	runner := pipeline.New(opts)
	s.attach(runner)
	runner.Tracker = tracker
	runner.Metrics = m

	srvOpts := web.Options{Tracker: tracker, Runner: runner, Metrics: m, Detector: cfg.Detector}
	if s.store != nil {
		srvOpts.Runs = s.store
	}
	srv := web.New(cfg.HTTP.Addr, srvOpts)

	publisher := s.publisher
	if publisher == nil {
		publisher = discard{}
	}
	mqttStatus, _ := publisher.(mqtt.ConnectionStatus)

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	log.Printf("started: http=%s broker=%s store=%s", cfg.HTTP.Addr, cfg.MQTT.Broker, cfg.Store.Path)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return serveLoop(srv, publisher, mqttStatus, tracker, time.Now, sigCh, errCh)
}

// serveLoop blocks until a signal or a server error, then publishes the
// SHUTDOWN event and stops the server.
func serveLoop(srv *web.Server, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, sig <-chan os.Signal, errCh <-chan error) error {
	var runErr error
	reason := "ERROR"
	select {
	case s := <-sig:
		log.Printf("received %v, shutting down", s)
		reason = signalName(s)
	case err := <-errCh:
		log.Printf("%v, shutting down", err)
		runErr = err
	}

	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	return runErr
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func kafkaTopic(brokers []string, topic string) string {
	if len(brokers) == 0 {
		return ""
	}
	return topic
}

// discard stands in for MQTT when no broker is configured.
type discard struct{}

func (discard) Publish(mqtt.Event) error             { return nil }
func (discard) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discard) Close() error                         { return nil }
