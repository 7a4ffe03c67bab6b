package main

import (
	"fmt"
	"log"
	"time"

	"github.com/Geocene/firefinder/internal/config"
	"github.com/Geocene/firefinder/internal/kafka"
	"github.com/Geocene/firefinder/internal/mqtt"
	"github.com/Geocene/firefinder/internal/pipeline"
	"github.com/Geocene/firefinder/internal/store"
)

// sinks are the optional outputs of a run. Nil fields are disabled.
type sinks struct {
	store     *store.Store
	publisher mqtt.Publisher
	kafka     *kafka.Writer
}

// openSinks opens the store at storePath and, when publish is set, the
// MQTT and Kafka sinks configured in cfg.
func openSinks(cfg *config.Config, storePath string, publish bool) (*sinks, error) {
	s := &sinks{}
	if storePath != "" {
		st, err := store.New(storePath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.store = st
	}
	if !publish {
		return s, nil
	}
	if cfg.MQTT.Broker != "" {
		s.publisher = mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		log.Printf("mqtt: connecting to %s", cfg.MQTT.Broker)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		w, err := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("kafka writer: %w", err)
		}
		s.kafka = w
		log.Printf("kafka: writing to %s on %v", w.Topic(), cfg.Kafka.Brokers)
	}
	return s, nil
}

// attach wires the open sinks into r.
func (s *sinks) attach(r *pipeline.Runner) {
	if s.store != nil {
		r.Store = s.store
	}
	if s.publisher != nil {
		r.Publisher = s.publisher
	}
	if s.kafka != nil {
		r.Kafka = s.kafka
	}
}

// Close closes every open sink, logging failures.
func (s *sinks) Close() {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Printf("mqtt close: %v", err)
		}
	}
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			log.Printf("kafka close: %v", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("store close: %v", err)
		}
	}
}

// waitConnected polls cs until it reports a connection or timeout passes.
// A short-lived command would otherwise close the publisher while its
// messages are still buffered.
func waitConnected(cs mqtt.ConnectionStatus, timeout, poll time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cs.IsConnected() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(poll)
	}
}
