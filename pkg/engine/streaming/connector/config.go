// Package connector implements the external sources that feed base tables.
// A connector is selected by the "connector" key of a table's WITH options and
// runs as a [services.Service] that writes inserts into the table's stream.
package connector

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grafana/streamdb/pkg/engine/internal/errors"
)

// Kind names a connector implementation.
type Kind string

const (
	KindKafka    Kind = "kafka"
	KindObjStore Kind = "objstore"
	KindDatagen  Kind = "datagen"
)

// Option keys understood by [Parse].
const (
	KeyConnector = "connector"

	KeyKafkaTopic       = "topic"
	KeyKafkaBootstrap   = "properties.bootstrap.server"
	KeyKafkaStartupMode = "scan.startup.mode"
	KeyKafkaGroupID     = "properties.group.id"

	KeyObjStorePath   = "objstore.path"
	KeyObjStorePrefix = "objstore.prefix"
	KeyPollInterval   = "poll.interval"

	KeyDatagenRate    = "datagen.rows.per.second"
	KeyDatagenMaxRows = "datagen.max.rows"
)

// StartupMode selects where a Kafka connector starts consuming.
type StartupMode string

const (
	StartupEarliest StartupMode = "earliest"
	StartupLatest   StartupMode = "latest"
)

// Options is the parsed form of a table's WITH options. Only the section
// matching Kind is populated.
type Options struct {
	Kind Kind

	Kafka    KafkaOptions
	ObjStore ObjStoreOptions
	Datagen  DatagenOptions
}

type KafkaOptions struct {
	Topic       string
	Brokers     []string
	StartupMode StartupMode
	GroupID     string
}

type ObjStoreOptions struct {
	Path         string
	Prefix       string
	PollInterval time.Duration
}

type DatagenOptions struct {
	RowsPerSecond int
	// MaxRows stops the generator after that many rows. Zero means no limit.
	MaxRows int
}

const (
	defaultPollInterval  = 10 * time.Second
	defaultRowsPerSecond = 10
)

// HasConnector reports whether the WITH options request a source connector.
func HasConnector(with map[string]string) bool {
	_, ok := with[KeyConnector]
	return ok
}

// Parse validates the WITH options of a table. Unknown keys are ignored. A
// missing required key or an unparsable value returns an error wrapping
// [errors.ErrConnectorConfig] that names the key.
func Parse(with map[string]string) (Options, error) {
	kind, err := required(with, KeyConnector)
	if err != nil {
		return Options{}, err
	}

	opts := Options{Kind: Kind(strings.ToLower(kind))}
	switch opts.Kind {
	case KindKafka:
		opts.Kafka, err = parseKafka(with)
	case KindObjStore:
		opts.ObjStore, err = parseObjStore(with)
	case KindDatagen:
		opts.Datagen, err = parseDatagen(with)
	default:
		return Options{}, invalid(KeyConnector, kind, "unknown connector")
	}
	if err != nil {
		return Options{}, err
	}
	return opts, nil
}

func parseKafka(with map[string]string) (KafkaOptions, error) {
	var (
		opts KafkaOptions
		err  error
	)
	if opts.Topic, err = required(with, KeyKafkaTopic); err != nil {
		return opts, err
	}
	servers, err := required(with, KeyKafkaBootstrap)
	if err != nil {
		return opts, err
	}
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			opts.Brokers = append(opts.Brokers, s)
		}
	}
	if len(opts.Brokers) == 0 {
		return opts, invalid(KeyKafkaBootstrap, servers, "no broker address")
	}

	opts.StartupMode = StartupEarliest
	if mode, ok := with[KeyKafkaStartupMode]; ok {
		switch StartupMode(strings.ToLower(mode)) {
		case StartupEarliest:
		case StartupLatest:
			opts.StartupMode = StartupLatest
		default:
			return opts, invalid(KeyKafkaStartupMode, mode, "expected earliest or latest")
		}
	}
	opts.GroupID = with[KeyKafkaGroupID]
	return opts, nil
}

func parseObjStore(with map[string]string) (ObjStoreOptions, error) {
	opts := ObjStoreOptions{PollInterval: defaultPollInterval}

	var err error
	if opts.Path, err = required(with, KeyObjStorePath); err != nil {
		return opts, err
	}
	opts.Prefix = with[KeyObjStorePrefix]
	if v, ok := with[KeyPollInterval]; ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return opts, invalid(KeyPollInterval, v, "expected a positive duration")
		}
		opts.PollInterval = d
	}
	return opts, nil
}

func parseDatagen(with map[string]string) (DatagenOptions, error) {
	opts := DatagenOptions{RowsPerSecond: defaultRowsPerSecond}

	if v, ok := with[KeyDatagenRate]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, invalid(KeyDatagenRate, v, "expected a positive integer")
		}
		opts.RowsPerSecond = n
	}
	if v, ok := with[KeyDatagenMaxRows]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, invalid(KeyDatagenMaxRows, v, "expected a non-negative integer")
		}
		opts.MaxRows = n
	}
	return opts, nil
}

func required(with map[string]string, key string) (string, error) {
	v, ok := with[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: missing required option %q", errors.ErrConnectorConfig, key)
	}
	return v, nil
}

func invalid(key, value, reason string) error {
	return fmt.Errorf("%w: invalid value %q for option %q: %s", errors.ErrConnectorConfig, value, key, reason)
}
