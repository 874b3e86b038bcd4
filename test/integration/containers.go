// Package integration spins up throwaway Postgres and Kafka containers
// for the integration test suites.
package integration

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

type Env struct {
	PG      *tcpostgres.PostgresContainer
	Kafka   *tckafka.KafkaContainer
	PGURL   string
	Brokers []string
}

// SetupPostgres starts only the database, for suites that never touch Kafka.
func SetupPostgres(ctx context.Context) (*Env, error) {
	pg, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("orderflow"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}
	url, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(pg)
		return nil, err
	}
	return &Env{PG: pg, PGURL: url}, nil
}

// Setup starts Postgres and Kafka.
func Setup(ctx context.Context) (*Env, error) {
	env, err := SetupPostgres(ctx)
	if err != nil {
		return nil, err
	}

	kc, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.6.1",
		tckafka.WithClusterID("orderflow-test"),
	)
	if err != nil {
		_ = env.Teardown(ctx)
		return nil, fmt.Errorf("start kafka: %w", err)
	}
	brokers, err := kc.Brokers(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(kc)
		_ = env.Teardown(ctx)
		return nil, err
	}
	env.Kafka = kc
	env.Brokers = brokers
	return env, nil
}

func (e *Env) Teardown(ctx context.Context) error {
	var err error
	if e.Kafka != nil {
		if terr := testcontainers.TerminateContainer(e.Kafka); terr != nil {
			err = terr
		}
	}
	if e.PG != nil {
		if terr := testcontainers.TerminateContainer(e.PG); terr != nil {
			err = terr
		}
	}
	return err
}
