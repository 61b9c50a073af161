package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	envConfig "github.com/BarkinBalci/viewer-analytics-service/internal/config"
)

// newSaramaConfig builds the client config shared by consumer and producer
func newSaramaConfig(cfg envConfig.Kafka, role string) (*sarama.Config, error) {
	config := sarama.NewConfig()

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid kafka version %q: %w", cfg.Version, err)
	}
	config.Version = version
	config.ClientID = fmt.Sprintf("viewer-%s-%s", role, uuid.NewString()[:8])

	// consumer: start from the oldest retained offset when the group has no commit yet
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}

	// producer: a sync producer requires successes to be returned
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	return config, nil
}
