package ingest

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"dexarb/internal/config"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
	"gitlab.com/nevasik7/alerting/logger"
)

// KafkaSource consumes pool messages from a Kafka/Redpanda topic as a consumer group member
type KafkaSource struct {
	log     logger.Logger
	cfg     config.KafkaConfig
	idMode  string
	chainID uint32
	now     func() time.Time
}

func NewKafkaSource(log logger.Logger, cfg config.KafkaConfig, idMode string, chainID uint32) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("kafka topic and group_id are required")
	}

	return &KafkaSource{
		log:     log,
		cfg:     cfg,
		idMode:  idMode,
		chainID: chainID,
		now:     time.Now,
	}, nil
}

func (k *KafkaSource) Run(ctx context.Context, sink Sink) error {
	scfg, err := saramaConfig(k.cfg)
	if err != nil {
		return err
	}

	group, err := sarama.NewConsumerGroup(k.cfg.Brokers, k.cfg.GroupID, scfg)
	if err != nil {
		return fmt.Errorf("kafka consumer group: %w", err)
	}
	defer func() {
		if cerr := group.Close(); cerr != nil {
			k.log.Errorf("Failed to close kafka consumer group, error=%v", cerr)
		}
	}()

	go func() {
		for gerr := range group.Errors() {
			k.log.Warnf("Kafka consumer error=%v", gerr)
		}
	}()

	k.log.Infof("Consuming %s topic=%s group=%s", k.cfg.BrokerType, k.cfg.Topic, k.cfg.GroupID)

	h := &claimHandler{src: k, sink: sink}
	for {
		// Consume returns on every rebalance
		if err = group.Consume(ctx, []string{k.cfg.Topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			k.log.Errorf("Kafka consume error=%v", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handle decodes one record; undecodable records are skipped, never retried
func (k *KafkaSource) handle(sink Sink, msg *sarama.ConsumerMessage) Batch {
	pools, err := DecodePools(msg.Value)
	if err != nil {
		k.log.Warnf("Skip kafka record partition=%d offset=%d, error=%v", msg.Partition, msg.Offset, err)
		return Batch{Dropped: 1}
	}
	return Feed(k.log, sink, pools, k.idMode, k.chainID, k.now())
}

type claimHandler struct {
	src  *KafkaSource
	sink Sink
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.src.handle(h.sink, msg)
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

func saramaConfig(kc config.KafkaConfig) (*sarama.Config, error) {
	c := sarama.NewConfig()
	c.ClientID = "dexarb"
	c.Version = sarama.V2_3_0_0
	c.Consumer.Return.Errors = true
	c.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	switch kc.Start {
	case "", "newest":
		c.Consumer.Offsets.Initial = sarama.OffsetNewest
	case "oldest":
		c.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		return nil, fmt.Errorf("unknown kafka start offset %q", kc.Start)
	}

	if kc.SessionTimeout > 0 {
		c.Consumer.Group.Session.Timeout = kc.SessionTimeout
	}

	if kc.TLS.Enabled {
		tc, err := tlsConfig(kc.TLS)
		if err != nil {
			return nil, err
		}
		c.Net.TLS.Enable = true
		c.Net.TLS.Config = tc
	}

	return c, nil
}

func tlsConfig(tc config.TLSConfig) (*tls.Config, error) {
	out := &tls.Config{MinVersion: tls.VersionTLS12}

	if tc.CAFile != "" {
		pem, err := os.ReadFile(tc.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read kafka ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", tc.CAFile)
		}
		out.RootCAs = pool
	}

	if tc.CertFile != "" || tc.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tc.CertFile, tc.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load kafka client cert: %w", err)
		}
		out.Certificates = []tls.Certificate{cert}
	}

	return out, nil
}
