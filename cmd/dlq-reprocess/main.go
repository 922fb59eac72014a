package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

// dlqPayload — payload, который outbox worker кладёт в DLQ после исчерпания
// retry: исходное событие плюс причина отказа публикации.
type dlqPayload struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

type dlqEnvelope struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

type replayEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

type replayMessage struct {
	topic string
	key   string
	value []byte
}

// Узкие интерфейсы поверх sarama, чтобы replayer можно было тестировать
// без брокера.
type brokerOffsets interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error)
	Close() error
}

type eventPublisher interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error) {
	return a.consumer.ConsumePartition(topic, partition, offset)
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// connectKafka подменяется в тестах стабами.
var connectKafka = func(cfg config) (brokerOffsets, partitionSource, eventPublisher, error) {
	clientCfg := sarama.NewConfig()
	clientCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, clientCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	source := saramaConsumerAdapter{consumer: rawConsumer}

	// В dry-run режиме producer не нужен.
	if !cfg.execute {
		return client, source, nil, nil
	}

	producerCfg := sarama.NewConfig()
	producerCfg.Producer.RequiredAcks = sarama.WaitForAll
	producerCfg.Producer.Retry.Max = 5
	producerCfg.Producer.Return.Successes = true
	producerCfg.Producer.Compression = sarama.CompressionSnappy
	producerCfg.Producer.Idempotent = true
	producerCfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerCfg)
	if err != nil {
		_ = source.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, source, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicCheckoutEvents, "target topic for replay")
	flag.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("KAFKA_BROKERS")
	}

	cfg.brokers = parseBrokers(brokersRaw)
	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, fmt.Errorf("target-topic is required")
	case cfg.limit <= 0:
		return config{}, fmt.Errorf("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
	}).Info("starting dlq replay")

	offsets, source, producer, err := connectKafka(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		if source != nil {
			_ = source.Close()
		}
		if offsets != nil {
			_ = offsets.Close()
		}
	}()

	r := &replayer{cfg: cfg, offsets: offsets, source: source, producer: producer}
	return r.run(ctx)
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// replayer вычитывает DLQ и возвращает события outbox worker'а в основной
// topic. В dry-run режиме кандидаты только логируются.
type replayer struct {
	cfg      config
	offsets  brokerOffsets
	source   partitionSource
	producer eventPublisher
}

func (r *replayer) run(ctx context.Context) error {
	if r.offsets == nil || r.source == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if r.cfg.execute && r.producer == nil {
		return fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := r.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", r.cfg.sourceTopic).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total replayStats
	for _, partition := range partitions {
		budget := r.cfg.limit - total.processed
		if budget <= 0 {
			break
		}

		stats, err := r.scanPartition(ctx, partition, budget)
		total.add(stats)
		if err != nil {
			return err
		}
	}

	mode := "dry-run"
	if r.cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")

	return nil
}

// scanPartition читает партицию от старейшего offset до границы, снятой
// перед стартом, но не больше budget сообщений.
func (r *replayer) scanPartition(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	stream, err := r.source.ConsumePartition(r.cfg.sourceTopic, partition, oldest)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case err := <-stream.Errors():
			if err != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-stream.Messages():
			if !ok || msg == nil {
				return stats, nil
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.idleTimeout)

			if msg.Offset >= newest {
				return stats, nil
			}

			if err := r.handleMessage(msg, &stats); err != nil {
				return stats, err
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idle.C:
			return stats, nil
		}
	}

	return stats, nil
}

func (r *replayer) handleMessage(msg *sarama.ConsumerMessage, stats *replayStats) error {
	stats.processed++

	replayMsg, ok, err := extractReplayMessage(msg, r.cfg.targetTopic)
	if err != nil || !ok {
		stats.skipped++
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Warn("skip unsupported dlq message")
		}
		return nil
	}

	if r.cfg.execute {
		if err := publishReplay(r.producer, replayMsg); err != nil {
			return fmt.Errorf("publish replay message: %w", err)
		}
	} else {
		log.WithFields(log.Fields{
			"partition":    msg.Partition,
			"offset":       msg.Offset,
			"target_topic": replayMsg.topic,
			"key":          replayMsg.key,
		}).Info("dlq replay candidate")
	}

	stats.replayed++
	return nil
}

func publishReplay(producer eventPublisher, msg replayMessage) error {
	if producer == nil {
		return fmt.Errorf("producer is nil")
	}

	_, _, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic:     msg.topic,
		Key:       sarama.StringEncoder(msg.key),
		Value:     sarama.ByteEncoder(msg.value),
		Timestamp: time.Now().UTC(),
	})
	return err
}

// extractReplayMessage восстанавливает исходное событие из DLQ-записи
// outbox worker'а. Сообщения чужого формата пропускаются.
func extractReplayMessage(msg *sarama.ConsumerMessage, targetTopic string) (replayMessage, bool, error) {
	var envelope dlqEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return replayMessage{}, false, nil
	}
	if len(envelope.Payload) == 0 {
		return replayMessage{}, false, nil
	}

	var payload dlqPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return replayMessage{}, false, fmt.Errorf("decode dlq payload: %w", err)
	}
	if len(payload.Payload) == 0 {
		return replayMessage{}, false, fmt.Errorf("dlq payload does not contain original event payload")
	}

	replay := replayEnvelope{
		ID:            firstNonEmpty(payload.OutboxID, envelope.ID),
		AggregateType: payload.AggregateType,
		AggregateID:   payload.AggregateID,
		EventType:     payload.EventType,
		Payload:       payload.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return replayMessage{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	return replayMessage{
		topic: targetTopic,
		key:   firstNonEmpty(replay.AggregateID, replay.ID),
		value: encoded,
	}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
