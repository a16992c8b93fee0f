// Package telemetry publishes periodic cache/I/O snapshots to Kafka: an
// async sarama producer, a background error-drain goroutine, and a no-op
// Publisher when no brokers are configured so callers never need a nil
// check before publishing.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"

	"github.com/janelia-flyem/volview/blockcache"
	"github.com/janelia-flyem/volview/vvlog"
)

// Snapshot is one point-in-time measurement published to the activity
// topic: cache residency size and the aggregate I/O stopwatch/byte count
// for one rendering job.
type Snapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	CacheLen    int       `json:"cache_len"`
	IoElapsedMs int64     `json:"io_elapsed_ms"`
	IoBytes     int64     `json:"io_bytes"`
}

// Publisher periodically publishes Snapshots to a Kafka topic. A
// Publisher constructed with no brokers is a harmless no-op.
type Publisher struct {
	producer sarama.AsyncProducer
	topic    string
	stop     chan struct{}
}

// Config configures a Publisher. Servers empty means telemetry is
// disabled.
type Config struct {
	Servers       []string
	TopicActivity string
	Interval      time.Duration
}

// New connects to Servers and returns a Publisher, or a disabled
// Publisher (nil producer) if cfg.Servers is empty. A connection failure
// is returned as an error rather than silently disabling telemetry,
// since an operator who configured Kafka presumably wants to know it's
// unreachable.
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Servers) == 0 {
		vvlog.Infof("No Kafka servers specified; telemetry publishing disabled.")
		return &Publisher{}, nil
	}
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = false
	producer, err := sarama.NewAsyncProducer(cfg.Servers, sc)
	if err != nil {
		return nil, err
	}
	p := &Publisher{producer: producer, topic: cfg.TopicActivity, stop: make(chan struct{})}
	go p.drainErrors()
	vvlog.Infof("Kafka telemetry topic: %s", cfg.TopicActivity)
	return p, nil
}

func (p *Publisher) drainErrors() {
	for err := range p.producer.Errors() {
		vvlog.Errorf("error publishing telemetry to kafka: %v", err)
	}
}

// Publish sends snap to the activity topic. A disabled Publisher
// (no brokers configured) silently drops the snapshot.
func (p *Publisher) Publish(snap Snapshot) {
	if p.producer == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		vvlog.Errorf("unable to marshal telemetry snapshot: %v", err)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(snap.Timestamp.Format(time.RFC3339Nano)),
		Value: sarama.ByteEncoder(data),
	}
	select {
	case p.producer.Input() <- msg:
	default:
		vvlog.Warnf("telemetry producer input full, dropping snapshot")
	}
}

// RunLoop publishes a Snapshot built from cache and stats every interval
// until stop is closed. Intended to run in its own goroutine alongside
// the painter loop.
func (p *Publisher) RunLoop(interval time.Duration, jobKey interface{}, cache *blockcache.Cache) {
	if p.producer == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			snap := p.snapshotFrom(cache, jobKey)
			p.Publish(snap)
		}
	}
}

func (p *Publisher) snapshotFrom(cache *blockcache.Cache, jobKey interface{}) Snapshot {
	s := cache.Stats().For(jobKey).Snapshot()
	return Snapshot{
		Timestamp:   time.Now(),
		CacheLen:    cache.Len(),
		IoElapsedMs: s.Elapsed.Milliseconds(),
		IoBytes:     s.Bytes,
	}
}

// Close stops the publishing loop and flushes the underlying producer.
func (p *Publisher) Close() {
	if p.producer == nil {
		return
	}
	if p.stop != nil {
		close(p.stop)
	}
	if err := p.producer.Close(); err != nil {
		vvlog.Errorf("kafka telemetry producer had error on close: %v", err)
	} else {
		vvlog.Infof("Successfully shut down kafka telemetry producer.")
	}
}
