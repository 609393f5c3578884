package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// DefaultTopic subscribes to readings for every subject.
const DefaultTopic = "vitals/+/readings"

// DefaultWorkers is the number of evaluation workers when Config.Workers is unset.
const DefaultWorkers = 4

const shardQueue = 64

// Submitter evaluates a reading. engine.Engine satisfies it.
type Submitter interface {
	SubmitReading(ctx context.Context, subjectID string, metrics map[string]*float64, ts time.Time) (*model.EvaluationResult, error)
}

// Config configures the MQTT consumer.
type Config struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
	QoS      byte   `mapstructure:"qos"`
	// Workers evaluate readings in parallel. Readings on one topic always
	// go to the same worker, in arrival order.
	Workers int `mapstructure:"workers"`
}

type message struct {
	topic   string
	payload []byte
}

// Payload is the JSON body published on a subject's readings topic.
type Payload struct {
	Timestamp time.Time           `json:"timestamp"`
	Metrics   map[string]*float64 `json:"metrics"`
}

// Consumer feeds readings published on MQTT into a Submitter.
type Consumer struct {
	cfg       Config
	client    mqtt.Client
	submitter Submitter
	timeout   time.Duration
	logger    *slog.Logger

	mu     sync.RWMutex
	shards []chan message
	wg     sync.WaitGroup
}

// NewConsumer creates a consumer. Call Start to connect.
func NewConsumer(cfg Config, submitter Submitter, logger *slog.Logger) *Consumer {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	return &Consumer{cfg: cfg, submitter: submitter, timeout: 30 * time.Second, logger: logger}
}

// Start connects to the broker and subscribes. Messages are handled until Stop.
func (c *Consumer) Start() error {
	c.startWorkers()
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.Broker)
	opts.SetClientID(c.cfg.ClientID)
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
	}
	if c.cfg.Password != "" {
		opts.SetPassword(c.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		// Subscriptions do not survive a clean-session reconnect.
		token := client.Subscribe(c.cfg.Topic, c.cfg.QoS, c.onMessage)
		if token.Wait() && token.Error() != nil {
			c.logger.Error("mqtt subscribe failed", "topic", c.cfg.Topic, "error", token.Error())
			return
		}
		c.logger.Info("mqtt subscribed", "broker", c.cfg.Broker, "topic", c.cfg.Topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		c.stopWorkers()
		return fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	return nil
}

// Stop disconnects from the broker and waits for queued readings to finish.
func (c *Consumer) Stop() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
	c.stopWorkers()
}

// onMessage runs on the client's delivery goroutine; it only queues the
// reading so one slow subject does not hold up the others.
func (c *Consumer) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if !c.enqueue(msg.Topic(), msg.Payload()) {
		c.logger.Warn("mqtt reading dropped after stop", "topic", msg.Topic())
	}
}

func (c *Consumer) startWorkers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shards != nil {
		return
	}
	c.shards = make([]chan message, c.cfg.Workers)
	for i := range c.shards {
		ch := make(chan message, shardQueue)
		c.shards[i] = ch
		c.wg.Add(1)
		go c.work(ch)
	}
}

func (c *Consumer) stopWorkers() {
	c.mu.Lock()
	for _, ch := range c.shards {
		close(ch)
	}
	c.shards = nil
	c.mu.Unlock()
	c.wg.Wait()
}

// enqueue hands a reading to the worker owning its topic. It blocks while
// that worker's queue is full and reports false once the workers are stopped.
func (c *Consumer) enqueue(topic string, payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.shards == nil {
		return false
	}
	c.shards[shardFor(topic, len(c.shards))] <- message{topic: topic, payload: payload}
	return true
}

func (c *Consumer) work(ch <-chan message) {
	defer c.wg.Done()
	for m := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		if err := c.Handle(ctx, m.topic, m.payload); err != nil {
			c.logger.Error("mqtt reading rejected", "topic", m.topic, "error", err)
		}
		cancel()
	}
}

func shardFor(topic string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(topic))
	return int(h.Sum32() % uint32(n))
}

// Handle decodes one published reading and submits it.
func (c *Consumer) Handle(ctx context.Context, topic string, payload []byte) error {
	subjectID, err := SubjectFromTopic(topic)
	if err != nil {
		return err
	}
	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode reading payload: %w", err)
	}
	if len(p.Metrics) == 0 {
		return errors.New("reading payload has no metrics")
	}
	res, err := c.submitter.SubmitReading(ctx, subjectID, p.Metrics, p.Timestamp)
	if err != nil {
		return fmt.Errorf("submit reading for %s: %w", subjectID, err)
	}
	c.logger.Debug("mqtt reading evaluated", "subject", subjectID, "status", res.Status)
	return nil
}

// SubjectFromTopic extracts the subject id from "vitals/{subject}/readings".
func SubjectFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "vitals" || parts[2] != "readings" || parts[1] == "" {
		return "", fmt.Errorf("unexpected topic %q", topic)
	}
	return parts[1], nil
}
