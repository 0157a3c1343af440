package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicPublishers keeps one Pub/Sub publisher per topic for the life of the
// relay. Each owns batching goroutines and must be stopped on exit.
type topicPublishers struct {
	mu      sync.Mutex
	client  pubSubClient
	byTopic map[string]*gcpPublisher
}

func newTopicPublishers(client pubSubClient) *topicPublishers {
	return &topicPublishers{client: client, byTopic: map[string]*gcpPublisher{}}
}

func (t *topicPublishers) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pub, ok := t.byTopic[topic]; ok {
		return pub
	}
	raw := t.client.Publisher(topic)
	if raw == nil {
		return nil
	}
	// Messages carry an ordering key per aggregate.
	raw.EnableMessageOrdering = true
	pub := &gcpPublisher{p: raw}
	t.byTopic[topic] = pub
	return pub
}

func (t *topicPublishers) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, pub := range t.byTopic {
		pub.p.Stop()
		delete(t.byTopic, topic)
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	res := g.p.Publish(ctx, msg)
	if res == nil {
		return nil
	}
	return gcpResult{r: res, pub: g.p, key: msg.OrderingKey}
}

type gcpResult struct {
	r   *gcppubsub.PublishResult
	pub *gcppubsub.Publisher
	key string
}

// Get waits for the server ack. A failed ordered publish pauses its key until
// resumed, so the key is resumed here and the row retried next batch.
func (g gcpResult) Get(ctx context.Context) (string, error) {
	if g.r == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := g.r.Get(ctx)
	if err != nil && g.key != "" {
		g.pub.ResumePublish(g.key)
	}
	return id, err
}
