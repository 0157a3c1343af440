package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/beatstore-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		name    string
		project string
		topic   string
		want    string
	}{
		{name: "short id", project: "beats-prod", topic: "bs-transaction-events", want: "projects/beats-prod/topics/bs-transaction-events"},
		{name: "trimmed", project: "beats-prod", topic: " bs-checkout-events ", want: "projects/beats-prod/topics/bs-checkout-events"},
		{name: "full resource", project: "ignored", topic: "projects/other/topics/t1", want: "projects/other/topics/t1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, topicResourceName(tc.project, tc.topic))
		})
	}
}

func TestCleanTopicsDropsBlanksAndDuplicates(t *testing.T) {
	assert.Equal(t, []string{"tx", "checkout"}, cleanTopics([]string{" tx ", "", "checkout", "tx"}))
	assert.Empty(t, cleanTopics(nil))
}

func TestNewClientValidatesInputs(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, []string{"tx"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "beats-dev"}, config.PubSubConfig{}, []string{" "}, nil)
	require.ErrorIs(t, err, errNoTopics)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("t1"))
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	assert.NoError(t, c.Close())
}
