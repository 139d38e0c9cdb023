package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
)

// maxPayloadSize caps a single upstream message. Platform brokers reject
// larger frames, so oversize reports fail locally instead.
const maxPayloadSize = 1 << 20

// Publish sends payload on topic, waiting for the broker acknowledgement
// when qos > 0. Device code rarely calls it directly; the typed helpers
// (ReportProperties, ReportEvent and the request responders) build
// the topic and body.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return c.PublishContext(context.Background(), topic, payload, qos, retained)
}

// PublishContext is Publish bounded by ctx as well as the publish timeout.
func (c *Client) PublishContext(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %s: %d byte payload over the %d byte limit",
			ErrPublishFailed, topic, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := c.waitToken(ctx, c.client.Publish(topic, qos, retained, payload), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// publishJSON encodes v and publishes it at the session QoS, never retained.
func (c *Client) publishJSON(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: encode: %w", ErrPublishFailed, topic, err)
	}
	return c.PublishContext(ctx, topic, payload, c.options.QoS, false)
}
