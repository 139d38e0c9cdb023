package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// requestTimeout bounds the handling of one inbound platform request,
// including publishing its response.
const requestTimeout = 30 * time.Second

// RequestHandler answers platform requests.
//
// Every request that carries a request_id receives exactly one response,
// including requests whose payload cannot be decoded.
type RequestHandler interface {
	HandleCommand(ctx context.Context, requestID string, req CommandRequest) CommandResponse
	HandlePropertiesSet(ctx context.Context, requestID string, req PropertiesSetRequest) PropertiesSetResponse
	HandlePropertiesGet(ctx context.Context, requestID string, req PropertiesGetRequest) PropertiesGetResponse
}

// SubscribeRequests subscribes to command, property-set, and property-get
// requests for this device and dispatches them to h.
func (c *Client) SubscribeRequests(h RequestHandler) error {
	if h == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	subs := []struct {
		topic   string
		handler MessageHandler
	}{
		{c.topics.CommandRequests(), func(topic string, payload []byte) error {
			return c.handleCommandRequest(h, topic, payload)
		}},
		{c.topics.PropertiesSetRequests(), func(topic string, payload []byte) error {
			return c.handlePropertiesSetRequest(h, topic, payload)
		}},
		{c.topics.PropertiesGetRequests(), func(topic string, payload []byte) error {
			return c.handlePropertiesGetRequest(h, topic, payload)
		}},
	}

	for _, s := range subs {
		if err := c.Subscribe(s.topic, c.options.QoS, s.handler); err != nil {
			return err
		}
	}
	return nil
}

// SetMessageHandler subscribes to platform-to-device messages.
func (c *Client) SetMessageHandler(fn func(DeviceMessage)) error {
	if fn == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	return c.Subscribe(c.topics.MessagesDown(), c.options.QoS, func(_ string, payload []byte) error {
		var msg DeviceMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			// Raw string payloads are delivered as content.
			msg = DeviceMessage{Content: string(payload)}
		}
		fn(msg)
		return nil
	})
}

// requestContext returns the context used to handle one request.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// requestIDFor extracts the request ID, rejecting responses and malformed topics.
// The bool result is false for topics that must be ignored.
func requestIDFor(topic string) (string, bool, error) {
	if IsResponseTopic(topic) {
		return "", false, nil
	}
	id := RequestID(topic)
	if id == "" {
		return "", false, fmt.Errorf("%w: no request_id in topic %s", ErrInvalidMessage, topic)
	}
	return id, true, nil
}

func (c *Client) handleCommandRequest(h RequestHandler, topic string, payload []byte) error {
	requestID, ok, err := requestIDFor(topic)
	if !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	var req CommandRequest
	var resp CommandResponse
	if err := json.Unmarshal(payload, &req); err != nil {
		resp = CommandResponse{
			ResultCode: ResultFailure,
			Paras:      map[string]any{"error": fmt.Sprintf("%v: %v", ErrInvalidMessage, err)},
		}
	} else {
		resp = h.HandleCommand(ctx, requestID, req)
	}

	return c.publishJSON(ctx, c.topics.CommandResponse(requestID), resp)
}

func (c *Client) handlePropertiesSetRequest(h RequestHandler, topic string, payload []byte) error {
	requestID, ok, err := requestIDFor(topic)
	if !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	var req PropertiesSetRequest
	var resp PropertiesSetResponse
	if err := json.Unmarshal(payload, &req); err != nil {
		resp = PropertiesSetResponse{
			ResultCode: ResultFailure,
			ResultDesc: fmt.Sprintf("%v: %v", ErrInvalidMessage, err),
		}
	} else {
		resp = h.HandlePropertiesSet(ctx, requestID, req)
	}

	return c.publishJSON(ctx, c.topics.PropertiesSetResponse(requestID), resp)
}

func (c *Client) handlePropertiesGetRequest(h RequestHandler, topic string, payload []byte) error {
	requestID, ok, err := requestIDFor(topic)
	if !ok {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	var req PropertiesGetRequest
	resp := PropertiesGetResponse{Services: []ServiceProperty{}}
	if err := json.Unmarshal(payload, &req); err == nil {
		resp = h.HandlePropertiesGet(ctx, requestID, req)
		if resp.Services == nil {
			resp.Services = []ServiceProperty{}
		}
	}

	return c.publishJSON(ctx, c.topics.PropertiesGetResponse(requestID), resp)
}
