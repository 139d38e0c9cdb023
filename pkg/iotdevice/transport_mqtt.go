package iotdevice

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-device/pkg/iotdevice/mqtt"
)

// MQTTTransport is the default Transport, a platform session over MQTT.
//
// Platform commands, property writes, and property queries are turned into
// CommandEnvelopes; every request is answered on its response topic.
type MQTTTransport struct {
	cfg ClientConfig

	mu      sync.Mutex
	client  *mqtt.Client
	handler CommandHandler
	onFatal func(error)
	logger  Logger
}

// NewMQTTTransport creates an unconnected transport.
func NewMQTTTransport(cfg ClientConfig) *MQTTTransport {
	return &MQTTTransport{cfg: cfg, logger: discardLogger}
}

// SetLogger sets the logger passed to the MQTT client.
func (t *MQTTTransport) SetLogger(logger Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if logger != nil {
		t.logger = logger
	}
}

// SetOnFatal implements FatalErrorNotifier.
func (t *MQTTTransport) SetOnFatal(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFatal = fn
	if t.client != nil {
		t.client.SetOnFatal(fn)
	}
}

// Client returns the underlying MQTT client, or nil before Connect.
// It exposes device messages, events, and raw publish/subscribe.
func (t *MQTTTransport) Client() *mqtt.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

// options builds the MQTT session options for an identity.
func (t *MQTTTransport) options(identity Identity) (mqtt.Options, error) {
	opts := mqtt.Options{
		ServerURI:             identity.ServerURI,
		DeviceID:              identity.DeviceID,
		CAFile:                t.cfg.CAFile,
		InsecureSkipVerify:    t.cfg.InsecureSkipVerify,
		QoS:                   t.cfg.QoS,
		ConnectTimeout:        t.cfg.ConnectTimeout,
		KeepAlive:             t.cfg.KeepAlive,
		CleanSession:          t.cfg.CleanSession,
		ReconnectMaxDelay:     t.cfg.ReconnectMaxDelay,
		MaxReconnectAttempts:  t.cfg.MaxReconnectAttempts,
	}

	switch identity.Credential.Kind() {
	case CredentialSecret:
		opts.Secret = identity.Credential.Secret()
	case CredentialCertificate:
		cert, err := identity.Credential.TLSCertificate()
		if err != nil {
			return mqtt.Options{}, err
		}
		opts.Certificate = cert
	default:
		return mqtt.Options{}, fmt.Errorf("%w: no credential", ErrInvalidIdentity)
	}
	return opts, nil
}

// Connect implements Transport.
func (t *MQTTTransport) Connect(ctx context.Context, identity Identity) error {
	opts, err := t.options(identity)
	if err != nil {
		return err
	}

	client, err := mqtt.Connect(ctx, opts)
	if err != nil {
		return err
	}

	t.mu.Lock()
	client.SetLogger(t.logger)
	if t.onFatal != nil {
		client.SetOnFatal(t.onFatal)
	}
	t.client = client
	handler := t.handler
	t.mu.Unlock()

	if handler != nil {
		if err := client.SubscribeRequests(requestAdapter{t}); err != nil {
			client.Close()
			t.mu.Lock()
			t.client = nil
			t.mu.Unlock()
			return fmt.Errorf("subscribing to platform requests: %w", err)
		}
	}
	return nil
}

// Report implements Transport.
func (t *MQTTTransport) Report(ctx context.Context, changes ServiceChanges) error {
	client := t.Client()
	if client == nil {
		return mqtt.ErrNotConnected
	}
	return client.ReportProperties(ctx, []mqtt.ServiceProperty{{
		ServiceID:  changes.ServiceID,
		Properties: changes.Properties,
	}})
}

// SubscribeCommands implements Transport. Before Connect the handler is
// stored and subscribed once the session is up.
func (t *MQTTTransport) SubscribeCommands(handler CommandHandler) error {
	t.mu.Lock()
	t.handler = handler
	client := t.client
	t.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.SubscribeRequests(requestAdapter{t})
}

// Close implements Transport.
func (t *MQTTTransport) Close() error {
	client := t.Client()
	if client == nil {
		return nil
	}
	return client.Close()
}

func (t *MQTTTransport) dispatch(ctx context.Context, env CommandEnvelope) AckResult {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()

	if handler == nil {
		return failureAck(fmt.Errorf("%w: no request handler", ErrNotConnected))
	}
	return handler(ctx, env)
}

// requestAdapter converts platform requests into envelopes.
type requestAdapter struct {
	t *MQTTTransport
}

// HandleCommand implements mqtt.RequestHandler.
func (a requestAdapter) HandleCommand(ctx context.Context, requestID string, req mqtt.CommandRequest) mqtt.CommandResponse {
	ack := a.t.dispatch(ctx, CommandEnvelope{
		Kind:      KindCommand,
		RequestID: requestID,
		ServiceID: req.ServiceID,
		Name:      req.CommandName,
		Payload:   req.Paras,
	})

	paras := ack.Payload
	if !ack.OK() {
		paras = make(map[string]any, len(ack.Payload)+1)
		for k, v := range ack.Payload {
			paras[k] = v
		}
		paras["result_desc"] = ack.ResultDesc
	}
	return mqtt.CommandResponse{
		ResultCode:   ack.ResultCode,
		ResponseName: req.CommandName,
		Paras:        paras,
	}
}

// HandlePropertiesSet implements mqtt.RequestHandler.
// A write spanning several services yields one envelope per service and a
// single merged response.
func (a requestAdapter) HandlePropertiesSet(ctx context.Context, requestID string, req mqtt.PropertiesSetRequest) mqtt.PropertiesSetResponse {
	if len(req.Services) == 0 {
		return mqtt.PropertiesSetResponse{ResultCode: mqtt.ResultFailure, ResultDesc: "no services in request"}
	}

	var failures []string
	for _, svc := range req.Services {
		ack := a.t.dispatch(ctx, CommandEnvelope{
			Kind:      KindPropertySet,
			RequestID: requestID,
			ServiceID: svc.ServiceID,
			Payload:   svc.Properties,
		})
		if !ack.OK() {
			failures = append(failures, ack.ResultDesc)
		}
	}

	if len(failures) > 0 {
		return mqtt.PropertiesSetResponse{ResultCode: mqtt.ResultFailure, ResultDesc: strings.Join(failures, "; ")}
	}
	return mqtt.PropertiesSetResponse{ResultCode: mqtt.ResultSuccess, ResultDesc: "success"}
}

// HandlePropertiesGet implements mqtt.RequestHandler.
func (a requestAdapter) HandlePropertiesGet(ctx context.Context, requestID string, req mqtt.PropertiesGetRequest) mqtt.PropertiesGetResponse {
	ack := a.t.dispatch(ctx, CommandEnvelope{
		Kind:      KindPropertyGet,
		RequestID: requestID,
		ServiceID: req.ServiceID,
	})

	services := make([]mqtt.ServiceProperty, 0, len(ack.Services))
	for _, s := range ack.Services {
		services = append(services, mqtt.ServiceProperty{ServiceID: s.ServiceID, Properties: s.Properties})
	}
	return mqtt.PropertiesGetResponse{Services: services}
}

// MQTTClient returns the MQTT client when the device runs on the default
// transport and is connected. It reaches device messages, events, and raw
// publish/subscribe.
func (d *Device) MQTTClient() (*mqtt.Client, bool) {
	t, ok := d.transport.(*MQTTTransport)
	if !ok {
		return nil, false
	}
	client := t.Client()
	return client, client != nil
}
