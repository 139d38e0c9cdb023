package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReportProperties publishes the given services' properties to the platform.
//
// Services without an EventTime are stamped with the current time.
func (c *Client) ReportProperties(ctx context.Context, services []ServiceProperty) error {
	if len(services) == 0 {
		return nil
	}

	now := FormatEventTime(time.Now())
	report := PropertiesReport{Services: make([]ServiceProperty, len(services))}
	for i, svc := range services {
		if svc.EventTime == "" {
			svc.EventTime = now
		}
		report.Services[i] = svc
	}

	if err := c.publishJSON(ctx, c.topics.PropertiesReport(), report); err != nil {
		return fmt.Errorf("reporting properties: %w", err)
	}
	return nil
}

// ReportDeviceMessage publishes a free-form message on messages/up.
// A message without an ID is given a random one.
func (c *Client) ReportDeviceMessage(ctx context.Context, msg DeviceMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if err := c.publishJSON(ctx, c.topics.MessagesUp(), msg); err != nil {
		return fmt.Errorf("reporting device message: %w", err)
	}
	return nil
}

// ReportEvent publishes a single service event on events/up.
// Missing EventID and EventTime are filled in.
func (c *Client) ReportEvent(ctx context.Context, event DeviceEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.EventTime == "" {
		event.EventTime = FormatEventTime(time.Now())
	}
	msg := EventsMessage{
		ObjectDeviceID: c.options.DeviceID,
		Services:       []DeviceEvent{event},
	}
	if err := c.publishJSON(ctx, c.topics.EventsUp(), msg); err != nil {
		return fmt.Errorf("reporting event: %w", err)
	}
	return nil
}
