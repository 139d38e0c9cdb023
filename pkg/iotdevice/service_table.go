package iotdevice

import (
	"context"
	"fmt"
	"sync"
)

// CommandFunc handles one command of a ServiceTable.
type CommandFunc func(ctx context.Context, paras map[string]any) (map[string]any, error)

type tableProperty struct {
	get func() (any, error)
	set func(any) error
}

// ServiceTable is a ready-made Service assembled from getter, setter,
// and command functions.
//
//	svc := iotdevice.NewServiceTable().
//	    Property("alarm", func() (any, error) { return sensor.Alarm(), nil }, nil).
//	    Command("silence", sensor.Silence)
//
// Properties and commands are listed in the order they were added.
type ServiceTable struct {
	mu         sync.RWMutex
	propNames  []string
	properties map[string]tableProperty
	cmdNames   []string
	commands   map[string]CommandFunc
}

// NewServiceTable creates an empty table.
func NewServiceTable() *ServiceTable {
	return &ServiceTable{
		properties: make(map[string]tableProperty),
		commands:   make(map[string]CommandFunc),
	}
}

// Property declares a property. A nil set makes it read-only.
// Declaring an existing name replaces its functions.
func (t *ServiceTable) Property(name string, get func() (any, error), set func(any) error) *ServiceTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.properties[name]; !ok {
		t.propNames = append(t.propNames, name)
	}
	t.properties[name] = tableProperty{get: get, set: set}
	return t
}

// Command declares a command.
func (t *ServiceTable) Command(name string, fn CommandFunc) *ServiceTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.commands[name]; !ok {
		t.cmdNames = append(t.cmdNames, name)
	}
	t.commands[name] = fn
	return t
}

// PropertyNames implements Service.
func (t *ServiceTable) PropertyNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.propNames...)
}

// ReadProperty implements Service.
func (t *ServiceTable) ReadProperty(name string) (any, error) {
	t.mu.RLock()
	p, ok := t.properties[name]
	t.mu.RUnlock()
	if !ok || p.get == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	return p.get()
}

// WriteProperty implements Service.
func (t *ServiceTable) WriteProperty(name string, value any) error {
	t.mu.RLock()
	p, ok := t.properties[name]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	if p.set == nil {
		return fmt.Errorf("%w: %s", ErrPropertyNotWritable, name)
	}
	return p.set(value)
}

// CommandNames implements Service.
func (t *ServiceTable) CommandNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.cmdNames...)
}

// InvokeCommand implements Service.
func (t *ServiceTable) InvokeCommand(ctx context.Context, name string, paras map[string]any) (map[string]any, error) {
	t.mu.RLock()
	fn, ok := t.commands[name]
	t.mu.RUnlock()
	if !ok || fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	return fn(ctx, paras)
}
