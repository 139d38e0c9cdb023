package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-device/pkg/iotdevice"
)

// Sensor limits.
const (
	defaultAlarmThreshold = 0.3 // smoke concentration (fraction of scale)
	maxRingSeconds        = 300
)

var errInvalidParameter = errors.New("invalid parameter")

// smokeSensor simulates a smoke detector with a drifting concentration,
// temperature, and humidity reading.
type smokeSensor struct {
	mu            sync.Mutex
	rng           *rand.Rand
	concentration float64
	temperature   float64
	humidity      int
	threshold     float64
	alarm         int
	ringUntil     time.Time
	now           func() time.Time
}

func newSmokeSensor(seed int64) *smokeSensor {
	return &smokeSensor{
		rng:         rand.New(rand.NewPCG(uint64(seed), 0x5eed)), //nolint:gosec // Simulation only
		temperature: 21.5,
		humidity:    45,
		threshold:   defaultAlarmThreshold,
		now:         time.Now,
	}
}

// Service exposes the sensor as the smokeDetector service.
//
// Properties:
//   - smokeAlarm (int, writable): 1 while the alarm is raised
//   - smokeConcentration (float): 0.0 to 1.0
//   - temperature (float): degrees Celsius, one decimal
//   - humidity (int): percent
//   - alarmThreshold (float, writable): concentration that raises the alarm
//
// Commands:
//   - ringAlarm {"duration": seconds}: sound the buzzer
func (s *smokeSensor) Service() *iotdevice.ServiceTable {
	return iotdevice.NewServiceTable().
		Property("smokeAlarm", s.readAlarm, s.writeAlarm).
		Property("smokeConcentration", s.readConcentration, nil).
		Property("temperature", s.readTemperature, nil).
		Property("humidity", s.readHumidity, nil).
		Property("alarmThreshold", s.readThreshold, s.writeThreshold).
		Command("ringAlarm", s.ringAlarm)
}

// step advances the simulation by one poll and raises the alarm when the
// concentration crosses the threshold. A raised alarm stays latched until
// cleared through a property write.
func (s *smokeSensor) step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.concentration = clamp(s.concentration+(s.rng.Float64()-0.45)*0.1, 0, 1)
	s.temperature = math.Round((s.temperature+(s.rng.Float64()-0.5)*0.4)*10) / 10
	s.humidity = int(clamp(float64(s.humidity)+float64(s.rng.IntN(3)-1), 0, 100))

	if s.concentration >= s.threshold {
		s.alarm = 1
	}
}

func (s *smokeSensor) readAlarm() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alarm, nil
}

func (s *smokeSensor) writeAlarm(v any) error {
	n, err := toInt(v)
	if err != nil {
		return err
	}
	if n != 0 && n != 1 {
		return fmt.Errorf("%w: smokeAlarm must be 0 or 1, got %d", errInvalidParameter, n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarm = n
	return nil
}

func (s *smokeSensor) readConcentration() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return math.Round(s.concentration*1000) / 1000, nil
}

func (s *smokeSensor) readTemperature() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temperature, nil
}

func (s *smokeSensor) readHumidity() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.humidity, nil
}

func (s *smokeSensor) readThreshold() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold, nil
}

func (s *smokeSensor) writeThreshold(v any) error {
	f, ok := v.(float64)
	if !ok {
		n, err := toInt(v)
		if err != nil {
			return err
		}
		f = float64(n)
	}
	if f <= 0 || f > 1 {
		return fmt.Errorf("%w: alarmThreshold must be in (0, 1], got %v", errInvalidParameter, f)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = f
	return nil
}

func (s *smokeSensor) ringAlarm(_ context.Context, paras map[string]any) (map[string]any, error) {
	raw, ok := paras["duration"]
	if !ok {
		return nil, fmt.Errorf("%w: duration is required", errInvalidParameter)
	}
	seconds, err := toInt(raw)
	if err != nil {
		return nil, err
	}
	if seconds < 1 || seconds > maxRingSeconds {
		return nil, fmt.Errorf("%w: duration must be 1-%d seconds, got %d", errInvalidParameter, maxRingSeconds, seconds)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ringUntil = s.now().Add(time.Duration(seconds) * time.Second)
	return map[string]any{
		"ringing": true,
		"until":   s.ringUntil.UTC().Format(time.RFC3339),
	}, nil
}

// simulate polls the sensor every interval and reports changed properties
// until ctx is cancelled. Report failures are logged; the next poll retries
// because the baseline only advances on success.
func simulate(ctx context.Context, device *iotdevice.Device, sensor *smokeSensor, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sensor.step()
			if err := device.FireServicesChanged(ctx, []string{serviceID}); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Warn("reporting sensor changes failed", "error", err)
			}
		}
	}
}

// toInt accepts the numeric forms a JSON payload can carry.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %v is not an integer", errInvalidParameter, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %v is not a number", errInvalidParameter, v)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
