package aggregator

import (
	"sort"
	"sync"

	"shhe-backend/internal/models"
)

// DefaultWindowSize is the number of raw samples averaged per channel
const DefaultWindowSize = 3

// sample is one raw temp/hum/gas triple
type sample struct {
	temp, hum, gas float64
}

// window is a bounded FIFO of raw samples for a single channel
type window struct {
	values []float64
	size   int
}

func (w *window) push(v float64) {
	w.values = append(w.values, v)
	if len(w.values) > w.size {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.size]
	}
}

// mean is recomputed from the full window on every call
func (w *window) mean() float64 {
	if len(w.values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.values {
		sum += v
	}
	return sum / float64(len(w.values))
}

// DeviceState holds the rolling feature state of one device
type DeviceState struct {
	DeviceID string

	lastSample *sample
	temp       window
	hum        window
	gas        window

	hasRollingAvg  bool
	lastRollingTmp float64
	lastRollingGas float64
}

// DeviceSnapshot is a read-only copy of a device's rolling state
type DeviceSnapshot struct {
	DeviceID    string
	TempWindow  []float64
	HumWindow   []float64
	GasWindow   []float64
	LastTemp    float64
	LastHum     float64
	LastGas     float64
	HasLast     bool
	RollingTemp float64
	RollingGas  float64
	HasRolling  bool
}

// FeatureEngine derives rolling features per device
type FeatureEngine struct {
	devices    map[string]*DeviceState
	windowSize int
	mu         sync.Mutex
}

// NewFeatureEngine creates a feature engine. windowSize <= 0 selects DefaultWindowSize.
func NewFeatureEngine(windowSize int) *FeatureEngine {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &FeatureEngine{
		devices:    make(map[string]*DeviceState),
		windowSize: windowSize,
	}
}

// WindowSize returns K
func (e *FeatureEngine) WindowSize() int {
	return e.windowSize
}

// getOrCreateDevice must be called with e.mu held
func (e *FeatureEngine) getOrCreateDevice(deviceID string) *DeviceState {
	if device, exists := e.devices[deviceID]; exists {
		return device
	}

	device := &DeviceState{
		DeviceID: deviceID,
		temp:     window{size: e.windowSize},
		hum:      window{size: e.windowSize},
		gas:      window{size: e.windowSize},
	}
	e.devices[deviceID] = device
	return device
}

// Compute updates the device's rolling state with one reading and returns
// its feature vector. The first reading of a device reports zero deltas and
// zero trends. Inputs must already be normalized (unmeasured heart rate = 0).
func (e *FeatureEngine) Compute(deviceID string, temp, hum, gas, heartRate float64) models.FeatureVector {
	e.mu.Lock()
	defer e.mu.Unlock()

	device := e.getOrCreateDevice(deviceID)

	var dTemp, dHum, dGas float64
	if last := device.lastSample; last != nil {
		dTemp = temp - last.temp
		dHum = hum - last.hum
		dGas = gas - last.gas
	}

	device.temp.push(temp)
	device.hum.push(hum)
	device.gas.push(gas)

	rTemp := device.temp.mean()
	rHum := device.hum.mean()
	rGas := device.gas.mean()

	var trendTemp, trendGas float64
	if device.hasRollingAvg {
		trendTemp = rTemp - device.lastRollingTmp
		trendGas = rGas - device.lastRollingGas
	}

	// Previous state is only replaced after deltas and trends are computed
	device.lastSample = &sample{temp: temp, hum: hum, gas: gas}
	device.lastRollingTmp = rTemp
	device.lastRollingGas = rGas
	device.hasRollingAvg = true

	var fv models.FeatureVector
	fv[models.FeatTemp] = temp
	fv[models.FeatHum] = hum
	fv[models.FeatGas] = gas
	fv[models.FeatDeltaTemp] = dTemp
	fv[models.FeatDeltaHum] = dHum
	fv[models.FeatDeltaGas] = dGas
	fv[models.FeatRollingTemp] = rTemp
	fv[models.FeatRollingHum] = rHum
	fv[models.FeatRollingGas] = rGas
	fv[models.FeatHeartRate] = heartRate
	fv[models.FeatTrendTemp] = trendTemp
	fv[models.FeatTrendGas] = trendGas
	return fv
}

// Evict drops a device's rolling state. It reports whether the device was known.
func (e *FeatureEngine) Evict(deviceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.devices[deviceID]; !exists {
		return false
	}
	delete(e.devices, deviceID)
	return true
}

// Snapshot returns a copy of a device's rolling state
func (e *FeatureEngine) Snapshot(deviceID string) (DeviceSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	device, exists := e.devices[deviceID]
	if !exists {
		return DeviceSnapshot{}, false
	}

	snap := DeviceSnapshot{
		DeviceID:    deviceID,
		TempWindow:  append([]float64(nil), device.temp.values...),
		HumWindow:   append([]float64(nil), device.hum.values...),
		GasWindow:   append([]float64(nil), device.gas.values...),
		RollingTemp: device.lastRollingTmp,
		RollingGas:  device.lastRollingGas,
		HasRolling:  device.hasRollingAvg,
	}
	if last := device.lastSample; last != nil {
		snap.LastTemp, snap.LastHum, snap.LastGas = last.temp, last.hum, last.gas
		snap.HasLast = true
	}
	return snap, true
}

// GetAllDevices returns all tracked device IDs, sorted
func (e *FeatureEngine) GetAllDevices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	devices := make([]string, 0, len(e.devices))
	for deviceID := range e.devices {
		devices = append(devices, deviceID)
	}
	sort.Strings(devices)
	return devices
}
