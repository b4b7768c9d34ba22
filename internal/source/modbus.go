package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/model"
	"github.com/t77yq/kioskmon/internal/monitor"
)

// RegisterReader reads holding registers (FC 3)
type RegisterReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// Register maps one resource to a holding register. The raw unsigned
// value is multiplied by Scale; a zero Scale means 1.
type Register struct {
	Address uint16  `mapstructure:"address" yaml:"address"`
	Scale   float64 `mapstructure:"scale" yaml:"scale"`
}

// ModbusConfig configures a Modbus TCP sensor gateway
type ModbusConfig struct {
	Endpoint  string
	SlaveID   uint8
	Timeout   time.Duration
	Registers map[model.Resource]Register
}

// ModbusSource reads consumable and temperature sensors over Modbus TCP
type ModbusSource struct {
	logger *zap.Logger
	config ModbusConfig

	// serializes access to the gateway
	mu   sync.Mutex
	dial func() (RegisterReader, func() error, error)
}

// NewModbusSource creates a Modbus source. Registers must reference known
// threshold resources.
func NewModbusSource(config ModbusConfig, logger *zap.Logger) (*ModbusSource, error) {
	if config.Endpoint == "" {
		return nil, errors.New("modbus source: endpoint required")
	}
	if len(config.Registers) == 0 {
		return nil, errors.New("modbus source: at least one register required")
	}
	for r := range config.Registers {
		if !r.IsThresholded() {
			return nil, fmt.Errorf("modbus source: %w: %s", monitor.ErrUnknownResource, r)
		}
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	s := &ModbusSource{
		logger: logger.Named("modbus-source"),
		config: config,
	}
	s.dial = s.connect
	return s, nil
}

func (s *ModbusSource) Name() string { return "modbus" }

func (s *ModbusSource) connect() (RegisterReader, func() error, error) {
	h := modbus.NewTCPClientHandler(s.config.Endpoint)
	h.Timeout = s.config.Timeout
	h.SlaveId = s.config.SlaveID

	if err := h.Connect(); err != nil {
		return nil, nil, err
	}
	return modbus.NewClient(h), h.Close, nil
}

// Fetch opens a connection, reads every mapped register and closes it.
// Registers that fail to read are left absent.
func (s *ModbusSource) Fetch(ctx context.Context) (*model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	client, closeFn, err := s.dial()
	if err != nil {
		return nil, &monitor.FetchError{Source: s.Name(), Err: fmt.Errorf("connect %s: %w", s.config.Endpoint, err)}
	}
	defer closeFn()

	snapshot := &model.Snapshot{}
	var errs error
	var read int
	for _, r := range model.ThresholdResources {
		reg, ok := s.config.Registers[r]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := readRegister(client, reg)
		if err != nil {
			s.logger.Warn("Failed to read register",
				zap.String("resource", string(r)),
				zap.Uint16("address", reg.Address),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", r, err))
			continue
		}
		read++
		setReading(snapshot, r, model.Measured(value))
	}

	if read == 0 {
		return nil, &monitor.FetchError{Source: s.Name(), Err: errs}
	}
	return snapshot, nil
}

func readRegister(client RegisterReader, reg Register) (float64, error) {
	data, err := client.ReadHoldingRegisters(reg.Address, 1)
	if err != nil {
		return 0, err
	}
	if len(data) < 2 {
		return 0, errors.New("short register payload")
	}
	scale := reg.Scale
	if scale == 0 {
		scale = 1
	}
	return float64(binary.BigEndian.Uint16(data)) * scale, nil
}

func setReading(s *model.Snapshot, r model.Resource, v model.Reading) {
	switch r {
	case model.ResourceFilament:
		s.Filament = &model.Consumable{Level: v}
	case model.ResourcePaper:
		s.Paper = &model.Consumable{Level: v}
	case model.ResourceInk:
		s.Ink = &model.Consumable{Level: v}
	case model.ResourceMemory, model.ResourceCPU, model.ResourceDiskSpace:
		if s.System == nil {
			s.System = &model.SystemMetrics{}
		}
		switch r {
		case model.ResourceMemory:
			s.System.MemoryUsage = v
		case model.ResourceCPU:
			s.System.CPUUsage = v
		default:
			s.System.DiskSpace = v
		}
	case model.ResourceTemperature:
		s.Hardware = &model.Hardware{Temperature: v}
	}
}
