package temperature

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"crystalproc/internal/config"
)

const (
	regConfig    = 0x00
	regRTDMSB    = 0x01
	regFault     = 0x07
	writeFlag    = 0x80
	cfgBias      = 0x80
	cfgOneShot   = 0x20
	cfgThreeWire = 0x10
	cfgFaultClr  = 0x02

	biasSettle     = 10 * time.Millisecond
	conversionTime = 65 * time.Millisecond
)

// ErrFault is returned when the MAX31865 flags an RTD fault (open or
// shorted probe, out-of-range reference).
var ErrFault = errors.New("max31865: rtd fault")

// Transferer is the SPI transaction primitive the driver needs.
type Transferer interface {
	Tx(w, r []byte) error
}

// MAX31865 reads a PT100/PT1000 probe through a MAX31865 converter.
type MAX31865 struct {
	conn          Transferer
	threeWire     bool
	referenceOhms float64
	nominalOhms   float64
	closer        func() error
	wait          func(ctx context.Context, d time.Duration) error
}

// NewMAX31865 wraps an established SPI connection.
func NewMAX31865(conn Transferer, cfg config.Temperature) *MAX31865 {
	return &MAX31865{
		conn:          conn,
		threeWire:     cfg.Wires == 3,
		referenceOhms: cfg.ReferenceOhms,
		nominalOhms:   cfg.NominalOhms,
		wait:          sleepContext,
	}
}

// OpenMAX31865 initializes the host drivers and connects to the converter on
// cfg.SPIPort (the first available port when empty).
func OpenMAX31865(cfg config.Temperature) (*MAX31865, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", cfg.SPIPort, err)
	}
	conn, err := port.Connect(physic.MegaHertz, spi.Mode1, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("connect spi: %w", err)
	}
	dev := NewMAX31865(conn, cfg)
	dev.closer = port.Close
	return dev, nil
}

// Close releases the SPI port.
func (m *MAX31865) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// ReadCelsius performs a one-shot conversion and returns the temperature.
func (m *MAX31865) ReadCelsius(ctx context.Context) (float64, error) {
	code, err := m.ReadRTD(ctx)
	if err != nil {
		return 0, err
	}
	return Celsius(Resistance(code, m.referenceOhms), m.nominalOhms), nil
}

// ReadRTD triggers a one-shot conversion and returns the 15-bit RTD code.
func (m *MAX31865) ReadRTD(ctx context.Context) (uint16, error) {
	base := byte(0)
	if m.threeWire {
		base |= cfgThreeWire
	}
	if err := m.writeRegister(regConfig, base|cfgFaultClr); err != nil {
		return 0, err
	}
	if err := m.writeRegister(regConfig, base|cfgBias); err != nil {
		return 0, err
	}
	if err := m.wait(ctx, biasSettle); err != nil {
		return 0, err
	}
	if err := m.writeRegister(regConfig, base|cfgBias|cfgOneShot); err != nil {
		return 0, err
	}
	if err := m.wait(ctx, conversionTime); err != nil {
		return 0, err
	}

	buf, err := m.readRegisters(regRTDMSB, 2)
	if err != nil {
		return 0, err
	}
	// Drop bias between readings to limit self-heating.
	if err := m.writeRegister(regConfig, base); err != nil {
		return 0, err
	}
	raw := uint16(buf[0])<<8 | uint16(buf[1])
	if raw&0x01 != 0 {
		status, _ := m.readRegisters(regFault, 1)
		if len(status) == 1 {
			return 0, fmt.Errorf("%w: status 0x%02x", ErrFault, status[0])
		}
		return 0, ErrFault
	}
	return raw >> 1, nil
}

func (m *MAX31865) writeRegister(reg, value byte) error {
	if err := m.conn.Tx([]byte{reg | writeFlag, value}, nil); err != nil {
		return fmt.Errorf("max31865 write 0x%02x: %w", reg, err)
	}
	return nil
}

func (m *MAX31865) readRegisters(reg byte, n int) ([]byte, error) {
	w := make([]byte, n+1)
	r := make([]byte, n+1)
	w[0] = reg &^ writeFlag
	if err := m.conn.Tx(w, r); err != nil {
		return nil, fmt.Errorf("max31865 read 0x%02x: %w", reg, err)
	}
	return r[1:], nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
