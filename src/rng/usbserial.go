package rng

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tarm/serial"
)

// SerialConfig describes a hardware RNG attached to a serial port.
type SerialConfig struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// SerialConfigFromEnv reads SERIAL_DEVICE_NAME, SERIAL_BAUD_RATE and
// SERIAL_READ_TIMEOUT (milliseconds). An empty device name means no serial
// source is configured and is not an error.
func SerialConfigFromEnv() (SerialConfig, error) {
	cfg := SerialConfig{Device: os.Getenv("SERIAL_DEVICE_NAME")}
	if cfg.Device == "" {
		return cfg, nil
	}

	baudStr := os.Getenv("SERIAL_BAUD_RATE")
	baud, err := strconv.Atoi(baudStr)
	if err != nil || baud <= 0 {
		return cfg, fmt.Errorf("invalid SERIAL_BAUD_RATE: %q", baudStr)
	}
	cfg.Baud = baud

	if timeoutStr := os.Getenv("SERIAL_READ_TIMEOUT"); timeoutStr != "" {
		timeoutMs, err := strconv.Atoi(timeoutStr)
		if err != nil || timeoutMs < 0 {
			return cfg, fmt.Errorf("invalid SERIAL_READ_TIMEOUT: %q", timeoutStr)
		}
		cfg.ReadTimeout = time.Duration(timeoutMs) * time.Millisecond
	}

	return cfg, nil
}

// OpenSerial opens the configured port as a block source. Its size is
// unknown, so the caller must supply a block count.
func OpenSerial(cfg SerialConfig, bitsPerBlock int) (*BlockSource, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial device name is required")
	}

	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		Size:        8,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("can't open serial port %s: %w", cfg.Device, err)
	}

	s, err := NewBlockSource(cfg.Device, p, bitsPerBlock)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}
