package serialmux

import (
	"go.bug.st/serial"
)

// NewRealSerialMux opens the IMU at path.
func NewRealSerialMux(path string, opts PortOptions, stream StreamOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return NewSerialMux[serial.Port](port, stream), nil
}

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
