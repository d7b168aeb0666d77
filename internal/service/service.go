// Package service exports the health aggregator on D-Bus.
package service

import (
	"context"
	"encoding/json"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"codeberg.org/mutker/healthd/internal/errors"
	"codeberg.org/mutker/healthd/internal/hal"
	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/storage"
)

const (
	BusName   = "org.healthd.Health1"
	ObjPath   = "/org/healthd/Health"
	IfaceName = "org.healthd.Health1"

	errInvalidInput = IfaceName + ".Error.InvalidInput"
	errNoData       = IfaceName + ".Error.NoData"
)

const introspectXML = `
<node>
  <interface name="` + IfaceName + `">
    <method name="OnHealthUpdate">
      <arg direction="in" type="s" name="json"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetHealthInfo">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetStorageInfo">
      <arg direction="out" type="i" name="result"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetDiskStats">
      <arg direction="out" type="i" name="result"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <signal name="HealthChanged">
      <arg type="s" name="json"/>
    </signal>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// Backend processes health updates and answers queries.
type Backend interface {
	OnTick(ctx context.Context, in hal.HealthInfo) hal.HealthInfo
	Last() (hal.HealthInfo, bool)
	QueryStorageInfo() (hal.Result, []storage.Info)
	QueryDiskStats() (hal.Result, []storage.DiskStats)
}

// Service is the D-Bus object. Its exported methods can also be called
// directly.
type Service struct {
	backend Backend
	conn    *godbus.Conn
	logger  logger.Logger
}

func New(backend Backend, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}

	return &Service{backend: backend, logger: log.With("service")}
}

// Export registers the service on the system or session bus.
func (s *Service) Export(bus string) (*godbus.Conn, error) {
	errFactory := errors.New()

	var (
		conn *godbus.Conn
		err  error
	)
	if bus == "session" {
		conn, err = godbus.ConnectSessionBus()
	} else {
		conn, err = godbus.ConnectSystemBus()
	}
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrExportFailed, err).WithData(bus)
	}

	if err := conn.Export(s, ObjPath, IfaceName); err != nil {
		conn.Close()
		return nil, errFactory.Wrap(errors.ErrExportFailed, err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), ObjPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		conn.Close()
		return nil, errFactory.Wrap(errors.ErrExportFailed, err)
	}

	reply, err := conn.RequestName(BusName, godbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, errFactory.Wrap(errors.ErrExportFailed, err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, errFactory.WithData(errors.ErrAlreadyRunning, BusName)
	}

	s.conn = conn
	s.logger.Info().Str("bus", bus).Str("name", BusName).Msg("Service exported")

	return conn, nil
}

// OnHealthUpdate runs one framework tick and returns the processed
// properties.
func (s *Service) OnHealthUpdate(in string) (string, *godbus.Error) {
	var info hal.HealthInfo
	if err := json.Unmarshal([]byte(in), &info); err != nil {
		s.logger.Warn().Err(err).Msg("Rejected health update")
		return "", godbus.NewError(errInvalidInput, []interface{}{err.Error()})
	}

	return marshal(s.backend.OnTick(context.Background(), info))
}

// GetHealthInfo returns the last processed properties.
func (s *Service) GetHealthInfo() (string, *godbus.Error) {
	info, ok := s.backend.Last()
	if !ok {
		return "", godbus.NewError(errNoData, []interface{}{"no health update processed yet"})
	}

	return marshal(info)
}

func (s *Service) GetStorageInfo() (int32, string, *godbus.Error) {
	result, infos := s.backend.QueryStorageInfo()
	data, err := marshal(infos)

	return int32(result), data, err
}

func (s *Service) GetDiskStats() (int32, string, *godbus.Error) {
	result, stats := s.backend.QueryDiskStats()
	data, err := marshal(stats)

	return int32(result), data, err
}

// Notify emits HealthChanged for an update produced by the internal
// sampler. It does nothing until the service is exported.
func (s *Service) Notify(info hal.HealthInfo) {
	if s.conn == nil {
		return
	}

	data, derr := marshal(info)
	if derr != nil {
		return
	}
	if err := s.conn.Emit(ObjPath, IfaceName+".HealthChanged", data); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to emit HealthChanged")
	}
}

func marshal(v any) (string, *godbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}

	return string(data), nil
}
