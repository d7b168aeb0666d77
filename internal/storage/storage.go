// Package storage answers storage health and disk statistics queries
// from sysfs. Values are read fresh on every query.
package storage

import (
	"strconv"
	"strings"

	"codeberg.org/mutker/healthd/internal/errors"
	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/sysfs"
)

// Device names the sysfs files describing one storage device.
type Device struct {
	Name      string
	Internal  bool
	Boot      bool
	EOL       string
	LifetimeA string
	LifetimeB string
	Version   string
	Stat      string
}

// Attr identifies a storage device.
type Attr struct {
	Name         string `json:"name"`
	IsInternal   bool   `json:"isInternal"`
	IsBootDevice bool   `json:"isBootDevice"`
}

// Info is the health of one storage device. EOL and the lifetime
// estimates use the eMMC encoding: 0 means undefined.
type Info struct {
	Attr      Attr   `json:"attr"`
	EOL       int64  `json:"eol"`
	LifetimeA int64  `json:"lifetimeA"`
	LifetimeB int64  `json:"lifetimeB"`
	Version   string `json:"version"`
}

// DiskStats mirrors the fields of /sys/block/<dev>/stat.
type DiskStats struct {
	Attr         Attr   `json:"attr"`
	Reads        uint64 `json:"reads"`
	ReadMerges   uint64 `json:"readMerges"`
	ReadSectors  uint64 `json:"readSectors"`
	ReadTicks    uint64 `json:"readTicks"`
	Writes       uint64 `json:"writes"`
	WriteMerges  uint64 `json:"writeMerges"`
	WriteSectors uint64 `json:"writeSectors"`
	WriteTicks   uint64 `json:"writeTicks"`
	IOInFlight   uint64 `json:"ioInFlight"`
	IOTicks      uint64 `json:"ioTicks"`
	IOInQueue    uint64 `json:"ioInQueue"`
}

func (d *DiskStats) fields() []*uint64 {
	return []*uint64{
		&d.Reads, &d.ReadMerges, &d.ReadSectors, &d.ReadTicks,
		&d.Writes, &d.WriteMerges, &d.WriteSectors, &d.WriteTicks,
		&d.IOInFlight, &d.IOTicks, &d.IOInQueue,
	}
}

// Querier reads storage information for a fixed set of devices.
type Querier struct {
	reader  *sysfs.Reader
	devices []Device
	logger  logger.Logger
}

func NewQuerier(reader *sysfs.Reader, devices []Device, log logger.Logger) *Querier {
	if log == nil {
		log = logger.Nop()
	}

	return &Querier{
		reader:  reader,
		devices: append([]Device(nil), devices...),
		logger:  log.With("storage"),
	}
}

// Devices returns the number of configured devices.
func (q *Querier) Devices() int {
	return len(q.devices)
}

func (d Device) attr() Attr {
	return Attr{Name: d.Name, IsInternal: d.Internal, IsBootDevice: d.Boot}
}

// StorageInfo returns one entry per configured device. Unreadable values
// are reported as zero.
func (q *Querier) StorageInfo() []Info {
	infos := make([]Info, 0, len(q.devices))

	for _, d := range q.devices {
		infos = append(infos, Info{
			Attr:      d.attr(),
			EOL:       q.reader.IntOr(d.EOL, 0),
			LifetimeA: q.reader.IntOr(d.LifetimeA, 0),
			LifetimeB: q.reader.IntOr(d.LifetimeB, 0),
			Version:   q.version(d),
		})
	}

	return infos
}

// version formats the firmware revision as "<name> <hex>" with the
// device name lowercased, for example "mmc0 800000000000000".
func (q *Querier) version(d Device) string {
	rev := q.reader.HexOr(d.Version, 0)
	return strings.ToLower(d.Name) + " " + strconv.FormatUint(rev, 16)
}

// DiskStats returns one entry per configured device. Missing trailing
// fields and unparsable fields are reported as zero.
func (q *Querier) DiskStats() []DiskStats {
	stats := make([]DiskStats, 0, len(q.devices))

	for _, d := range q.devices {
		s := DiskStats{Attr: d.attr()}

		tokens, err := q.reader.ReadFields(d.Stat)
		if err != nil {
			q.logger.Warn().Code(err).Err(err).Str("path", d.Stat).Msg("Cannot read disk stats")
		}

		for i, field := range s.fields() {
			if i >= len(tokens) {
				break
			}
			v, err := strconv.ParseUint(tokens[i], 10, 64)
			if err != nil {
				q.logger.Warn().
					Code(errors.New().Wrap(errors.ErrSourceParse, err)).
					Str("path", d.Stat).
					Int("field", i).
					Msg("Cannot parse disk stats field")
				continue
			}
			*field = v
		}

		stats = append(stats, s)
	}

	return stats
}
