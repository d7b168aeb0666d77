package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/storage"
	"codeberg.org/mutker/healthd/internal/sysfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mmc0 = storage.Device{
	Name:      "MMC0",
	Internal:  true,
	Boot:      true,
	EOL:       "sdhci/health/eol",
	LifetimeA: "sdhci/health/lifetimeA",
	LifetimeB: "sdhci/health/lifetimeB",
	Version:   "block/mmcblk0/device/fwrev",
	Stat:      "block/mmcblk0/stat",
}

func writeTestFile(t *testing.T, root, path, contents string) {
	t.Helper()

	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(contents), 0o644))
}

func newQuerier(t *testing.T, devices ...storage.Device) (*storage.Querier, string) {
	t.Helper()

	root := t.TempDir()
	return storage.NewQuerier(sysfs.New(root, logger.Nop()), devices, logger.Nop()), root
}

func TestStorageInfo(t *testing.T) {
	q, root := newQuerier(t, mmc0)
	writeTestFile(t, root, mmc0.EOL, "0x01\n")
	writeTestFile(t, root, mmc0.LifetimeA, "0x02\n")
	writeTestFile(t, root, mmc0.LifetimeB, "3\n")
	writeTestFile(t, root, mmc0.Version, "0x0800000000000000\n")

	infos := q.StorageInfo()
	require.Len(t, infos, 1)
	assert.Equal(t, storage.Info{
		Attr:      storage.Attr{Name: "MMC0", IsInternal: true, IsBootDevice: true},
		EOL:       1,
		LifetimeA: 2,
		LifetimeB: 3,
		Version:   "mmc0 800000000000000",
	}, infos[0])
}

func TestStorageInfo_MissingFilesReadAsZero(t *testing.T) {
	q, root := newQuerier(t, mmc0)
	writeTestFile(t, root, mmc0.LifetimeA, "0x02\n")

	infos := q.StorageInfo()
	require.Len(t, infos, 1)
	assert.Zero(t, infos[0].EOL)
	assert.Zero(t, infos[0].LifetimeB)
	assert.Equal(t, int64(2), infos[0].LifetimeA)
	assert.Equal(t, "mmc0 0", infos[0].Version)
}

func TestDiskStats(t *testing.T) {
	q, root := newQuerier(t, mmc0)
	writeTestFile(t, root, mmc0.Stat,
		"   31514     4431  1631294    26112    12045    13210   531160    74616        0    42424   100760        0        0        0        0\n")

	stats := q.DiskStats()
	require.Len(t, stats, 1)
	assert.Equal(t, storage.DiskStats{
		Attr:         storage.Attr{Name: "MMC0", IsInternal: true, IsBootDevice: true},
		Reads:        31514,
		ReadMerges:   4431,
		ReadSectors:  1631294,
		ReadTicks:    26112,
		Writes:       12045,
		WriteMerges:  13210,
		WriteSectors: 531160,
		WriteTicks:   74616,
		IOInFlight:   0,
		IOTicks:      42424,
		IOInQueue:    100760,
	}, stats[0])
}

func TestDiskStats_ShortAndMissing(t *testing.T) {
	other := mmc0
	other.Name = "MMC1"
	other.Stat = "block/mmcblk1/stat"

	q, root := newQuerier(t, mmc0, other)
	writeTestFile(t, root, mmc0.Stat, "10 20 x 40\n")

	stats := q.DiskStats()
	require.Len(t, stats, 2)
	assert.Equal(t, uint64(10), stats[0].Reads)
	assert.Equal(t, uint64(20), stats[0].ReadMerges)
	assert.Zero(t, stats[0].ReadSectors)
	assert.Equal(t, uint64(40), stats[0].ReadTicks)
	assert.Zero(t, stats[0].IOInQueue)

	assert.Equal(t, "MMC1", stats[1].Attr.Name)
	assert.Zero(t, stats[1].Reads)
}

func TestQuerier_NoDevices(t *testing.T) {
	q, _ := newQuerier(t)

	assert.Zero(t, q.Devices())
	assert.Empty(t, q.StorageInfo())
	assert.Empty(t, q.DiskStats())
}
