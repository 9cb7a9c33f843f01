package fsboot_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/fsboot/pkg/blockio"
	"github.com/osbuild/fsboot/pkg/bootfs"
	"github.com/osbuild/fsboot/pkg/datasizes"
	"github.com/osbuild/fsboot/pkg/devname"
	"github.com/osbuild/fsboot/pkg/fsboot"
	"github.com/osbuild/fsboot/pkg/partfilter"
)

type board struct {
	t      *testing.T
	blocks *blockio.Memory
	fs     *bootfs.Memory
	hook   *logrustest.Hook
	booter *fsboot.Booter
}

func newBoard(t *testing.T) *board {
	t.Helper()
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	blocks := blockio.NewMemory()
	fs := bootfs.NewMemory()
	return &board{
		t:      t,
		blocks: blocks,
		fs:     fs,
		hook:   hook,
		booter: fsboot.New(blocks, fs, logger),
	}
}

// device registers block devices without a filesystem.
func (b *board) device(names ...string) *board {
	b.t.Helper()
	for _, name := range names {
		require.NoError(b.t, b.blocks.Add(blockio.Info{Name: name, Label: "part-" + name, Size: 64 * datasizes.MiB}))
	}
	return b
}

// volume registers a block device carrying an ext2 filesystem with files.
func (b *board) volume(name string, files map[string][]byte) *board {
	b.t.Helper()
	b.device(name)
	_, err := b.fs.AddVolume(name, "ext2")
	require.NoError(b.t, err)
	for path, data := range files {
		require.NoError(b.t, b.fs.WriteFile(name, path, data))
	}
	return b
}

func (b *board) messages() []string {
	var msgs []string
	for _, e := range b.hook.AllEntries() {
		msgs = append(msgs, e.Message)
	}
	return msgs
}

func image(size int) map[string][]byte {
	return map[string][]byte{"boot.img": make([]byte, size)}
}

func TestBootFirstFromSDCard(t *testing.T) {
	b := newBoard(t).
		device("hd2").volume("hd2p0", image(4096)).
		device("hd1").volume("hd1p1", image(2048))

	buf := make([]byte, 4096)
	n, err := b.booter.BootFirst(buf)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)

	assert.Equal(t, []string{"hd2", "hd2p0"}, b.blocks.Stats.Attempted)
	assert.Equal(t, []string{"hd2p0"}, b.fs.Stats.Mounted)
	assert.Equal(t, 1, b.fs.Stats.Unmounts)
	assert.Equal(t, []string{"/mnt/boot.img"}, b.fs.Stats.Loaded)
	assert.Equal(t, "", b.fs.Active())
}

func TestBootFirstFallsBackToEMMC(t *testing.T) {
	b := newBoard(t).
		device("hd1").volume("hd1p1", image(1024))

	n, err := b.booter.BootFirst(make([]byte, 4096))
	require.NoError(t, err)
	assert.Equal(t, 1024, n)

	// the sdcard bus ends at its root and emmc starts at partition 1
	want := []string{"hd2", "hd1", "hd1p1"}
	if diff := cmp.Diff(want, b.blocks.Stats.Attempted); diff != "" {
		t.Errorf("unexpected open sequence (-want +got):\n%s", diff)
	}
	assert.Contains(t, b.messages(), "fs-boot: Can't open hd2")
}

func TestBootFirstEMMCSkipsPartitionZero(t *testing.T) {
	// hd1p0 holds an image but is never looked at
	b := newBoard(t).
		device("hd1").volume("hd1p0", image(512)).volume("hd1p1", image(1024))

	n, err := b.booter.BootFirst(make([]byte, 4096))
	require.NoError(t, err)
	assert.Equal(t, 1024, n)
	assert.NotContains(t, b.blocks.Stats.Attempted, "hd1p0")
	assert.Equal(t, []string{"hd1p1"}, b.fs.Stats.Mounted)
}

func TestBootFirstNestedPartition(t *testing.T) {
	b := newBoard(t).
		device("hd2", "hd2p0", "hd2p0p0").volume("hd2p0p1", image(300))

	buf := make([]byte, 1024)
	n, err := b.booter.BootFirst(buf)
	require.NoError(t, err)
	assert.Equal(t, 300, n)

	want := []string{"hd2", "hd2p0", "hd2p0p0", "hd2p0p1"}
	if diff := cmp.Diff(want, b.blocks.Stats.Attempted); diff != "" {
		t.Errorf("unexpected open sequence (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, b.fs.Stats.MountAttempts)
	assert.Equal(t, []string{"hd2p0p1"}, b.fs.Stats.Mounted)
	assert.Equal(t, 1, b.fs.Stats.Unmounts)
}

func TestBootFirstNoNestingWhenTopLevelLoads(t *testing.T) {
	b := newBoard(t).
		device("hd2").volume("hd2p0", image(100)).volume("hd2p0p0", image(200))

	n, err := b.booter.BootFirst(make([]byte, 1024))
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.NotContains(t, b.blocks.Stats.Attempted, "hd2p0p0")
}

func TestBootFirstNestingOneLevelOnly(t *testing.T) {
	b := newBoard(t).
		device("hd2", "hd2p0", "hd2p0p0").volume("hd2p0p0p0", image(100))

	_, err := b.booter.BootFirst(make([]byte, 1024))
	assert.ErrorIs(t, err, fsboot.ErrNoBootImage)
	assert.NotContains(t, b.blocks.Stats.Attempted, "hd2p0p0p0")
}

func TestBootFirstNothingOpenable(t *testing.T) {
	b := newBoard(t)

	n, err := b.booter.BootFirst(make([]byte, 1024))
	assert.ErrorIs(t, err, fsboot.ErrNoBootImage)
	assert.Equal(t, 0, n)
	assert.Equal(t, []string{"hd2", "hd1"}, b.blocks.Stats.Attempted)
	assert.Equal(t, 0, b.fs.Stats.MountAttempts)
	assert.Equal(t, 0, b.fs.Stats.Loads)
}

func TestBootFirstNoImageAnywhere(t *testing.T) {
	b := newBoard(t).
		device("hd2").volume("hd2p0", map[string][]byte{"uEnv.txt": []byte("x")}).volume("hd2p1", nil).
		device("hd1", "hd1p1")

	_, err := b.booter.BootFirst(make([]byte, 1024))
	assert.ErrorIs(t, err, fsboot.ErrNoBootImage)
	assert.Equal(t, 0, b.fs.Stats.Loads)
	assert.Equal(t, b.fs.Stats.Mounts, b.fs.Stats.Unmounts)
	assert.Equal(t, b.fs.Stats.DirOpens, b.fs.Stats.DirCloses)
	assert.Equal(t, "", b.fs.Active())
	assert.False(t, b.blocks.IsOpen())
}

func TestBootFirstBufferTooSmall(t *testing.T) {
	b := newBoard(t).
		device("hd2").volume("hd2p0", image(8192)).
		device("hd1").volume("hd1p1", image(100))

	_, err := b.booter.BootFirst(make([]byte, 4096))
	assert.ErrorIs(t, err, bootfs.ErrBufferTooSmall)
	assert.NotErrorIs(t, err, fsboot.ErrNoBootImage)

	// a matched image that fails to load is final
	assert.Equal(t, []string{"hd2p0"}, b.fs.Stats.Mounted)
	assert.NotContains(t, b.blocks.Stats.Attempted, "hd1")
	assert.Equal(t, 1, b.fs.Stats.Unmounts)
}

func TestBootFirstLoadFailure(t *testing.T) {
	errIO := errors.New("i/o error")
	b := newBoard(t).
		device("hd2").volume("hd2p0", image(10))
	require.NoError(t, b.fs.FailLoad("hd2p0", errIO))

	_, err := b.booter.BootFirst(make([]byte, 64))
	assert.ErrorIs(t, err, errIO)
	assert.Equal(t, 0, b.fs.Stats.LoadsWithOpenDir)
	assert.Equal(t, "", b.fs.Active())
}

func TestBootFirstEmptyImageTriesNextBus(t *testing.T) {
	b := newBoard(t).
		device("hd2").volume("hd2p0", image(0)).volume("hd2p1", image(50)).
		device("hd1").volume("hd1p1", image(70))

	n, err := b.booter.BootFirst(make([]byte, 64*1024))
	require.NoError(t, err)
	assert.Equal(t, 70, n)
	// the rest of the sdcard is not walked
	assert.NotContains(t, b.blocks.Stats.Attempted, "hd2p1")
	assert.Equal(t, []string{"hd2p0", "hd1p1"}, b.fs.Stats.Mounted)
}

func TestBootFirstPrefixMatch(t *testing.T) {
	b := newBoard(t).
		device("hd2").volume("hd2p0", map[string][]byte{
		"README":    []byte("hello"),
		"boot.img2": make([]byte, 33),
	})

	n, err := b.booter.BootFirst(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, 33, n)
	assert.Equal(t, []string{"/mnt/boot.img2"}, b.fs.Stats.Loaded)
	assert.Contains(t, b.messages(), "Found boot image: hd2p0 : /mnt/boot.img2")
}

func TestBootFirstDirectoryFailureDescends(t *testing.T) {
	b := newBoard(t).
		device("hd2").volume("hd2p0", image(10)).volume("hd2p0p0", image(20))
	require.NoError(t, b.fs.FailOpenDir("hd2p0", errors.New("corrupt directory")))

	n, err := b.booter.BootFirst(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, 2, b.fs.Stats.Unmounts)
}

func TestBootFirstInvalidBus(t *testing.T) {
	b := newBoard(t).device("hd2")
	b.booter.Buses = []devname.Bus{{Name: "bad", ID: 2, StartIndex: -1}}

	_, err := b.booter.BootFirst(make([]byte, 64))
	require.Error(t, err)
	assert.NotErrorIs(t, err, fsboot.ErrNoBootImage)
	assert.Empty(t, b.blocks.Stats.Attempted)
}

func TestBootFirstCustomBusOrder(t *testing.T) {
	b := newBoard(t).
		device("hd2").volume("hd2p0", image(10)).
		device("hd1").volume("hd1p1", image(20))
	b.booter.Buses = []devname.Bus{{Name: "emmc", ID: 1, StartIndex: 1}}

	n, err := b.booter.BootFirst(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, []string{"hd1", "hd1p1"}, b.blocks.Stats.Attempted)
}

func TestDiscoverAndReport(t *testing.T) {
	b := newBoard(t).
		device("hd2").volume("hd2p0", map[string][]byte{"boot.img": []byte("img"), "uEnv.txt": []byte("x")}).
		device("hd1", "hd1p1").volume("hd1p1p0", map[string][]byte{"zImage": []byte("k")})
	require.NoError(t, b.fs.FailOpenDir("hd1p1p0", errors.New("bad dir")))

	b.booter.DiscoverAndReport()

	msgs := b.messages()
	assert.Equal(t, "====== fs-boot test ======", msgs[0])
	assert.Equal(t, "====== ============ ======", msgs[len(msgs)-1])
	assert.Contains(t, msgs, "fs-boot: Looking at hd2:")
	assert.Contains(t, msgs, "fs-boot: Looking at hd1:")
	assert.Contains(t, msgs, "hd2p0:  part-hd2p0 (    64 MiB): ")
	assert.Contains(t, msgs, "| /hd2p0/boot.img")
	assert.Contains(t, msgs, "| /hd2p0/uEnv.txt")
	assert.Contains(t, msgs, "hd1p1p0:  part-hd1p1 (    64 MiB): ")
	assert.Contains(t, msgs, "    fs_open_dir hd1p1p0: bad dir")

	// a listed partition is not descended into, nothing is ever loaded
	assert.NotContains(t, b.blocks.Stats.Attempted, "hd2p0p0")
	assert.Contains(t, b.blocks.Stats.Attempted, "hd1p1p0")
	assert.Equal(t, 0, b.fs.Stats.Loads)
	assert.Equal(t, b.fs.Stats.Mounts, b.fs.Stats.Unmounts)
}

func TestDiscoverAndReportListsDevices(t *testing.T) {
	b := newBoard(t).device("hd1", "hd9")

	b.booter.DiscoverAndReport()

	var devices []string
	for _, msg := range b.messages() {
		if strings.HasSuffix(msg, "MiB): ") {
			devices = append(devices, msg)
		}
	}
	// hd9 is not on any bus but is still a known device, bus roots are
	// never described as candidates
	assert.Equal(t, []string{
		"hd1:  part-hd1 (    64 MiB): ",
		"hd9:  part-hd9 (    64 MiB): ",
	}, devices)
}

func TestDiscoverAndReportFilter(t *testing.T) {
	b := newBoard(t).
		device("hd2").volume("hd2p0", image(1)).
		device("hd1").volume("hd1p1", image(1))
	filter, err := partfilter.New("bus:emmc")
	require.NoError(t, err)
	b.booter.Filter = filter

	b.booter.DiscoverAndReport()

	msgs := b.messages()
	assert.Contains(t, msgs, "| /hd1p1/boot.img")
	assert.NotContains(t, msgs, "| /hd2p0/boot.img")
	// rejected candidates are still mounted to decide whether to descend
	assert.Equal(t, []string{"hd2p0", "hd1p1"}, b.fs.Stats.Mounted)
}

func TestDiscoverAndReportFilterKeepsWalk(t *testing.T) {
	layout := func(t *testing.T) *board {
		return newBoard(t).
			device("hd2").volume("hd2p0", image(1)).volume("hd2p0p0", image(1)).
			device("hd2p1").volume("hd2p1p0", image(1))
	}

	unfiltered := layout(t)
	unfiltered.booter.DiscoverAndReport()

	filtered := layout(t)
	filter, err := partfilter.New("kind:nested")
	require.NoError(t, err)
	filtered.booter.Filter = filter
	filtered.booter.DiscoverAndReport()

	if diff := cmp.Diff(unfiltered.blocks.Stats.Attempted, filtered.blocks.Stats.Attempted); diff != "" {
		t.Errorf("filter changed the open sequence (-unfiltered +filtered):\n%s", diff)
	}
	// hd2p0 lists so its nested partition is never reached, hd2p1 does not
	// mount so hd2p1p0 is
	assert.NotContains(t, filtered.blocks.Stats.Attempted, "hd2p0p0")
	assert.Equal(t, []string{"hd2p0", "hd2p1p0"}, filtered.fs.Stats.Mounted)

	msgs := filtered.messages()
	assert.NotContains(t, msgs, "| /hd2p0/boot.img")
	assert.Contains(t, msgs, "| /hd2p1p0/boot.img")
	assert.Equal(t, filtered.fs.Stats.Mounts, filtered.fs.Stats.Unmounts)
}
