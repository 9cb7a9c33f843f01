package enumerate_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/fsboot/pkg/blockio"
	"github.com/osbuild/fsboot/pkg/devname"
	"github.com/osbuild/fsboot/pkg/enumerate"
	"github.com/osbuild/fsboot/pkg/pathbuf"
)

var (
	sdcard = devname.Bus{Name: "sdcard", ID: 2, StartIndex: 0}
	emmc   = devname.Bus{Name: "emmc", ID: 1, StartIndex: 1}
)

func newWalker(t *testing.T, names ...string) (*enumerate.Walker, *blockio.Memory, *logrustest.Hook) {
	t.Helper()
	blocks := blockio.NewMemory()
	for _, name := range names {
		require.NoError(t, blocks.Add(blockio.Info{Name: name}))
	}
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return &enumerate.Walker{Blocks: blocks, Names: devname.NewScheme("hd"), Log: logger}, blocks, hook
}

// record returns an action that logs every candidate it sees and answers
// with the verdict from the map, Descend by default.
func record(seen *[]string, verdicts map[string]enumerate.Verdict) enumerate.Action {
	return func(c enumerate.Candidate) enumerate.Verdict {
		*seen = append(*seen, c.Name)
		if v, ok := verdicts[c.Name]; ok {
			return v
		}
		return enumerate.Descend
	}
}

func TestWalkBusAbsent(t *testing.T) {
	w, blocks, hook := newWalker(t, "hd1", "hd1p1")
	var seen []string

	stopped, err := w.Walk(sdcard, record(&seen, nil))
	assert.ErrorIs(t, err, enumerate.ErrBusAbsent)
	assert.False(t, stopped)
	assert.Empty(t, seen)
	assert.Equal(t, []string{"hd2"}, blocks.Stats.Attempted)
	assert.Equal(t, 0, blocks.Stats.Opens)
	assert.Equal(t, "fs-boot: Can't open hd2", hook.LastEntry().Message)
}

func TestWalkOrderAndGap(t *testing.T) {
	// hd2p3 is never reached, the walk ends at the first gap
	w, _, _ := newWalker(t, "hd2", "hd2p0", "hd2p1", "hd2p3")
	var seen []string

	stopped, err := w.Walk(sdcard, record(&seen, map[string]enumerate.Verdict{
		"hd2p0": enumerate.Accept,
		"hd2p1": enumerate.Accept,
	}))
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Equal(t, []string{"hd2p0", "hd2p1"}, seen)
}

func TestWalkStartIndex(t *testing.T) {
	w, blocks, _ := newWalker(t, "hd1", "hd1p0", "hd1p1", "hd1p2")
	var seen []string

	_, err := w.Walk(emmc, record(&seen, map[string]enumerate.Verdict{
		"hd1p1": enumerate.Accept,
		"hd1p2": enumerate.Accept,
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"hd1p1", "hd1p2"}, seen)
	assert.NotContains(t, blocks.Stats.Attempted, "hd1p0")
}

func TestWalkDescend(t *testing.T) {
	w, blocks, _ := newWalker(t, "hd2", "hd2p0", "hd2p0p0", "hd2p0p1", "hd2p1", "hd2p1p0")
	var seen []string

	_, err := w.Walk(sdcard, record(&seen, map[string]enumerate.Verdict{
		"hd2p1": enumerate.Accept,
	}))
	require.NoError(t, err)
	// hd2p1 was accepted, so hd2p1p0 is never looked at
	assert.Equal(t, []string{"hd2p0", "hd2p0p0", "hd2p0p1", "hd2p1"}, seen)
	assert.Equal(t, []string{
		"hd2",
		"hd2p0", "hd2p0p0", "hd2p0p1", "hd2p0p2",
		"hd2p1",
		"hd2p2",
	}, blocks.Stats.Attempted)
	assert.Equal(t, 7, w.Stats.Probes)
	assert.Equal(t, 4, w.Stats.Candidates)
}

func TestWalkNestedIsOneLevelDeep(t *testing.T) {
	w, blocks, _ := newWalker(t, "hd2", "hd2p0", "hd2p0p0", "hd2p0p0p0")
	var seen []string

	_, err := w.Walk(sdcard, record(&seen, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"hd2p0", "hd2p0p0"}, seen)
	for _, name := range blocks.Stats.Attempted {
		assert.LessOrEqual(t, strings.Count(name, "p"), 2, name)
	}
}

func TestWalkStop(t *testing.T) {
	for _, stopAt := range []string{"hd2p0", "hd2p0p1"} {
		t.Run(stopAt, func(t *testing.T) {
			w, _, _ := newWalker(t, "hd2", "hd2p0", "hd2p0p0", "hd2p0p1", "hd2p0p2", "hd2p1")
			var seen []string

			stopped, err := w.Walk(sdcard, record(&seen, map[string]enumerate.Verdict{
				stopAt: enumerate.Stop,
			}))
			require.NoError(t, err)
			assert.True(t, stopped)
			assert.Equal(t, stopAt, seen[len(seen)-1])
			assert.NotContains(t, seen, "hd2p1")
		})
	}
}

func TestWalkHandleClosedDuringAction(t *testing.T) {
	w, blocks, _ := newWalker(t, "hd2", "hd2p0", "hd2p0p0")
	_, err := w.Walk(sdcard, func(c enumerate.Candidate) enumerate.Verdict {
		assert.False(t, blocks.IsOpen(), c.Name)
		return enumerate.Descend
	})
	require.NoError(t, err)
	assert.Equal(t, blocks.Stats.Opens, blocks.Stats.Closes)
}

func TestWalkCandidateFields(t *testing.T) {
	w, _, _ := newWalker(t, "hd1", "hd1p1", "hd1p1p0")
	var got []enumerate.Candidate
	_, err := w.Walk(emmc, func(c enumerate.Candidate) enumerate.Verdict {
		got = append(got, c)
		return enumerate.Descend
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Part)
	assert.False(t, got[0].Nested())
	assert.Equal(t, 0, got[1].Sub)
	assert.True(t, got[1].Nested())
	assert.Equal(t, emmc, got[1].Bus)
}

func TestWalkOpenErrorEndsLevel(t *testing.T) {
	w, blocks, hook := newWalker(t, "hd2", "hd2p0", "hd2p1")
	blocks.FailOpen("hd2p0", errors.New("media error"))
	var seen []string

	stopped, err := w.Walk(sdcard, record(&seen, nil))
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Empty(t, seen)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "media error")
}

func TestWalkOnRoot(t *testing.T) {
	w, _, _ := newWalker(t, "hd2")
	var roots []string
	w.OnRoot = func(bus devname.Bus, root blockio.Info) {
		roots = append(roots, root.Name)
	}
	_, err := w.Walk(sdcard, record(new([]string), nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"hd2"}, roots)
}

func TestWalkInvalidBus(t *testing.T) {
	w, blocks, _ := newWalker(t)
	_, err := w.Walk(devname.Bus{ID: 1, StartIndex: -1}, record(new([]string), nil))
	assert.Error(t, err)
	assert.Equal(t, 0, blocks.Stats.OpenAttempts)
}

func TestWalkNameOverflow(t *testing.T) {
	w, _, _ := newWalker(t)
	w.Names = devname.NewScheme(strings.Repeat("x", pathbuf.Capacity))
	_, err := w.Walk(sdcard, record(new([]string), nil))
	assert.ErrorIs(t, err, pathbuf.ErrOverflow)
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "descend", enumerate.Descend.String())
	assert.Equal(t, "accept", enumerate.Accept.String())
	assert.Equal(t, "stop", enumerate.Stop.String())
	assert.Equal(t, "verdict(7)", enumerate.Verdict(7).String())
}
