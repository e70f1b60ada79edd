package report

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/strace-summary/internal/eventprocessor"
	"github.com/mrzor/strace-summary/internal/parser"
	"github.com/mrzor/strace-summary/internal/registry"
	"github.com/mrzor/strace-summary/internal/threads"
)

const sessionTrace = `
100 10:00:00.000000 execve("/bin/sh", ["sh", "-c", "make"], 0x7ffd /* 3 vars */) = 0 <0.000100>
100 10:00:00.000200 clone(child_stack=NULL, flags=CLONE_CHILD_SETTID|SIGCHLD) = 101 <0.000050>
101 10:00:00.000300 execve("/usr/bin/make", ["make"], 0x7ffd /* 3 vars */) = 0 <0.000200>
101 10:00:00.000600 openat(AT_FDCWD, "/src/a/x.c", O_RDONLY) = 3</src/a/x.c> <0.000010>
101 10:00:00.000700 openat(AT_FDCWD, "/src/a/y.c", O_RDONLY) = 4</src/a/y.c> <0.000030>
101 10:00:00.000800 openat(AT_FDCWD, "/src/b/z.c", O_RDONLY) = -1 ENOENT (No such file or directory) <0.000005>
101 10:00:00.000900 write(1</dev/pts/0>, "ok\n", 3) = 3 <0.000010>
101 10:00:00.001000 write(1</dev/pts/0>, "ok\n", 3) = 3 <0.000020>
101 10:00:00.001100 write(1</dev/pts/0>, "ok\n", 3) = 3 <0.000040>
101 10:00:00.001200 write(1</dev/pts/0>, "ok\n", 3) = 3 <0.000090>
101 10:00:00.001300 sendto(5<TCP:[10.0.0.1:40000->10.0.0.5:5432]>, "Q", 1, 0, NULL, 0) = 1 <0.000007>
100 10:00:00.000300 wait4(-1,  <unfinished ...>
101 10:00:00.002000 exit_group(0) = ?
101 10:00:00.002000 +++ exited with 0 +++
100 10:00:00.002100 <... wait4 resumed>[{WIFEXITED(s) && WEXITSTATUS(s) == 0}], 0, NULL) = 101 <0.001800>
100 10:00:00.002200 clone(child_stack=0x7f00, flags=CLONE_VM|CLONE_THREAD|CLONE_SIGHAND) = 102 <0.000020>
102 10:00:00.002300 nanosleep({tv_sec=0, tv_nsec=1000}, NULL) = 0 <0.000050>
200 10:00:00.002400 futex(0x5600a0, FUTEX_WAIT_PRIVATE, 0, NULL) = 0 <0.000300>
201 10:00:00.002500 futex(0x5600a0, FUTEX_WAKE_PRIVATE, 1) = 1 <0.000004>
100 10:00:00.003000 exit_group(3) = ?
100 10:00:00.003000 +++ exited with 3 +++
`

// session ingests sessionTrace the way the CLI does.
func session(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	p := eventprocessor.NewProcessor(reg, nil, zerolog.Nop())
	for _, line := range strings.Split(strings.TrimSpace(sessionTrace), "\n") {
		ev, err := parser.ParseLine(line)
		require.NoError(t, err, line)
		require.NoError(t, p.HandleEvent(ev))
	}
	p.Finish()
	threads.Relate(reg, zerolog.Nop())
	reg.Freeze()
	return reg
}

func all(reg *registry.Registry) Selection {
	return Select(reg, SelectOptions{})
}

func TestSplit_ActivePlusWaitIsTotal(t *testing.T) {
	reg := session(t)
	for _, p := range reg.Processes() {
		s := Summarize(p)
		var sum time.Duration
		for _, st := range p.Syscalls {
			sum += st.Total
		}
		assert.Equal(t, s.TotalTime, s.ActiveTime+s.WaitTime, "pid %d", p.PID)
		assert.Equal(t, sum, s.TotalTime, "pid %d", p.PID)
	}

	sh := Summarize(reg.Get(100))
	assert.Equal(t, 1800*time.Microsecond, sh.WaitTime)
	assert.Equal(t, 170*time.Microsecond, sh.ActiveTime)
}

func TestSummary_SortAndTruncate(t *testing.T) {
	reg := session(t)

	rep, err := Summary(reg, all(reg), SortSyscalls, 2)
	require.NoError(t, err)
	require.Len(t, rep.Rows, 2)
	assert.Equal(t, 101, rep.Rows[0].PID)
	assert.Equal(t, 5, rep.Processes)
	assert.Equal(t, 3*time.Millisecond, rep.Elapsed)

	rep, err = Summary(reg, all(reg), SortPID, 0)
	require.NoError(t, err)
	var pids []int
	for _, r := range rep.Rows {
		pids = append(pids, r.PID)
	}
	assert.Equal(t, []int{100, 101, 102, 200, 201}, pids)

	rep, err = Summary(reg, all(reg), SortStartTime, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, rep.Rows[0].PID)

	_, err = Summary(reg, all(reg), SortCount, 1)
	assert.Error(t, err)
}

func TestSummary_UserTimeNeverNegative(t *testing.T) {
	reg := session(t)
	rep, err := Summary(reg, all(reg), SortUserTime, 0)
	require.NoError(t, err)
	for _, r := range rep.Rows {
		assert.GreaterOrEqual(t, r.UserTime, time.Duration(0), "pid %d", r.PID)
	}
}

func TestSummary_NoData(t *testing.T) {
	reg := registry.New()
	_, err := Summary(reg, all(reg), SortActiveTime, 25)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSelect_MissingPIDs(t *testing.T) {
	reg := session(t)
	sel := Select(reg, SelectOptions{PIDs: []int{101, 999, 101}})

	assert.Equal(t, []int{101}, sel.PIDs)
	assert.Equal(t, []int{999}, sel.Missing)
	assert.Equal(t, []string{"No data found for PID 999"}, sel.Warnings())
}

func TestSelect_Filter(t *testing.T) {
	reg := session(t)
	sel := Select(reg, SelectOptions{
		Filter: func(p *registry.Process) bool { return p.Program == "/usr/bin/make" },
	})
	assert.Equal(t, []int{101}, sel.PIDs)
}

func TestExpand_IdempotentAndMonotonic(t *testing.T) {
	reg := session(t)

	cases := []struct {
		name             string
		pids             []int
		related, threads bool
		want             []int
	}{
		{"none", []int{101}, false, false, []int{101}},
		{"related", []int{101}, true, false, []int{100, 101, 102}},
		{"threads", []int{100}, false, true, []int{100, 102}},
		{"futex group", []int{200}, false, true, []int{200, 201}},
		{"both", []int{201}, true, true, []int{200, 201}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			once := Expand(reg, tc.pids, tc.related, tc.threads)
			twice := Expand(reg, once, tc.related, tc.threads)

			assert.Equal(t, tc.want, once)
			assert.Equal(t, once, twice)
			assert.Subset(t, once, tc.pids)
		})
	}
}

func TestDirectories_Rollup(t *testing.T) {
	reg := session(t)
	rep, err := Directories(reg, all(reg), SortDuration, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Root.Count)
	assert.Equal(t, 45*time.Microsecond, rep.Root.Total)

	byPath := map[string]DirRow{}
	for _, r := range rep.Rows {
		byPath[r.Path] = r
	}
	require.Contains(t, byPath, "/")
	require.Contains(t, byPath, "/src")
	require.Contains(t, byPath, "/src/a")
	require.Contains(t, byPath, "/src/b")
	assert.NotContains(t, byPath, "/src/a/x.c", "files are not directory rows")

	assert.Equal(t, 40*time.Microsecond, byPath["/src/a"].Total)
	assert.Equal(t, 2, byPath["/src/a"].Count)
	assert.Equal(t, 101, byPath["/src"].PID)
	assert.GreaterOrEqual(t, byPath["/src"].Total, byPath["/src/a"].Total+byPath["/src/b"].Total)
	assert.Equal(t, "/", rep.Rows[0].Path)
}

func TestDirectories_RootTotalsEveryOpen(t *testing.T) {
	reg := registry.New()
	reg.AddFileOpen(9, registry.FileOpen{Time: 10, Duration: 100 * time.Microsecond, Syscall: "openat", Path: "/etc/passwd"})
	reg.AddFileOpen(9, registry.FileOpen{Time: 20, Duration: 300 * time.Microsecond, Syscall: "openat", Errno: "ENOENT"})
	reg.Freeze()

	rep, err := Directories(reg, all(reg), SortDuration, 0)
	require.NoError(t, err)

	var sum time.Duration
	for _, f := range reg.Get(9).FileOpens {
		sum += f.Duration
	}
	assert.Equal(t, 2, rep.Root.Count)
	assert.Equal(t, sum, rep.Root.Total)
}

func TestDirTree_RelativePathsRooted(t *testing.T) {
	tree := NewDirTree()
	tree.Add("build/out.o", 1, 10, time.Microsecond)
	tree.Add("/build/../etc/hosts", 2, 5, 2*time.Microsecond)

	s, ok := tree.Lookup("/build")
	require.True(t, ok)
	assert.Equal(t, 1, s.Count)

	s, ok = tree.Lookup("/etc")
	require.True(t, ok)
	assert.Equal(t, 2, s.PID)

	root := tree.Root()
	assert.Equal(t, 2, root.Count)
	assert.Equal(t, parser.Timestamp(5), root.First)
	assert.Equal(t, parser.Timestamp(10), root.Last)
	assert.Equal(t, 2, root.PID)
}

func TestQuantize_WriteDistribution(t *testing.T) {
	reg := session(t)
	h, err := Quantize(reg, all(reg), "write")
	require.NoError(t, err)

	assert.Equal(t, 4, h.Total)
	require.Len(t, h.Buckets, 7)
	want := map[int64]int{8: 1, 16: 1, 32: 1, 64: 1}
	sum := 0
	for i, b := range h.Buckets {
		if i > 0 {
			assert.Equal(t, h.Buckets[i-1].High+1, b.Low)
		}
		assert.Equal(t, want[b.Low], b.Count, "bucket [%d,%d]", b.Low, b.High)
		sum += b.Count
	}
	assert.Equal(t, h.Total, sum)
	assert.Equal(t, int64(64), h.Buckets[6].Low)
	assert.Equal(t, int64(127), h.Buckets[6].High)
	assert.InDelta(t, 1.0, h.Buckets[6].Ratio, 1e-9)
	assert.Zero(t, h.Buckets[0].Ratio)
}

func TestQuantize_NoData(t *testing.T) {
	reg := session(t)
	_, err := Quantize(reg, all(reg), "mmap")
	assert.ErrorIs(t, err, ErrNoData)
}

type fakeResolver map[string][]string

func (f fakeResolver) LookupDescriptor(desc string) []string {
	return f[desc]
}

func TestIO_SortedAndEnriched(t *testing.T) {
	reg := session(t)
	resolver := fakeResolver{"TCP:[10.0.0.1:40000->10.0.0.5:5432]": {"db.example.com"}}

	rows, err := IO(reg, all(reg), SortDuration, 2, resolver)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 90*time.Microsecond, rows[0].Duration)
	assert.Equal(t, 40*time.Microsecond, rows[1].Duration)

	rows, err = IO(reg, all(reg), SortTime, 0, resolver)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	last := rows[4]
	assert.Equal(t, "sendto", last.Syscall)
	assert.Equal(t, []string{"db.example.com"}, last.Peers)
	assert.Nil(t, rows[0].Peers)
}

func TestFiles_Sort(t *testing.T) {
	reg := session(t)

	rows, err := Files(reg, all(reg), SortDuration, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "/src/a/y.c", rows[0].Path)

	rows, err = Files(reg, all(reg), SortTime, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "/src/a/x.c", rows[0].Path)

	_, err = Files(reg, Select(reg, SelectOptions{PIDs: []int{100}}), SortTime, 0)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestExecs(t *testing.T) {
	reg := session(t)
	rows, err := Execs(reg, all(reg))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "/bin/sh", rows[0].Program)
	assert.Equal(t, "make", rows[1].Cmdline())
	require.NotNil(t, rows[1].Exit)
	assert.True(t, rows[1].Exit.Success())
}

func TestDetails(t *testing.T) {
	reg := session(t)
	details, err := Details(reg, Select(reg, SelectOptions{PIDs: []int{101}}))
	require.NoError(t, err)
	require.Len(t, details, 1)

	d := details[0]
	assert.Equal(t, 100, d.ParentPID)
	require.Len(t, d.SlowestOpens, 3)
	assert.Equal(t, 30*time.Microsecond, d.SlowestOpens[0].Duration)
	require.Len(t, d.Stats, 5)
	assert.Equal(t, "execve", d.Stats[0].Name)
	assert.Equal(t, "write", d.Stats[1].Name)
	assert.Equal(t, 4, d.Stats[1].Count)
	assert.Equal(t, 160*time.Microsecond, d.Stats[1].Total)
	assert.Equal(t, 1, d.Stats[2].Errors, "openat ENOENT")
}

func TestListPids(t *testing.T) {
	reg := session(t)
	details, err := ListPids(reg, all(reg), SortActiveTime, 1)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, 101, details[0].PID)
}

func TestParseSortKey(t *testing.T) {
	key, err := ParseSortKey("", SummarySortKeys)
	require.NoError(t, err)
	assert.Equal(t, SortActiveTime, key)

	key, err = ParseSortKey("PID", EventSortKeys)
	require.NoError(t, err)
	assert.Equal(t, SortPID, key)

	_, err = ParseSortKey("count", EventSortKeys)
	assert.ErrorContains(t, err, "duration, pid, time")
}
