package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_CompletedCall(t *testing.T) {
	ev, err := ParseLine(`477   00:09:56.954410 openat(AT_FDCWD, "/etc/ld.so.cache", O_RDONLY|O_CLOEXEC) = 3 <0.000020>`)
	require.NoError(t, err)

	assert.Equal(t, KindCall, ev.Kind)
	assert.Equal(t, 477, ev.PID)
	assert.Equal(t, "00:09:56.954410", ev.Time.String())
	assert.Equal(t, "openat", ev.Name)
	assert.Equal(t, []string{"AT_FDCWD", `"/etc/ld.so.cache"`, "O_RDONLY|O_CLOEXEC"}, ev.Args)
	assert.True(t, ev.HasDuration)
	assert.Equal(t, 20*time.Microsecond, ev.Duration)
	assert.Equal(t, "3", ev.Return.Raw)
	assert.True(t, ev.Return.Numeric)
	assert.Equal(t, int64(3), ev.Return.Value)
	assert.False(t, ev.Return.Failed())
}

func TestParseLine_ErrorAnnotation(t *testing.T) {
	ev, err := ParseLine(`100 10:00:00.000100 open("/nope", O_RDONLY) = -1 ENOENT (No such file or directory) <0.000011>`)
	require.NoError(t, err)

	assert.True(t, ev.Return.Failed())
	assert.Equal(t, "ENOENT", ev.Return.Errno)
	assert.Equal(t, "No such file or directory", ev.Return.ErrnoDesc)
	assert.Equal(t, int64(-1), ev.Return.Value)
	assert.Equal(t, 11*time.Microsecond, ev.Duration)
}

func TestParseLine_ErrorSetOnlyWithAnnotation(t *testing.T) {
	tests := []struct {
		line   string
		failed bool
	}{
		{`1 10:00:00.000000 close(3) = 0 <0.000004>`, false},
		{`1 10:00:00.000000 poll([{fd=3, events=POLLIN}], 1, 0) = 0 (Timeout) <0.000004>`, false},
		{`1 10:00:00.000000 read(3, 0x7ffd, 16) = -1 EAGAIN (Resource temporarily unavailable) <0.000004>`, true},
		{`1 10:00:00.000000 wait4(-1, 0x7ffd, 0, NULL) = ? ERESTARTSYS (To be restarted if SA_RESTART is set) <0.5>`, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			ev, err := ParseLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.failed, ev.Return.Failed())
			assert.GreaterOrEqual(t, ev.Duration, time.Duration(0))
		})
	}
}

func TestParseLine_Note(t *testing.T) {
	ev, err := ParseLine(`1 10:00:00.000000 poll([{fd=3, events=POLLIN}], 1, 0) = 0 (Timeout) <0.000004>`)
	require.NoError(t, err)
	assert.Equal(t, "Timeout", ev.Return.Note)
	assert.Equal(t, []string{"[{fd=3, events=POLLIN}]", "1", "0"}, ev.Args)
}

func TestParseLine_Unfinished(t *testing.T) {
	ev, err := ParseLine(`100 10:00:00.000000 open("/a", O_RDONLY <unfinished ...>`)
	require.NoError(t, err)

	assert.Equal(t, KindUnfinished, ev.Kind)
	assert.Equal(t, "open", ev.Name)
	assert.Equal(t, []string{`"/a"`, "O_RDONLY"}, ev.Args)
	assert.False(t, ev.HasDuration)
}

func TestParseLine_Resumed(t *testing.T) {
	ev, err := ParseLine(`100 10:00:00.000500 <... open resumed> ) = 3 <0.000500>`)
	require.NoError(t, err)

	assert.Equal(t, KindResumed, ev.Kind)
	assert.Equal(t, "open", ev.Name)
	assert.Empty(t, ev.Args)
	assert.Equal(t, 500*time.Microsecond, ev.Duration)
	assert.Equal(t, int64(3), ev.Return.Value)
}

func TestParseLine_UnfinishedClosedArgs(t *testing.T) {
	tests := []struct {
		line string
		name string
		args []string
	}{
		{`100 10:00:00.000000 open("/a", ...) <unfinished ...>`, "open", []string{`"/a"`, "..."}},
		{`3 10:53:02.442246 execve("/bin/sleep", ["sleep", "1"], [/* 12 vars */]) <unfinished ...>`,
			"execve", []string{`"/bin/sleep"`, `["sleep", "1"]`, "[/* 12 vars */]"}},
		{`8 10:00:00.000000 wait4(-1, <unfinished ...>`, "wait4", []string{"-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, KindUnfinished, ev.Kind)
			assert.Equal(t, tt.name, ev.Name)
			assert.Equal(t, tt.args, ev.Args)
		})
	}

	assert.NoError(t, CheckFlags(tests[0].line))
}

func TestParseLine_ResumedWithoutParen(t *testing.T) {
	ev, err := ParseLine(`100 10:00:00.000500 <... open resumed> = 3 <0.000500>`)
	require.NoError(t, err)

	assert.Equal(t, KindResumed, ev.Kind)
	assert.Equal(t, "open", ev.Name)
	assert.Empty(t, ev.Args)
	assert.Equal(t, 500*time.Microsecond, ev.Duration)
	assert.Equal(t, int64(3), ev.Return.Value)

	ev, err = ParseLine(`3 10:53:02.443000 <... execve resumed>) = 0 <0.000757>`)
	require.NoError(t, err)
	assert.Empty(t, ev.Args)
	assert.Equal(t, int64(0), ev.Return.Value)
}

func TestParseLine_ResumedWithArgs(t *testing.T) {
	ev, err := ParseLine(`7 10:00:01.000000 <... read resumed>"hello, world\n", 4096) = 13 <1.250000>`)
	require.NoError(t, err)

	assert.Equal(t, []string{`"hello, world\n"`, "4096"}, ev.Args)
	assert.Equal(t, 1250*time.Millisecond, ev.Duration)
}

func TestParseLine_ReturnPathAnnotation(t *testing.T) {
	ev, err := ParseLine(`5 10:00:00.000000 openat(AT_FDCWD</home/me>, "notes.txt", O_RDONLY) = 3</home/me/notes.txt> <0.000012>`)
	require.NoError(t, err)

	assert.Equal(t, "3", ev.Return.Raw)
	assert.Equal(t, "/home/me/notes.txt", ev.Return.Path)
	assert.Equal(t, "AT_FDCWD</home/me>", ev.Args[0])
	assert.True(t, ev.HasDuration)
}

func TestParseLine_SocketAnnotationInArgs(t *testing.T) {
	ev, err := ParseLine(`9 10:00:00.000000 sendto(4<TCP:[10.0.0.1:40000->10.0.0.5:5432]>, "Q\0\0\0", 4, MSG_NOSIGNAL, NULL, 0) = 4 <0.000030>`)
	require.NoError(t, err)

	require.Len(t, ev.Args, 6)
	assert.Equal(t, "4<TCP:[10.0.0.1:40000->10.0.0.5:5432]>", ev.Args[0])
}

func TestParseLine_NestedStructures(t *testing.T) {
	ev, err := ParseLine(`1 10:00:00.000000 execve("/bin/sh", ["sh", "-c", "echo a, b"], 0x7ffc /* 12 vars */) = 0 <0.000300>`)
	require.NoError(t, err)

	require.Len(t, ev.Args, 3)
	assert.Equal(t, []string{"sh", "-c", "echo a, b"}, StringArray(ev.Args[1]))
	assert.Equal(t, "/bin/sh", Unquote(ev.Args[0]))
}

func TestParseLine_EscapedQuotes(t *testing.T) {
	ev, err := ParseLine(`1 10:00:00.000000 write(1, "say \"hi\", (ok)\n", 15) = 15 <0.000009>`)
	require.NoError(t, err)
	require.Len(t, ev.Args, 3)
	assert.Equal(t, "say \"hi\", (ok)\n", Unquote(ev.Args[1]))
}

func TestParseLine_Signal(t *testing.T) {
	ev, err := ParseLine(`200 10:00:02.000000 --- SIGCHLD {si_signo=SIGCHLD, si_code=CLD_EXITED, si_pid=201} ---`)
	require.NoError(t, err)
	assert.Equal(t, KindSignal, ev.Kind)
	assert.Equal(t, "SIGCHLD", ev.Name)
}

func TestParseLine_Exit(t *testing.T) {
	ev, err := ParseLine(`201 10:00:02.000000 +++ exited with 3 +++`)
	require.NoError(t, err)
	assert.Equal(t, KindExit, ev.Kind)
	assert.Equal(t, 3, ev.ExitCode)
	assert.False(t, ev.Killed())

	ev, err = ParseLine(`202 10:00:02.000000 +++ killed by SIGSEGV (core dumped) +++`)
	require.NoError(t, err)
	assert.True(t, ev.Killed())
	assert.Equal(t, "SIGSEGV", ev.Signal)
	assert.True(t, ev.CoreDumped)
}

func TestParseLine_ExitGroupWithoutDuration(t *testing.T) {
	ev, err := ParseLine(`201 10:00:02.000000 exit_group(0)                     = ?`)
	require.NoError(t, err)
	assert.Equal(t, "?", ev.Return.Raw)
	assert.False(t, ev.Return.Numeric)
	assert.False(t, ev.HasDuration)
}

func TestParseLine_UnixTimestamp(t *testing.T) {
	ev, err := ParseLine(`42 1542815326.700248 getpid() = 42 <0.000003>`)
	require.NoError(t, err)
	assert.True(t, ev.Time.IsUnix())
	assert.Equal(t, "1542815326.700248", ev.Time.String())
	assert.Empty(t, ev.Args)
}

func TestParseLine_PidPrefix(t *testing.T) {
	ev, err := ParseLine(`[pid  4242] 10:00:00.000001 getppid() = 1 <0.000002>`)
	require.NoError(t, err)
	assert.Equal(t, 4242, ev.PID)
}

func TestParseLine_Failures(t *testing.T) {
	lines := []string{
		"",
		"strace: Process 123 attached",
		"123 not-a-time getpid() = 1 <0.1>",
		`123 10:00:00.000000 write(1, "unterminated, 5) = 5 <0.1>`,
		`123 10:00:00.000000 ioctl(1, TCGETS, {B38400 = 0 <0.1>`,
		`123 10:00:00.000000 read(3, [1, 2) = 0 <0.1>`,
		`123 10:00:00.000000 open("/a", O_RDONLY [x <unfinished ...>`,
		`123 10:00:00.000000 +++ superseded by execve in pid 124 +++`,
		`123 10:00:00.000000 getpid()`,
	}
	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			_, err := ParseLine(line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParseFailure))
		})
	}
}

func TestCheckFlags(t *testing.T) {
	assert.NoError(t, CheckFlags(`1 10:00:00.000000 execve("/bin/true", ["true"], 0x7ffc /* 3 vars */) = 0 <0.000100>`))
	assert.NoError(t, CheckFlags(`1 1542815326.700248 execve("/bin/true", ["true"], 0x7ffc /* 3 vars */) = 0 <0.000100>`))

	err := CheckFlags(`10:00:00.000000 execve("/bin/true", ["true"], 0x7ffc /* 3 vars */) = 0 <0.000100>`)
	assert.ErrorIs(t, err, ErrMissingFlags)

	err = CheckFlags(`1 10:00:00.000000 execve("/bin/true", ["true"], 0x7ffc /* 3 vars */) = 0`)
	assert.ErrorIs(t, err, ErrMissingFlags)
}
