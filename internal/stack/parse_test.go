// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dump = `goroutine 7 [running]:
main.spin(0x3)
	/home/dev/app/main.go:21 +0x1d
main.main()
	/home/dev/app/main.go:9 +0x25

goroutine 18 [chan receive, 2 minutes]:
github.com/acme/worker.(*Pool).wait(0xc000012345, {0x1, 0x2})
	/root/go/pkg/mod/github.com/acme/worker@v1.2.0/pool.go:88 +0x44
github.com/acme/worker.Run[...](...)
	/root/go/pkg/mod/github.com/acme/worker@v1.2.0/run.go:12
main.serve.func1()
	/home/dev/app/serve.go:40 +0x5b
created by main.serve in goroutine 1
	/home/dev/app/serve.go:38 +0x8e

goroutine 21 [select]:
main.deep(0x64)
	/home/dev/app/deep.go:5 +0x10
...120 frames elided...
main.deep(0x1)
	/home/dev/app/deep.go:5 +0x10
main.main()
	/home/dev/app/main.go:12 +0x25
`

func parseDump(id uint64, t *Trace) {
	p := parser{}
	p.parse([]byte(dump), id, t)
}

func TestParse(t *testing.T) {
	t.Run("running goroutine", func(t *testing.T) {
		var tr Trace
		parseDump(7, &tr)

		require.True(t, tr.Found)
		assert.Equal(t, "running", tr.State)
		assert.False(t, tr.Waiting())
		assert.Equal(t, []Frame{
			{Function: "main.main", File: "/home/dev/app/main.go", Line: 9},
			{Function: "main.spin", File: "/home/dev/app/main.go", Line: 21},
		}, tr.Frames)
	})

	t.Run("parked goroutine", func(t *testing.T) {
		var tr Trace
		parseDump(18, &tr)

		require.True(t, tr.Found)
		assert.Equal(t, "chan receive", tr.State)
		assert.True(t, tr.Waiting())
		assert.Equal(t, []Frame{
			{Function: "main.serve.func1", File: "/home/dev/app/serve.go", Line: 40},
			{Function: "github.com/acme/worker.Run[...]", File: "/root/go/pkg/mod/github.com/acme/worker@v1.2.0/run.go", Line: 12},
			{Function: "github.com/acme/worker.(*Pool).wait", File: "/root/go/pkg/mod/github.com/acme/worker@v1.2.0/pool.go", Line: 88},
		}, tr.Frames)
	})

	t.Run("elided frames", func(t *testing.T) {
		var tr Trace
		parseDump(21, &tr)

		require.True(t, tr.Found)
		require.Len(t, tr.Frames, 4)
		assert.Equal(t, "main.main", tr.Frames[0].Function)
		assert.True(t, tr.Frames[2].Elided())
		assert.Empty(t, tr.Frames[2].File)
		assert.Equal(t, "main.deep", tr.Frames[3].Function)
	})

	t.Run("missing goroutine", func(t *testing.T) {
		tr := Trace{Frames: []Frame{{Function: "stale"}}, Found: true}
		parseDump(99, &tr)

		assert.False(t, tr.Found)
		assert.False(t, tr.Waiting())
		assert.Empty(t, tr.Frames)
	})
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		line  string
		id    uint64
		state string
		ok    bool
	}{
		{"goroutine 1 [running]:", 1, "running", true},
		{"goroutine 42 [chan receive, 3 minutes]:", 42, "chan receive", true},
		{"goroutine 5 gp=0xc000007c00 m=nil [syscall, locked to thread]:", 5, "syscall", true},
		{"goroutine x [running]:", 0, "", false},
		{"main.main()", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			id, state, ok := parseHeader([]byte(tt.line))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.state, state)
		})
	}
}

func TestFuncName(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"main.main()", "main.main"},
		{"main.spin(0x3)", "main.spin"},
		{"net/http.(*conn).serve(0xc0001, {0x7f, 0xc0002})", "net/http.(*conn).serve"},
		{"example.com/x.Map[...]({0x1, 0x2}, 0x3)", "example.com/x.Map[...]"},
		{"main.f(...)", "main.f"},
		{"runtime.goexit", "runtime.goexit"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, string(funcName([]byte(tt.line))))
		})
	}
}

func TestParseFileLine(t *testing.T) {
	tests := []struct {
		line string
		file string
		no   int
	}{
		{"/home/dev/app/main.go:21 +0x1d", "/home/dev/app/main.go", 21},
		{"/usr/lib/go/src/runtime/proc.go:402", "/usr/lib/go/src/runtime/proc.go", 402},
		{"C:/work/app/main.go:7 +0x2", "C:/work/app/main.go", 7},
		{"<autogenerated>", "<autogenerated>", 0},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			file, no := parseFileLine([]byte(tt.line))
			assert.Equal(t, tt.file, string(file))
			assert.Equal(t, tt.no, no)
		})
	}
}
