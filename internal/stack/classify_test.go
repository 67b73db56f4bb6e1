// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackagePath(t *testing.T) {
	tests := map[string]string{
		"main.main":                           "main",
		"main.serve.func1":                    "main",
		"runtime.gopark":                      "runtime",
		"net/http.(*conn).serve":              "net/http",
		"github.com/acme/worker.(*Pool).wait": "github.com/acme/worker",
		"example.com/x.Map[...]":              "example.com/x",
		"[await]":                             "[await]",
	}
	for fn, want := range tests {
		t.Run(fn, func(t *testing.T) {
			assert.Equal(t, want, PackagePath(fn))
		})
	}
}

func TestIsStdlib(t *testing.T) {
	assert.True(t, IsStdlib("runtime"))
	assert.True(t, IsStdlib("net/http"))
	assert.False(t, IsStdlib("main"))
	assert.False(t, IsStdlib("command-line-arguments"))
	assert.False(t, IsStdlib("github.com/acme/worker"))
}

func TestClassifier_IsApplicationCode(t *testing.T) {
	c := &Classifier{appPackages: []string{"corp/internal"}}

	tests := []struct {
		name  string
		frame Frame
		want  bool
	}{
		{"main package", Frame{Function: "main.main", File: "/home/dev/app/main.go"}, true},
		{"stdlib", Frame{Function: "net/http.(*conn).serve", File: "/usr/lib/go/src/net/http/server.go"}, false},
		{"module cache", Frame{Function: "github.com/acme/worker.Run", File: "/root/go/pkg/mod/github.com/acme/worker@v1.2.0/run.go"}, false},
		{"vendored", Frame{Function: "github.com/acme/worker.Run", File: "/home/dev/app/vendor/github.com/acme/worker/run.go"}, false},
		{"workspace module", Frame{Function: "github.com/dev/app/store.Get", File: "/home/dev/app/store/get.go"}, true},
		{"trimpath module", Frame{Function: "github.com/acme/worker.Run", File: "github.com/acme/worker@v1.2.0/run.go"}, false},
		{"trimpath pseudo version", Frame{Function: "golang.org/x/sync/singleflight.(*Group).Do", File: "golang.org/x/sync@v0.14.0/singleflight/singleflight.go"}, false},
		{"trimpath main module", Frame{Function: "github.com/dev/app/store.Get", File: "github.com/dev/app/store/get.go"}, true},
		{"at sign in a directory", Frame{Function: "github.com/dev/app/store.Get", File: "/home/dev/@vault/app/store/get.go"}, true},
		{"configured package", Frame{Function: "corp/internal/db.Query", File: "/root/go/pkg/mod/corp/internal/db.go"}, true},
		{"synthetic", Frame{Function: "[await]"}, false},
		{"elided", Frame{Function: ElidedFunction}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsApplicationCode(tt.frame))
		})
	}
}

func TestClassifier_ShortPath(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	c := NewClassifier()

	tests := []struct {
		file string
		want string
	}{
		{"/root/go/pkg/mod/github.com/acme/worker@v1.2.0/run.go", "github.com/acme/worker@v1.2.0/run.go"},
		{"/usr/lib/go/src/net/http/server.go", "net/http/server.go"},
		{filepath.Join(wd, "stack.go"), "stack.go"},
		{"/opt/elsewhere/src/github.com/x/y.go", "/opt/elsewhere/src/github.com/x/y.go"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ShortPath(tt.file))
		})
	}
}
