package app

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// fakeAUR serves AUR RPC info responses from an editable package table.
type fakeAUR struct {
	mu       sync.Mutex
	packages map[string]fakePackage
	failing  map[string]int
	requests int
}

type fakePackage struct {
	version      string
	lastModified int64
}

func (f *fakeAUR) set(name, version string, lastModified int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packages[name] = fakePackage{version, lastModified}
}

func (f *fakeAUR) delete(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.packages, name)
}

// fail makes every request for name answer with status.
func (f *fakeAUR) fail(name string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[name] = status
}

func (f *fakeAUR) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	name := r.URL.Query().Get("arg[]")
	if status, ok := f.failing[name]; ok {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	pkg, ok := f.packages[name]
	if !ok {
		fmt.Fprint(w, `{"resultcount":0,"results":[],"type":"multiinfo","version":5}`)
		return
	}
	fmt.Fprintf(w, `{"resultcount":1,"results":[{"Name":%q,"Version":%q,"LastModified":%d,"Maintainer":"someone"}],"type":"multiinfo","version":5}`,
		name, pkg.version, pkg.lastModified)
}

// testEnv isolates one command-line invocation sequence: its own HOME, XDG
// config directory, working directory and fake AUR.
type testEnv struct {
	aur        *fakeAUR
	home       string
	ledgerPath string
	dbPath     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Chdir(t.TempDir())

	aur := &fakeAUR{packages: map[string]fakePackage{}, failing: map[string]int{}}
	srv := httptest.NewServer(aur)
	t.Cleanup(srv.Close)

	t.Setenv("AURTRUST_RPC_URL", srv.URL+"/rpc/")
	t.Setenv("AURTRUST_RETRIES", "0")
	t.Setenv("AURTRUST_BACKOFF", "1ms")
	t.Setenv("AURTRUST_LOG_LEVEL", "disabled")

	return &testEnv{
		aur:        aur,
		home:       home,
		ledgerPath: filepath.Join(home, ".config", "aurtrust", "ledger.yaml"),
		dbPath:     filepath.Join(home, ".aurtrust", "audit.db"),
	}
}

// run executes aurtrust with args and returns everything written to stdout
// and stderr.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(RootCmd)

	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	RootCmd.SetErr(&buf)
	RootCmd.SetArgs(args)
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
	})

	err := RootCmd.Execute()
	return buf.String(), err
}

// mustRun is run for commands that must exit 0.
func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, out)
	return out
}

// resetFlags restores every flag of cmd and its subcommands to its default,
// since cobra keeps flag state between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
