package exec

import (
	"context"
	"testing"
	"time"

	"github.com/danmuck/hostkernel/internal/config"
	"github.com/danmuck/hostkernel/internal/host"
	"github.com/danmuck/hostkernel/internal/plugins"
	"github.com/danmuck/hostkernel/internal/state"
	"github.com/danmuck/hostkernel/internal/testutil/testlog"
	"github.com/danmuck/hostkernel/internal/tools"
)

func TestCommandsRestartAfterExit(t *testing.T) {
	logger, logs := testlog.Capture(t)
	app := host.New(
		host.WithLogger(logger),
		host.WithRestartDelay(5*time.Millisecond),
		host.WithConfig(config.Values{
			"exec": map[string]any{
				"commands": []any{
					map[string]any{"name": "echo", "path": "sh", "args": []any{"-c", "echo hello; exit 2"}},
				},
			},
		}),
	)
	defer app.Close()

	if err := plugins.NewManager(app).Install(context.Background(), Plugin{}); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if _, ok := app.Service("exec.echo"); !ok {
		t.Fatalf("exec.echo not registered")
	}

	done := make(chan error, 1)
	go func() { done <- app.Run() }()

	got, err := state.TimedWaitFor(context.Background(), app.Store(), Kind, func(v *state.Value[Table]) bool {
		st := v.V.Commands["echo"]
		return st.Runs >= 2 && !st.Running
	}, 3*time.Second)
	if err != nil {
		t.Fatalf("command not restarted: %v", err)
	}
	if got.V.Commands["echo"].LastExit != 2 {
		t.Fatalf("unexpected status %+v", got.V.Commands["echo"])
	}
	app.Shutdown()
	<-done

	if logs.Count(`"stream":"stdout"`) == 0 || logs.Count("hello") == 0 {
		t.Fatalf("command output not logged:\n%s", logs.String())
	}
	if logs.Count("service exited with error") == 0 {
		t.Fatalf("expected supervisor to see the failing exit")
	}
}

func TestDuplicateCommandNamesRejected(t *testing.T) {
	app := host.New(host.WithLogger(testlog.Start(t)), host.WithConfig(config.Values{
		"exec": map[string]any{
			"commands": []any{
				map[string]any{"name": "a", "path": "true"},
				map[string]any{"name": "a", "path": "false"},
			},
		},
	}))
	defer app.Close()
	if err := plugins.NewManager(app).Install(context.Background(), Plugin{}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
}

func TestRunnerFor(t *testing.T) {
	testlog.Start(t)
	if _, ok := RunnerFor(Command{Path: "true"}).(tools.LocalRunner); !ok {
		t.Fatalf("expected local runner")
	}
	r, ok := RunnerFor(Command{Path: "uptime", Remote: &Remote{Host: "node-a", User: "ops", KeyPath: "/k"}}).(tools.SSHRunner)
	if !ok || r.Host != "node-a" || r.User != "ops" {
		t.Fatalf("expected ssh runner, got %#v", r)
	}
}

func TestConfigValidatesCommands(t *testing.T) {
	testlog.Start(t)
	_, err := Plugin{}.ConfigSchema().Parse(map[string]any{
		"commands": []any{map[string]any{"name": "x"}},
	})
	if err == nil {
		t.Fatalf("expected missing path error")
	}
}
