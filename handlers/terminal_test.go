package handlers

import (
	"path/filepath"
	"testing"

	"github.com/zhubert/acp-core/exec"
	"github.com/zhubert/acp-core/protocol"
)

func createTerminal(t *testing.T, term *Terminals, params map[string]any) string {
	t.Helper()
	result, errObj := term.HandleCreate(params)
	if errObj != nil {
		t.Fatalf("create failed: %v", errObj)
	}
	id := result.(map[string]any)["terminalId"].(string)
	if id == "" {
		t.Fatal("empty terminalId")
	}
	return id
}

func TestTerminalCreateAndOutput(t *testing.T) {
	mock := exec.NewMockExecutor()
	mock.Enqueue(exec.MockResponse{Output: []byte("build ok\n"), ExitCode: 0})
	term := NewTerminals(mock, t.TempDir())

	id := createTerminal(t, term, map[string]any{
		"command": "make",
		"args":    []any{"build"},
	})

	result, errObj := term.HandleOutput(map[string]any{"terminalId": id})
	if errObj != nil {
		t.Fatalf("output failed: %v", errObj)
	}
	out := result.(map[string]any)
	if out["output"] != "build ok\n" {
		t.Errorf("output = %q", out["output"])
	}
	status := out["exitStatus"].(map[string]any)
	if status["exitCode"] != 0 {
		t.Errorf("exitCode = %v", status["exitCode"])
	}

	calls := mock.Calls()
	if len(calls) != 1 || calls[0].Name != "make" || calls[0].Args[0] != "build" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestTerminalWaitForExit(t *testing.T) {
	mock := exec.NewMockExecutor()
	mock.Enqueue(exec.MockResponse{ExitCode: 3})
	term := NewTerminals(mock, t.TempDir())

	id := createTerminal(t, term, map[string]any{"command": "false"})

	result, errObj := term.HandleWaitForExit(map[string]any{"terminalId": id})
	if errObj != nil {
		t.Fatalf("wait failed: %v", errObj)
	}
	status := result.(map[string]any)["exitStatus"].(map[string]any)
	if status["exitCode"] != 3 {
		t.Errorf("exitCode = %v, want 3", status["exitCode"])
	}
}

func TestTerminalKillKeepsRegistration(t *testing.T) {
	mock := exec.NewMockExecutor()
	mock.Enqueue(exec.MockResponse{Block: true})
	term := NewTerminals(mock, t.TempDir())

	id := createTerminal(t, term, map[string]any{"command": "sleep", "args": []any{"60"}})

	if _, errObj := term.HandleKill(map[string]any{"terminalId": id}); errObj != nil {
		t.Fatalf("kill failed: %v", errObj)
	}

	// Output must still be readable after a kill.
	result, errObj := term.HandleOutput(map[string]any{"terminalId": id})
	if errObj != nil {
		t.Fatalf("output after kill failed: %v", errObj)
	}
	if _, hasStatus := result.(map[string]any)["exitStatus"]; !hasStatus {
		t.Error("killed terminal should report an exit status")
	}
}

func TestTerminalReleaseForgetsID(t *testing.T) {
	mock := exec.NewMockExecutor()
	mock.Enqueue(exec.MockResponse{})
	term := NewTerminals(mock, t.TempDir())

	id := createTerminal(t, term, map[string]any{"command": "true"})

	if _, errObj := term.HandleRelease(map[string]any{"terminalId": id}); errObj != nil {
		t.Fatalf("release failed: %v", errObj)
	}
	if term.Count() != 0 {
		t.Errorf("Count() = %d after release", term.Count())
	}

	_, errObj := term.HandleOutput(map[string]any{"terminalId": id})
	if errObj == nil || errObj.Code != protocol.CodeTerminalError {
		t.Errorf("released id still resolves: %v", errObj)
	}
}

func TestTerminalUnknownID(t *testing.T) {
	term := NewTerminals(exec.NewMockExecutor(), t.TempDir())

	for _, fn := range []HandlerFunc{term.HandleOutput, term.HandleWaitForExit, term.HandleKill, term.HandleRelease} {
		_, errObj := fn(map[string]any{"terminalId": "no-such-id"})
		if errObj == nil || errObj.Code != protocol.CodeTerminalError {
			t.Errorf("errObj = %v, want terminal error", errObj)
		}
	}
}

func TestTerminalCwdStaysInsideWorkspace(t *testing.T) {
	mock := exec.NewMockExecutor()
	mock.Enqueue(exec.MockResponse{})
	root := t.TempDir()
	term := NewTerminals(mock, root)

	createTerminal(t, term, map[string]any{
		"command": "make",
		"cwd":     "sub/dir",
	})

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if want := filepath.Join(root, "sub", "dir"); calls[0].Dir != want {
		t.Errorf("Dir = %q, want %q", calls[0].Dir, want)
	}
}

func TestTerminalCwdEscapeRejected(t *testing.T) {
	mock := exec.NewMockExecutor()
	term := NewTerminals(mock, t.TempDir())

	for _, cwd := range []string{"/", "../elsewhere", "/etc"} {
		_, errObj := term.HandleCreate(map[string]any{
			"command": "make",
			"cwd":     cwd,
		})
		if errObj == nil || errObj.Code != protocol.CodePermissionDenied {
			t.Errorf("cwd %q: errObj = %v, want permission denied", cwd, errObj)
		}
	}
	if len(mock.Calls()) != 0 {
		t.Errorf("commands started despite rejected cwd: %+v", mock.Calls())
	}
}

func TestTerminalMissingParams(t *testing.T) {
	term := NewTerminals(exec.NewMockExecutor(), t.TempDir())

	if _, errObj := term.HandleCreate(map[string]any{}); errObj == nil || errObj.Code != protocol.CodeInvalidParams {
		t.Errorf("create without command: %v", errObj)
	}
	if _, errObj := term.HandleOutput(map[string]any{}); errObj == nil || errObj.Code != protocol.CodeInvalidParams {
		t.Errorf("output without terminalId: %v", errObj)
	}
}

func TestKillAll(t *testing.T) {
	mock := exec.NewMockExecutor()
	mock.Enqueue(exec.MockResponse{Block: true})
	mock.Enqueue(exec.MockResponse{Block: true})
	term := NewTerminals(mock, t.TempDir())

	createTerminal(t, term, map[string]any{"command": "sleep", "args": []any{"60"}})
	createTerminal(t, term, map[string]any{"command": "sleep", "args": []any{"60"}})

	term.KillAll()
	if term.Count() != 0 {
		t.Errorf("Count() = %d after KillAll", term.Count())
	}
}
