package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/shiprocket-mcp-go/internal/engine"
	"github.com/ggoodman/shiprocket-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/shiprocket-mcp-go/mcp"
	"github.com/ggoodman/shiprocket-mcp-go/mcpservice"
	"github.com/ggoodman/shiprocket-mcp-go/sessions"
)

type echoArgs struct {
	Text  string `json:"text"`
	Delay int    `json:"delay_ms,omitempty"`
}

// testHarness encapsulates pipes and collected output for stdio handler tests.
type testHarness struct {
	t       *testing.T
	mgr     *sessions.Manager
	stdinW  *io.PipeWriter
	stdoutR *bufio.Scanner
	done    chan error
	outMu   sync.Mutex
	lines   []string
}

func newHarness(t *testing.T, regOpts ...sessions.RegistryOption) *testHarness {
	t.Helper()

	echo, err := mcpservice.NewTool("echo", func(ctx context.Context, cred sessions.CredentialContext, args echoArgs) (mcpservice.Result, error) {
		time.Sleep(time.Duration(args.Delay) * time.Millisecond)
		return mcpservice.TextResult(cred.SessionID + ":" + args.Text), nil
	})
	if err != nil {
		t.Fatalf("new tool: %v", err)
	}
	tools, err := mcpservice.NewToolRegistry(echo)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := sessions.NewRegistry(append([]sessions.RegistryOption{sessions.WithJobLogger(log)}, regOpts...)...)
	mgr := sessions.NewManager(sessions.WithLogger(log), sessions.WithRegistry(reg))
	eng := engine.NewEngine(mgr, mgr.Registry(), tools, engine.WithLogger(log))

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	h := NewHandler(mgr, eng, "seller-token", WithIO(inR, outW), WithLogger(log))

	ctx, cancel := context.WithCancel(context.Background())
	th := &testHarness{t: t, mgr: mgr, stdinW: inW, stdoutR: bufio.NewScanner(outR), done: make(chan error, 1)}

	go func() {
		th.done <- h.Serve(ctx)
	}()

	go func() {
		for th.stdoutR.Scan() {
			line := strings.TrimSpace(th.stdoutR.Text())
			th.outMu.Lock()
			th.lines = append(th.lines, line)
			th.outMu.Unlock()
		}
	}()

	t.Cleanup(func() {
		cancel()
		_ = inW.Close()
		_ = outW.Close()
		_ = outR.Close()
	})

	// Wait for the session to be registered before the test writes.
	deadline := time.Now().Add(time.Second)
	for mgr.Registry().Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stdio session not registered")
		}
		time.Sleep(time.Millisecond)
	}
	return th
}

func (th *testHarness) sendLine(s string) {
	th.t.Helper()
	if _, err := th.stdinW.Write([]byte(s + "\n")); err != nil {
		th.t.Fatalf("write stdin: %v", err)
	}
}

func (th *testHarness) nextLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		th.outMu.Lock()
		if len(th.lines) > 0 {
			s := th.lines[0]
			th.lines = th.lines[1:]
			th.outMu.Unlock()
			return s, nil
		}
		th.outMu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	return "", fmt.Errorf("timeout waiting for output line")
}

func (th *testHarness) expectResponse(timeout time.Duration) *jsonrpc.Response {
	th.t.Helper()
	line, err := th.nextLine(timeout)
	if err != nil {
		th.t.Fatal(err)
	}
	var resp jsonrpc.Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		th.t.Fatalf("decode %q: %v", line, err)
	}
	return &resp
}

func toolText(t *testing.T, resp *jsonrpc.Response) string {
	t.Helper()
	var res mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("content = %+v", res.Content)
	}
	return res.Content[0].Text
}

func TestInitializeAndCall(t *testing.T) {
	th := newHarness(t)

	th.sendLine(`{"jsonrpc":"2.0","id":"init","method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`)
	resp := th.expectResponse(time.Second)
	if resp.Error != nil || resp.ID.String() != "init" {
		t.Fatalf("initialize: %+v", resp)
	}
	var init mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &init); err != nil {
		t.Fatal(err)
	}
	if init.ProtocolVersion != "2025-06-18" {
		t.Fatalf("protocol version = %q", init.ProtocolVersion)
	}

	th.sendLine(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	th.sendLine(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`)
	resp = th.expectResponse(time.Second)
	if got := toolText(t, resp); got != SessionID+":hi" {
		t.Fatalf("text = %q", got)
	}
}

func TestRepliesKeepRequestOrder(t *testing.T) {
	th := newHarness(t)

	for i, delay := range []int{30, 0, 10} {
		th.sendLine(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"echo","arguments":{"text":"%d","delay_ms":%d}}}`, i, i, delay))
	}
	for i := range 3 {
		resp := th.expectResponse(time.Second)
		if got := toolText(t, resp); got != fmt.Sprintf("%s:%d", SessionID, i) {
			t.Fatalf("reply %d text = %q", i, got)
		}
	}
}

func TestFullQueueAppliesBackpressure(t *testing.T) {
	th := newHarness(t, sessions.WithMaxPendingJobs(1))

	for i := 0; i < 5; i++ {
		th.sendLine(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"echo","arguments":{"text":"%d","delay_ms":10}}}`, i, i))
	}
	for i := 0; i < 5; i++ {
		resp := th.expectResponse(time.Second)
		if got := toolText(t, resp); got != fmt.Sprintf("%s:%d", SessionID, i) {
			t.Fatalf("reply %d text = %q", i, got)
		}
	}
}

func TestMalformedLineYieldsParseError(t *testing.T) {
	th := newHarness(t)

	th.sendLine(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	th.sendLine(`this is not json`)
	th.sendLine(``)
	th.sendLine(`{"jsonrpc":"2.0","id":2,"method":"ping"}`)

	if resp := th.expectResponse(time.Second); resp.ID.String() != "1" || resp.Error != nil {
		t.Fatalf("first reply: %+v", resp)
	}
	resp := th.expectResponse(time.Second)
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeParseError || !resp.ID.IsNil() {
		t.Fatalf("parse error reply: %+v", resp)
	}
	if resp := th.expectResponse(time.Second); resp.ID.String() != "2" {
		t.Fatalf("last reply: %+v", resp)
	}
}

func TestEOFFlushesAndCloses(t *testing.T) {
	th := newHarness(t)

	th.sendLine(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"text":"last","delay_ms":20}}}`)
	_ = th.stdinW.Close()

	if got := toolText(t, th.expectResponse(time.Second)); got != SessionID+":last" {
		t.Fatalf("text = %q", got)
	}
	select {
	case err := <-th.done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after EOF")
	}
	if n := th.mgr.Registry().Len(); n != 0 {
		t.Fatalf("session still registered: %d", n)
	}
}

func TestSecondServeIsRejected(t *testing.T) {
	th := newHarness(t)

	h := NewHandler(th.mgr, nil, "other", WithIO(strings.NewReader(""), io.Discard))
	err := h.Serve(context.Background())
	if !errors.Is(err, sessions.ErrDuplicateSession) {
		t.Fatalf("err = %v, want ErrDuplicateSession", err)
	}

	cred, ok := th.mgr.Registry().CredentialFor(SessionID)
	if !ok || cred.Credential.Reveal() != "seller-token" {
		t.Fatal("original stdio session replaced")
	}
}
