package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// saveAndRestoreState saves the debug package state and returns a cleanup function
func saveAndRestoreState() func() {
	originalDebug := EnableDebug
	originalMode := MCPMode
	originalOutput := debugOutput
	originalFile := debugFile
	originalLogger := logger
	return func() {
		EnableDebug = originalDebug
		MCPMode = originalMode
		debugOutput = originalOutput
		debugFile = originalFile
		logger = originalLogger
	}
}

// lockedBuffer is a bytes.Buffer safe for concurrent writers
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSetMCPMode(t *testing.T) {
	defer saveAndRestoreState()()

	SetMCPMode(true)
	assert.True(t, MCPMode)

	SetMCPMode(false)
	assert.False(t, MCPMode)
}

func TestIsDebugEnabled(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")

	EnableDebug = "false"
	MCPMode = false
	assert.False(t, IsDebugEnabled())

	EnableDebug = "true"
	assert.True(t, IsDebugEnabled())

	// MCP mode wins over the build flag
	MCPMode = true
	assert.False(t, IsDebugEnabled())

	MCPMode = false
	EnableDebug = "invalid"
	assert.False(t, IsDebugEnabled())

	t.Setenv("DEBUG", "1")
	assert.True(t, IsDebugEnabled())
}

func TestLog(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	MCPMode = false
	Log("TEST", "Hello %s\n", "World")

	output := buf.String()
	assert.Contains(t, output, `"component":"TEST"`)
	assert.Contains(t, output, `"message":"Hello World"`)
	assert.Contains(t, output, `"level":"debug"`)
}

func TestLog_MCPMode(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	MCPMode = true
	Log("TEST", "Should not appear")

	assert.Empty(t, buf.String())
}

func TestWarn_IgnoresDebugFlag(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "false"
	Warn("QUERY", "evaluation failed: %s", "boom")

	output := buf.String()
	assert.Contains(t, output, `"level":"warn"`)
	assert.Contains(t, output, `"component":"QUERY"`)
	assert.Contains(t, output, "evaluation failed: boom")
}

func TestFatal(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	MCPMode = false
	err := Fatal("test error: %s", "details")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fatal error: test error: details")
	assert.Contains(t, buf.String(), `"severity":"fatal"`)

	buf.Reset()
	MCPMode = true
	err = Fatal("another error")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fatal error: another error")
	assert.Empty(t, buf.String())
}

func TestCatastrophicError(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	MCPMode = false
	CatastrophicError("system failure: %s", "disk full")

	output := buf.String()
	assert.Contains(t, output, `"severity":"catastrophic"`)
	assert.Contains(t, output, "system failure: disk full")

	buf.Reset()
	MCPMode = true
	CatastrophicError("should not appear")
	assert.Empty(t, buf.String())
}

func TestLogHelpers(t *testing.T) {
	defer saveAndRestoreState()()

	EnableDebug = "true"
	MCPMode = false

	tests := []struct {
		name      string
		logFunc   func(string, ...interface{})
		component string
	}{
		{"LogPipeline", LogPipeline, "PIPELINE"},
		{"LogBackend", LogBackend, "BACKEND"},
		{"LogServer", LogServer, "SERVER"},
		{"LogMCP", LogMCP, "MCP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetDebugOutput(&buf)

			tt.logFunc("message: %s", "test")

			output := buf.String()
			assert.Contains(t, output, `"component":"`+tt.component+`"`)
			assert.Contains(t, output, "message: test")
		})
	}
}

func TestConcurrentLogging(t *testing.T) {
	defer saveAndRestoreState()()

	buf := &lockedBuffer{}
	SetDebugOutput(buf)
	EnableDebug = "true"
	MCPMode = false

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			Log("CONCURRENT", "Message from goroutine %d", id)
			LogPipeline("Run from goroutine %d", id)
		}(i)
	}
	wg.Wait()

	assert.Contains(t, buf.String(), "Message from goroutine")
}

func TestNoOutputWithNilWriter(t *testing.T) {
	defer saveAndRestoreState()()

	SetDebugOutput(nil)
	EnableDebug = "true"
	MCPMode = false

	// None of these may panic
	Printf("test %s", "message")
	Println("test message")
	Log("TEST", "test %s", "message")
	Warn("TEST", "test %s", "message")
	LogBackend("test %s", "message")
	LogMCP("test %s", "message")
	_ = Fatal("test %s", "message")
	CatastrophicError("test %s", "message")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "info", ParseLevel("INFO").String())
	assert.Equal(t, "warn", ParseLevel("warning").String())
	assert.Equal(t, "error", ParseLevel("error").String())
	assert.Equal(t, "debug", ParseLevel("").String())
	assert.Equal(t, "debug", ParseLevel("verbose").String())
}

func TestInitDebugLogFile(t *testing.T) {
	defer saveAndRestoreState()()

	path := filepath.Join(t.TempDir(), "logs", "azline.log")
	logPath, err := InitDebugLogFile(FileOptions{Path: path, MaxSizeMB: 1})
	require.NoError(t, err)
	assert.Equal(t, path, logPath)

	EnableDebug = "true"
	MCPMode = false
	Printf("Test log message\n")

	require.NoError(t, CloseDebugLog())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Test log message")
}

func TestInitDebugLogFile_DefaultPath(t *testing.T) {
	defer saveAndRestoreState()()

	logPath, err := InitDebugLogFile(FileOptions{})
	require.NoError(t, err)
	assert.Contains(t, logPath, "azline-debug-logs")
	require.NoError(t, CloseDebugLog())
	_ = os.Remove(logPath)
}
