package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	azerrors "github.com/standardbeagle/azline/internal/errors"
)

func TestMain(m *testing.M) {
	if os.Getenv("AZLINE_HELPER_PROCESS") == "1" {
		runHelperProcess()
		os.Exit(0)
	}
	goleak.VerifyTestMain(m)
}

// runHelperProcess answers the line protocol on stdin/stdout
func runHelperProcess() {
	scanner := bufio.NewScanner(os.Stdin)
	out := json.NewEncoder(os.Stdout)
	for scanner.Scan() {
		var req serviceRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		resp := map[string]interface{}{"sequence": req.Sequence}
		q := req.Query
		switch {
		case q.Subcommand == "exit":
			os.Exit(0)
		case q.Subcommand == "huge":
			resp["result"] = []Completion{{Name: strings.Repeat("x", 8192)}}
		case q.Subcommand == "fail":
			resp["error"] = "boom"
		case q.Subcommand == "slow":
			time.Sleep(200 * time.Millisecond)
			resp["result"] = []Completion{}
		case q.Request == "completions":
			resp["result"] = []Completion{{
				Name:   "create",
				Kind:   KindCommand,
				Detail: fmt.Sprintf("%s|%s|%d", q.Subcommand, q.Prefix, len(q.Arguments)),
			}}
		case q.Request == "hover" && q.Subcommand == "missing":
			resp["result"] = nil
		case q.Request == "hover":
			resp["result"] = Hover{Paragraphs: []string{"doc for " + q.Subcommand + " " + q.Argument}}
		case q.Request == "status":
			resp["result"] = Status{Message: "azure-cli 2.61.0"}
		}
		fmt.Fprintln(os.Stdout, "not json")
		_ = out.Encode(resp)
	}
}

func helperService(t *testing.T) *AzService {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	s := NewAzService(AzServiceOptions{
		Command: exe,
		Args:    []string{"-test.run=^$"},
		Env:     []string{"AZLINE_HELPER_PROCESS=1"},
	})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAzService_Protocol(t *testing.T) {
	s := helperService(t)
	ctx := context.Background()

	value := "vm1"
	items, err := s.Completions(ctx, CompletionQuery{
		Subcommand: "vm",
		Prefix:     "cr",
		Arguments:  map[string]*string{"--name": &value, "--force": nil},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "create", items[0].Name)
	assert.Equal(t, KindCommand, items[0].Kind)
	assert.Equal(t, "vm|cr|2", items[0].Detail)

	h, err := s.Hover(ctx, HoverQuery{Subcommand: "vm create", Argument: "--name"})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, []string{"doc for vm create --name"}, h.Paragraphs)

	h, err = s.Hover(ctx, HoverQuery{Subcommand: "missing"})
	require.NoError(t, err)
	assert.Nil(t, h)

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "azure-cli 2.61.0", st.Message)
	assert.False(t, s.Unavailable())
}

func TestAzService_ConcurrentRequests(t *testing.T) {
	s := helperService(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("group%d", i)
			items, err := s.Completions(context.Background(), CompletionQuery{Subcommand: path})
			if err != nil {
				errs <- err
				return
			}
			if len(items) != 1 || items[0].Detail != path+"||0" {
				errs <- fmt.Errorf("response for %s mismatched: %+v", path, items)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestAzService_OversizedResponseRestartsHelper(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	s := NewAzService(AzServiceOptions{
		Command:         exe,
		Args:            []string{"-test.run=^$"},
		Env:             []string{"AZLINE_HELPER_PROCESS=1"},
		MaxResponseSize: 1024,
	})
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = s.Completions(ctx, CompletionQuery{Subcommand: "huge"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)

	// the next request gets a fresh helper instead of waiting forever
	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "azure-cli 2.61.0", st.Message)
}

func TestAzService_ErrorResponse(t *testing.T) {
	s := helperService(t)

	_, err := s.Completions(context.Background(), CompletionQuery{Subcommand: "fail"})
	require.Error(t, err)
	var be *azerrors.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "completions", be.Request)
	assert.Contains(t, err.Error(), "boom")
}

func TestAzService_ContextCancel(t *testing.T) {
	s := helperService(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Completions(ctx, CompletionQuery{Subcommand: "slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The late response is dropped and the service keeps working
	st, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, st.Message)
}

func TestAzService_RestartsAfterExit(t *testing.T) {
	s := helperService(t)

	_, err := s.Completions(context.Background(), CompletionQuery{Subcommand: "exit"})
	require.Error(t, err, "pending request fails when the helper exits")

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.cmd == nil
	}, 5*time.Second, 5*time.Millisecond)

	st, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "azure-cli 2.61.0", st.Message)
}

func TestAzService_NotFoundReportedOnce(t *testing.T) {
	var calls atomic.Int32
	s := NewAzService(AzServiceOptions{
		Command:    "azline-no-such-helper",
		OnNotFound: func() { calls.Add(1) },
	})
	defer s.Close()

	for i := 0; i < 3; i++ {
		_, err := s.Completions(context.Background(), CompletionQuery{Subcommand: "vm"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)

		var be *azerrors.BackendError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, azerrors.ErrorTypeUnavailable, be.Type)
	}
	_, err := s.Status(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, s.Unavailable())
}

func TestAzService_Closed(t *testing.T) {
	s := NewAzService(AzServiceOptions{Command: "azline-no-such-helper"})
	require.NoError(t, s.Close())

	_, err := s.Status(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestNewAzService_Defaults(t *testing.T) {
	s := NewAzService(AzServiceOptions{})
	assert.Equal(t, DefaultServiceCommand, s.opts.Command)
	assert.Equal(t, DefaultServiceArgs, s.opts.Args)
}

func loadDefault(t *testing.T) *Catalog {
	t.Helper()
	c, err := DefaultCatalog()
	require.NoError(t, err)
	return c
}

func names(items []Completion) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestCatalog_RootGroups(t *testing.T) {
	c := loadDefault(t)

	items, err := c.Completions(context.Background(), CompletionQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"group", "vm", "network", "storage"}, names(items))
	for i, it := range items {
		assert.Equal(t, KindGroup, it.Kind)
		assert.Equal(t, fmt.Sprintf("%04d", i), it.SortText)
	}
}

func TestCatalog_RankingByPrefix(t *testing.T) {
	c := loadDefault(t)

	items, err := c.Completions(context.Background(), CompletionQuery{Subcommand: "vm", Prefix: "sh"})
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, "show", items[0].Name)
	assert.Equal(t, KindCommand, items[0].Kind)
	assert.Equal(t, "0000", items[0].SortText)
	assert.ElementsMatch(t, []string{"list", "create", "show"}, names(items))
}

func TestCatalog_ParametersAndSnippet(t *testing.T) {
	c := loadDefault(t)
	name := "vm1"

	items, err := c.Completions(context.Background(), CompletionQuery{
		Subcommand: "vm create",
		Arguments:  map[string]*string{"-n": &name},
	})
	require.NoError(t, err)

	got := names(items)
	assert.NotContains(t, got, "--name", "aliases count as supplied")
	assert.Contains(t, got, "--resource-group")
	assert.Contains(t, got, "--image")

	snippet := items[len(items)-1]
	assert.Equal(t, KindSnippet, snippet.Kind)
	assert.Equal(t, "--resource-group ${1:resource-group}", snippet.Snippet)

	items, err = c.Completions(context.Background(), CompletionQuery{Subcommand: "vm create", Prefix: "--im"})
	require.NoError(t, err)
	assert.Equal(t, "--image", items[0].Name)
	for _, it := range items {
		assert.NotEqual(t, KindSnippet, it.Kind, "no snippet while a flag is being typed")
	}
}

func TestCatalog_ParameterValues(t *testing.T) {
	c := loadDefault(t)

	items, err := c.Completions(context.Background(), CompletionQuery{Subcommand: "group create", Argument: "-l", Prefix: "westeu"})
	require.NoError(t, err)
	require.Len(t, items, 6)
	assert.Equal(t, "westeurope", items[0].Name)
	assert.Equal(t, KindParameterValue, items[0].Kind)

	items, err = c.Completions(context.Background(), CompletionQuery{Subcommand: "vm create", Argument: "--name"})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = c.Completions(context.Background(), CompletionQuery{Subcommand: "nope", Argument: "--name"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCatalog_Hover(t *testing.T) {
	c := loadDefault(t)
	ctx := context.Background()

	h, err := c.Hover(ctx, HoverQuery{Subcommand: "vm create"})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Len(t, h.Paragraphs, 2)
	assert.Equal(t, "Create an Azure Virtual Machine.", h.Paragraphs[0])

	h, err = c.Hover(ctx, HoverQuery{Subcommand: "network"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Manage Azure Network resources."}, h.Paragraphs)

	h, err = c.Hover(ctx, HoverQuery{Subcommand: "group create", Argument: "--location"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Location.",
		"Required.",
		"Allowed values: eastus, eastus2, westus, westus2, westeurope, northeurope.",
	}, h.Paragraphs)

	h, err = c.Hover(ctx, HoverQuery{Subcommand: "vm create", Argument: "--bogus"})
	require.NoError(t, err)
	assert.Nil(t, h)

	h, err = c.Hover(ctx, HoverQuery{Subcommand: "bogus"})
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestCatalog_Status(t *testing.T) {
	st, err := loadDefault(t).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "az catalog (offline)", st.Message)

	c, err := ParseCatalog([]byte("[[command]]\nname = \"a b\"\n"))
	require.NoError(t, err)
	st, err = c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "az catalog (1 commands)", st.Message)
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := map[string]string{
		"bad toml":          "[[group]\nname=",
		"unnamed group":     "[[group]]\nsummary = \"x\"\n",
		"unnamed command":   "[[command]]\nsummary = \"x\"\n",
		"unnamed parameter": "[[command]]\nname = \"vm list\"\n[[command.parameter]]\nsummary = \"x\"\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := t.TempDir() + "/catalog.toml"
	require.NoError(t, os.WriteFile(path, []byte(`
[[group]]
name = "  aks  "
summary = "Manage Azure Kubernetes Services."

[[command]]
name = "aks   list"
summary = "List managed Kubernetes clusters."
`), 0644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	items, err := c.Completions(context.Background(), CompletionQuery{Subcommand: "aks"})
	require.NoError(t, err)
	assert.Equal(t, []string{"list"}, names(items))

	_, err = LoadCatalog(t.TempDir() + "/missing.toml")
	assert.Error(t, err)
}

func TestCatalog_CancelledContext(t *testing.T) {
	c := loadDefault(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Completions(ctx, CompletionQuery{})
	assert.ErrorIs(t, err, context.Canceled)
}

type failingService struct{ err error }

func (f failingService) Completions(context.Context, CompletionQuery) ([]Completion, error) {
	return []Completion{{Name: "ignored"}}, f.err
}

func (f failingService) Hover(context.Context, HoverQuery) (*Hover, error) {
	return &Hover{Paragraphs: []string{"ignored"}}, f.err
}

func (f failingService) Status(context.Context) (Status, error) {
	return Status{Message: "ignored"}, f.err
}

func TestDegrade(t *testing.T) {
	d := Degrade(failingService{err: ErrUnavailable})
	ctx := context.Background()

	items, err := d.Completions(ctx, CompletionQuery{})
	assert.NoError(t, err)
	assert.Empty(t, items)

	h, err := d.Hover(ctx, HoverQuery{Subcommand: "vm"})
	assert.NoError(t, err)
	assert.Nil(t, h)

	st, err := d.Status(ctx)
	assert.NoError(t, err)
	assert.Equal(t, Status{}, st)

	assert.Equal(t, int64(3), d.Failures())

	ok := Degrade(failingService{})
	st, err = ok.Status(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "ignored", st.Message)
	assert.Zero(t, ok.Failures())
	assert.Equal(t, failingService{}, ok.Unwrap())
}
