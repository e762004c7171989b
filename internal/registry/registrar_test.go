package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
)

func TestNewRegistrar_Validation(t *testing.T) {
	deploys := []domain.ModelDeploy{{DeployName: "my-gpt", ModelName: "gpt-4o-mini"}}

	_, err := NewRegistrar(RegistrarConfig{Deploys: deploys}, nil, nil)
	require.ErrorIs(t, err, errNoAgentURL)

	_, err = NewRegistrar(RegistrarConfig{AgentURL: "http://agent:8680"}, nil, nil)
	require.ErrorIs(t, err, errNoDeploys)
}

func TestRegistrar_RegisterOnce(t *testing.T) {
	var (
		mu       sync.Mutex
		received []domain.Model
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/models/register", r.URL.Path)

		var m domain.Model
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg, err := NewRegistrar(RegistrarConfig{
		AgentURL: server.URL,
		SelfURL:  "http://10.0.0.5:8680",
		Deploys: []domain.ModelDeploy{
			{DeployName: "my-gpt", ModelName: "gpt-4o-mini"},
			{DeployName: "my-embeddings", ModelName: "text-embedding-3-small"},
		},
	}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, reg.RegisterOnce(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, "my-gpt", received[0].ID)
	assert.Equal(t, "http://10.0.0.5:8680", received[0].OwnedBy)
	assert.Equal(t, "model", received[0].Object)
	assert.Equal(t, "my-embeddings", received[1].ID)
}

func TestRegistrar_RegisterOnce_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	reg, err := NewRegistrar(RegistrarConfig{
		AgentURL: server.URL,
		SelfURL:  "http://10.0.0.5:8680",
		Deploys:  []domain.ModelDeploy{{DeployName: "my-gpt", ModelName: "gpt-4o-mini"}},
	}, nil, nil)
	require.NoError(t, err)

	err = reg.RegisterOnce(context.Background())
	require.ErrorIs(t, err, ErrRegisterRejected)
}

func TestRegistrar_RunHeartbeats(t *testing.T) {
	var calls sync.WaitGroup
	calls.Add(2)
	var count int
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		count++
		if count <= 2 {
			calls.Done()
		}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg, err := NewRegistrar(RegistrarConfig{
		AgentURL:   server.URL,
		SelfURL:    "http://10.0.0.5:8680",
		Deploys:    []domain.ModelDeploy{{DeployName: "my-gpt", ModelName: "gpt-4o-mini"}},
		Period:     5 * time.Millisecond,
		FailPeriod: 5 * time.Millisecond,
	}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx)
		close(done)
	}()

	calls.Wait()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registrar did not stop after cancel")
	}
}
