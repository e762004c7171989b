package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_FreshAt(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	period := 10 * time.Second

	tests := []struct {
		name    string
		created int64
		fresh   bool
	}{
		{name: "registered_now", created: now.Unix(), fresh: true},
		{name: "inside_window", created: now.Add(-9 * time.Second).Unix(), fresh: true},
		{name: "window_boundary", created: now.Add(-10 * time.Second).Unix(), fresh: true},
		{name: "outside_window", created: now.Add(-11 * time.Second).Unix(), fresh: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Model{ID: "m", OwnedBy: "http://127.0.0.1:8682", Created: tt.created}
			assert.Equal(t, tt.fresh, m.FreshAt(now, period))
		})
	}
}

func TestModel_Validate(t *testing.T) {
	m := Model{ID: "gpt-3.5-turbo", OwnedBy: "http://127.0.0.1:8682"}
	assert.NoError(t, m.Validate())

	m.OwnedBy = ""
	assert.Error(t, m.Validate())
}

func TestNewModelList(t *testing.T) {
	empty := NewModelList(nil)
	payload, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{"object":"list","data":[]}`, string(payload))

	list := NewModelList([]Model{{ID: "a", Object: "model", OwnedBy: "http://localhost"}})
	assert.Len(t, list.Data, 1)
	assert.Equal(t, "list", list.Object)
}
