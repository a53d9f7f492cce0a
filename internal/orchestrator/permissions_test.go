package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finmail/internal/common"
)

func TestPermissions(t *testing.T) {
	p := NewPermissions()

	tests := []struct {
		userID string
		role   Role
		modify bool
	}{
		{userID: "default_user", role: RoleUser},
		{userID: "admin_alice", role: RoleAdmin, modify: true},
		{userID: "system", role: RoleSystem, modify: true},
		{userID: "system_batch", role: RoleSystem, modify: true},
		{userID: "administrator", role: RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			assert.Equal(t, tt.role, p.RoleFor(tt.userID))
			assert.NoError(t, p.Check(tt.userID, ActionRead))
			assert.NoError(t, p.Check(tt.userID, ActionProcess))
			err := p.Check(tt.userID, ActionModify)
			if tt.modify {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, common.ErrPermissionDenied)
			}
		})
	}

	p.Grant(RoleUser, ActionModify)
	assert.NoError(t, p.Check("bob", ActionModify))
	p.Revoke(RoleUser, ActionModify, ActionProcess)
	assert.Equal(t, []Action{ActionRead}, p.Actions(RoleUser))
}

func TestInvoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.True(t, f.orch.ProcessInteractive(ctx, "s1", "", "").OK())

	t.Run("unknown tool", func(t *testing.T) {
		res := f.orch.Invoke(ctx, Invocation{Tool: "calculator"})
		assert.ErrorIs(t, res.Err, ErrUnknownTool)
		assert.Equal(t, "Unknown tool: calculator", res.Error)
	})

	t.Run("plain confirm allowed for users", func(t *testing.T) {
		res := f.orch.Invoke(ctx, Invocation{
			Tool:      ToolConfirm,
			Arguments: Arguments{"session_id": "s1", "email_id": "msg-1"},
		})
		require.True(t, res.OK(), res.Error)
		assert.True(t, res.Value.(ConfirmResult).Confirmed)
	})

	t.Run("modifications require admin", func(t *testing.T) {
		inv := Invocation{
			Tool:      ToolConfirm,
			UserID:    "bob",
			Arguments: Arguments{"session_id": "s1", "email_id": "msg-1", "modifications": map[string]any{"amount": float64(500)}},
		}
		res := f.orch.Invoke(ctx, inv)
		assert.ErrorIs(t, res.Err, common.ErrPermissionDenied)

		inv.UserID = "admin_alice"
		res = f.orch.Invoke(ctx, inv)
		require.True(t, res.OK(), res.Error)
		assert.Equal(t, 1, res.Value.(ConfirmResult).ModificationsApplied)
	})

	t.Run("admin tool toggles availability", func(t *testing.T) {
		disable := Invocation{Tool: ToolSetEnabled, Arguments: Arguments{"name": ToolQuery, "enabled": false}}
		res := f.orch.Invoke(ctx, disable)
		assert.ErrorIs(t, res.Err, common.ErrPermissionDenied)

		disable.UserID = "admin_alice"
		require.True(t, f.orch.Invoke(ctx, disable).OK())

		res = f.orch.Invoke(ctx, Invocation{Tool: ToolQuery})
		assert.ErrorIs(t, res.Err, ErrToolDisabled)

		res = f.orch.Invoke(ctx, Invocation{Tool: ToolSetEnabled, UserID: "system", Arguments: Arguments{"name": ToolSetEnabled, "enabled": false}})
		assert.False(t, res.OK())
	})

	t.Run("panics become error results", func(t *testing.T) {
		require.NoError(t, f.orch.Registry().Register(Tool{
			Name:    "explode",
			Handler: func(context.Context, Arguments) Result { panic("boom") },
		}))
		res := f.orch.Invoke(ctx, Invocation{Tool: "explode"})
		assert.Equal(t, "Tool explode failed unexpectedly", res.Error)
	})

	t.Run("call statistics", func(t *testing.T) {
		res := f.orch.Invoke(ctx, Invocation{Tool: ToolListTools})
		require.True(t, res.OK(), res.Error)
		out := res.Value.(ToolsResult)
		assert.True(t, out.Capabilities.HasDatabase)
		assert.False(t, out.Capabilities.HasLLM)

		tool, ok := f.orch.Registry().Get(ToolConfirm)
		require.True(t, ok)
		assert.Equal(t, 2, tool.CallCount)
	})
}
