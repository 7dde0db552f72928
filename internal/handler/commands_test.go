package handler

import (
	"context"
	"testing"

	"triagebot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		name string
		args []string
		ok   bool
	}{
		{"!jira help", "help", nil, true},
		{"  !JIRA Ping  ", "ping", nil, true},
		{"!jira tickets MC-1 MC-2", "tickets", []string{"MC-1", "MC-2"}, true},
		{"!jira", "", nil, true},
		{"!jiraping", "", nil, false},
		{"hello !jira help", "", nil, false},
	}
	for _, tt := range tests {
		cmd := ParseCommand("!jira", tt.text)
		if !tt.ok {
			assert.Nil(t, cmd, tt.text)
			continue
		}
		require.NotNil(t, cmd, tt.text)
		assert.Equal(t, tt.name, cmd.Name, tt.text)
		if tt.args == nil {
			assert.Empty(t, cmd.Args, tt.text)
		} else {
			assert.Equal(t, tt.args, cmd.Args, tt.text)
		}
	}
}

func TestParseCommand_EmptyPrefix(t *testing.T) {
	assert.Nil(t, ParseCommand("", "help"))
}

func TestFindTickets(t *testing.T) {
	assert.Equal(t, []string{"MC-1", "MCPE-22"}, FindTickets("see MC-1, MCPE-22 and MC-1 again"))
	assert.Nil(t, FindTickets("mc-1 is lowercase"))
	assert.Nil(t, FindTickets("nothing"))
}

func TestCommandDispatcher_Commands(t *testing.T) {
	sender := &fakeSender{}
	h, err := New(newDeps(sender, store.NewMemoryStore()))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, h.Commands.Handle(ctx, msg("general", "!jira ping")))
	assert.Equal(t, "Pong!", sender.last("reply").content)

	require.NoError(t, h.Commands.Handle(ctx, msg("general", "!jira help")))
	assert.Contains(t, sender.last("reply").content, "!jira tickets")

	require.NoError(t, h.Commands.Handle(ctx, msg("general", "!jira tickets MC-5")))
	assert.Equal(t, "https://bugs.example.com/browse/MC-5", sender.last("reply").content)

	require.NoError(t, h.Commands.Handle(ctx, msg("general", "!jira mc-6 MC-7")))
	assert.Equal(t, "https://bugs.example.com/browse/MC-6\nhttps://bugs.example.com/browse/MC-7", sender.last("reply").content)

	require.NoError(t, h.Commands.Handle(ctx, msg("general", "!jira frobnicate")))
	assert.Contains(t, sender.last("reply").content, "Unknown command")
}

func TestCommandDispatcher_BareTicketsThrottledPerChannel(t *testing.T) {
	sender := &fakeSender{}
	h, err := New(newDeps(sender, store.NewMemoryStore()))
	require.NoError(t, err)
	ctx := context.Background()

	// Burst of two per channel, then throttled.
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Commands.Handle(ctx, msg("general", "MC-1 crashes")))
	}
	assert.Len(t, sender.ops(), 2)

	require.NoError(t, h.Commands.Handle(ctx, msg("other", "MC-1 crashes")))
	assert.Len(t, sender.ops(), 3)
}

func TestCommandDispatcher_IgnoresPlainChat(t *testing.T) {
	sender := &fakeSender{}
	h, err := New(newDeps(sender, store.NewMemoryStore()))
	require.NoError(t, err)

	require.NoError(t, h.Commands.Handle(context.Background(), msg("general", "good morning")))
	assert.Empty(t, sender.ops())
}

func TestCommandDispatcher_ReplyFailure(t *testing.T) {
	sender := &fakeSender{failOn: "reply"}
	h, err := New(newDeps(sender, store.NewMemoryStore()))
	require.NoError(t, err)

	assert.Error(t, h.Commands.Handle(context.Background(), msg("general", "!jira ping")))
}
