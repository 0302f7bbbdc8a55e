package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatch struct{}

func (fakeDispatch) ToolsList() []ToolDefinition {
	return []ToolDefinition{{Name: "echo", Description: "echo", InputSchema: json.RawMessage(`{"type":"object"}`)}}
}

func (fakeDispatch) ToolsCall(ctx context.Context, server, tool string, args json.RawMessage) (*ToolsCallResult, error) {
	if tool != "echo" {
		return ErrorResult("tool not found: " + tool), nil
	}
	return JSONResult(map[string]string{"tool": tool})
}

func (fakeDispatch) ResourcesList() []ResourceDefinition {
	return []ResourceDefinition{{URI: "hub://x", Name: "x"}}
}

func (fakeDispatch) ResourcesRead(uri string) (*ResourcesReadResult, error) {
	return &ResourcesReadResult{Contents: []ResourceContent{{URI: uri, Text: "body"}}}, nil
}

func testStdioServer() *Server {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return NewServer(fakeDispatch{}, ServerInfo{Name: "hub-test", Version: "0.0.1"}, logger)
}

func TestHandleMessage_Initialize(t *testing.T) {
	s := testStdioServer()
	resp := s.handleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"clientInfo":{"name":"cli"}}}`))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(*InitializeResult)
	require.True(t, ok)
	assert.Equal(t, "hub-test", result.ServerInfo.Name)
	assert.NotNil(t, result.Capabilities.Tools)
	assert.NotNil(t, result.Capabilities.Resources)
}

func TestHandleMessage_ToolsListAndCall(t *testing.T) {
	s := testStdioServer()

	resp := s.handleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	require.Nil(t, resp.Error)
	list := resp.Result.(*ToolsListResult)
	assert.Len(t, list.Tools, 1)

	resp = s.handleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{}}}`))
	require.Nil(t, resp.Error)
	call := resp.Result.(*ToolsCallResult)
	assert.False(t, call.IsError)
}

func TestHandleMessage_ResourcesRead(t *testing.T) {
	s := testStdioServer()
	resp := s.handleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":4,"method":"resources/read","params":{"uri":"hub://x"}}`))
	require.Nil(t, resp.Error)
	read := resp.Result.(*ResourcesReadResult)
	require.Len(t, read.Contents, 1)
	assert.Equal(t, "body", read.Contents[0].Text)
}

func TestHandleMessage_Notification(t *testing.T) {
	s := testStdioServer()
	resp := s.handleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.Nil(t, resp)
}

func TestHandleMessage_UnknownMethod(t *testing.T) {
	s := testStdioServer()
	resp := s.handleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":5,"method":"prompts/list"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}
