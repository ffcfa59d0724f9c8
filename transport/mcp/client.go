package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mindmeld/game/engine"
	"github.com/wricardo/mindmeld/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"mindmeld",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`mindmeld - MCP Interface

This is a thin client that proxies all requests to the mindmeld REST API.
Players themselves connect over WebSocket; these tools manage the games.

AVAILABLE TOOLS:
- create_game: Create a game and get its 4-digit join code
- list_games: List games, optionally only those in one phase
- get_game: Get the state of one game by code
- delete_game: Delete a game and disconnect its players
- game_rules: Explain how a round works`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	codeProperty := map[string]interface{}{
		"type":        "integer",
		"description": "4-digit join code (1000-9999)",
		"minimum":     engine.MinCode,
		"maximum":     engine.MaxCode,
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_game",
		Description: "Create a new game and return its join code",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleCreateGame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_games",
		Description: "List all live games",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"phase": map[string]interface{}{
					"type":        "string",
					"description": "Only list games in this phase",
					"enum":        []string{"lobby", "starting", "guessing", "answers", "finished"},
				},
			},
		},
	}, c.handleListGames)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_game",
		Description: "Get the state of a game",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"code": codeProperty},
			Required:   []string{"code"},
		},
	}, c.handleGetGame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "delete_game",
		Description: "Delete a game; connected players are told it closed",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"code": codeProperty},
			Required:   []string{"code"},
		},
	}, c.handleDeleteGame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_rules",
		Description: "Explain the phases of a round and the WebSocket protocol",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameRules)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeStdio serves MCP over stdin/stdout until the input closes.
func (c *Client) ServeStdio() error {
	return server.ServeStdio(c.mcpServer)
}

// HTTPHandler answers one JSON-RPC message per POST request.
func (c *Client) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := c.mcpServer.HandleMessage(r.Context(), body)
		if response == nil {
			// Notifications have no response
			w.WriteHeader(http.StatusAccepted)
			return
		}

		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(responseData)
	})
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// codeArg reads the code argument, which clients send as a JSON number or a
// string.
func codeArg(request mcp.CallToolRequest) (int, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	switch v := args["code"].(type) {
	case float64:
		code := int(v)
		if float64(code) != v {
			return 0, fmt.Errorf("%w: %v is not an integer", engine.ErrInvalidCode, v)
		}
		return code, engine.ValidateCode(code)
	case string:
		return engine.ParseCode(v)
	case nil:
		return 0, fmt.Errorf("code is required")
	default:
		return 0, fmt.Errorf("%w: unexpected %T", engine.ErrInvalidCode, v)
	}
}

// Tool handlers

func (c *Client) handleCreateGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var created struct {
		Code int `json:"code"`
	}
	if err := c.apiCall(ctx, "POST", "/api/games/create", nil, &created); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created game: %d\nPlayers join with {\"type\":\"join\",\"code\":%d} on /api/games/join\n",
		created.Code, created.Code)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListGames(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	phase, _ := args["phase"].(string)

	path := "/api/games/list"
	if phase != "" {
		path += "?phase=" + phase
	}

	var response struct {
		Count int `json:"count"`
		Games []struct {
			Code        int              `json:"code"`
			PlayersNum  int              `json:"players_num"`
			Phase       engine.PhaseKind `json:"phase"`
			Pending     int              `json:"pending"`
			Connections int              `json:"connections"`
			CreatedAt   time.Time        `json:"created_at"`
		} `json:"games"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Live Games (%d):\n\n", response.Count)
	for _, g := range response.Games {
		result += fmt.Sprintf("- %d %s (Players: %d, Connections: %d, Created: %s)\n",
			g.Code, engine.Phase{Kind: g.Phase, Pending: g.Pending}, g.PlayersNum, g.Connections,
			g.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := codeArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var info service.SessionInfo
	if err := c.apiCall(ctx, "GET", "/api/games/"+strconv.Itoa(code), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&info)), nil
}

func (c *Client) handleDeleteGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := codeArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := c.apiCall(ctx, "DELETE", "/api/games/"+strconv.Itoa(code), nil, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Deleted game %d\n", code)), nil
}

func (c *Client) handleGameRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(gameRules), nil
}

const gameRules = `MINDMELD RULES

Every player guesses a word. The game ends when everyone said the same word.

PHASES:
1. lobby - nobody has joined yet
2. starting(n) - players join and send ready; n players are still not ready
3. guessing(n) - each player submits one answer; n answers are missing
4. answers(n) - answers are revealed; n players have not acknowledged yet
5. finished - the round is over

If every answer matches (ignoring case and surrounding spaces) the game
finishes right after guessing with reason "consensus". Otherwise it finishes
with reason "acknowledged" once everyone has seen the answers. Games stuck in
one phase too long finish with reason "timeout".

WEBSOCKET PROTOCOL (GET /api/games/join):
- {"type":"join","code":1234,"player":"name"}  player is optional; reuse it to resume
- {"type":"ready"}
- {"type":"submit_answer","text":"word"}
- {"type":"ack"}

Replies are "joined" or "ok" with the game state; changes are broadcast as
player_joined, player_left, progress and phase_changed with an increasing
"seq". Errors carry a code such as not_found, invalid_transition,
session_full or invalid_answer.
`

func formatSessionInfo(info *service.SessionInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Game %d\n", info.Code)
	fmt.Fprintf(&sb, "Phase: %s\n", engine.Phase{Kind: info.Phase, Pending: info.Pending})
	fmt.Fprintf(&sb, "Players: %d\n", info.PlayersNum)
	fmt.Fprintf(&sb, "Connections: %d\n", info.Connections)
	fmt.Fprintf(&sb, "Answers: %d\n", info.AnswerCount)
	if len(info.Answers) > 0 {
		fmt.Fprintf(&sb, "Revealed: %s\n", strings.Join(info.Answers, ", "))
	}
	if info.FinishReason != "" {
		fmt.Fprintf(&sb, "Finished: %s\n", info.FinishReason)
	}
	if !info.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "Created: %s\n", info.CreatedAt.Format(time.RFC3339))
	}
	return sb.String()
}
