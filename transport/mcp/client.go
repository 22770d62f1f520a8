package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/taptapdesign-jimi/cube-crash/game/engine"
	"github.com/taptapdesign-jimi/cube-crash/game/service"
)

// maxListedMerges caps the legal merges printed under a board
const maxListedMerges = 8

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
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
		"Cube Crash",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Cube Crash - MCP Interface

This is a thin client that proxies all requests to the REST API server.

GAME OBJECTIVE:
Merge numbered tiles. Two tiles summing to exactly 6 crack and leave the board;
clear every tile to complete the level. The run ends when no merge is possible.

AVAILABLE TOOLS:
- game_instructions: Full rules and scoring
- create_session / get_session / list_sessions: Session management
- game_state: Current board with legal merges
- merge: Merge the tile at src into the tile at dst, with an optional intent
- next_level: Deal the next board after a clean board
- restart: Start a new run
- merge_history: Past merges
- describe_cell: Details of one cell
- list_configs: Available rule sets
- leaderboard: Best finished runs

NOTE: The 'intent' parameter on merge is recorded in the server log next to the outcome. Explain your reasoning!`),
	)

	c.registerTools()
}

func sessionProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

func cellProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"x": map[string]interface{}{"type": "integer", "description": "Column (0-based)"},
			"y": map[string]interface{}{"type": "integer", "description": "Row (0-based)"},
		},
		"required": []string{"x", "y"},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session with optional rule set selection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"config_id": map[string]interface{}{
					"type":        "string",
					"description": "Rule set to use (optional, see list_configs)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active game sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	// Game operations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_state",
		Description: "Get the current board, score, moves, combo and wild meter",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGameState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "merge",
		Description: "Merge the tile at src into the tile at dst",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"src":        cellProperty("Tile that moves and disappears"),
				"dst":        cellProperty("Tile that receives the merge"),
				"intent": map[string]interface{}{
					"type":        "string",
					"description": "Brief explanation of the intent behind this merge, logged by the server with the outcome",
				},
			},
			Required: []string{"session_id", "src", "dst"},
		},
	}, c.handleMerge)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "next_level",
		Description: "Deal the next level once the board is clean",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleNextLevel)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "restart",
		Description: "Start a new run from level 1",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleRestart)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "merge_history",
		Description: "Get merge history for a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "Page number",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Items per page",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleMergeHistory)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "describe_cell",
		Description: "Get detailed information about a specific cell: value, stack depth, wild or locked.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"x": map[string]interface{}{
					"type":        "integer",
					"description": "X coordinate (column) of the cell to describe (0-based)",
				},
				"y": map[string]interface{}{
					"type":        "integer",
					"description": "Y coordinate (row) of the cell to describe (0-based)",
				},
			},
			Required: []string{"session_id", "x", "y"},
		},
	}, c.handleDescribeCell)

	// Configuration and scores
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available rule sets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "leaderboard",
		Description: "Best finished runs, optionally for one rule set",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"rules": map[string]interface{}{
					"type":        "string",
					"description": "Rule set name (optional)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Number of entries",
				},
			},
		},
	}, c.handleLeaderboard)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get comprehensive game instructions and rules",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

// apiError is a non-2xx answer from the REST API. Rejected merges still carry
// the result body in Body.
type apiError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error: %d", e.Status)
}

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
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
		raw, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(raw, &errResp)
		return &apiError{Status: resp.StatusCode, Message: errResp.Error, Body: raw}
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// arguments returns the tool call arguments as a map
func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// intArg reads a JSON number argument
func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// coordArg reads an {"x": .., "y": ..} argument
func coordArg(args map[string]interface{}, key string) (engine.Coord, error) {
	obj, ok := args[key].(map[string]interface{})
	if !ok {
		return engine.Coord{}, fmt.Errorf("%s must be an object with x and y", key)
	}
	x, okX := intArg(obj, "x")
	y, okY := intArg(obj, "y")
	if !okX || !okY {
		return engine.Coord{}, fmt.Errorf("%s must have integer x and y", key)
	}
	return engine.Coord{X: x, Y: y}, nil
}

func sessionPath(sessionID, suffix string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	configID, _ := arguments(request)["config_id"].(string)

	body := map[string]string{}
	if configID != "" {
		body["config_id"] = configID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nConfig: %s\n\n%s", session.ID, session.ConfigName, formatGameState(session.GameState))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		fmt.Fprintf(&b, "- %s (Config: %s, Created: %s", s.ID, s.ConfigName, s.CreatedAt.Format("15:04:05"))
		if st := s.GameState; st != nil {
			fmt.Fprintf(&b, ", Level %d, Score %d", st.Level, st.Score)
		}
		b.WriteString(")\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var state engine.State
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatGameState(&state)), nil
}

// mergeBody is the REST merge request
type mergeBody struct {
	Src    engine.Coord `json:"src"`
	Dst    engine.Coord `json:"dst"`
	Intent string       `json:"intent,omitempty"`
}

func (c *Client) handleMerge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	intent, _ := args["intent"].(string)

	src, err := coordArg(args, "src")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dst, err := coordArg(args, "dst")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// the server logs the intent next to the outcome
	body := mergeBody{Src: src, Dst: dst, Intent: intent}

	var result service.MergeResult
	err = c.apiCall(ctx, "POST", sessionPath(sessionID, "/merge"), body, &result)
	if err != nil {
		// Rejected proposals still describe the board
		var apiErr *apiError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity ||
			json.Unmarshal(apiErr.Body, &result) != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	return mcp.NewToolResultText(formatMergeResult(&result)), nil
}

func (c *Client) handleNextLevel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.stateChange(ctx, request, "/next-level")
}

func (c *Client) handleRestart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.stateChange(ctx, request, "/restart")
}

// stateChange posts to a session action that answers {message, state}
func (c *Client) stateChange(ctx context.Context, request mcp.CallToolRequest, suffix string) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var response struct {
		Message string        `json:"message"`
		State   *engine.State `json:"state"`
	}

	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, suffix), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("%s\n\n%s", response.Message, formatGameState(response.State))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleMergeHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	params := url.Values{}
	if page, ok := intArg(args, "page"); ok {
		params.Set("page", fmt.Sprint(page))
	}
	if limit, ok := intArg(args, "limit"); ok {
		params.Set("limit", fmt.Sprint(limit))
	}

	path := sessionPath(sessionID, "/history")
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []service.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Configurations:\n\n")
	for _, config := range configs {
		fmt.Fprintf(&b, "• %s (%s)\n  %s\n  Board: %dx%d, Moves per board: %d\n\n",
			config.ConfigID, config.Name, config.Description, config.Cols, config.Rows, config.MovesPerBoard)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleLeaderboard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	params := url.Values{}
	if rules, _ := args["rules"].(string); rules != "" {
		params.Set("rules", rules)
	}
	if limit, ok := intArg(args, "limit"); ok {
		params.Set("limit", fmt.Sprint(limit))
	}

	path := "/api/leaderboard"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var response struct {
		Entries []service.ScoreEntry `json:"entries"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatLeaderboard(response.Entries)), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := `Cube Crash - Complete Instructions

GAME OBJECTIVE:
Clear the board by cracking tiles. Score as much as you can before no merge is left.

GAME MECHANICS:
• Merge: pick a source tile and a destination tile anywhere on the board
• Small merge: if the two values sum to less than 6, the destination takes the sum,
  its stack depth grows by the source depth (max 4) and the source cell empties
• Crack: if the values sum to exactly 6, both cells empty and new tiles open elsewhere
• Sums above 6 are rejected
• Every committed merge costs one move; moves can reach 0 without ending the run

BOARD LEGEND:
• 1..5 - Plain tile with its value
• 3x2 - Tile of value 3 with stack depth 2
• W4 - Wild tile (shown value 4); a wild always completes a crack
• .  - Locked, empty cell

SCORING:
• Small merge: the new value
• Crack: 6 × depth multiplier × max(1, combo)
  depth multiplier = combined stack depth, 3 for depth 3 or 4
• Clean board bonus: clean bonus × level

COMBO:
• Each merge increases the combo by one
• The combo resets after 2 seconds without a merge

WILD METER:
• Every merge charges the meter, cracks more than small merges
• When the meter passes 1.0 a wild tile spawns on an empty cell
• The first crack of a run always opens a wild tile

CASCADE:
• A crack reopens 2 to 4 empty cells with fresh tiles, more for deeper stacks

LEVEL END:
• Board clean (no active tiles): level complete, call next_level
• No legal merge left: game over, call restart
• Two wild tiles never merge with each other

STRATEGY TIPS:
• Build stacks before cracking them for the depth multiplier
• Chain cracks quickly to keep the combo alive
• Keep a wild for when nothing else sums to 6
• Check the "Legal merges" list under each board

SESSION MANAGEMENT:
- Multiple game sessions can run simultaneously
- Each session keeps its own board, history and rule set
- Use list_configs to pick a rule set when creating a session

Good luck cracking cubes!`

	return mcp.NewToolResultText(instructions), nil
}

func (c *Client) handleDescribeCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	x, okX := intArg(args, "x")
	y, okY := intArg(args, "y")
	if !okX || !okY {
		return mcp.NewToolResultError("x and y must be integers"), nil
	}

	var state engine.State
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if x < 0 || x >= state.Cols || y < 0 || y >= state.Rows || y >= len(state.Grid) || x >= len(state.Grid[y]) {
		return mcp.NewToolResultError(fmt.Sprintf("Coordinates (%d, %d) are out of bounds. Board is %dx%d (x 0-%d, y 0-%d)",
			x, y, state.Cols, state.Rows, state.Cols-1, state.Rows-1)), nil
	}

	return mcp.NewToolResultText(describeTile(engine.Coord{X: x, Y: y}, state.Grid[y][x])), nil
}

// Formatting helpers

func describeTile(at engine.Coord, t engine.Tile) string {
	var kind, description string
	switch {
	case t.Locked:
		kind = "Locked"
		description = "Empty cell. Cracks and wild spawns open tiles here."
	case t.IsWild():
		kind = "Wild"
		description = "Completes a crack with any plain tile. Cannot merge with another wild."
	default:
		kind = "Tile"
		description = fmt.Sprintf("Cracks with a %d. Small merges with values up to %d.", 6-t.Value, 5-t.Value)
		if t.Value >= 5 {
			description = "Cracks with a 1 or a wild."
		}
	}

	return fmt.Sprintf(`Cell at position %s:
━━━━━━━━━━━━━━━━━━━━━━━━
Symbol: %s
Type: %s
Value: %d
Stack depth: %d
Description: %s`,
		at, engine.TileSymbol(t), kind, t.Value, t.StackDepth, description)
}

func formatSessionInfo(session *service.SessionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\nRun: %s\nConfig: %s\nCreated: %s\n",
		session.ID, session.RunID, session.ConfigName,
		session.CreatedAt.Format("2006-01-02 15:04:05"))
	if session.Recovered != "" {
		fmt.Fprintf(&b, "Recovered: saved board was unreadable (%s), a fresh board was dealt\n", session.Recovered)
	}
	b.WriteString("\n")
	b.WriteString(formatGameState(session.GameState))
	return b.String()
}

func formatGameState(state *engine.State) string {
	if state == nil {
		return "No game state available"
	}

	var b strings.Builder
	b.WriteString(engine.Summary(state))
	b.WriteString("\n\n")
	b.WriteString(engine.RenderGrid(state))

	if state.Phase == engine.PhaseEnding {
		switch state.End {
		case engine.EndLevelComplete:
			b.WriteString("\n✨ BOARD CLEAN! Call next_level to continue.")
		case engine.EndGameOver:
			b.WriteString(fmt.Sprintf("\n💀 GAME OVER - final score %d", state.Score))
		}
		return b.String()
	}

	merges := legalMerges(state, maxListedMerges)
	if len(merges) > 0 {
		b.WriteString("\nLegal merges: ")
		parts := make([]string, len(merges))
		for i, m := range merges {
			parts[i] = fmt.Sprintf("%s→%s", m[0], m[1])
		}
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("\n")
	}
	return b.String()
}

// legalMerges lists up to limit proposals the board would accept, cracks first
func legalMerges(state *engine.State, limit int) [][2]engine.Coord {
	type cell struct {
		at engine.Coord
		t  engine.Tile
	}
	var active []cell
	for y, row := range state.Grid {
		for x, t := range row {
			if t.Active() {
				active = append(active, cell{engine.Coord{X: x, Y: y}, t})
			}
		}
	}

	var cracks, small [][2]engine.Coord
	for i, a := range active {
		for _, b := range active[i+1:] {
			if a.t.IsWild() && b.t.IsWild() {
				continue
			}
			pair := [2]engine.Coord{a.at, b.at}
			switch {
			case a.t.IsWild() || b.t.IsWild() || a.t.Value+b.t.Value == 6:
				cracks = append(cracks, pair)
			case a.t.Value+b.t.Value < 6:
				small = append(small, pair)
			}
		}
	}

	out := append(cracks, small...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func formatMergeResult(result *service.MergeResult) string {
	var b strings.Builder
	if result.Success {
		b.WriteString("✓ ")
	} else {
		b.WriteString("✗ ")
	}
	b.WriteString(result.Message)
	b.WriteString("\n")

	if len(result.Events) > 0 {
		b.WriteString("Events:\n")
		for _, event := range result.Events {
			b.WriteString("- ")
			b.WriteString(formatEvent(event))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(formatGameState(result.GameState))
	return b.String()
}

func formatEvent(ev engine.Event) string {
	at := ""
	if ev.Coord != nil {
		at = " " + ev.Coord.String()
	}
	switch ev.Type {
	case engine.EventTileChanged:
		return fmt.Sprintf("%s%s value=%d depth=%d", ev.Type, at, ev.Value, ev.Depth)
	case engine.EventTileSpawned:
		if ev.Wild {
			return fmt.Sprintf("%s%s wild", ev.Type, at)
		}
		return fmt.Sprintf("%s%s value=%d", ev.Type, at, ev.Value)
	case engine.EventScoreChanged:
		return fmt.Sprintf("%s +%d total=%d", ev.Type, ev.Delta, ev.Total)
	case engine.EventComboChanged:
		return fmt.Sprintf("%s x%d", ev.Type, ev.Count)
	case engine.EventWildMeterChanged:
		return fmt.Sprintf("%s %.2f", ev.Type, ev.Ratio)
	case engine.EventBoardClean:
		return fmt.Sprintf("%s bonus=%d", ev.Type, ev.Bonus)
	case engine.EventGameOver:
		return fmt.Sprintf("%s final=%d", ev.Type, ev.FinalScore)
	default:
		return string(ev.Type) + at
	}
}

func formatHistory(history *service.HistoryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Merge History (Page %d/%d, Total: %d):\n\n",
		history.Page, history.TotalPages, history.TotalMerges)

	for _, m := range history.Merges {
		fmt.Fprintf(&b, "%d. %s→%s %s +%d (score %d, moves %d, level %d, combo x%d)",
			m.Seq, m.Src, m.Dst, m.Kind, m.ScoreDelta, m.Score, m.Moves, m.Level, m.Combo)
		if m.Reopened > 0 {
			fmt.Fprintf(&b, " reopened %d", m.Reopened)
		}
		b.WriteString("\n")
	}

	if history.HasNext {
		b.WriteString("\nMore merges on the next page.")
	}
	return b.String()
}

func formatLeaderboard(entries []service.ScoreEntry) string {
	if len(entries) == 0 {
		return "No finished runs yet."
	}

	var b strings.Builder
	b.WriteString("Leaderboard:\n\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%2d. %6d  level %d  %s  (session %s, %s)\n",
			i+1, e.Score, e.Level, e.RulesName, e.SessionID, e.EndedAt.Format("2006-01-02 15:04"))
	}
	return b.String()
}
