package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/joinly-ai/joinly/internal/logging"
	"github.com/joinly-ai/joinly/internal/resources"
	"github.com/joinly-ai/joinly/internal/transcript"
)

// maxToolRounds bounds how many model/tool iterations one transcript
// update may trigger.
const maxToolRounds = 8

// Config holds the conversational client configuration.
type Config struct {
	// ServerURL is the streamable HTTP endpoint of the joinly server.
	ServerURL string
	// MeetingURL is the meeting to join after connecting.
	MeetingURL string
	// Name is the participant name. With NameTrigger set, it is also
	// the word that must appear in an utterance to get a response.
	Name string
	// Lang is the language hint used in the system prompt.
	Lang string

	ModelName     string
	ModelProvider string
	NameTrigger   bool

	// Model overrides the chat model, mainly for tests. When nil it is
	// built from ModelName and ModelProvider.
	Model  ChatModel
	Logger *slog.Logger
}

// Client is a conversational agent attached to a joinly server.
type Client struct {
	cfg   Config
	log   *slog.Logger
	model ChatModel

	mcp      *mcpclient.Client
	tools    []ToolDef
	messages []Message
	lastTime float64
	updates  chan struct{}
}

// New creates a client. The MCP connection is established by Run.
func New(cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if cfg.MeetingURL == "" {
		return nil, fmt.Errorf("meeting URL is required")
	}
	if cfg.Name == "" {
		cfg.Name = "joinly"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	model := cfg.Model
	if model == nil {
		var err error
		model, err = NewChatModel(cfg.ModelName, cfg.ModelProvider)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		cfg:      cfg,
		log:      logging.WithService(cfg.Logger, "client"),
		model:    model,
		lastTime: -1,
		updates:  make(chan struct{}, 1),
	}, nil
}

// Run connects to the server, joins the meeting, and answers transcript
// updates until the context is canceled.
func (c *Client) Run(ctx context.Context) error {
	mc, err := mcpclient.NewStreamableHttpClient(c.cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("create MCP client: %w", err)
	}
	c.mcp = mc
	defer func() { _ = mc.Close() }()

	mc.OnNotification(func(n mcp.JSONRPCNotification) {
		if n.Method != "notifications/resources/updated" {
			return
		}
		if uri, ok := n.Params.AdditionalFields["uri"].(string); !ok || uri != resources.TranscriptURI {
			return
		}
		select {
		case c.updates <- struct{}{}:
		default:
		}
	})

	if err := mc.Start(ctx); err != nil {
		return fmt.Errorf("start MCP transport: %w", err)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{Name: "joinly-client", Version: "1.0.0"}
	if _, err := mc.Initialize(ctx, initRequest); err != nil {
		return fmt.Errorf("initialize MCP session: %w", err)
	}

	subscribeRequest := mcp.SubscribeRequest{}
	subscribeRequest.Params.URI = resources.TranscriptURI
	if err := mc.Subscribe(ctx, subscribeRequest); err != nil {
		return fmt.Errorf("subscribe to transcript: %w", err)
	}

	if err := c.loadTools(ctx); err != nil {
		return err
	}

	c.messages = []Message{{Role: "system", Content: systemPrompt(c.cfg.Name, c.cfg.Lang)}}

	c.log.Info("joining meeting", "url", c.cfg.MeetingURL)
	if _, err := c.callTool(ctx, "join_meeting", map[string]any{
		"meeting_url":      c.cfg.MeetingURL,
		"participant_name": c.cfg.Name,
	}); err != nil {
		return fmt.Errorf("join meeting: %w", err)
	}
	defer c.leaveMeeting()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.updates:
		}

		segments, err := c.fetchNewSegments(ctx)
		if err != nil {
			c.log.Warn("failed to fetch transcript update", logging.Err(err))
			continue
		}
		if len(segments) == 0 {
			continue
		}
		for _, s := range segments {
			c.log.Info("heard", "speaker", speakerName(s), "text", s.Text)
		}

		if c.cfg.NameTrigger && !mentionsName(segments, c.cfg.Name) {
			continue
		}

		for _, s := range segments {
			c.messages = append(c.messages, Message{
				Role:    "user",
				Name:    speakerName(s),
				Content: s.Text,
			})
		}

		if err := c.respond(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("agent turn failed", logging.Err(err))
		}
	}
}

// respond runs model/tool rounds until the model stops calling tools.
func (c *Client) respond(ctx context.Context) error {
	for round := 0; round < maxToolRounds; round++ {
		reply, err := c.model.Chat(ctx, c.messages, c.tools)
		if err != nil {
			return err
		}
		c.messages = append(c.messages, reply)

		if len(reply.ToolCalls) == 0 {
			if reply.Content != "" {
				c.log.Info("agent", "text", reply.Content)
			}
			return nil
		}

		for _, call := range reply.ToolCalls {
			c.log.Info("tool call", "tool", call.Name)
			text, err := c.callTool(ctx, call.Name, call.Arguments)
			if err != nil {
				text = fmt.Sprintf("tool %s failed: %v", call.Name, err)
			}
			c.messages = append(c.messages, Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    text,
			})
		}
	}
	return fmt.Errorf("gave up after %d tool rounds", maxToolRounds)
}

func (c *Client) loadTools(ctx context.Context) error {
	result, err := c.mcp.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	c.tools = c.tools[:0]
	for _, t := range result.Tools {
		def := ToolDef{Name: t.Name, Description: t.Description}
		if raw, err := json.Marshal(t.InputSchema); err == nil {
			_ = json.Unmarshal(raw, &def.Schema)
		}
		c.tools = append(c.tools, def)
	}
	return nil
}

func (c *Client) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = args

	result, err := c.mcp.CallTool(ctx, request)
	if err != nil {
		return "", err
	}
	text := resultText(result)
	if result.IsError {
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

// fetchNewSegments reads the live transcript and returns the segments
// that started after the last seen one.
func (c *Client) fetchNewSegments(ctx context.Context) ([]transcript.Segment, error) {
	request := mcp.ReadResourceRequest{}
	request.Params.URI = resources.TranscriptURI

	result, err := c.mcp.ReadResource(ctx, request)
	if err != nil {
		return nil, err
	}
	if len(result.Contents) == 0 {
		return nil, fmt.Errorf("empty transcript resource")
	}
	text, ok := mcp.AsTextResourceContents(result.Contents[0])
	if !ok {
		return nil, fmt.Errorf("unexpected transcript resource contents")
	}

	var tr transcript.Transcript
	if err := json.Unmarshal([]byte(text.Text), &tr); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}

	fresh := segmentsAfter(&tr, c.lastTime)
	if len(fresh) > 0 {
		c.lastTime = fresh[len(fresh)-1].Start
	}
	return fresh, nil
}

func (c *Client) leaveMeeting() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := c.callTool(ctx, "leave_meeting", nil); err != nil {
		c.log.Warn("failed to leave meeting", logging.Err(err))
	}
}

func segmentsAfter(tr *transcript.Transcript, after float64) []transcript.Segment {
	var out []transcript.Segment
	for _, s := range tr.Segments() {
		if s.Start > after {
			out = append(out, s)
		}
	}
	return out
}

func mentionsName(segments []transcript.Segment, name string) bool {
	needle := strings.ToLower(name)
	for _, s := range segments {
		if strings.Contains(strings.ToLower(s.Text), needle) {
			return true
		}
	}
	return false
}

func speakerName(s transcript.Segment) string {
	if s.Speaker == "" {
		return "Unknown"
	}
	return s.Speaker
}

func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func systemPrompt(name, lang string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s. ", time.Now().UTC().Format("02.01.2006"))
	fmt.Fprintf(&b, "You are %s, a professional and knowledgeable meeting assistant. ", name)
	b.WriteString("Provide concise, valuable contributions in the meeting. ")
	b.WriteString("You receive real-time transcripts from the ongoing meeting as user messages. ")
	b.WriteString("Respond as a meeting participant using the speak_text tool and/or send a message to the chat. ")
	b.WriteString("Never answer with plain messages, only through the tools provided to you. ")
	b.WriteString("If your speech gets interrupted, stop your response. ")
	if lang != "" {
		fmt.Fprintf(&b, "Respond in language %q. ", lang)
	}
	return strings.TrimSpace(b.String())
}
