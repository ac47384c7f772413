package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/toolchat/chat"
	"github.com/aschepis/backscratcher/toolchat/client"
	"github.com/aschepis/backscratcher/toolchat/config"
	toolchatlogger "github.com/aschepis/backscratcher/toolchat/logger"
	"github.com/rs/zerolog"
)

const helpText = `Commands:
  /connect <url>   connect to a tool server
  /disconnect      drop the tool server session
  /tools           list connected tools
  /providers       list providers
  /use <provider>  switch provider (gemini, claude, chatgpt, ollama)
  /new             start a new conversation
  /quit            exit`

func main() {
	var (
		gateway  = flag.String("gateway", "", "Gateway URL (overrides gateway_url)")
		userID   = flag.String("user", "", "Caller identity (overrides user_id)")
		provider = flag.String("provider", "", "Provider id (overrides provider)")
		toolsURL = flag.String("connect", "", "Tool server to connect to on startup")
		message  = flag.String("m", "", "Send a single message and exit")
		logFile  = flag.String("logfile", toolchatlogger.DefaultLogFile, "Path to log file")
	)
	flag.Parse()

	logger, err := toolchatlogger.InitWithOptions(*logFile, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	clientConfig, err := config.LoadClientConfig(config.GetClientConfigPath())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load client configuration, using defaults")
		clientConfig = &config.ClientConfig{
			GatewayURL:  client.DefaultAddress,
			UserID:      "default-user",
			ChatTimeout: 120,
		}
	}
	if *gateway != "" {
		clientConfig.GatewayURL = *gateway
	}
	if *userID != "" {
		clientConfig.UserID = *userID
	}
	if *provider != "" {
		clientConfig.Provider = *provider
	}

	c, err := client.Connect(clientConfig.GatewayURL, time.Duration(clientConfig.ChatTimeout)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	s := &session{
		client:   c,
		userID:   clientConfig.UserID,
		provider: clientConfig.Provider,
		out:      os.Stdout,
		logger:   logger.With().Str("component", "cli").Logger(),
	}
	if *toolsURL != "" {
		s.connect(*toolsURL)
	}
	if *message != "" {
		if !s.send(*message) {
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(s.out, "toolchat: %s as %s (/help for commands)\n", clientConfig.GatewayURL, s.userID)
	s.loop(os.Stdin)
}

// session is the interactive state of one CLI run.
type session struct {
	client         *client.Client
	userID         string
	provider       string
	history        []chat.Message
	conversationID *string
	out            io.Writer
	logger         zerolog.Logger
}

func (s *session) loop(in io.Reader) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if !s.command(line) {
				return
			}
			continue
		}
		s.send(line)
	}
}

// command runs a slash command and reports whether the loop should continue.
func (s *session) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return false
	case "/help":
		fmt.Fprintln(s.out, helpText)
	case "/connect":
		if arg == "" {
			fmt.Fprintln(s.out, "usage: /connect <url>")
			break
		}
		s.connect(arg)
	case "/disconnect":
		if err := s.client.DisconnectTools(context.Background(), s.userID); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			break
		}
		fmt.Fprintln(s.out, "disconnected")
	case "/tools":
		status, err := s.client.Tools(context.Background(), s.userID)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			break
		}
		if !status.Connected {
			fmt.Fprintln(s.out, "not connected")
			break
		}
		fmt.Fprintf(s.out, "%s\n", status.ServerURL)
		for _, tool := range status.Tools {
			fmt.Fprintf(s.out, "  %-24s %s\n", tool.Name, tool.Description)
		}
	case "/providers":
		providers, def, err := s.client.Providers(context.Background())
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			break
		}
		for _, p := range providers {
			marker := " "
			if p.ID == def {
				marker = "*"
			}
			fmt.Fprintf(s.out, "%s %-8s %-8s configured=%t\n", marker, p.ID, p.Name, p.Configured)
		}
	case "/use":
		s.provider = arg
		fmt.Fprintf(s.out, "provider: %s\n", displayProvider(arg))
	case "/new":
		s.history = nil
		s.conversationID = nil
		fmt.Fprintln(s.out, "new conversation")
	default:
		fmt.Fprintf(s.out, "unknown command %s\n", name)
	}
	return true
}

func displayProvider(p string) string {
	if p == "" {
		return "(gateway default)"
	}
	return p
}

func (s *session) connect(serverURL string) {
	tools, err := s.client.ConnectTools(context.Background(), serverURL, s.userID)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "connected to %s (%d tools)\n", serverURL, len(tools))
}

// send runs one turn and prints its tool results and answer.
func (s *session) send(text string) bool {
	messages := append(append([]chat.Message{}, s.history...), chat.Message{Role: chat.RoleUser, Content: text})

	result, err := s.client.Chat(context.Background(), &chat.TurnRequest{
		Messages:       messages,
		ProviderID:     s.provider,
		ConversationID: s.conversationID,
		CallerID:       s.userID,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Chat turn failed")
		fmt.Fprintf(s.out, "error: %v\n", err)
		return false
	}

	for _, tr := range result.ToolResults {
		if tr.Failed() {
			fmt.Fprintf(s.out, "[%s failed: %s]\n", tr.ToolName, tr.Error)
			continue
		}
		fmt.Fprintf(s.out, "[%s -> %s]\n", tr.ToolName, chatText(tr.Result))
	}
	for _, msg := range result.Messages {
		fmt.Fprintln(s.out, chatText(msg.Content))
	}

	s.history = append(messages, result.Messages...)
	if result.ConversationID != nil {
		s.conversationID = result.ConversationID
	}
	return true
}

func chatText(v interface{}) string {
	text, err := chat.ContentText(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return text
}
