// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL for polychat.
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /new                Start a new conversation
//   /list               List stored conversations
//   /open N             Switch to conversation N from /list
//   /delete N           Delete conversation N from /list
//   /model [prov:name]  Show or switch provider and model
//   /key PROVIDER       Store an API key (no-echo entry)
//   /keys               Show configured providers with key fingerprints
//   /history            Show the current conversation
//   /reasoning          Show the last reply's reasoning
//   /quit, /q           Exit
//   Ctrl+D              Exit
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"polychat/internal/config"
	"polychat/internal/credentials"
	"polychat/internal/gateway"
	"polychat/internal/model"
	"polychat/internal/reconciler"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	cli := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	cli.LoadHistory()
	return cli
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt. Non-empty input is
// added to history for arrow-key navigation.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history to file with secure permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// Session holds the state for an interactive chat session.
type Session struct {
	Config    *config.Config
	Gateway   *gateway.Gateway
	Rec       *reconciler.Reconciler
	Creds     *credentials.Store
	Selection model.ModelSelection

	// Conversations loaded or created this session, most recent first.
	Conversations []*model.Conversation
	Current       *model.Conversation

	InputCLI *ChatCLI
}

// NewSession wires a session from its collaborators and loads the stored
// conversations for the configured profile.
func NewSession(cfg *config.Config, gw *gateway.Gateway, rec *reconciler.Reconciler, creds *credentials.Store) (*Session, error) {
	s := &Session{
		Config:  cfg,
		Gateway: gw,
		Rec:     rec,
		Creds:   creds,
		Selection: model.ModelSelection{
			Provider:  cfg.Provider,
			ModelName: cfg.Model,
		},
	}

	loaded, err := rec.Load(context.Background())
	if err != nil {
		return nil, err
	}
	s.Conversations = loaded
	s.Current = model.NewConversation()
	s.Conversations = append([]*model.Conversation{s.Current}, s.Conversations...)
	return s, nil
}

// =============================================================================
// REPL
// =============================================================================

// Run drives the interactive loop until the user exits.
func (s *Session) Run() error {
	s.InputCLI = NewChatCLI()

	// A terminating signal must restore the terminal and flush before the
	// process dies; liner leaves the tty in raw mode otherwise.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		if _, ok := <-sigChan; ok {
			fmt.Println()
			s.Shutdown()
			os.Exit(0)
		}
	}()

	s.printWelcome()

	for {
		input, err := s.InputCLI.ReadInput("polychat> ")
		if err != nil {
			// Ctrl+C or Ctrl+D exits after a final flush.
			fmt.Println()
			s.Shutdown()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldContinue, err := s.handleSlashCommand(input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[Error] %v\n", err)
			}
			if !shouldContinue {
				s.Shutdown()
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			s.Shutdown()
			return nil
		}

		if err := s.processMessage(input); err != nil {
			fmt.Fprintf(os.Stderr, "[Error] %v\n", err)
		}
	}
}

// Shutdown restores the terminal (saving input history) and flushes unsaved
// conversations. Every exit path, including signal-driven exits, goes
// through here. Safe to call when the liner was never opened.
func (s *Session) Shutdown() {
	if s.InputCLI != nil {
		s.InputCLI.Close()
		s.InputCLI = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Rec.Flush(ctx)
	fmt.Println("Goodbye!")
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage runs one exchange: append the user's turn, call the
// selected provider, append the reply. A missing credential keeps the typed
// message but asks for /key instead of calling out; any other provider
// failure lands in the conversation as a synthetic assistant reply.
func (s *Session) processMessage(input string) error {
	conv := s.Current
	s.Rec.StartExchange(conv, model.NewUserMessage(input))

	prompt := gateway.LinearizePrompt(conv.Messages)
	reply, err := s.Gateway.Invoke(context.Background(), s.Selection, prompt)
	if err != nil {
		if errors.Is(err, gateway.ErrCredentialRequired) {
			fmt.Printf("No API key stored for %q. Run: /key %s\n",
				s.Selection.Provider, s.Selection.Provider)
			return nil
		}
		if errors.Is(err, gateway.ErrUnsupportedProvider) {
			return err
		}

		failure := gateway.FailureMessage(s.Selection, err)
		fmt.Println()
		fmt.Printf("%s: %s\n\n", failure.Role.DisplayName(), failure.Content)
		if saveErr := s.Rec.CompleteExchange(context.Background(), conv, failure); saveErr != nil {
			fmt.Fprintf(os.Stderr, "[Warning] conversation not saved: %v\n", saveErr)
		}
		return nil
	}

	fmt.Println()
	fmt.Println(reply.VisibleText)
	fmt.Println()

	assistant := model.NewAssistantMessage(reply.VisibleText, reply.ReasoningText, reply.Provider, reply.Model)
	if err := s.Rec.CompleteExchange(context.Background(), conv, assistant); err != nil {
		fmt.Fprintf(os.Stderr, "[Warning] conversation not saved: %v\n", err)
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func (s *Session) handleSlashCommand(cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		s.printHelp()
		return true, nil

	case "/new":
		s.switchTo(s.newConversation())
		fmt.Println("[New conversation]")
		return true, nil

	case "/list", "/l":
		s.printList()
		return true, nil

	case "/open", "/o":
		return true, s.handleOpen(args)

	case "/delete", "/del":
		return true, s.handleDelete(args)

	case "/model", "/m":
		return true, s.handleModel(args)

	case "/key", "/k":
		return true, s.handleKey(args)

	case "/keys":
		s.printKeys()
		return true, nil

	case "/history":
		s.printHistory()
		return true, nil

	case "/reasoning", "/r":
		s.printReasoning()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// newConversation creates and registers a fresh conversation at the top of
// the list.
func (s *Session) newConversation() *model.Conversation {
	conv := model.NewConversation()
	s.Conversations = append([]*model.Conversation{conv}, s.Conversations...)
	return conv
}

// switchTo flushes pending writes and makes conv the active conversation.
func (s *Session) switchTo(conv *model.Conversation) {
	s.Rec.Flush(context.Background())
	s.Current = conv
}

// handleOpen switches to a conversation by /list position.
func (s *Session) handleOpen(args []string) error {
	conv, err := s.conversationAt(args)
	if err != nil {
		return err
	}
	s.switchTo(conv)
	fmt.Printf("[Opened] %s\n", conv.DeriveTitle())
	for _, msg := range conv.Messages {
		fmt.Printf("%s: %s\n", msg.Role.DisplayName(), msg.Content)
	}
	return nil
}

// handleDelete removes a conversation by /list position.
func (s *Session) handleDelete(args []string) error {
	conv, err := s.conversationAt(args)
	if err != nil {
		return err
	}

	if err := s.Rec.Delete(context.Background(), conv); err != nil {
		return err
	}
	for i, c := range s.Conversations {
		if c == conv {
			s.Conversations = append(s.Conversations[:i], s.Conversations[i+1:]...)
			break
		}
	}
	if s.Current == conv {
		s.Current = s.newConversation()
	}
	fmt.Println("[Deleted]")
	return nil
}

// conversationAt resolves a 1-based /list index argument.
func (s *Session) conversationAt(args []string) (*model.Conversation, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: /open N (see /list)")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(s.Conversations) {
		return nil, fmt.Errorf("no conversation %q (see /list)", args[0])
	}
	return s.Conversations[n-1], nil
}

// handleModel shows or switches the provider and model selection.
func (s *Session) handleModel(args []string) error {
	if len(args) == 0 {
		fmt.Printf("[Model] %s:%s\n", s.Selection.Provider, s.Selection.ModelName)
		fmt.Printf("[Providers] %s\n", strings.Join(s.Gateway.Providers(), ", "))
		return nil
	}

	providerName, modelName, _ := strings.Cut(args[0], ":")
	found := false
	for _, name := range s.Gateway.Providers() {
		if name == providerName {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown provider %q (known: %s)",
			providerName, strings.Join(s.Gateway.Providers(), ", "))
	}

	s.Selection = model.ModelSelection{Provider: providerName, ModelName: modelName}
	fmt.Printf("[OK] Switched to %s:%s\n", providerName, modelName)

	if !s.Selection.IsLocal() {
		if _, ok := s.Creds.Get(providerName); !ok {
			fmt.Printf("No API key stored for %q yet. Run: /key %s\n", providerName, providerName)
		}
	}
	return nil
}

// handleKey stores an API key for a provider via no-echo entry.
func (s *Session) handleKey(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /key PROVIDER")
	}
	providerName := args[0]

	secret, err := ReadSecret(fmt.Sprintf("API key for %s: ", providerName))
	if err != nil {
		return err
	}
	if secret == "" {
		return fmt.Errorf("empty key, nothing stored")
	}
	if err := s.Creds.Set(providerName, secret); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	fmt.Printf("[OK] Key stored for %s (fingerprint %s)\n",
		providerName, s.Creds.Fingerprint(providerName))
	return nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

func (s *Session) printWelcome() {
	fmt.Println()
	fmt.Println("polychat interactive chat")
	fmt.Println(strings.Repeat("─", 30))
	fmt.Printf("Model:    %s:%s\n", s.Selection.Provider, s.Selection.ModelName)
	fmt.Printf("Profile:  %s\n", s.Config.Profile)
	fmt.Printf("Stored:   %d conversations\n", len(s.Conversations)-1)
	fmt.Println()
	fmt.Println("Type your message and press Enter. Commands: /help, /quit")
	fmt.Println()
}

func (s *Session) printHelp() {
	fmt.Println()
	fmt.Println("Available Commands")
	fmt.Println(strings.Repeat("─", 20))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/new", "Start a new conversation"},
		{"/list, /l", "List conversations"},
		{"/open N", "Switch to conversation N"},
		{"/delete N", "Delete conversation N"},
		{"/model [prov:name]", "Show or switch provider and model"},
		{"/key PROVIDER", "Store an API key (input hidden)"},
		{"/keys", "Show configured providers"},
		{"/history", "Show the current conversation"},
		{"/reasoning, /r", "Show the last reply's reasoning"},
		{"/quit, /q", "Exit"},
	}
	for _, c := range commands {
		fmt.Printf("  %-20s %s\n", c.cmd, c.desc)
	}
	fmt.Println()
}

func (s *Session) printList() {
	fmt.Println()
	for i, conv := range s.Conversations {
		marker := " "
		if conv == s.Current {
			marker = "*"
		}
		fmt.Printf("%s %2d. %s (%d messages, %s)\n",
			marker, i+1, conv.DeriveTitle(), conv.MessageCount(), conv.State())
	}
	fmt.Println()
}

func (s *Session) printKeys() {
	names := s.Creds.Providers()
	if len(names) == 0 {
		fmt.Println("[No API keys stored]")
		return
	}
	for _, name := range names {
		fmt.Printf("  %-12s fingerprint %s\n", name, s.Creds.Fingerprint(name))
	}
}

func (s *Session) printHistory() {
	if s.Current.IsEmpty() {
		fmt.Println("[No messages yet]")
		return
	}

	fmt.Println()
	for i, msg := range s.Current.Messages {
		fmt.Printf("  %d. %s: %s\n", i+1, msg.Role.DisplayName(), msg.Preview(100))
	}
	fmt.Println()
}

// printReasoning shows the reasoning attached to the most recent assistant
// reply in the current conversation.
func (s *Session) printReasoning() {
	for i := len(s.Current.Messages) - 1; i >= 0; i-- {
		msg := s.Current.Messages[i]
		if msg.Role == model.RoleAssistant {
			if msg.Reasoning == "" {
				fmt.Println("[No reasoning recorded]")
			} else {
				fmt.Println()
				fmt.Println(msg.Reasoning)
				fmt.Println()
			}
			return
		}
	}
	fmt.Println("[No assistant reply yet]")
}
