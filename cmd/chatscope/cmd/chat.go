package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/recaphq/chatscope/internal/backend"
	"github.com/recaphq/chatscope/internal/chat"
	"github.com/recaphq/chatscope/internal/config"
	"github.com/recaphq/chatscope/internal/events"
	"github.com/recaphq/chatscope/internal/scope"
	"github.com/recaphq/chatscope/internal/session"
)

var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat against the current scope. Commands:

  /content <id>      chat about a single content item
  /collection <id>   chat about a collection
  /global            chat about your whole library
  /web on|off        toggle web augmentation (collection scope only)
  /end               end the current scope's conversation
  /quit              exit`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cobraCmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if token != "" {
		cfg.Auth.Token = token
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if debug || cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}

	tokens := backend.StaticToken(cfg.Auth.Token)
	client := backend.NewHTTPClient(backend.Options{
		BaseURL:          cfg.API.BaseURL,
		Tokens:           tokens,
		RequestTimeoutMs: cfg.API.RequestTimeoutMs,
		Logger:           logger,
	})

	broker := events.NewBroker[chat.Notification]()
	defer broker.Shutdown()

	manager := chat.NewManager(chat.ManagerOptions{
		Client: client,
		Tokens: tokens,
		Logger: logger,
		Broker: broker,
	})

	ctx := context.Background()

	// Trace state transitions without garbling the prompt.
	go func() {
		for ev := range broker.Subscribe(ctx) {
			logger.Debug("event", "type", ev.Type, "scope", ev.Payload.Scope.Key(), "state", ev.Payload.State)
		}
	}()

	sc := manager.Activate(ctx, scope.Selection{})
	printHistory(manager.Snapshot(sc))

	if _, ok := tokens.Token(); !ok {
		fmt.Println(noticeStyle.Render("No credential configured; this conversation will not be saved."))
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render(sc.Key() + " > "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			var quit bool
			sc, quit = handleCommand(ctx, manager, scanner, sc, line)
			if quit {
				return nil
			}
			continue
		}

		outcome, err := manager.Send(ctx, sc, line)
		switch outcome {
		case chat.OutcomeSent, chat.OutcomeFailed:
			printLastReply(manager.Snapshot(sc))
		case chat.OutcomeBlocked:
			fmt.Println(noticeStyle.Render("You've reached your usage limit for now."))
		case chat.OutcomeRejected:
			if err != nil {
				fmt.Println(noticeStyle.Render(err.Error()))
			}
		}
	}
}

// handleCommand executes one slash command and returns the (possibly new)
// active scope and whether the REPL should exit.
func handleCommand(ctx context.Context, manager *chat.Manager, scanner *bufio.Scanner, sc scope.Scope, line string) (scope.Scope, bool) {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/quit", "/exit":
		return sc, true

	case "/global":
		sc = manager.Activate(ctx, scope.Selection{})
		printHistory(manager.Snapshot(sc))

	case "/content":
		if arg == "" {
			fmt.Println(noticeStyle.Render("usage: /content <id>"))
			return sc, false
		}
		sc = manager.Activate(ctx, scope.Selection{ContentID: arg})
		printHistory(manager.Snapshot(sc))

	case "/collection":
		if arg == "" {
			fmt.Println(noticeStyle.Render("usage: /collection <id>"))
			return sc, false
		}
		sc = manager.Activate(ctx, scope.Selection{CollectionID: arg})
		printHistory(manager.Snapshot(sc))

	case "/web":
		on := manager.SetWebSearch(arg == "on")
		fmt.Println(noticeStyle.Render(fmt.Sprintf("web augmentation: %v", on)))

	case "/end":
		req, err := manager.RequestTermination(sc)
		if err != nil {
			fmt.Println(noticeStyle.Render(err.Error()))
			return sc, false
		}
		fmt.Print(noticeStyle.Render("End this conversation? This cannot be undone. [y/N] "))
		if !scanner.Scan() || strings.ToLower(strings.TrimSpace(scanner.Text())) != "y" {
			fmt.Println(noticeStyle.Render("kept."))
			return sc, false
		}
		if err := manager.Terminate(ctx, req); err != nil {
			fmt.Println(noticeStyle.Render("could not end conversation: " + err.Error()))
			return sc, false
		}
		fmt.Println(noticeStyle.Render("conversation ended."))

	default:
		fmt.Println(noticeStyle.Render("unknown command: " + fields[0]))
	}
	return sc, false
}

func printHistory(snap session.Snapshot) {
	for _, msg := range snap.Messages {
		printMessage(msg)
	}
}

func printLastReply(snap session.Snapshot) {
	if len(snap.Messages) == 0 {
		return
	}
	last := snap.Messages[len(snap.Messages)-1]
	if last.Role == session.RoleAssistant {
		printMessage(last)
	}
}

func printMessage(msg session.Message) {
	switch msg.Role {
	case session.RoleAssistant:
		fmt.Println(assistantStyle.Render(msg.Content))
		for _, src := range msg.Sources {
			label := src.Title
			if label == "" {
				label = src.ContentID
			}
			if src.URL != "" {
				label = fmt.Sprintf("%s (%s)", label, src.URL)
			}
			fmt.Println(sourceStyle.Render("  ↳ " + label))
		}
	default:
		fmt.Println("you: " + msg.Content)
	}
}
