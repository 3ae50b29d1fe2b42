package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haimi-h/shopify-clone-sub000/internal/chat"
	"github.com/haimi-h/shopify-clone-sub000/internal/chat/ws"
	"github.com/haimi-h/shopify-clone-sub000/internal/render"
)

const chatHelp = `Commands:
  /open    show the chat and connect
  /close   hide the chat and end the conversation
  /toggle  show or hide the chat
  /help    show this help
  /quit    leave
Anything else is sent to support.`

type chatFlags struct {
	configPath string
	hidden     bool
	noColor    bool
	debug      bool
}

func newChatCmd() *cobra.Command {
	var f chatFlags

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the support chat",
		Long: `Opens the support chat for the signed-in user.

The connection exists only while the chat is shown: /close ends it and
forgets the conversation, /open starts a fresh one. Messages can be sent
once the chat shows as open.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", defaultConfigPath, "path to helpline config file")
	cmd.Flags().BoolVar(&f.hidden, "hidden", false, "start with the chat hidden")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "disable colored output")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "log connection activity to stderr")
	return cmd
}

func runChat(cmd *cobra.Command, f chatFlags) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	if cfg.Realtime.WSURL == "" {
		return fmt.Errorf("chat: no realtime endpoint configured (set realtime.ws_url or HELPLINE_WS_URL)")
	}
	store, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, !f.debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctrl, err := chat.NewController(chat.ControllerOpts{
		Transport: ws.NewTransport(ws.TransportOpts{
			HandshakeTimeout: cfg.DialTimeout(),
			Logger:           log,
		}),
		Store:       store,
		Endpoint:    cfg.Realtime.WSURL,
		Logger:      log,
		DialTimeout: cfg.DialTimeout(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()

	color := false
	if file, ok := out.(*os.File); ok {
		color = !f.noColor && render.IsTerminal(file)
	}
	session := &chatSession{
		ctrl:     ctrl,
		renderer: render.New(out, render.Options{Color: color}),
		out:      out,
	}

	if !f.hidden {
		if err := ctrl.Open(ctx); err != nil {
			cancel()
			<-runErr
			return err
		}
	}
	fmt.Fprintln(out, "Type /help for commands.")

	loopErr := session.loop(ctx, readLines(ctx, cmd.InOrStdin()))
	cancel()
	if err := <-runErr; err != nil {
		return err
	}
	return loopErr
}

// chatSession drives a Controller from terminal input.
type chatSession struct {
	ctrl     *chat.Controller
	renderer *render.Renderer
	out      io.Writer
}

func (s *chatSession) loop(ctx context.Context, lines <-chan string) error {
	updates := s.ctrl.Updates()
	for {
		select {
		case <-ctx.Done():
			return nil

		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if err := s.renderer.Render(snap); err != nil {
				return err
			}

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := s.handle(ctx, line)
			if err != nil || quit {
				return err
			}
		}
	}
}

func (s *chatSession) handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(s.out, chatHelp)
		return false, nil
	case "/open":
		return false, s.ctrl.Open(ctx)
	case "/close":
		return false, s.ctrl.Close(ctx)
	case "/toggle":
		return false, s.ctrl.Toggle(ctx)
	}
	if strings.HasPrefix(line, "/") {
		fmt.Fprintf(s.out, "Unknown command %s. Type /help for commands.\n", line)
		return false, nil
	}

	snap, err := s.ctrl.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	switch {
	case snap.CanSend:
		_, err := s.ctrl.Send(ctx, line)
		return false, err
	case snap.Visible && snap.State == chat.StateConnecting:
		fmt.Fprintln(s.out, "Connecting to support, message not sent.")
	case !snap.Visible:
		fmt.Fprintln(s.out, "Chat is hidden. Type /open first.")
	case snap.UserID == "":
		fmt.Fprintln(s.out, "Not logged in. Run `helpline login` first.")
	default:
		fmt.Fprintln(s.out, "Not connected. Type /close then /open to retry.")
	}
	return false, nil
}

// readLines streams lines from r; the channel closes at EOF.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
