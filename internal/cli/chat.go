package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rudransh-shrivastava/meshchat/internal/events"
	"github.com/rudransh-shrivastava/meshchat/internal/history"
	"github.com/rudransh-shrivastava/meshchat/internal/node"
	"github.com/rudransh-shrivastava/meshchat/internal/peer"
	"github.com/rudransh-shrivastava/meshchat/internal/worker"
	"github.com/spf13/cobra"
)

const defaultHistoryLimit = 20

var autoConnect bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "discover peers and chat interactively",
	Long: `chat starts discovery and the messaging endpoint, then reads commands and
messages from stdin. Type /help for the list of commands; any other line is
sent to the connected peer.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		n, cleanup, err := startNode(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer cleanup()

		store, err := history.Open()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		recSub := n.Subscribe()
		defer recSub.Close()
		uiSub := n.Subscribe()
		defer uiSub.Close()

		c := newChatSession(n, store, newConsole(cmd.OutOrStdout()), autoConnect)

		tasks := worker.NewPool(ctx, log)
		defer tasks.Stop()
		tasks.Go("history recorder", func(ctx context.Context) {
			if err := history.NewRecorder(store, log).Run(ctx, recSub); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Warn("History recorder stopped")
			}
		})
		tasks.Go("event printer", func(ctx context.Context) {
			c.printEvents(ctx, uiSub)
		})

		c.out.status("meshchat " + cfg.Name + " listening on " + n.Addr() + ", type /help")
		if err := n.StartDiscovery(); err != nil {
			return err
		}

		c.run(ctx, cmd.InOrStdin())

		// Stopping the node closes its event streams, which ends both tasks.
		cleanup()
		return tasks.Wait()
	},
}

func init() {
	chatCmd.Flags().BoolVar(&autoConnect, "auto-connect", false, "connect to the first discovered peer")
}

// chatNode is what the chat session needs from a node.
type chatNode interface {
	StartDiscovery() error
	ConnectTo(p peer.Peer) error
	Disconnect() error
	SendMessage(target, text string) error
	Session() node.Session
	Peers() []peer.Peer
}

type chatSession struct {
	node    chatNode
	history *history.Store
	out     *console

	// in range as last reported on the peer stream; owned by printEvents
	inRange     *peer.Registry
	autoConnect bool
	attempted   bool
}

func newChatSession(n chatNode, store *history.Store, out *console, auto bool) *chatSession {
	return &chatSession{
		node:        n,
		history:     store,
		out:         out,
		inRange:     peer.NewRegistry(),
		autoConnect: auto,
	}
}

// run reads stdin until EOF, /quit or ctx is done.
func (c *chatSession) run(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if c.handleLine(ctx, line) {
				return
			}
		}
	}
}

// handleLine executes one input line and reports whether the session should
// end.
func (c *chatSession) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.send(line)
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		c.out.println("/discover  /peers  /connect <n>  /disconnect  /session  /history [n]  /seen  /quit")
	case "/discover":
		c.report(c.node.StartDiscovery())
	case "/peers":
		peers := c.node.Peers()
		if len(peers) == 0 {
			c.out.status("no peers found yet")
			return false
		}
		c.out.table([]string{"#", "Name", "Address"}, peerRows(peers))
	case "/connect":
		c.connect(fields[1:])
	case "/disconnect":
		c.report(c.node.Disconnect())
	case "/session":
		c.out.status(describeSession(c.node.Session()))
	case "/history":
		c.showHistory(ctx, fields[1:])
	case "/seen":
		c.showSeen(ctx)
	default:
		c.out.errorf("unknown command %s, try /help", fields[0])
	}
	return false
}

func (c *chatSession) send(text string) {
	target := c.node.Session().RemoteAddress
	if target == "" {
		c.out.errorf("not connected, use /peers and /connect first")
		return
	}
	c.report(c.node.SendMessage(target, text))
}

func (c *chatSession) connect(args []string) {
	if len(args) != 1 {
		c.out.errorf("usage: /connect <n>")
		return
	}
	i, err := strconv.Atoi(args[0])
	peers := c.node.Peers()
	if err != nil || i < 1 || i > len(peers) {
		c.out.errorf("no peer #%s, see /peers", args[0])
		return
	}
	c.report(c.node.ConnectTo(peers[i-1]))
}

func (c *chatSession) showHistory(ctx context.Context, args []string) {
	if c.history == nil {
		c.out.errorf("history is not available")
		return
	}

	limit := defaultHistoryLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			c.out.errorf("usage: /history [n]")
			return
		}
		limit = n
	}

	recs, err := c.history.Recent(ctx, limit)
	if err != nil {
		c.out.errorf("history: %v", err)
		return
	}
	if len(recs) == 0 {
		c.out.status("no messages yet")
		return
	}
	c.out.table([]string{"Time", "Dir", "Remote", "Text"}, historyRows(recs))
}

// showSeen lists every peer sighted during this run.
func (c *chatSession) showSeen(ctx context.Context) {
	if c.history == nil {
		c.out.errorf("history is not available")
		return
	}

	recs, err := c.history.KnownPeers(ctx)
	if err != nil {
		c.out.errorf("history: %v", err)
		return
	}
	if len(recs) == 0 {
		c.out.status("no peers seen yet")
		return
	}
	c.out.table([]string{"Name", "Address", "First seen", "Last seen", "Sightings"}, seenRows(recs))
}

func (c *chatSession) report(err error) {
	if err != nil {
		c.out.errorf("%v", err)
	}
}

// printEvents renders the node's event streams until they close.
func (c *chatSession) printEvents(ctx context.Context, sub *events.Subscription) {
	status := sub.Status()
	messages := sub.Messages()
	peers := sub.Peers()

	for status != nil || messages != nil || peers != nil {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			c.out.status(st.Text)
			c.onStatus(st.Text)
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			c.out.message(msg)
		case ev, ok := <-peers:
			if !ok {
				peers = nil
				continue
			}
			c.inRange.ReplaceAll(ev.Peers)
			c.out.status(strconv.Itoa(c.inRange.Len()) + " peer(s) in range")
			c.maybeAutoConnect()
		}
	}
}

// maybeAutoConnect connects to the first peer in range once per idle period.
func (c *chatSession) maybeAutoConnect() {
	if !c.autoConnect || c.attempted {
		return
	}
	first, ok := c.inRange.First()
	if !ok || c.node.Session().Established() {
		return
	}
	c.attempted = true
	c.report(c.node.ConnectTo(first))
}

func (c *chatSession) onStatus(text string) {
	if text == "disconnected" || strings.HasPrefix(text, "connect failed") || strings.HasPrefix(text, "negotiation failed") {
		c.attempted = false
	}
}
