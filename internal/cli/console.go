package cli

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/rudransh-shrivastava/meshchat/internal/events"
	"github.com/rudransh-shrivastava/meshchat/internal/history"
	"github.com/rudransh-shrivastava/meshchat/internal/node"
	"github.com/rudransh-shrivastava/meshchat/internal/peer"
	"github.com/samber/lo"
)

// console serialises writes from the REPL and the event printer.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

func (c *console) status(text string) {
	c.println(color.Yellow.Sprintf("* %s", text))
}

func (c *console) message(msg events.Message) {
	if msg.Direction == events.Sent {
		c.println(color.Green.Sprintf("> %s", msg.Text))
		return
	}
	c.println(color.Cyan.Sprintf("< [%s] %s", msg.Remote, msg.Text))
}

func (c *console) errorf(format string, args ...any) {
	c.println(color.Red.Sprintf(format, args...))
}

func (c *console) table(header []string, rows [][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	renderTable(c.out, header, rows)
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.AppendBulk(rows)
	table.Render()
}

// peerRows numbers peers from 1, matching /connect.
func peerRows(peers []peer.Peer) [][]string {
	return lo.Map(peers, func(p peer.Peer, i int) []string {
		return []string{strconv.Itoa(i + 1), p.DisplayName(), p.Address}
	})
}

func historyRows(recs []history.MessageRecord) [][]string {
	return lo.Map(recs, func(r history.MessageRecord, _ int) []string {
		return []string{time.Unix(r.CreatedAt, 0).Format(time.TimeOnly), r.Direction, r.Remote, r.Text}
	})
}

func seenRows(recs []history.PeerRecord) [][]string {
	return lo.Map(recs, func(r history.PeerRecord, _ int) []string {
		p := peer.Peer{Address: r.Address, Name: r.Name}
		return []string{
			p.DisplayName(),
			r.Address,
			time.Unix(r.FirstSeen, 0).Format(time.TimeOnly),
			time.Unix(r.LastSeen, 0).Format(time.TimeOnly),
			strconv.Itoa(r.Sightings),
		}
	})
}

func describeSession(s node.Session) string {
	if s.RemoteAddress == "" {
		return fmt.Sprintf("role=%s state=%s", s.Role, s.State)
	}
	return fmt.Sprintf("role=%s state=%s remote=%s", s.Role, s.State, s.RemoteAddress)
}
