package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rudransh-shrivastava/meshchat/internal/discovery"
	"github.com/rudransh-shrivastava/meshchat/internal/peer"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var peersWait time.Duration

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "list peers in range",
	Long:  `peers scans the local network for a while and prints every peer that answered.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		disc, err := newDiscovery(cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = disc.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), peersWait+time.Second)
		defer cancel()

		if err := disc.StartDiscovery(ctx); err != nil {
			return err
		}

		spinner := progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("scanning"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)

		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		deadline := time.After(peersWait)

	scan:
		for {
			select {
			case <-ticker.C:
				_ = spinner.Add(1)
			case <-deadline:
				break scan
			case <-ctx.Done():
				break scan
			}
		}
		_ = spinner.Finish()

		raw, err := disc.RequestPeers(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(raw) == 0 {
			fmt.Fprintln(out, "no peers found")
			return nil
		}

		rows := lo.Map(raw, func(r discovery.RawPeer, i int) []string {
			p := peer.Peer{Address: r.Address, Name: r.Name}
			return []string{strconv.Itoa(i + 1), p.DisplayName(), p.Address, r.Status.String()}
		})
		renderTable(out, []string{"#", "Name", "Address", "Status"}, rows)
		return nil
	},
}

func init() {
	peersCmd.Flags().DurationVar(&peersWait, "wait", 3*time.Second, "how long to scan")
}
