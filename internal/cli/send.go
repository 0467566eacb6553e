package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/gookit/color"
	"github.com/rudransh-shrivastava/meshchat/internal/node"
	"github.com/rudransh-shrivastava/meshchat/internal/transport"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send address text...",
	Short: "send one message and exit",
	Long:  `send opens a connection to address (host or host:port), writes one line and closes it.`,
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[1:], " ")
		if err := checkOutgoing(text, cfg.MaxLineSize); err != nil {
			return err
		}

		sender := transport.NewSender(transport.SenderConfig{
			Port:         cfg.Port,
			DialTimeout:  cfg.DialTimeout,
			WriteTimeout: cfg.WriteTimeout,
			Logger:       log,
		})

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.DialTimeout+cfg.WriteTimeout)
		defer cancel()

		if err := sender.Send(ctx, args[0], text); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), color.Green.Sprintf("message sent to %s", sender.Target(args[0])))
		return nil
	},
}

// checkOutgoing applies the node's send rules to a one-shot message.
func checkOutgoing(text string, maxLineSize int) error {
	if text == "" {
		return fmt.Errorf("%w: empty message", node.ErrInvalidArgument)
	}
	if maxLineSize > 0 && len(text) >= maxLineSize {
		return fmt.Errorf("%w: message of %d bytes exceeds the %d byte line limit", node.ErrInvalidArgument, len(text), maxLineSize-1)
	}
	return nil
}
