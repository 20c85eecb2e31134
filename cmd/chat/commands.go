package main

import (
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/filebus-org/go-filebus/pkg/bridge"
	"github.com/filebus-org/go-filebus/pkg/channel"
)

var createCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Create a new channel file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := channel.Create(args[0]); err != nil {
			return err
		}
		fmt.Printf("Created: %s\n", args[0])
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <file> <handle> <message>",
	Short: "Append a message to a channel",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, handle, message := args[0], args[1], args[2]
		if handle == "" {
			return fmt.Errorf("handle must not be empty: %w", errBadArgs)
		}
		index, err := channel.Send(path, handle, message)
		if err != nil {
			return err
		}
		// Queue notification happens after the message is durably in
		// the channel; its failure never undoes the send.
		if human, _ := cmd.Flags().GetBool("human"); human {
			bridge.HumanInput(path, handle, message)
		} else {
			bridge.AfterSend(path, handle, message)
		}
		fmt.Printf("Sent [%d]\n", index)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <file>",
	Short: "Print channel messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lastN, _ := cmd.Flags().GetInt("last")
		afterIdx, _ := cmd.Flags().GetInt("after")
		sinceHandle, _ := cmd.Flags().GetString("since")
		unreadHandle, _ := cmd.Flags().GetString("unread")

		selectors := 0
		for _, set := range []bool{afterIdx >= 0, sinceHandle != "", unreadHandle != ""} {
			if set {
				selectors++
			}
		}
		if selectors > 1 {
			return fmt.Errorf("--after, --since and --unread are mutually exclusive: %w", errBadArgs)
		}

		if unreadHandle != "" {
			msgs, err := channel.ReadUnread(args[0], unreadHandle)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Printf("%s: %s\n", m.Handle, m.Content)
			}
			return nil
		}

		state, err := channel.Read(args[0])
		if err != nil {
			return err
		}
		msgs := state.Messages
		if sinceHandle != "" {
			msgs = channel.SinceOwnPost(state, sinceHandle)
		}
		if afterIdx >= 0 {
			msgs = channel.AfterIndex(state, afterIdx)
		}
		if lastN >= 0 && len(msgs) > lastN {
			msgs = msgs[len(msgs)-lastN:]
		}
		for _, m := range msgs {
			fmt.Printf("%s: %s\n", m.Handle, m.Content)
		}
		return nil
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll <file> <handle>",
	Short: "Wait for a message from another handle",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		seconds, _ := cmd.Flags().GetInt("timeout")
		if seconds <= 0 {
			return fmt.Errorf("--timeout must be positive: %w", errBadArgs)
		}
		msg, err := channel.Poll(args[0], args[1], time.Duration(seconds)*time.Second)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", msg.Handle, msg.Content)
		return nil
	},
}

var participantsCmd = &cobra.Command{
	Use:   "participants <file>",
	Short: "List participants and message counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		participants, err := channel.Participants(args[0])
		if err != nil {
			return err
		}
		for _, p := range participants {
			fmt.Printf("%-24s %d messages\n", p.Handle, p.Count)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <file> <pattern>",
	Short: "Search message payloads with a regular expression",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := regexp.Compile(args[1]); err != nil {
			return fmt.Errorf("bad pattern %q: %v: %w", args[1], err, errBadArgs)
		}
		handle, _ := cmd.Flags().GetString("handle")
		matches, err := channel.Search(args[0], args[1], handle)
		if err != nil {
			return err
		}
		for _, m := range matches {
			fmt.Printf("[%d] %s: %s\n", m.Index, m.Message.Handle, m.Message.Content)
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().Bool("human", false, "mark the message as typed by a human operator")

	readCmd.Flags().Int("last", -1, "show only the last N messages")
	readCmd.Flags().Int("after", -1, "show messages with index greater than N")
	readCmd.Flags().String("since", "", "show messages after this handle's last post")
	readCmd.Flags().String("unread", "", "show unseen messages for this handle and advance its cursor")

	pollCmd.Flags().Int("timeout", 10, "seconds to wait before giving up")

	searchCmd.Flags().String("handle", "", "only match messages from this sender")

	rootCmd.AddCommand(createCmd, sendCmd, readCmd, pollCmd, participantsCmd, searchCmd)
}
