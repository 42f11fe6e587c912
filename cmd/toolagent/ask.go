package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/callbacks"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Answer a single message",
	Long:  `Answers the message and prints the result as JSON.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		stats, _ := cmd.Flags().GetBool("stats")
		threadID, _ := cmd.Flags().GetString("thread")
		if threadID == "" {
			threadID = chatmodel.NewThreadID()
		}

		var pad *callbacks.Scratchpad
		var cb agent.Callback
		if stats {
			mode := callbacks.ModeDefault
			if rootFlags.verbose {
				mode = callbacks.ModeVerbose
			}
			pad = callbacks.NewScratchpad(mode)
			cb = pad
		} else if rootFlags.verbose {
			cb = callbacks.NewPrinter(os.Stderr, callbacks.ModeVerbose)
		}

		a, err := newApp(cmd.Context(), cfg, cb)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := chatmodel.WithThreadContext(cmd.Context(), chatmodel.NewThreadContext(threadID))
		if pad != nil {
			pad.StartRun(ctx)
		}
		res := a.agent.Answer(ctx, strings.Join(args, " "), threadID)
		if pad != nil {
			_, report := pad.EndRun(ctx)
			_, _ = os.Stderr.Write(report)
		}

		fmt.Println(llmutils.ToJSONIndent(map[string]any{"result": res}))
		if !res.IsSuccess() {
			return res.Err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().Bool("stats", false, "print run statistics to stderr")
	askCmd.Flags().StringP("thread", "t", "", "thread ID")
}
