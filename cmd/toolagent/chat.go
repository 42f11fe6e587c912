package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/callbacks"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/store"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long:  `Reads messages from stdin until "exit" or "quit". "/reset" clears the conversation.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var cb agent.Callback
		if rootFlags.verbose {
			cb = callbacks.NewPrinter(os.Stdout, callbacks.ModeVerbose)
		}
		a, err := newApp(cmd.Context(), cfg, cb)
		if err != nil {
			return err
		}
		defer a.Close()

		threadID, _ := cmd.Flags().GetString("thread")
		return chatLoop(cmd.Context(), os.Stdin, os.Stdout, a.agent, a.store, threadID)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("thread", "t", "", "thread ID to continue")
}

type answerer interface {
	Answer(ctx context.Context, message, threadID string) *agent.Result
}

// chatLoop answers the lines of in until exit, quit or EOF.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, a answerer, threads store.ThreadStore, threadID string) error {
	if threadID == "" {
		threadID = chatmodel.NewThreadID()
	}
	fmt.Fprintf(out, "Thread: %s. Type \"exit\" or \"quit\" to end.\n", threadID)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/reset":
			if err := threads.Reset(ctx, threadID); err != nil {
				return err
			}
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		res := a.Answer(ctx, line, threadID)
		if res.IsSuccess() {
			fmt.Fprintf(out, "%s\n", res.Response)
		} else {
			fmt.Fprintf(out, "[%s] %s\n", res.Status, res.Response)
		}
		fmt.Fprintf(out, "(usage: %d input tokens, %d output tokens, %d iterations)\n",
			res.InputTokens, res.OutputTokens, res.Iterations)
	}
}
