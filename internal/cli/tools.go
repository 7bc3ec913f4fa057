package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/golovatskygroup/mcp-toolkit/internal/app"
	"github.com/golovatskygroup/mcp-toolkit/pkg/mcp"
)

var (
	putFile    string
	callArgs   string
	listFormat string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Manage and call tools without starting a server",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List custom tools and their compile status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return invoke(cmd, "list_custom_tools", map[string]any{"format": listFormat})
	},
}

var toolsPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or replace a custom tool from a JSON or YAML descriptor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDescriptor(cmd, putFile)
		if err != nil {
			return err
		}
		return invoke(cmd, "save_custom_tool", map[string]any{"descriptor": doc})
	},
}

var toolsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a custom tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return invoke(cmd, "delete_custom_tool", map[string]any{"name": args[0]})
	},
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <name>",
	Short: "Invoke a builtin or custom tool once and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printResult(cmd, a.Dispatcher.InvokeRaw(ctx, args[0], json.RawMessage(callArgs)))
		})
	},
}

func init() {
	toolsListCmd.Flags().StringVar(&listFormat, "format", "text", "output format (text, json)")
	toolsPutCmd.Flags().StringVarP(&putFile, "file", "f", "", "descriptor file, or - for stdin")
	_ = toolsPutCmd.MarkFlagRequired("file")
	toolsCallCmd.Flags().StringVar(&callArgs, "args", "{}", "tool arguments as a JSON object")

	toolsCmd.AddCommand(toolsListCmd, toolsPutCmd, toolsDeleteCmd, toolsCallCmd)
	rootCmd.AddCommand(toolsCmd)
}

func invoke(cmd *cobra.Command, name string, args map[string]any) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		return printResult(cmd, a.Dispatcher.Invoke(ctx, name, args))
	})
}

func readDescriptor(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read descriptor: %w", err)
	}
	return string(data), nil
}

// printResult writes the text blocks of res to stdout. An error-flagged
// result becomes the command error.
func printResult(cmd *cobra.Command, res *mcp.CallToolResult) error {
	out := cmd.OutOrStdout()
	for _, block := range res.Content {
		switch block.Type {
		case "text":
			if res.IsError {
				continue
			}
			fmt.Fprintln(out, block.Text)
		default:
			fmt.Fprintf(out, "[%s content, %s]\n", block.Type, block.MimeType)
		}
	}
	if res.IsError {
		msg := "tool call failed"
		if len(res.Content) > 0 && res.Content[0].Text != "" {
			msg = strings.TrimPrefix(res.Content[0].Text, "Error: ")
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}
