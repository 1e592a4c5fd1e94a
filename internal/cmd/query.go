package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/query"
	"github.com/droverhq/drover/internal/style"
)

func init() {
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:     "query '<json>'",
	GroupID: GroupData,
	Short:   "Run a structured query over the local cache",
	Long: `Run a JSON query over cached sessions and activities. Purely
local. Pass the query as one argument or pipe it on stdin with '-'.

Dot paths traverse nested objects and fan out over arrays. A field
directly under "where" is an equality test; an operator object
({"gt": ...}, {"contains": ...}, {"in": [...]}, {"exists": true})
refines it. "select" lists paths to keep ("*" for everything, "-path"
to exclude).

Examples:
  drover query '{"from":"sessions","where":{"state":"failed"},"limit":10}'
  drover query '{"from":"activities","select":["sessionId","artifacts.exitCode"],"where":{"artifacts.exitCode":{"gt":0}}}'
  cat q.json | drover query -`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	raw := []byte(args[0])
	if args[0] == "-" {
		var err error
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
	}

	q, err := query.Parse(raw)
	if err != nil {
		return err
	}

	a, err := newLocalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := query.Run(q, &query.StoreSource{Store: a.store, Logs: a.logs})
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintln(os.Stderr, style.Warning.Render("warning: "+w))
	}
	return outputJSON(res.Rows)
}
