package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/paths"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: GroupDiag,
	Short:   "Show or edit configuration",
	Long: `Show the effective configuration, or read and write individual
keys in the config file. Keys are dotted TOML paths.

Examples:
  drover config
  drover config path
  drover config get api.base_url
  drover config set fleet.base_branch develop`,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	a, err := newLocalApp()
	if err != nil {
		return err
	}

	shown := a.cfg
	if shown.API.Key != "" {
		shown.API.Key = "(set)"
	}
	enc := toml.NewEncoder(os.Stdout)
	return enc.Encode(shown)
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(paths.ConfigFile(paths.Resolve()))
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := readConfigTree()
		if err != nil {
			return err
		}
		v, ok := lookupKey(tree, args[0])
		if !ok {
			return fmt.Errorf("key %q is not set", args[0])
		}
		fmt.Println(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write one config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := readConfigTree()
		if err != nil {
			return err
		}
		setKey(tree, args[0], args[1])

		path := paths.ConfigFile(paths.Resolve())
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return toml.NewEncoder(f).Encode(tree)
	},
}

// readConfigTree loads the raw config file as a generic tree so edits
// preserve keys this build does not know about.
func readConfigTree() (map[string]any, error) {
	tree := map[string]any{}
	data, err := os.ReadFile(paths.ConfigFile(paths.Resolve()))
	if err != nil {
		if os.IsNotExist(err) {
			return tree, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func lookupKey(tree map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	cur := any(tree)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setKey(tree map[string]any, key, value string) {
	parts := strings.Split(key, ".")
	cur := tree
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}
