package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

type accountView struct {
	Label    string   `json:"label"`
	Asset    string   `json:"asset"`
	IsFiat   bool     `json:"is_fiat"`
	Actions  []string `json:"actions"`
	Archived bool     `json:"archived"`
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "列出全部账户",
	Long:  `列出服务端聚合的全部账户，可用 --action 过滤出支持某个动作的账户。`,
	Run: func(cmd *cobra.Command, args []string) {
		server, _ := cmd.Flags().GetString("server")
		action, _ := cmd.Flags().GetString("action")

		path := "/api/v1/accounts"
		if action != "" {
			path += "?action=" + url.QueryEscape(action)
		}

		var views []accountView
		if err := call(server, http.MethodGet, path, nil, &views); err != nil {
			fmt.Printf("查询失败: %v\n", err)
			os.Exit(1)
		}

		for _, v := range views {
			kind := "crypto"
			if v.IsFiat {
				kind = "fiat"
			}
			archived := ""
			if v.Archived {
				archived = " [archived]"
			}
			fmt.Printf("%-24s %-6s %-6s %v%s\n", v.Label, v.Asset, kind, v.Actions, archived)
		}
	},
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "列出某账户在某动作下的合法目标",
	Run: func(cmd *cobra.Command, args []string) {
		server, _ := cmd.Flags().GetString("server")
		asset, _ := cmd.Flags().GetString("asset")
		address, _ := cmd.Flags().GetString("address")
		action, _ := cmd.Flags().GetString("action")

		q := url.Values{}
		q.Set("asset", asset)
		q.Set("address", address)
		q.Set("action", action)

		var views []accountView
		if err := call(server, http.MethodGet, "/api/v1/accounts/targets?"+q.Encode(), nil, &views); err != nil {
			fmt.Printf("查询失败: %v\n", err)
			os.Exit(1)
		}

		for _, v := range views {
			fmt.Printf("%-24s %s\n", v.Label, v.Asset)
		}
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.Flags().String("action", "", "按动作过滤 (send, sell, fiat_deposit...)")

	rootCmd.AddCommand(targetsCmd)
	targetsCmd.Flags().String("asset", "", "来源资产代码")
	targetsCmd.Flags().String("address", "", "来源账户地址或标签")
	targetsCmd.Flags().String("action", "send", "动作")
	targetsCmd.MarkFlagRequired("asset")
	targetsCmd.MarkFlagRequired("address")
}
